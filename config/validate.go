package config

import (
	"errors"
	"reflect"
	"strings"

	"github.com/ggoodman/cognito-auth-go/auth"
	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their configuration key rather than the Go name.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("aws_region", validateRegion)
	v.RegisterStructValidation(validateRevocation, Revocation{})
	return v
}

// validateRevocation rejects deny_ids when no store would hold them.
func validateRevocation(sl validator.StructLevel) {
	r := sl.Current().Interface().(Revocation)
	if len(r.DenyIDs) > 0 && r.Backend == "none" {
		sl.ReportError(r.DenyIDs, "deny_ids", "DenyIDs", "requires_backend", "")
	}
}

func validateRegion(fl validator.FieldLevel) bool {
	if fl.Field().String() == "" {
		return true
	}
	_, err := auth.LookupRegion(fl.Field().String())
	return err == nil
}

// Validate checks c and returns one auth.ConfigError per violation, joined.
func Validate(c Config) error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return &auth.ConfigError{Field: "config", Reason: "validation failed", Err: err}
	}
	errs := make([]error, 0, len(ves))
	for _, fe := range ves {
		errs = append(errs, &auth.ConfigError{Field: fieldKey(fe.Namespace()), Reason: reason(fe)})
	}
	return errors.Join(errs...)
}

// fieldKey turns "Config.aws.cognito.user_pool_id" into "aws.cognito.user_pool_id".
func fieldKey(ns string) string {
	_, rest, ok := strings.Cut(ns, ".")
	if !ok {
		return ns
	}
	return rest
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return "is required"
	case "aws_region":
		return "is not a valid AWS region"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "requires_backend":
		return "requires revocation.backend memory or redis"
	case "hostname_port":
		return "must be host:port"
	case "gt", "gte", "lt", "lte":
		return "must be " + fe.Tag() + " " + fe.Param()
	}
	return "failed " + fe.Tag() + " check"
}
