package config

import (
	"reflect"
	"time"

	"github.com/invopop/jsonschema"
)

var durationType = reflect.TypeOf(time.Duration(0))

// Schema describes the configuration file format.
func Schema() *jsonschema.Schema {
	r := &jsonschema.Reflector{
		DoNotReference: true, // inline defs
		ExpandedStruct: true, // put struct at root
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			if t == durationType {
				return &jsonschema.Schema{
					Type:        "string",
					Pattern:     `^([0-9]+(\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$`,
					Description: "Go duration, e.g. 30s",
				}
			}
			return nil
		},
	}
	s := r.Reflect(new(Config))
	s.Title = "cognitogate configuration"
	return s
}
