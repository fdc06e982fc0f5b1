package auth

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnauthorized indicates authentication failed or no valid credentials were supplied.
var ErrUnauthorized = errors.New("unauthorized")

// ErrInsufficientScope indicates the caller authenticated but lacks required scope.
var ErrInsufficientScope = errors.New("insufficient scope")

// ErrNotAccessToken indicates a verified token whose token_use is not "access".
var ErrNotAccessToken = errors.New("not an access token")

// ErrRevoked indicates a verified token that has been revoked.
var ErrRevoked = errors.New("token revoked")

// ErrConfiguration is matched by every ConfigError.
var ErrConfiguration = errors.New("invalid configuration")

// ConfigError reports a startup configuration problem. The gate must not
// serve traffic when one is returned.
type ConfigError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config: %s: %s: %v", e.Field, e.Reason, e.Err)
	}
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return e.Err }

func (e *ConfigError) Is(target error) bool { return target == ErrConfiguration }

// UserInfo represents an authenticated principal.
// Implementations should be lightweight and safe for concurrent use.
type UserInfo interface {
	// UserID returns the unique identifier for the user.
	UserID() string
	// Claims unmarshalls the user's claims into the provided struct reference.
	Claims(ref any) error
	// Principal returns the verified claim set.
	Principal() Principal
}

// Authenticator validates bearer tokens and returns associated user info.
// It should return ErrUnauthorized for invalid credentials.
type Authenticator interface {
	CheckAuthentication(ctx context.Context, tok string) (UserInfo, error)
}
