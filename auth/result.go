package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// AuthenticationChallenge describes an HTTP rejection: status plus the
// WWW-Authenticate header value (RFC 6750 section 3).
type AuthenticationChallenge struct {
	Status          int
	WWWAuthenticate string
	// Code is the RFC 6750 error code; empty when credentials were absent.
	Code        string
	Description string
}

// NewAuthenticationRequired builds a challenge for a request with no credentials.
// Per RFC 6750 it carries no error code.
func NewAuthenticationRequired(realm string) AuthenticationChallenge {
	return AuthenticationChallenge{
		Status:          http.StatusUnauthorized,
		WWWAuthenticate: bearerChallenge(realm, "", ""),
	}
}

// NewInvalidRequest builds a challenge for a malformed Authorization header.
func NewInvalidRequest(realm, description string) AuthenticationChallenge {
	return AuthenticationChallenge{
		Status:          http.StatusBadRequest,
		WWWAuthenticate: bearerChallenge(realm, "invalid_request", description),
		Code:            "invalid_request",
		Description:     description,
	}
}

// NewInvalidTokenResult builds a challenge indicating the token is invalid.
func NewInvalidTokenResult(realm, description string) AuthenticationChallenge {
	return AuthenticationChallenge{
		Status:          http.StatusUnauthorized,
		WWWAuthenticate: bearerChallenge(realm, "invalid_token", description),
		Code:            "invalid_token",
		Description:     description,
	}
}

// NewInsufficientScopeResult builds a challenge indicating missing required scope.
func NewInsufficientScopeResult(realm, description string) AuthenticationChallenge {
	return AuthenticationChallenge{
		Status:          http.StatusForbidden,
		WWWAuthenticate: bearerChallenge(realm, "insufficient_scope", description),
		Code:            "insufficient_scope",
		Description:     description,
	}
}

// ChallengeFor maps an error returned by Authenticator.CheckAuthentication
// to a challenge. Errors that are neither ErrUnauthorized nor
// ErrInsufficientScope yield a 500 without a WWW-Authenticate value. The
// description is a short reason label, never the raw error, so token
// contents do not leak to clients.
func ChallengeFor(realm string, err error) AuthenticationChallenge {
	switch {
	case errors.Is(err, ErrInsufficientScope):
		return NewInsufficientScopeResult(realm, "insufficient scope")
	case errors.Is(err, ErrNotAccessToken):
		return NewInvalidTokenResult(realm, ErrNotAccessToken.Error())
	case errors.Is(err, ErrRevoked):
		return NewInvalidTokenResult(realm, ErrRevoked.Error())
	case errors.Is(err, ErrUnauthorized):
		return NewInvalidTokenResult(realm, "token "+FailureReason(err)+" check failed")
	}
	return AuthenticationChallenge{Status: http.StatusInternalServerError, Description: "authentication unavailable"}
}

// bearerChallenge builds a Bearer challenge header value:
//
//	Bearer realm="<realm>", error="...", error_description="..."
//
// Empty parameters are omitted; a challenge with none is just "Bearer".
func bearerChallenge(realm, code, description string) string {
	esc := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace
	var pieces []string
	if realm != "" {
		pieces = append(pieces, fmt.Sprintf(`realm="%s"`, esc(realm)))
	}
	if code != "" {
		pieces = append(pieces, fmt.Sprintf(`error="%s"`, esc(code)))
	}
	if description != "" {
		pieces = append(pieces, fmt.Sprintf(`error_description="%s"`, esc(description)))
	}
	if len(pieces) == 0 {
		return "Bearer"
	}
	return "Bearer " + strings.Join(pieces, ", ")
}
