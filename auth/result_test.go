package auth

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestBearerChallenge(t *testing.T) {
	tests := []struct {
		realm, code, desc string
		want              string
	}{
		{"", "", "", "Bearer"},
		{"api", "", "", `Bearer realm="api"`},
		{"api", "invalid_token", "token expiry check failed", `Bearer realm="api", error="invalid_token", error_description="token expiry check failed"`},
		{`a"b`, "invalid_request", `back\slash`, `Bearer realm="a\"b", error="invalid_request", error_description="back\\slash"`},
	}
	for _, tt := range tests {
		if got := bearerChallenge(tt.realm, tt.code, tt.desc); got != tt.want {
			t.Errorf("bearerChallenge(%q,%q,%q) = %s, want %s", tt.realm, tt.code, tt.desc, got, tt.want)
		}
	}
}

func TestChallengeFor(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		status   int
		code     string
		wantDesc string
	}{
		{"insufficient scope", fmt.Errorf("%w: missing orders/read", ErrInsufficientScope), http.StatusForbidden, "insufficient_scope", "insufficient scope"},
		{"not access", errors.Join(ErrUnauthorized, ErrNotAccessToken), http.StatusUnauthorized, "invalid_token", "not an access token"},
		{"revoked", errors.Join(ErrUnauthorized, ErrRevoked), http.StatusUnauthorized, "invalid_token", "token revoked"},
		{"generic", ErrUnauthorized, http.StatusUnauthorized, "invalid_token", "token unknown check failed"},
		{"unavailable", ErrUnavailable, http.StatusInternalServerError, "", "authentication unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := ChallengeFor("api", tt.err)
			if ch.Status != tt.status || ch.Code != tt.code || ch.Description != tt.wantDesc {
				t.Fatalf("challenge = %+v", ch)
			}
			if tt.code == "" && ch.WWWAuthenticate != "" {
				t.Fatalf("unexpected header %q", ch.WWWAuthenticate)
			}
		})
	}
}

func TestChallengeBuilders(t *testing.T) {
	if ch := NewAuthenticationRequired("api"); ch.Status != 401 || ch.WWWAuthenticate != `Bearer realm="api"` || ch.Code != "" {
		t.Fatalf("authentication required = %+v", ch)
	}
	if ch := NewInvalidRequest("", "malformed authorization header"); ch.Status != 400 || ch.Code != "invalid_request" {
		t.Fatalf("invalid request = %+v", ch)
	}
}

func TestConfigError(t *testing.T) {
	err := &ConfigError{Field: "user_pool_id", Reason: "must not be empty"}
	if !errors.Is(err, ErrConfiguration) {
		t.Fatal("ConfigError does not match ErrConfiguration")
	}
	wrapped := fmt.Errorf("startup: %w", err)
	var ce *ConfigError
	if !errors.As(wrapped, &ce) || ce.Field != "user_pool_id" {
		t.Fatalf("errors.As failed: %v", wrapped)
	}
}
