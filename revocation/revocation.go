// Package revocation defines the denylist consulted after a token has been
// validated. Cognito revokes refresh tokens; access tokens minted from a
// refresh token carry its id in origin_jti, so revoking that id cuts off
// every access token derived from it.
package revocation

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Store records revoked token ids until the time after which the tokens they
// name could no longer validate anyway.
type Store interface {
	// Revoke denies id until the given time. Revoking an id whose until is
	// already in the past is a no-op.
	Revoke(ctx context.Context, id string, until time.Time) error

	// IsRevoked reports whether id is currently denied. Errors mean the
	// store could not answer and callers must fail closed.
	IsRevoked(ctx context.Context, id string) (bool, error)

	// Close releases resources held by the store.
	Close() error
}

var (
	// ErrInvalidID is returned when revoking an empty id.
	ErrInvalidID = errors.New("revocation: empty token id")
	// ErrClosed is returned by stores used after Close.
	ErrClosed = errors.New("revocation: store closed")
)

// NormalizeID trims id and rejects empty values.
func NormalizeID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", ErrInvalidID
	}
	return id, nil
}
