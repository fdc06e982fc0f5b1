// Package redis provides a revocation.Store shared across processes, using
// Redis keys that expire at the revocation deadline.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/ggoodman/cognito-auth-go/revocation"
	"github.com/redis/go-redis/v9"
)

// Config contains configuration options for the Redis store.
type Config struct {
	// Client is the Redis client instance.
	Client *redis.Client

	// KeyPrefix is the prefix for all Redis keys.
	// Default: "cognitogate:revoked:"
	KeyPrefix string
}

// Store implements revocation.Store using Redis.
type Store struct {
	client    *redis.Client
	keyPrefix string
}

// New creates a Redis-backed store.
func New(config Config) (*Store, error) {
	if config.Client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "cognitogate:revoked:"
	}
	return &Store{client: config.Client, keyPrefix: config.KeyPrefix}, nil
}

// revokeScript sets KEYS[1] to the deadline ARGV[1] (unix seconds) with a
// PX expiry of ARGV[2] unless the stored deadline is already later.
var revokeScript = redis.NewScript(`
local prev = tonumber(redis.call("GET", KEYS[1]))
local until = tonumber(ARGV[1])
if prev and prev > until then
	return 0
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
return 1
`)

// Revoke stores id with an expiry at until. The value is the deadline in
// unix seconds. An existing later deadline is kept; the comparison and the
// write happen atomically on the server.
func (s *Store) Revoke(ctx context.Context, id string, until time.Time) error {
	id, err := revocation.NormalizeID(id)
	if err != nil {
		return err
	}
	ttl := time.Until(until)
	if ttl < time.Millisecond {
		return nil
	}
	key := s.key(id)
	if err := revokeScript.Run(ctx, s.client, []string{key}, until.Unix(), ttl.Milliseconds()).Err(); err != nil {
		return fmt.Errorf("failed to revoke key %s: %w", key, err)
	}
	return nil
}

// IsRevoked reports whether a key for id exists.
func (s *Store) IsRevoked(ctx context.Context, id string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(id)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check key %s: %w", s.key(id), err)
	}
	return n > 0, nil
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) key(id string) string { return s.keyPrefix + id }

var _ revocation.Store = (*Store)(nil)
