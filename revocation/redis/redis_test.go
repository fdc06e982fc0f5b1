package redis

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/ggoodman/cognito-auth-go/revocation"
	"github.com/redis/go-redis/v9"
)

func TestNewRequiresClient(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error without client")
	}
}

func TestRedisStore(t *testing.T) {
	// Skip test if Redis is not available
	client := redis.NewClient(&redis.Options{
		Addr: "127.0.0.1:6379",
		DB:   3,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	defer client.FlushDB(ctx)

	s, err := New(Config{Client: client, KeyPrefix: "test:revoked:"})
	if err != nil {
		t.Fatalf("Failed to create Redis store: %v", err)
	}
	defer s.Close()

	t.Run("RevokeAndCheck", func(t *testing.T) {
		if err := s.Revoke(ctx, "origin-1", time.Now().Add(time.Hour)); err != nil {
			t.Fatalf("Revoke failed: %v", err)
		}
		revoked, err := s.IsRevoked(ctx, "origin-1")
		if err != nil || !revoked {
			t.Fatalf("IsRevoked = %v, %v", revoked, err)
		}
		ttl := client.TTL(ctx, "test:revoked:origin-1").Val()
		if ttl <= 0 || ttl > time.Hour {
			t.Fatalf("unexpected ttl %v", ttl)
		}
	})

	t.Run("Unknown", func(t *testing.T) {
		revoked, err := s.IsRevoked(ctx, "never-revoked")
		if err != nil || revoked {
			t.Fatalf("IsRevoked = %v, %v", revoked, err)
		}
	})

	t.Run("Expiry", func(t *testing.T) {
		if err := s.Revoke(ctx, "short", time.Now().Add(1100*time.Millisecond)); err != nil {
			t.Fatalf("Revoke failed: %v", err)
		}
		time.Sleep(1500 * time.Millisecond)
		if revoked, _ := s.IsRevoked(ctx, "short"); revoked {
			t.Fatal("expected revocation to expire")
		}
	})

	t.Run("KeepsLaterDeadline", func(t *testing.T) {
		_ = s.Revoke(ctx, "long", time.Now().Add(time.Hour))
		_ = s.Revoke(ctx, "long", time.Now().Add(time.Minute))
		if ttl := client.TTL(ctx, "test:revoked:long").Val(); ttl < 30*time.Minute {
			t.Fatalf("deadline shortened, ttl = %v", ttl)
		}
	})

	t.Run("ConcurrentRevokesKeepLatest", func(t *testing.T) {
		now := time.Now()
		var wg sync.WaitGroup
		for i := 1; i <= 20; i++ {
			wg.Add(1)
			go func(d time.Duration) {
				defer wg.Done()
				if err := s.Revoke(ctx, "racy", now.Add(d)); err != nil {
					t.Errorf("Revoke failed: %v", err)
				}
			}(time.Duration(i) * time.Minute)
		}
		wg.Wait()
		want := strconv.FormatInt(now.Add(20*time.Minute).Unix(), 10)
		if got := client.Get(ctx, "test:revoked:racy").Val(); got != want {
			t.Fatalf("stored deadline = %s, want %s", got, want)
		}
		if ttl := client.TTL(ctx, "test:revoked:racy").Val(); ttl < 19*time.Minute {
			t.Fatalf("deadline shortened, ttl = %v", ttl)
		}
	})

	t.Run("InvalidID", func(t *testing.T) {
		if err := s.Revoke(ctx, "", time.Now().Add(time.Hour)); !errors.Is(err, revocation.ErrInvalidID) {
			t.Fatalf("want ErrInvalidID, got %v", err)
		}
	})
}

func TestRedisStore_Unreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	s, err := New(Config{Client: client})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer s.Close()

	if _, err := s.IsRevoked(context.Background(), "x"); err == nil {
		t.Fatal("expected error from unreachable server")
	}
}
