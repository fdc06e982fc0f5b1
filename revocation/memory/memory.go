// Package memory provides an in-process revocation.Store backed by
// github.com/hashicorp/golang-lru/v2. Entries expire at their revocation
// deadline. When capacity is reached the least recently consulted id is
// evicted and stops being denied, so size the store above the number of
// revocations expected to be live at once.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ggoodman/cognito-auth-go/revocation"
	lru "github.com/hashicorp/golang-lru/v2"
)

const cleanupInterval = 5 * time.Minute

// Store implements revocation.Store in memory.
type Store struct {
	mu     sync.RWMutex
	cache  *lru.Cache[string, time.Time]
	closed bool
	now    func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// New creates a store holding at most maxItems revoked ids.
func New(maxItems int) (*Store, error) {
	cache, err := lru.New[string, time.Time](maxItems)
	if err != nil {
		return nil, fmt.Errorf("failed to create LRU cache: %w", err)
	}
	s := &Store{
		cache: cache,
		now:   time.Now,
		stop:  make(chan struct{}),
	}
	go s.cleanupExpired()
	return s, nil
}

// Revoke denies id until the given time.
func (s *Store) Revoke(ctx context.Context, id string, until time.Time) error {
	id, err := revocation.NormalizeID(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return revocation.ErrClosed
	}
	if !until.After(s.now()) {
		return nil
	}
	// Never shorten an existing revocation.
	if prev, ok := s.cache.Peek(id); ok && prev.After(until) {
		return nil
	}
	s.cache.Add(id, until)
	return nil
}

// IsRevoked reports whether id is denied at the current time.
func (s *Store) IsRevoked(ctx context.Context, id string) (bool, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return false, revocation.ErrClosed
	}
	until, ok := s.cache.Get(id)
	now := s.now()
	s.mu.RUnlock()

	if !ok {
		return false, nil
	}
	if !until.After(now) {
		s.removeIfExpired(id, now)
		return false, nil
	}
	return true, nil
}

// removeIfExpired drops id only if its deadline, read again under the write
// lock, is not after now. A Revoke racing with IsRevoked may have extended it.
func (s *Store) removeIfExpired(id string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if until, ok := s.cache.Peek(id); ok && !until.After(now) {
		s.cache.Remove(id)
	}
}

// Len returns the number of tracked ids, expired ones included until swept.
func (s *Store) Len() int { return s.cache.Len() }

// Close purges the store and stops the background sweeper.
func (s *Store) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	s.mu.Lock()
	s.closed = true
	s.cache.Purge()
	s.mu.Unlock()
	return nil
}

func (s *Store) cleanupExpired() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Store) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for _, id := range s.cache.Keys() {
		if until, ok := s.cache.Peek(id); ok && !until.After(now) {
			s.cache.Remove(id)
		}
	}
}

var _ revocation.Store = (*Store)(nil)
