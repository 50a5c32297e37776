// Package memory provides an in-process KeyValueStore with TTL semantics.
// It backs tests and single-node deployments where no Redis is configured;
// entries are not shared across processes.
package memory

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/bvquoc/scalable-api/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.KeyValueStore = (*Store)(nil)

type entry struct {
	value     string
	expiresAt time.Time // zero means no TTL
}

// Store is a mutex-guarded map with lazy expiry. All operations are safe for
// concurrent use and never fail, matching the non-erroring port contract.
type Store struct {
	mu      sync.Mutex
	entries map[string]entry
	ttlSets map[string]int

	now func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces the store's clock, letting tests advance time past TTLs
// deterministically.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates an empty Store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		entries: make(map[string]entry),
		ttlSets: make(map[string]int),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// live returns the entry for key if present and unexpired, dropping it when
// expired. Caller must hold mu.
func (s *Store) live(key string) (entry, bool) {
	ent, ok := s.entries[key]
	if !ok {
		return entry{}, false
	}
	if !ent.expiresAt.IsZero() && !ent.expiresAt.After(s.now()) {
		delete(s.entries, key)
		delete(s.ttlSets, key)
		return entry{}, false
	}
	return ent, true
}

func (s *Store) Get(_ context.Context, key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.live(key)
	if !ok {
		return "", false
	}
	return ent.value, true
}

func (s *Store) Set(_ context.Context, key, value string, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	ent := entry{value: value}
	if ttl > 0 {
		ent.expiresAt = s.now().Add(ttl)
	}
	s.entries[key] = ent
	return true
}

func (s *Store) Delete(_ context.Context, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.live(key); !ok {
		return false
	}
	delete(s.entries, key)
	delete(s.ttlSets, key)
	return true
}

func (s *Store) Exists(_ context.Context, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.live(key)
	return ok
}

func (s *Store) Increment(_ context.Context, key string) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.increment(key), true
}

func (s *Store) IncrementWithTTL(_ context.Context, key string, ttl time.Duration) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	value := s.increment(key)
	if value == 1 && ttl > 0 {
		ent := s.entries[key]
		ent.expiresAt = s.now().Add(ttl)
		s.entries[key] = ent
		s.ttlSets[key]++
	}
	return value, true
}

// increment bumps the counter at key, creating it at 1. Caller must hold mu.
func (s *Store) increment(key string) int64 {
	var value int64
	if ent, ok := s.live(key); ok {
		value, _ = strconv.ParseInt(ent.value, 10, 64)
	}
	value++

	ent := s.entries[key] // preserves expiresAt for existing counters
	ent.value = strconv.FormatInt(value, 10)
	s.entries[key] = ent
	return value
}

// TTL returns the remaining lifetime of key. The second return is false when
// the key is absent; a zero duration with true means the key has no TTL.
func (s *Store) TTL(key string) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.live(key)
	if !ok {
		return 0, false
	}
	if ent.expiresAt.IsZero() {
		return 0, true
	}
	return ent.expiresAt.Sub(s.now()), true
}

// TTLSetCount reports how many times IncrementWithTTL attached a TTL to key.
// Test instrumentation for the first-writer-sets-TTL invariant.
func (s *Store) TTLSetCount(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ttlSets[key]
}
