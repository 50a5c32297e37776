package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStoreAt(start time.Time) (*Store, func(time.Duration)) {
	current := start
	s := NewStore(WithClock(func() time.Time { return current }))
	return s, func(d time.Duration) { current = current.Add(d) }
}

func TestStore_SetGetDelete(t *testing.T) {
	ctx := t.Context()
	s := NewStore()

	_, ok := s.Get(ctx, "missing")
	assert.False(t, ok)

	require.True(t, s.Set(ctx, "k", "v", 0))
	v, ok := s.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "v", v)
	assert.True(t, s.Exists(ctx, "k"))

	assert.True(t, s.Delete(ctx, "k"))
	assert.False(t, s.Delete(ctx, "k"), "second delete finds nothing")
	assert.False(t, s.Exists(ctx, "k"))
}

func TestStore_TTLExpiry(t *testing.T) {
	ctx := t.Context()
	s, advance := newStoreAt(time.Unix(1_700_000_000, 0))

	s.Set(ctx, "k", "v", time.Minute)

	advance(59 * time.Second)
	_, ok := s.Get(ctx, "k")
	assert.True(t, ok, "entry must survive until its TTL")

	advance(2 * time.Second)
	_, ok = s.Get(ctx, "k")
	assert.False(t, ok, "entry must expire after its TTL")
	assert.False(t, s.Exists(ctx, "k"))
}

func TestStore_SetWithoutTTLNeverExpires(t *testing.T) {
	ctx := t.Context()
	s, advance := newStoreAt(time.Unix(1_700_000_000, 0))

	s.Set(ctx, "k", "v", 0)
	advance(24 * time.Hour)

	_, ok := s.Get(ctx, "k")
	assert.True(t, ok)

	ttl, ok := s.TTL("k")
	require.True(t, ok)
	assert.Equal(t, time.Duration(0), ttl, "zero TTL means no expiry")
}

func TestStore_Increment(t *testing.T) {
	ctx := t.Context()
	s := NewStore()

	v, ok := s.Increment(ctx, "n")
	require.True(t, ok)
	assert.Equal(t, int64(1), v, "increment creates at 1")

	v, _ = s.Increment(ctx, "n")
	assert.Equal(t, int64(2), v)
}

func TestStore_IncrementWithTTL(t *testing.T) {
	ctx := t.Context()
	s, advance := newStoreAt(time.Unix(1_700_000_000, 0))

	v, ok := s.IncrementWithTTL(ctx, "n", time.Minute)
	require.True(t, ok)
	require.Equal(t, int64(1), v)
	assert.Equal(t, 1, s.TTLSetCount("n"))

	// Later increments must not refresh the TTL.
	advance(30 * time.Second)
	v, _ = s.IncrementWithTTL(ctx, "n", time.Minute)
	assert.Equal(t, int64(2), v)
	assert.Equal(t, 1, s.TTLSetCount("n"))

	ttl, ok := s.TTL("n")
	require.True(t, ok)
	assert.Equal(t, 30*time.Second, ttl, "TTL anchored to the first increment")

	// After expiry a new increment starts a fresh counter with a fresh TTL.
	advance(31 * time.Second)
	v, _ = s.IncrementWithTTL(ctx, "n", time.Minute)
	assert.Equal(t, int64(1), v)
	assert.Equal(t, 1, s.TTLSetCount("n"), "expiry resets the bookkeeping")
}

func TestStore_ConcurrentIncrements(t *testing.T) {
	ctx := t.Context()
	s := NewStore()

	const goroutines = 8
	const perGoroutine = 100

	done := make(chan struct{})
	for g := 0; g < goroutines; g++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for i := 0; i < perGoroutine; i++ {
				s.Increment(ctx, "shared")
			}
		}()
	}
	for g := 0; g < goroutines; g++ {
		<-done
	}

	v, ok := s.Get(ctx, "shared")
	require.True(t, ok)
	assert.Equal(t, "800", v, "increments must not be lost under concurrency")
}
