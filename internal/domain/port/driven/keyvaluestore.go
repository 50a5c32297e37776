// Package driven defines secondary port interfaces for external adapters.
package driven

import (
	"context"
	"time"
)

// KeyValueStore defines the driven port for the shared external key-value
// store backing the key cache and the quota counters.
//
// The contract is deliberately non-erroring: a backend failure is absorbed by
// the adapter (logged with the offending key) and reported to the caller as an
// absent/false result. Callers decide the failure direction locally — the key
// cache fails toward "absent" (closed for authentication) while the quota
// tracker fails open. No adapter fault may unwind through the calling layers.
type KeyValueStore interface {
	// Get returns the value for key. The second return is false when the key
	// is absent or the backend failed.
	Get(ctx context.Context, key string) (string, bool)

	// Set stores value under key with the given TTL. Returns false on failure.
	Set(ctx context.Context, key, value string, ttl time.Duration) bool

	// Delete removes key. Returns true only when an existing key was removed.
	Delete(ctx context.Context, key string) bool

	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) bool

	// Increment atomically increments the integer at key, creating it at 1
	// when absent. The second return is false on backend failure.
	Increment(ctx context.Context, key string) (int64, bool)

	// IncrementWithTTL behaves like Increment but attaches ttl to the key
	// when the incremented value is 1, i.e. only the first writer of a key
	// sets its TTL. Later increments must not refresh it, bounding a
	// counter's lifetime to one TTL from its first write. The small window
	// between the increment and the TTL attachment is a tolerated race: a
	// concurrent reader may briefly observe the key without a TTL.
	IncrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, bool)
}
