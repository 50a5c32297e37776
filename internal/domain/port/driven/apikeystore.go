package driven

import (
	"context"
	"time"

	"github.com/bvquoc/scalable-api/internal/domain/model"
)

// APIKeyStore defines the driven port for durable API key persistence.
// Key records are created and mutated by administrative tooling; the
// admission path only reads them and touches last_used_at.
type APIKeyStore interface {
	// FindByHash returns the key whose key_hash matches, or (nil, nil) when
	// no such key exists. The hash is the only supported lookup for
	// authentication.
	FindByHash(ctx context.Context, keyHash string) (*model.APIKey, error)

	// UpdateLastUsedAt stamps the key's last_used_at column.
	UpdateLastUsedAt(ctx context.Context, keyHash string, usedAt time.Time) error

	// ListActiveHashes returns the hashes of all currently active keys,
	// used to pre-populate the cache at startup.
	ListActiveHashes(ctx context.Context) ([]string, error)

	// FindByUserID returns all keys owned by the given user, newest first.
	FindByUserID(ctx context.Context, userID int64) ([]model.APIKey, error)

	// FindExpiringSoon returns active keys whose expiry falls within the
	// given window from now, for expiry notifications.
	FindExpiringSoon(ctx context.Context, now time.Time, within time.Duration) ([]model.APIKey, error)

	// ExistsByHash reports whether a key with the given hash exists.
	ExistsByHash(ctx context.Context, keyHash string) (bool, error)
}
