package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bvquoc/scalable-api/internal/domain/model"
	"github.com/bvquoc/scalable-api/internal/domain/port/driven"
)

// ErrDuplicateKeyHash indicates an insert collided with an existing key_hash.
// Hashes are unique across all API keys.
var ErrDuplicateKeyHash = errors.New("api key hash already exists")

// Compile-time interface satisfaction check.
var _ driven.APIKeyStore = (*APIKeyRepo)(nil)

// APIKeyRepo is the SQLite implementation of the APIKeyStore port interface.
// The admission path only reads from it; Insert exists for administrative
// tooling and test fixtures.
type APIKeyRepo struct {
	db *DB
}

// NewAPIKeyRepo creates a new APIKeyRepo backed by the given DB.
func NewAPIKeyRepo(db *DB) *APIKeyRepo {
	return &APIKeyRepo{db: db}
}

const apiKeyColumns = `id, key_hash, user_id, name, scopes, tier, is_active, expires_at, last_used_at, created_at, updated_at`

// Insert stores a new API key record. The zero CreatedAt/UpdatedAt are
// stamped with the current time. Returns ErrDuplicateKeyHash when the hash
// is already taken.
func (r *APIKeyRepo) Insert(ctx context.Context, key model.APIKey) (model.APIKey, error) {
	scopes, err := json.Marshal(key.Scopes)
	if err != nil {
		return model.APIKey{}, fmt.Errorf("marshal scopes: %w", err)
	}

	now := time.Now().UTC()
	if key.CreatedAt.IsZero() {
		key.CreatedAt = now
	}
	if key.UpdatedAt.IsZero() {
		key.UpdatedAt = now
	}

	const query = `INSERT INTO api_keys (key_hash, user_id, name, scopes, tier, is_active, expires_at, last_used_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := r.db.Writer.ExecContext(ctx, query,
		key.KeyHash, key.UserID, key.Name, string(scopes), string(key.Tier),
		key.Active, nullableTime(key.ExpiresAt), nullableTime(key.LastUsedAt),
		key.CreatedAt, key.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return model.APIKey{}, fmt.Errorf("insert api key %q: %w", key.Name, ErrDuplicateKeyHash)
		}
		return model.APIKey{}, fmt.Errorf("insert api key %q: %w", key.Name, err)
	}

	key.ID, err = result.LastInsertId()
	if err != nil {
		return model.APIKey{}, fmt.Errorf("insert api key %q: %w", key.Name, err)
	}
	return key, nil
}

// FindByHash returns the key matching the hash, or (nil, nil) when absent.
func (r *APIKeyRepo) FindByHash(ctx context.Context, keyHash string) (*model.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE key_hash = ?`

	key, err := scanAPIKey(r.db.Reader.QueryRowContext(ctx, query, keyHash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find api key by hash: %w", err)
	}
	return key, nil
}

// UpdateLastUsedAt stamps last_used_at for the key. Updating an unknown hash
// is not an error; the key may have been deleted since the request started.
func (r *APIKeyRepo) UpdateLastUsedAt(ctx context.Context, keyHash string, usedAt time.Time) error {
	const query = `UPDATE api_keys SET last_used_at = ? WHERE key_hash = ?`

	if _, err := r.db.Writer.ExecContext(ctx, query, usedAt.UTC(), keyHash); err != nil {
		return fmt.Errorf("update last_used_at: %w", err)
	}
	return nil
}

// ListActiveHashes returns the hashes of all active keys for cache warming.
func (r *APIKeyRepo) ListActiveHashes(ctx context.Context) ([]string, error) {
	const query = `SELECT key_hash FROM api_keys WHERE is_active = 1 ORDER BY id`

	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list active key hashes: %w", err)
	}
	defer rows.Close()

	var hashes []string
	for rows.Next() {
		var hash string
		if err := rows.Scan(&hash); err != nil {
			return nil, fmt.Errorf("scan key hash: %w", err)
		}
		hashes = append(hashes, hash)
	}
	return hashes, rows.Err()
}

// FindByUserID returns all keys owned by the user, newest first.
func (r *APIKeyRepo) FindByUserID(ctx context.Context, userID int64) ([]model.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE user_id = ? ORDER BY created_at DESC, id DESC`

	rows, err := r.db.Reader.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("find api keys for user %d: %w", userID, err)
	}
	defer rows.Close()

	return collectAPIKeys(rows)
}

// FindExpiringSoon returns active keys expiring within the given window from
// now, for expiry notifications.
func (r *APIKeyRepo) FindExpiringSoon(ctx context.Context, now time.Time, within time.Duration) ([]model.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys
		WHERE is_active = 1 AND expires_at IS NOT NULL AND expires_at BETWEEN ? AND ?
		ORDER BY expires_at`

	rows, err := r.db.Reader.QueryContext(ctx, query, now.UTC(), now.Add(within).UTC())
	if err != nil {
		return nil, fmt.Errorf("find expiring api keys: %w", err)
	}
	defer rows.Close()

	return collectAPIKeys(rows)
}

// ExistsByHash reports whether a key with the given hash exists.
func (r *APIKeyRepo) ExistsByHash(ctx context.Context, keyHash string) (bool, error) {
	const query = `SELECT 1 FROM api_keys WHERE key_hash = ?`

	var one int
	err := r.db.Reader.QueryRowContext(ctx, query, keyHash).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check api key exists: %w", err)
	}
	return true, nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scanning.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanAPIKey reads one api_keys row into a domain model.
func scanAPIKey(row rowScanner) (*model.APIKey, error) {
	var (
		key        model.APIKey
		scopes     string
		tier       string
		expiresAt  sql.NullString
		lastUsedAt sql.NullString
		createdAt  string
		updatedAt  string
	)

	err := row.Scan(&key.ID, &key.KeyHash, &key.UserID, &key.Name, &scopes, &tier,
		&key.Active, &expiresAt, &lastUsedAt, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(scopes), &key.Scopes); err != nil {
		return nil, fmt.Errorf("parse scopes: %w", err)
	}

	key.Tier, err = model.ParseTier(tier)
	if err != nil {
		return nil, err
	}

	if key.ExpiresAt, err = parseNullableTime(expiresAt); err != nil {
		return nil, fmt.Errorf("parse expires_at: %w", err)
	}
	if key.LastUsedAt, err = parseNullableTime(lastUsedAt); err != nil {
		return nil, fmt.Errorf("parse last_used_at: %w", err)
	}
	if key.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if key.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	return &key, nil
}

// collectAPIKeys drains rows into a slice.
func collectAPIKeys(rows *sql.Rows) ([]model.APIKey, error) {
	var keys []model.APIKey
	for rows.Next() {
		key, err := scanAPIKey(rows)
		if err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, *key)
	}
	return keys, rows.Err()
}

// nullableTime converts an optional timestamp for binding, UTC-normalized.
func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

// parseNullableTime parses an optional SQLite datetime column.
func parseNullableTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// parseTime tries multiple SQLite datetime formats.
func parseTime(s string) (time.Time, error) {
	formats := []string{
		"2006-01-02T15:04:05Z",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05.000",
		time.RFC3339,
		time.RFC3339Nano,
	}

	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized time format: %s", s)
}
