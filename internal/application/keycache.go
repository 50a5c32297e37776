package application

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/bvquoc/scalable-api/internal/domain/model"
	"github.com/bvquoc/scalable-api/internal/domain/port/driven"
)

// DefaultCacheTTL bounds how long a cached API key snapshot may serve
// lookups before the backing store is consulted again. It is also the upper
// bound on staleness when an invalidation races a concurrent re-population.
const DefaultCacheTTL = 15 * time.Minute

// usageQueueSize bounds the pending last_used_at updates. The queue is
// lossy: when full, updates are dropped and logged rather than blocking the
// response path.
const usageQueueSize = 1024

// KeyCacheService provides cache-aside API key lookups for authentication.
//
// Reads consult the key-value store first and fall back to the durable store
// on a miss. Only active, unexpired keys are written back, so a disabled or
// expired key pays the backing-store cost on every request until it is
// reactivated — fast invalidation is worth more than hit rate for unhealthy
// keys. Negative results are never cached.
type KeyCacheService struct {
	kv      driven.KeyValueStore
	keys    driven.APIKeyStore
	metrics driven.MetricsRecorder
	logger  *slog.Logger
	ttl     time.Duration

	usage chan string

	now func() time.Time
}

// NewKeyCacheService creates a KeyCacheService. A zero ttl falls back to
// DefaultCacheTTL; a nil metrics recorder is replaced with a no-op.
func NewKeyCacheService(
	kv driven.KeyValueStore,
	keys driven.APIKeyStore,
	metrics driven.MetricsRecorder,
	logger *slog.Logger,
	ttl time.Duration,
) *KeyCacheService {
	if metrics == nil {
		metrics = driven.NopMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}

	return &KeyCacheService{
		kv:      kv,
		keys:    keys,
		metrics: metrics,
		logger:  logger,
		ttl:     ttl,
		usage:   make(chan string, usageQueueSize),
		now:     time.Now,
	}
}

// FindByHash looks up an API key by the SHA-256 hex digest of its raw
// secret. Returns (nil, nil) when no key matches; the caller treats that as
// an unauthenticated request. A key-value store fault degrades to a cache
// miss and the backing store is read directly.
func (s *KeyCacheService) FindByHash(ctx context.Context, keyHash string) (*model.APIKey, error) {
	cacheKey := CredentialKey(keyHash)

	start := time.Now()
	raw, ok := s.kv.Get(ctx, cacheKey)
	s.metrics.RecordLatency(time.Since(start))

	if ok {
		var key model.APIKey
		if err := json.Unmarshal([]byte(raw), &key); err == nil {
			s.metrics.RecordHit()
			return &key, nil
		}
		// Undecodable entry: evict it and treat as a miss.
		s.logger.Warn("evicting undecodable cache entry", "cache_key", cacheKey)
		s.kv.Delete(ctx, cacheKey)
	}

	s.metrics.RecordMiss()

	key, err := s.keys.FindByHash(ctx, keyHash)
	if err != nil {
		return nil, fmt.Errorf("find api key by hash: %w", err)
	}
	if key == nil {
		// Unknown hash. Never cache negative results.
		return nil, nil
	}

	if key.CacheableAt(s.now()) {
		if data, err := json.Marshal(key); err == nil {
			s.kv.Set(ctx, cacheKey, string(data), s.ttl)
		}
	} else {
		s.logger.Debug("skipped caching inactive or expired api key", "key_hash", keyHash)
	}

	return key, nil
}

// Invalidate removes the cached snapshot for a key hash. Called after any
// mutation so the next lookup re-reads the backing store. A lookup racing
// this delete may re-populate the entry with pre-mutation data; the cache
// TTL bounds that staleness.
func (s *KeyCacheService) Invalidate(ctx context.Context, keyHash string) {
	cacheKey := CredentialKey(keyHash)
	if s.kv.Delete(ctx, cacheKey) {
		s.logger.Info("invalidated api key cache entry", "key_hash", keyHash)
	} else {
		s.logger.Debug("no cache entry to invalidate", "key_hash", keyHash)
	}
}

// RecordUsage enqueues a last_used_at update for the key hash. It never
// blocks: when the queue is full the update is dropped and logged. The
// update carries no response-visible state, so losing one is harmless.
func (s *KeyCacheService) RecordUsage(keyHash string) {
	select {
	case s.usage <- keyHash:
	default:
		s.logger.Warn("usage queue full, dropping last_used_at update", "key_hash", keyHash)
	}
}

// Start drains the usage queue until ctx is cancelled. Run it in its own
// goroutine from the composition root.
func (s *KeyCacheService) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case keyHash := <-s.usage:
			s.applyUsage(keyHash)
		}
	}
}

// applyUsage writes last_used_at and invalidates the cached snapshot so the
// next lookup observes the new timestamp. Failures are logged and swallowed.
// The write runs on its own deadline, detached from any request context:
// usage updates are allowed to finish after the originating response.
func (s *KeyCacheService) applyUsage(keyHash string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.keys.UpdateLastUsedAt(ctx, keyHash, s.now()); err != nil {
		s.logger.Error("failed to update last_used_at", "key_hash", keyHash, "error", err)
		return
	}
	s.Invalidate(ctx, keyHash)
}

// Warm performs a lookup for each hash so subsequent requests hit the cache.
// Individual failures are logged and skipped; Warm itself never fails.
func (s *KeyCacheService) Warm(ctx context.Context, keyHashes []string) {
	warmed := 0
	for _, keyHash := range keyHashes {
		key, err := s.FindByHash(ctx, keyHash)
		if err != nil {
			s.logger.Warn("cache warm lookup failed", "key_hash", keyHash, "error", err)
			continue
		}
		if key != nil {
			warmed++
		}
	}
	s.logger.Info("cache warm complete", "warmed", warmed, "requested", len(keyHashes))
}
