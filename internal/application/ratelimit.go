package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/bvquoc/scalable-api/internal/domain/model"
	"github.com/bvquoc/scalable-api/internal/domain/port/driven"
)

// Window is the fixed rate limit window. Counters are keyed by the window's
// clock-aligned start second, so all processes sharing the store agree on
// bucket boundaries. A fixed window trades boundary bursts (a client can fit
// up to 2x its limit across one boundary) for one counter per key per window
// and an O(1) check.
const Window = 60 * time.Second

const windowSeconds = int64(Window / time.Second)

// RateLimitResult is the outcome of a quota check.
type RateLimitResult struct {
	Allowed      bool
	Remaining    int
	ResetSeconds int
}

// RateLimitService enforces per-key request quotas with a fixed window
// counter on the shared key-value store. Enforcement is best-effort across
// processes: the counter increment is atomic at the store, everything else
// tolerates benign races.
type RateLimitService struct {
	kv     driven.KeyValueStore
	logger *slog.Logger

	now func() time.Time
}

// NewRateLimitService creates a RateLimitService on the given store.
func NewRateLimitService(kv driven.KeyValueStore, logger *slog.Logger) *RateLimitService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RateLimitService{
		kv:     kv,
		logger: logger,
		now:    time.Now,
	}
}

// Check counts the request against the key's current window and decides
// whether it may proceed.
//
// Unlimited keys are allowed without touching the store. When the store
// cannot increment the counter the request is allowed at full remaining
// quota: rate limiting availability is worth less than API availability, so
// this path fails open — deliberately the opposite direction of the key
// cache, which fails toward "unauthenticated".
func (s *RateLimitService) Check(ctx context.Context, key *model.APIKey) RateLimitResult {
	limit, bounded := key.Tier.Limit()
	if !bounded {
		return RateLimitResult{Allowed: true, Remaining: model.MaxLimit, ResetSeconds: int(windowSeconds)}
	}

	nowSec := s.now().Unix()
	windowStart := nowSec - nowSec%windowSeconds
	counterKey := QuotaKey(key.KeyHash, windowStart)

	count, ok := s.kv.IncrementWithTTL(ctx, counterKey, Window)
	if !ok {
		s.logger.Error("rate limit counter unavailable, failing open", "key", counterKey)
		return RateLimitResult{Allowed: true, Remaining: limit, ResetSeconds: int(windowSeconds)}
	}

	allowed := count <= int64(limit)
	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	resetSeconds := int(windowSeconds - nowSec%windowSeconds)

	if !allowed {
		s.logger.Warn("rate limit exceeded",
			"key_name", key.Name,
			"tier", key.Tier,
			"count", count,
			"limit", limit,
		)
	}

	return RateLimitResult{Allowed: allowed, Remaining: remaining, ResetSeconds: resetSeconds}
}
