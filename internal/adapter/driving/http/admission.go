package httphandler

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bvquoc/scalable-api/internal/application"
	"github.com/bvquoc/scalable-api/internal/domain/model"
)

// APIKeyHeader is the sole credential transport.
const APIKeyHeader = "X-API-Key"

// Rate limit response headers, set on every authenticated request.
const (
	headerRateLimitLimit     = "X-RateLimit-Limit"
	headerRateLimitRemaining = "X-RateLimit-Remaining"
	headerRateLimitReset     = "X-RateLimit-Reset"
)

// Gate bundles the request admission dependencies. Its two middlewares run
// in order on every request: Authenticate resolves and binds the caller's
// identity, RateLimit enforces the identity's quota. Neither middleware ever
// fails a request for infrastructure reasons — authentication degrades to
// "no identity" and rate limiting degrades to "allowed".
type Gate struct {
	cache   *application.KeyCacheService
	limiter *application.RateLimitService
	logger  *slog.Logger

	now func() time.Time
}

// NewGate creates a Gate with the given admission services.
func NewGate(cache *application.KeyCacheService, limiter *application.RateLimitService, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		cache:   cache,
		limiter: limiter,
		logger:  logger,
		now:     time.Now,
	}
}

// Authenticate resolves the X-API-Key header into a request-scoped identity.
//
// A missing or blank header forwards the request unauthenticated: whether
// anonymous access is acceptable is the protected route's decision, not the
// gate's. A presented key that is unknown, inactive, or expired likewise
// forwards without an identity, logged at warning level with the raw value
// masked. Only a valid key binds an identity; its usage is then recorded off
// the response path.
func (g *Gate) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get(APIKeyHeader))
		if raw == "" {
			next.ServeHTTP(w, r)
			return
		}

		keyHash := hashAPIKey(raw)

		key, err := g.cache.FindByHash(r.Context(), keyHash)
		if err != nil {
			g.logger.Error("api key lookup failed", "key", maskAPIKey(raw), "error", err)
			next.ServeHTTP(w, r)
			return
		}
		if key == nil {
			g.logger.Warn("unknown api key presented", "key", maskAPIKey(raw))
			next.ServeHTTP(w, r)
			return
		}

		if !key.ValidAt(g.now()) {
			g.logger.Warn("inactive or expired api key presented", "key_name", key.Name, "user_id", key.UserID)
			next.ServeHTTP(w, r)
			return
		}

		identity := model.Identity{
			UserID:  key.UserID,
			KeyName: key.Name,
			KeyHash: key.KeyHash,
			Tier:    key.Tier,
			Scopes:  key.Scopes,
		}
		ctx := model.WithIdentity(r.Context(), identity)

		g.cache.RecordUsage(keyHash)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RateLimit enforces the bound identity's quota. Unauthenticated requests
// bypass it entirely. Rate limit headers are attached whether the request is
// allowed or not; exceedance short-circuits with a 429 and a retry hint.
func (g *Gate) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := model.IdentityFrom(r.Context())
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		key := &model.APIKey{
			KeyHash: identity.KeyHash,
			UserID:  identity.UserID,
			Name:    identity.KeyName,
			Tier:    identity.Tier,
		}
		result := g.limiter.Check(r.Context(), key)

		limit, bounded := identity.Tier.Limit()
		if !bounded {
			limit = model.MaxLimit
		}
		w.Header().Set(headerRateLimitLimit, strconv.Itoa(limit))
		w.Header().Set(headerRateLimitRemaining, strconv.Itoa(result.Remaining))
		w.Header().Set(headerRateLimitReset, strconv.Itoa(result.ResetSeconds))

		if !result.Allowed {
			w.Header().Set("Retry-After", strconv.Itoa(result.ResetSeconds))
			writeJSON(w, http.StatusTooManyRequests, rateLimitExceededResponse{
				Error:      "rate_limit_exceeded",
				Message:    "Rate limit exceeded. Please retry after the reset time.",
				RetryAfter: result.ResetSeconds,
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RequireAuth guards a route that needs an authenticated caller, rejecting
// requests without a bound identity with a 401. It runs downstream of the
// gate: the gate never emits 401 itself so that open routes stay reachable
// without a key.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := model.IdentityFrom(r.Context()); !ok {
			writeJSON(w, http.StatusUnauthorized, authRequiredResponse{
				Error:   "authentication_failed",
				Message: "a valid API key is required",
				Status:  http.StatusUnauthorized,
				Path:    r.URL.Path,
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// hashAPIKey returns the SHA-256 hex digest of the raw key. The digest is
// the only form that ever reaches storage, the cache, or a log line.
func hashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// maskAPIKey renders a raw key safe for logging: first 4 characters plus a
// fixed mask.
func maskAPIKey(raw string) string {
	if len(raw) <= 4 {
		return "****"
	}
	return raw[:4] + "****"
}
