package model

import (
	"fmt"
	"math"
	"time"
)

// Tier classifies an API key into a rate limit bucket. The set is closed;
// limits are resolved through a static table rather than per-tier types.
type Tier string

const (
	TierBasic     Tier = "basic"     // 60 requests/minute
	TierStandard  Tier = "standard"  // 300 requests/minute
	TierPremium   Tier = "premium"   // 1000 requests/minute
	TierUnlimited Tier = "unlimited" // no ceiling
)

// tierLimits maps each bounded tier to its requests-per-window ceiling.
// TierUnlimited is deliberately absent.
var tierLimits = map[Tier]int{
	TierBasic:    60,
	TierStandard: 300,
	TierPremium:  1000,
}

// Limit returns the per-window request ceiling for the tier. The second
// return is false for TierUnlimited, which has no ceiling.
func (t Tier) Limit() (int, bool) {
	limit, ok := tierLimits[t]
	return limit, ok
}

// MaxLimit is the value reported as the limit for TierUnlimited keys.
const MaxLimit = math.MaxInt32

// ParseTier converts a stored tier string into a Tier, rejecting unknown values.
func ParseTier(s string) (Tier, error) {
	switch Tier(s) {
	case TierBasic, TierStandard, TierPremium, TierUnlimited:
		return Tier(s), nil
	default:
		return "", fmt.Errorf("unknown rate limit tier %q", s)
	}
}

// APIKey is the authenticated principal record. KeyHash is the SHA-256 hex
// digest of the raw secret and the only lookup key; the raw secret is never
// stored or cached anywhere.
type APIKey struct {
	ID         int64
	KeyHash    string
	UserID     int64
	Name       string
	Scopes     []string
	Tier       Tier
	Active     bool
	ExpiresAt  *time.Time
	LastUsedAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ValidAt reports whether the key may authenticate requests at the given
// instant: it must be active and either have no expiry or expire later.
func (k APIKey) ValidAt(now time.Time) bool {
	if !k.Active {
		return false
	}
	if k.ExpiresAt != nil && !k.ExpiresAt.After(now) {
		return false
	}
	return true
}

// CacheableAt reports whether the key may be written to the lookup cache.
// Inactive or expired keys are never cached so that deactivation takes
// effect on the next backing-store read instead of a TTL expiry later.
func (k APIKey) CacheableAt(now time.Time) bool {
	return k.ValidAt(now)
}
