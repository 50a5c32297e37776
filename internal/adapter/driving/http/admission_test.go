package httphandler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bvquoc/scalable-api/internal/adapter/driven/memory"
	"github.com/bvquoc/scalable-api/internal/application"
	"github.com/bvquoc/scalable-api/internal/domain/model"
)

// --- Mock key store for chain tests ---

type mockKeyStore struct {
	keys map[string]model.APIKey
}

func newMockKeyStore(keys ...model.APIKey) *mockKeyStore {
	m := &mockKeyStore{keys: make(map[string]model.APIKey)}
	for _, k := range keys {
		m.keys[k.KeyHash] = k
	}
	return m
}

func (m *mockKeyStore) FindByHash(_ context.Context, keyHash string) (*model.APIKey, error) {
	key, ok := m.keys[keyHash]
	if !ok {
		return nil, nil
	}
	return &key, nil
}

func (m *mockKeyStore) UpdateLastUsedAt(_ context.Context, _ string, _ time.Time) error {
	return nil
}

func (m *mockKeyStore) ListActiveHashes(_ context.Context) ([]string, error) {
	return nil, nil
}

func (m *mockKeyStore) FindByUserID(_ context.Context, userID int64) ([]model.APIKey, error) {
	var keys []model.APIKey
	for _, k := range m.keys {
		if k.UserID == userID {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (m *mockKeyStore) FindExpiringSoon(_ context.Context, _ time.Time, _ time.Duration) ([]model.APIKey, error) {
	return nil, nil
}

func (m *mockKeyStore) ExistsByHash(_ context.Context, keyHash string) (bool, error) {
	_, ok := m.keys[keyHash]
	return ok, nil
}

// newTestChain wires the full middleware chain over a memory store and the
// given key fixtures, exactly as the composition root does.
func newTestChain(t *testing.T, keys ...model.APIKey) http.Handler {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	kv := memory.NewStore()
	store := newMockKeyStore(keys...)
	cache := application.NewKeyCacheService(kv, store, nil, logger, 0)
	limiter := application.NewRateLimitService(kv, logger)
	gate := NewGate(cache, limiter, logger)

	return NewServeMux(NewHandler(store, logger), gate, nil, logger)
}

func fixtureKey(raw string, tier model.Tier) model.APIKey {
	created := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	return model.APIKey{
		ID:        1,
		KeyHash:   hashAPIKey(raw),
		UserID:    42,
		Name:      "ci-deploy",
		Scopes:    []string{"orders:read"},
		Tier:      tier,
		Active:    true,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func doRequest(handler http.Handler, path, apiKey string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if apiKey != "" {
		req.Header.Set(APIKeyHeader, apiKey)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestChain_HealthOpenWithoutKey(t *testing.T) {
	handler := newTestChain(t)

	rec := doRequest(handler, "/api/v1/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get(headerRateLimitLimit), "unauthenticated requests bypass quota")
}

func TestChain_ProtectedRouteWithoutKey(t *testing.T) {
	handler := newTestChain(t)

	rec := doRequest(handler, "/api/v1/me", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "authentication_failed", body["error"])
	assert.Equal(t, float64(http.StatusUnauthorized), body["status"])
	assert.Equal(t, "/api/v1/me", body["path"])
	assert.NotEmpty(t, body["message"])
}

func TestChain_UnknownKeyTreatedAsUnauthenticated(t *testing.T) {
	handler := newTestChain(t)

	rec := doRequest(handler, "/api/v1/me", "sk_live_who_is_this")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, rec.Header().Get(headerRateLimitLimit))
}

func TestChain_InactiveKeyTreatedAsUnauthenticated(t *testing.T) {
	const raw = "sk_live_disabled"
	key := fixtureKey(raw, model.TierStandard)
	key.Active = false
	handler := newTestChain(t, key)

	rec := doRequest(handler, "/api/v1/me", raw)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestChain_ExpiredKeyTreatedAsUnauthenticated(t *testing.T) {
	const raw = "sk_live_expired"
	key := fixtureKey(raw, model.TierStandard)
	past := time.Now().Add(-time.Hour)
	key.ExpiresAt = &past
	handler := newTestChain(t, key)

	rec := doRequest(handler, "/api/v1/me", raw)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestChain_ValidKeyBindsIdentity(t *testing.T) {
	const raw = "sk_live_good_key"
	handler := newTestChain(t, fixtureKey(raw, model.TierStandard))

	rec := doRequest(handler, "/api/v1/me", raw)
	require.Equal(t, http.StatusOK, rec.Code)

	var identity IdentityResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &identity))
	assert.Equal(t, int64(42), identity.UserID)
	assert.Equal(t, "ci-deploy", identity.KeyName)
	assert.Equal(t, "standard", identity.Tier)
	assert.Equal(t, []string{"orders:read"}, identity.Scopes)

	assert.Equal(t, "300", rec.Header().Get(headerRateLimitLimit))
	assert.Equal(t, "299", rec.Header().Get(headerRateLimitRemaining))

	reset, err := strconv.Atoi(rec.Header().Get(headerRateLimitReset))
	require.NoError(t, err)
	assert.Greater(t, reset, 0)
	assert.LessOrEqual(t, reset, 60)
}

func TestChain_QuotaExceededReturns429(t *testing.T) {
	const raw = "sk_live_basic_key"
	handler := newTestChain(t, fixtureKey(raw, model.TierBasic))

	// Avoid starting right before a window rollover, which would reset the
	// counter mid-test.
	if rem := 60 - time.Now().Unix()%60; rem < 3 {
		time.Sleep(time.Duration(rem) * time.Second)
	}

	for n := 1; n <= 60; n++ {
		rec := doRequest(handler, "/api/v1/me", raw)
		require.Equal(t, http.StatusOK, rec.Code, "request %d within quota", n)
	}

	rec := doRequest(handler, "/api/v1/me", raw)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get(headerRateLimitRemaining))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "rate_limit_exceeded", body["error"])
	assert.NotEmpty(t, body["message"])
	retryAfter, ok := body["retryAfter"].(float64)
	require.True(t, ok, "retryAfter must be numeric")
	assert.Greater(t, retryAfter, 0.0)
}

func TestChain_UnlimitedTierNeverThrottled(t *testing.T) {
	const raw = "sk_live_unlimited"
	handler := newTestChain(t, fixtureKey(raw, model.TierUnlimited))

	for n := 0; n < 100; n++ {
		rec := doRequest(handler, "/api/v1/me", raw)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := doRequest(handler, "/api/v1/me", raw)
	assert.Equal(t, strconv.Itoa(model.MaxLimit), rec.Header().Get(headerRateLimitLimit))
}

func TestChain_IdentityDoesNotLeakAcrossRequests(t *testing.T) {
	const raw = "sk_live_good_key"
	handler := newTestChain(t, fixtureKey(raw, model.TierStandard))

	rec := doRequest(handler, "/api/v1/me", raw)
	require.Equal(t, http.StatusOK, rec.Code)

	// The very next request without a key must see no residual identity.
	rec = doRequest(handler, "/api/v1/me", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestChain_ListKeys(t *testing.T) {
	const raw = "sk_live_good_key"
	handler := newTestChain(t, fixtureKey(raw, model.TierPremium))

	rec := doRequest(handler, "/api/v1/keys", raw)
	require.Equal(t, http.StatusOK, rec.Code)

	var keys []APIKeyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &keys))
	require.Len(t, keys, 1)
	assert.Equal(t, "ci-deploy", keys[0].Name)
	assert.Equal(t, "premium", keys[0].Tier)
	assert.True(t, keys[0].Active)
}

func TestHashAPIKey(t *testing.T) {
	// SHA-256("test"), hex-encoded.
	assert.Equal(t,
		"9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08",
		hashAPIKey("test"),
	)
	assert.Len(t, hashAPIKey("anything"), 64)
}

func TestMaskAPIKey(t *testing.T) {
	assert.Equal(t, "sk_l****", maskAPIKey("sk_live_abc123"))
	assert.Equal(t, "****", maskAPIKey("abcd"))
	assert.Equal(t, "****", maskAPIKey("ab"))
	assert.Equal(t, "****", maskAPIKey(""))
}
