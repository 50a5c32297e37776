package httphandler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/bvquoc/scalable-api/internal/domain/model"
	"github.com/bvquoc/scalable-api/internal/domain/port/driven"
)

// Handler is the HTTP driving adapter serving the API routes that sit behind
// the admission gate.
type Handler struct {
	keyStore driven.APIKeyStore
	logger   *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(keyStore driven.APIKeyStore, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		keyStore: keyStore,
		logger:   logger,
	}
}

// NewServeMux builds the full handler chain. Outermost first: logging →
// recovery → authenticate → rate limit → routes. Recovery sits inside
// logging so panics are logged as completed 500 requests; the admission
// middlewares run inside recovery so a fault there cannot escape either.
// The health route is open; routes that need a caller wrap RequireAuth.
func NewServeMux(h *Handler, gate *Gate, metrics http.Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/health", h.Health)
	mux.Handle("GET /api/v1/me", RequireAuth(http.HandlerFunc(h.Me)))
	mux.Handle("GET /api/v1/keys", RequireAuth(http.HandlerFunc(h.ListKeys)))
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}

	wrapped := gate.RateLimit(mux)
	wrapped = gate.Authenticate(wrapped)
	wrapped = recoveryMiddleware(logger, wrapped)
	wrapped = loggingMiddleware(logger, wrapped)

	return wrapped
}

// Health serves the liveness endpoint. Open route: it must answer without an
// API key so load balancers can probe it.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}

// Me returns the caller's bound identity.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	identity, ok := model.IdentityFrom(r.Context())
	if !ok {
		// RequireAuth guards this route; reaching here without an identity
		// means the chain is miswired.
		writeError(w, http.StatusUnauthorized, "no identity bound")
		return
	}
	writeJSON(w, http.StatusOK, toIdentityResponse(identity))
}

// ListKeys returns all API keys owned by the caller.
func (h *Handler) ListKeys(w http.ResponseWriter, r *http.Request) {
	identity, ok := model.IdentityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "no identity bound")
		return
	}

	keys, err := h.keyStore.FindByUserID(r.Context(), identity.UserID)
	if err != nil {
		h.logger.Error("list api keys failed", "user_id", identity.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list api keys")
		return
	}

	resp := make([]APIKeyResponse, 0, len(keys))
	for _, key := range keys {
		resp = append(resp, toAPIKeyResponse(key))
	}
	writeJSON(w, http.StatusOK, resp)
}
