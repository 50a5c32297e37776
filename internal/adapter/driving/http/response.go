package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/bvquoc/scalable-api/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it with the given status code.
// If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// rateLimitExceededResponse is the 429 body for quota exceedance.
type rateLimitExceededResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retryAfter"`
}

// authRequiredResponse is the 401 body for requests reaching a protected
// route without a bound identity.
type authRequiredResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Path    string `json:"path"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// IdentityResponse is the JSON representation of the caller's identity.
type IdentityResponse struct {
	UserID  int64    `json:"user_id"`
	KeyName string   `json:"key_name"`
	Tier    string   `json:"tier"`
	Scopes  []string `json:"scopes"`
}

// APIKeyResponse is the JSON representation of an API key record. The key
// hash and raw secret are never exposed.
type APIKeyResponse struct {
	ID         int64    `json:"id"`
	Name       string   `json:"name"`
	Tier       string   `json:"tier"`
	Scopes     []string `json:"scopes"`
	Active     bool     `json:"active"`
	ExpiresAt  string   `json:"expires_at,omitempty"`
	LastUsedAt string   `json:"last_used_at,omitempty"`
	CreatedAt  string   `json:"created_at"`
}

// toIdentityResponse converts a bound identity to its JSON representation.
func toIdentityResponse(id model.Identity) IdentityResponse {
	scopes := id.Scopes
	if scopes == nil {
		scopes = []string{}
	}
	return IdentityResponse{
		UserID:  id.UserID,
		KeyName: id.KeyName,
		Tier:    string(id.Tier),
		Scopes:  scopes,
	}
}

// toAPIKeyResponse converts a domain APIKey to its JSON representation.
func toAPIKeyResponse(key model.APIKey) APIKeyResponse {
	scopes := key.Scopes
	if scopes == nil {
		scopes = []string{}
	}

	resp := APIKeyResponse{
		ID:        key.ID,
		Name:      key.Name,
		Tier:      string(key.Tier),
		Scopes:    scopes,
		Active:    key.Active,
		CreatedAt: key.CreatedAt.UTC().Format(time.RFC3339),
	}
	if key.ExpiresAt != nil {
		resp.ExpiresAt = key.ExpiresAt.UTC().Format(time.RFC3339)
	}
	if key.LastUsedAt != nil {
		resp.LastUsedAt = key.LastUsedAt.UTC().Format(time.RFC3339)
	}
	return resp
}
