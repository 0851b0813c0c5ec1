package httpapi

import (
	"net/http"
	"strings"
	"time"

	"pesabridge.io/internal/audit"
	"pesabridge.io/internal/auth"
)

type createKeyRequest struct {
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
	RateLimit   int      `json:"rate_limit"`
	TTLHours    int      `json:"ttl_hours"`
}

type createKeyResponse struct {
	Key *auth.APIKey `json:"key"`

	// Secret is shown exactly once; only its hash is stored.
	Secret string `json:"secret"`
}

// API keys are managed with session credentials only; a key cannot mint or
// revoke other keys.
func (a *API) handleKeysCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.createKey(w, r)
	case http.MethodGet:
		a.listKeys(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleKeyResource(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/keys/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}

	ac, r, ok := a.requireSession(w, r)
	if !ok {
		return
	}
	if err := a.auth.RevokeAPIKey(r.Context(), ac.PrincipalID, id); err != nil {
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "keys.revoke", map[string]string{"key_id": id})
	writeJSON(w, http.StatusOK, map[string]any{"status": "revoked"})
}

func (a *API) createKey(w http.ResponseWriter, r *http.Request) {
	ac, r, ok := a.requireSession(w, r)
	if !ok {
		return
	}
	var req createKeyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.TTLHours < 0 {
		writeError(w, r, http.StatusBadRequest, "ttl_hours must be >= 0")
		return
	}

	// A key can only carry permissions its owner holds.
	for _, perm := range req.Permissions {
		if !ac.HasPermission(perm) && !sessionImplies(ac, perm) {
			writeError(w, r, http.StatusForbidden, "cannot grant permission not held: "+perm)
			return
		}
	}

	key, secret, err := a.auth.IssueAPIKey(r.Context(), ac.PrincipalID, req.Name, req.Permissions,
		req.RateLimit, time.Duration(req.TTLHours)*time.Hour)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "keys.create", map[string]string{
		"key_id":     key.ID,
		"key_prefix": key.KeyPrefix,
	})
	writeJSON(w, http.StatusCreated, createKeyResponse{Key: key, Secret: secret})
}

func (a *API) listKeys(w http.ResponseWriter, r *http.Request) {
	ac, r, ok := a.requireSession(w, r)
	if !ok {
		return
	}
	keys, err := a.auth.ListAPIKeys(r.Context(), ac.PrincipalID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": keys})
}

// sessionImplies covers the basic operations a session holds implicitly even
// when no role grants them explicitly.
func sessionImplies(ac *auth.AuthContext, perm string) bool {
	if ac.Kind != auth.KindSession {
		return false
	}
	switch perm {
	case auth.PermAccountsRead, auth.PermAccountsWrite,
		auth.PermTransfersRead, auth.PermTransfersWrite:
		return true
	}
	return false
}
