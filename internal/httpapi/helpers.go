package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"pesabridge.io/internal/audit"
	"pesabridge.io/internal/auth"
	"pesabridge.io/internal/chain"
	"pesabridge.io/internal/transfer"
	"pesabridge.io/internal/wallet"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := audit.RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func parsePositiveInt(raw string, def, min, max int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("limit must be an integer")
	}
	if val < min || val > max {
		return 0, errors.New("limit must be between 1 and 1000")
	}
	return val, nil
}

// handleServiceError maps domain errors onto HTTP status codes. Permission
// failures include the missing permission names so API-key callers can fix
// their grants.
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var permErr *auth.PermissionError
	switch {
	case errors.As(err, &permErr):
		payload := map[string]any{
			"error":   "insufficient permissions",
			"missing": permErr.Missing,
		}
		if rid := audit.RequestIDFromContext(r.Context()); rid != "" {
			payload["request_id"] = rid
		}
		writeJSON(w, http.StatusForbidden, payload)
	case errors.Is(err, auth.ErrInvalidInput),
		errors.Is(err, transfer.ErrInvalidAmount),
		errors.Is(err, transfer.ErrInvalidAsset),
		errors.Is(err, transfer.ErrInvalidParty),
		errors.Is(err, chain.ErrUnknownNetwork):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrLocked):
		writeError(w, r, http.StatusLocked, err.Error())
	case errors.Is(err, auth.ErrUnauthorized):
		writeError(w, r, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, auth.ErrForbidden), errors.Is(err, wallet.ErrForbidden):
		writeError(w, r, http.StatusForbidden, "forbidden")
	case errors.Is(err, auth.ErrAlreadyExists):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, auth.ErrNotFound),
		errors.Is(err, wallet.ErrNotFound),
		errors.Is(err, transfer.ErrNotFound),
		errors.Is(err, chain.ErrAccountNotFound):
		writeError(w, r, http.StatusNotFound, "not found")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
