package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"pesabridge.io/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// requireAuth authenticates the request and checks the required permissions.
// On failure it writes the error response and returns ok=false. The resolved
// principal is attached to the request context for audit logging.
func (a *API) requireAuth(w http.ResponseWriter, r *http.Request, required ...string) (*auth.AuthContext, *http.Request, bool) {
	token, err := extractBearerToken(r.Header.Get(authHeader))
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, err.Error())
		return nil, r, false
	}

	ac, err := a.authn.Authenticate(r.Context(), token, required...)
	if err != nil {
		handleServiceError(w, r, err)
		return nil, r, false
	}

	r = r.WithContext(auth.ContextWithAuth(r.Context(), ac))
	return ac, r, true
}

// requireSession is requireAuth restricted to session principals. API keys
// cannot manage credentials or mint further keys.
func (a *API) requireSession(w http.ResponseWriter, r *http.Request, required ...string) (*auth.AuthContext, *http.Request, bool) {
	ac, r, ok := a.requireAuth(w, r, required...)
	if !ok {
		return nil, r, false
	}
	if ac.Kind != auth.KindSession {
		writeError(w, r, http.StatusForbidden, "session authentication required")
		return nil, r, false
	}
	return ac, r, true
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}
