package httpapi

import (
	"net/http"
	"sort"
	"strings"

	"pesabridge.io/internal/audit"
	"pesabridge.io/internal/auth"
)

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenRequest struct {
	Token string `json:"token"`
}

type passwordResetRequestBody struct {
	Email string `json:"email"`
}

type passwordResetConfirmBody struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

type authResponse struct {
	User   *auth.Identity `json:"user"`
	Tokens auth.TokenPair `json:"tokens"`

	// VerificationToken would normally travel by email; it is returned
	// inline until a mail sender is wired up.
	VerificationToken string `json:"verification_token,omitempty"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	identity, pair, verifyToken, err := a.auth.Register(r.Context(), req.Email, req.Password, clientIP(r), r.UserAgent())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.register", map[string]string{
		"user_id": identity.ID,
		"email":   identity.Email,
	})
	writeJSON(w, http.StatusCreated, authResponse{
		User:              identity,
		Tokens:            pair,
		VerificationToken: verifyToken,
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	identity, pair, err := a.auth.Login(r.Context(), req.Email, req.Password, clientIP(r), r.UserAgent())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.login", map[string]string{
		"user_id": identity.ID,
		"ip":      clientIP(r),
	})
	writeJSON(w, http.StatusOK, authResponse{User: identity, Tokens: pair})
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	pair, err := a.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tokens": pair})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := a.auth.Logout(r.Context(), req.RefreshToken); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "logged_out"})
}

func (a *API) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req tokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Token) == "" {
		writeError(w, r, http.StatusBadRequest, "token is required")
		return
	}

	if err := a.auth.VerifyEmail(r.Context(), req.Token); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "verified"})
}

func (a *API) handlePasswordResetRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req passwordResetRequestBody
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	// Unknown emails get the same answer as known ones.
	resetToken, err := a.auth.RequestPasswordReset(r.Context(), req.Email)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	resp := map[string]any{"status": "accepted"}
	if resetToken != "" {
		// Returned inline until a mail sender is wired up.
		resp["reset_token"] = resetToken
	}
	writeJSON(w, http.StatusAccepted, resp)
}

func (a *API) handlePasswordResetConfirm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req passwordResetConfirmBody
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := a.auth.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.password_reset", nil)
	writeJSON(w, http.StatusOK, map[string]any{"status": "password_updated"})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	ac, r, ok := a.requireAuth(w, r)
	if !ok {
		return
	}

	resp := map[string]any{
		"kind":         ac.Kind,
		"principal_id": ac.PrincipalID,
		"permissions":  permissionNames(ac),
	}
	if ac.Identity != nil {
		resp["user"] = ac.Identity
	}
	if ac.Key != nil {
		resp["api_key"] = ac.Key
	}
	writeJSON(w, http.StatusOK, resp)
}

func permissionNames(ac *auth.AuthContext) []string {
	names := make([]string, 0, len(ac.Permissions))
	for name := range ac.Permissions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
