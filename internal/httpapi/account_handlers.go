package httpapi

import (
	"net/http"
	"strings"

	"pesabridge.io/internal/audit"
	"pesabridge.io/internal/auth"
)

type createAccountRequest struct {
	Network string `json:"network"`
	Label   string `json:"label"`
}

type retrieveKeyRequest struct {
	Token string `json:"token"`
}

func (a *API) handleAccountsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.createAccount(w, r)
	case http.MethodGet:
		a.listAccounts(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleAccountResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/accounts/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	if path == "key" {
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.retrieveKey(w, r)
		return
	}

	if strings.HasSuffix(path, "/balances") {
		id := strings.TrimSuffix(strings.TrimSuffix(path, "/balances"), "/")
		if id == "" {
			writeError(w, r, http.StatusNotFound, "account not found")
			return
		}
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.getBalances(w, r, id)
		return
	}

	if strings.Contains(path, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	a.getAccount(w, r, path)
}

func (a *API) createAccount(w http.ResponseWriter, r *http.Request) {
	ac, r, ok := a.requireAuth(w, r, auth.PermAccountsWrite)
	if !ok {
		return
	}
	var req createAccountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Network) == "" {
		writeError(w, r, http.StatusBadRequest, "network is required")
		return
	}

	created, err := a.wallets.CreateAccount(r.Context(), ac.PrincipalID, req.Network, req.Label)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "accounts.create", map[string]string{
		"account_id": created.Account.ID,
		"network":    created.Account.Network,
	})
	w.Header().Set("Location", "/v1/accounts/"+created.Account.ID)
	writeJSON(w, http.StatusCreated, map[string]any{
		"account":          created.Account,
		"retrieval_token":  created.RetrievalToken,
		"token_expires_at": created.TokenExpiresAt,
		"warning":          "the retrieval token is single-use; once it is redeemed or expires the private key is gone for good",
	})
}

func (a *API) listAccounts(w http.ResponseWriter, r *http.Request) {
	ac, r, ok := a.requireAuth(w, r, auth.PermAccountsRead)
	if !ok {
		return
	}
	accts, err := a.wallets.ListAccounts(r.Context(), ac.PrincipalID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": accts})
}

func (a *API) getAccount(w http.ResponseWriter, r *http.Request, id string) {
	ac, r, ok := a.requireAuth(w, r, auth.PermAccountsRead)
	if !ok {
		return
	}
	acct, err := a.wallets.GetAccount(r.Context(), ac.PrincipalID, id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

func (a *API) getBalances(w http.ResponseWriter, r *http.Request, id string) {
	ac, r, ok := a.requireAuth(w, r, auth.PermAccountsRead)
	if !ok {
		return
	}
	balances, err := a.wallets.GetBalances(r.Context(), ac.PrincipalID, id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": balances})
}

// retrieveKey redeems a single-use key retrieval token. A token that was
// already redeemed, expired or never existed yields the same 400.
func (a *API) retrieveKey(w http.ResponseWriter, r *http.Request) {
	ac, r, ok := a.requireAuth(w, r, auth.PermAccountsWrite)
	if !ok {
		return
	}
	var req retrieveKeyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Token) == "" {
		writeError(w, r, http.StatusBadRequest, "token is required")
		return
	}

	key, err := a.wallets.RetrieveKey(r.Context(), ac.PrincipalID, req.Token)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if key == nil {
		writeError(w, r, http.StatusBadRequest, "invalid or expired token")
		return
	}

	_ = audit.LogEvent(r.Context(), "accounts.key_retrieved", map[string]string{
		"account_id": key.AccountID,
		"network":    key.Network,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"account_id":  key.AccountID,
		"network":     key.Network,
		"private_key": key.PrivateKey,
		"warning":     "store this key now; it cannot be retrieved again",
	})
}
