package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"pesabridge.io/internal/audit"
	"pesabridge.io/internal/auth"
	"pesabridge.io/internal/transfer"
)

type submitTransferRequest struct {
	Network        string `json:"network"`
	FromAccount    string `json:"from_account"`
	ToAccount      string `json:"to_account"`
	Asset          string `json:"asset"`
	Amount         int64  `json:"amount"`
	Memo           string `json:"memo"`
	SourceKey      string `json:"source_key"`
	IdempotencyKey string `json:"idempotency_key"`
}

type listTransfersResponse struct {
	Items     []transfer.Transfer `json:"items"`
	NextAfter uint64              `json:"next_after"`
	AsOf      time.Time           `json:"as_of"`
}

func (a *API) handleTransfers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.submitTransfer(w, r)
	case http.MethodGet:
		a.listTransfers(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) submitTransfer(w http.ResponseWriter, r *http.Request) {
	ac, r, ok := a.requireAuth(w, r, auth.PermTransfersWrite)
	if !ok {
		return
	}
	var req submitTransferRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	idem := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if req.IdempotencyKey != "" {
		bodyKey := strings.TrimSpace(req.IdempotencyKey)
		if idem == "" {
			idem = bodyKey
		} else if idem != bodyKey {
			writeError(w, r, http.StatusBadRequest, "Idempotency-Key header and body value must match")
			return
		}
	}
	if len(idem) > 128 {
		writeError(w, r, http.StatusBadRequest, "Idempotency-Key too long")
		return
	}

	t, err := a.transfers.Submit(r.Context(), transfer.SubmitRequest{
		UserID:         ac.PrincipalID,
		Network:        req.Network,
		FromAccount:    req.FromAccount,
		ToAccount:      req.ToAccount,
		Asset:          req.Asset,
		Amount:         req.Amount,
		Memo:           req.Memo,
		SourceKey:      req.SourceKey,
		IdempotencyKey: idem,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	if idem != "" {
		w.Header().Set("Idempotency-Key", idem)
	}
	_ = audit.LogEvent(r.Context(), "transfers.submit", map[string]string{
		"transfer_id": t.ID,
		"network":     t.Network,
		"asset":       t.Asset,
		"amount":      strconv.FormatInt(t.Amount, 10),
	})
	writeJSON(w, http.StatusCreated, t)
}

func (a *API) listTransfers(w http.ResponseWriter, r *http.Request) {
	ac, r, ok := a.requireAuth(w, r, auth.PermTransfersRead)
	if !ok {
		return
	}
	limit, err := parsePositiveInt(r.URL.Query().Get("limit"), 100, 1, 1000)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	var after uint64
	if raw := strings.TrimSpace(r.URL.Query().Get("after")); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "after must be a non-negative integer")
			return
		}
		after = v
	}

	items, next, err := a.transfers.List(r.Context(), ac.PrincipalID, limit, after)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listTransfersResponse{
		Items:     items,
		NextAfter: next,
		AsOf:      time.Now().UTC(),
	})
}

func (a *API) handleAnalyticsSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	_, r, ok := a.requireAuth(w, r, auth.PermAnalyticsRead)
	if !ok {
		return
	}

	var window time.Duration
	if raw := strings.TrimSpace(r.URL.Query().Get("window")); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			writeError(w, r, http.StatusBadRequest, "window must be a positive duration like 720h")
			return
		}
		window = d
	}

	summary, err := a.analytics.Summary(r.Context(), window)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
