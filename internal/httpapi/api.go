// Package httpapi exposes the public REST surface: authentication, wallet
// accounts, transfers, analytics and the transfer event stream.
package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"pesabridge.io/internal/analytics"
	"pesabridge.io/internal/auth"
	"pesabridge.io/internal/obs"
	"pesabridge.io/internal/stream"
	"pesabridge.io/internal/transfer"
	"pesabridge.io/internal/wallet"
)

// ReadyProbe reports whether the service can take traffic.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Deps carries the services the API layer fronts.
type Deps struct {
	Auth      *auth.Service
	Authn     *auth.Authenticator
	Wallets   *wallet.Service
	Transfers *transfer.Service
	Analytics *analytics.Service
	Stream    *stream.Stream
	Ready     ReadyProbe
	Version   string

	// Hardening knobs; zero values select sensible defaults.
	RateBurst  int
	RatePerSec int
	MaxBody    int64
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	auth       *auth.Service
	authn      *auth.Authenticator
	wallets    *wallet.Service
	transfers  *transfer.Service
	analytics  *analytics.Service
	stream     *stream.Stream
	readyProbe ReadyProbe
	version    string

	rateBurst  int
	ratePerSec int
	maxBody    int64
}

func New(deps Deps) *API {
	a := &API{
		mux:        http.NewServeMux(),
		auth:       deps.Auth,
		authn:      deps.Authn,
		wallets:    deps.Wallets,
		transfers:  deps.Transfers,
		analytics:  deps.Analytics,
		stream:     deps.Stream,
		readyProbe: deps.Ready,
		version:    deps.Version,
		rateBurst:  deps.RateBurst,
		ratePerSec: deps.RatePerSec,
		maxBody:    deps.MaxBody,
	}
	if a.rateBurst <= 0 {
		a.rateBurst = 20
	}
	if a.ratePerSec <= 0 {
		a.ratePerSec = 10
	}
	if a.maxBody <= 0 {
		a.maxBody = 1 << 20
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// auth
	a.mux.HandleFunc("/v1/auth/register", a.handleRegister)
	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/refresh", a.handleRefresh)
	a.mux.HandleFunc("/v1/auth/logout", a.handleLogout)
	a.mux.HandleFunc("/v1/auth/verify-email", a.handleVerifyEmail)
	a.mux.HandleFunc("/v1/auth/password-reset/request", a.handlePasswordResetRequest)
	a.mux.HandleFunc("/v1/auth/password-reset/confirm", a.handlePasswordResetConfirm)
	a.mux.HandleFunc("/v1/me", a.handleMe)

	// developer API keys
	a.mux.HandleFunc("/v1/keys", a.handleKeysCollection)
	a.mux.HandleFunc("/v1/keys/", a.handleKeyResource)

	// wallet accounts
	a.mux.HandleFunc("/v1/accounts", a.handleAccountsCollection)
	a.mux.HandleFunc("/v1/accounts/", a.handleAccountResource)

	// transfers and analytics
	a.mux.HandleFunc("/v1/transfers", a.handleTransfers)
	a.mux.HandleFunc("/v1/analytics/summary", a.handleAnalyticsSummary)
	a.mux.HandleFunc("/v1/stream", a.Stream)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped http.Handler for the server.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = MaxBodyBytes(h, a.maxBody)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = Logging(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "pesabridge-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "pesabridge-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}
