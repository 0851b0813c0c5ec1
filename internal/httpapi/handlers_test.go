package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pesabridge.io/internal/analytics"
	"pesabridge.io/internal/auth"
	"pesabridge.io/internal/chain"
	"pesabridge.io/internal/escrow"
	"pesabridge.io/internal/onetime"
	"pesabridge.io/internal/stream"
	"pesabridge.io/internal/transfer"
	"pesabridge.io/internal/wallet"
)

type testEnv struct {
	api     *API
	handler http.Handler
	store   *auth.MemoryStore
	authSvc *auth.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := auth.NewMemoryStore()
	codec, err := auth.NewCodec("test-secret-test-secret-test-secret")
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	tokens, err := onetime.NewService(onetime.NewMemStore(), time.Hour)
	if err != nil {
		t.Fatalf("onetime.NewService: %v", err)
	}
	authSvc, err := auth.NewService(store, codec, tokens)
	if err != nil {
		t.Fatalf("auth.NewService: %v", err)
	}
	authn, err := auth.NewAuthenticator(codec, store)
	if err != nil {
		t.Fatalf("NewAuthenticator: %v", err)
	}

	esc, err := escrow.New(tokens, bytes.Repeat([]byte{0x7f}, 32))
	if err != nil {
		t.Fatalf("escrow.New: %v", err)
	}
	providers := chain.Registry{
		chain.NetworkStellar: chain.NewFake(chain.NetworkStellar),
		chain.NetworkHedera:  chain.NewFake(chain.NetworkHedera),
	}
	wallets, err := wallet.NewService(wallet.NewMemoryStore(), providers, esc)
	if err != nil {
		t.Fatalf("wallet.NewService: %v", err)
	}

	transferStore := transfer.NewMemoryStore()
	st := stream.New()
	transfers, err := transfer.NewService(transferStore, providers, transfer.WithStream(st))
	if err != nil {
		t.Fatalf("transfer.NewService: %v", err)
	}
	stats, err := analytics.NewService(analytics.NewMemorySource(transferStore))
	if err != nil {
		t.Fatalf("analytics.NewService: %v", err)
	}

	api := New(Deps{
		Auth:      authSvc,
		Authn:     authn,
		Wallets:   wallets,
		Transfers: transfers,
		Analytics: stats,
		Stream:    st,
		Version:   "test",
		RateBurst: 10000,
	})
	return &testEnv{api: api, handler: api.Handler(), store: store, authSvc: authSvc}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) doWithHeader(t *testing.T, path, token string, body any, headerKey, headerVal string) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerKey, headerVal)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("unmarshal response %q: %v", rec.Body.String(), err)
	}
}

// register creates a user through the API and returns its token pair.
func (e *testEnv) register(t *testing.T, email string) authResponse {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/v1/auth/register", "", registerRequest{
		Email:    email,
		Password: "correct-horse",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register = %d: %s", rec.Code, rec.Body.String())
	}
	var resp authResponse
	decodeBody(t, rec, &resp)
	return resp
}

func TestHealthReadyInfo(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/healthz", "/readyz", "/v1/info"} {
		rec := env.do(t, http.MethodGet, path, "", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s = %d", path, rec.Code)
		}
	}
	if rec := env.do(t, http.MethodGet, "/no/such/path", "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown path = %d", rec.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodDelete, "/v1/auth/register", "", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", rec.Code)
	}
	if allow := rec.Header().Get("Allow"); allow != "POST" {
		t.Fatalf("Allow = %q", allow)
	}
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/register",
		bytes.NewReader([]byte(`{"email":"a@b.c","password":"longenough","extra":1}`)))
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestDecodeJSONRejectsTrailingData(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/register",
		bytes.NewReader([]byte(`{"email":"a@b.c","password":"longenough"}{"again":true}`)))
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestParsePositiveInt(t *testing.T) {
	tests := []struct {
		raw     string
		want    int
		wantErr bool
	}{
		{"", 100, false},
		{"50", 50, false},
		{"0", 0, true},
		{"1001", 0, true},
		{"abc", 0, true},
	}
	for _, tt := range tests {
		got, err := parsePositiveInt(tt.raw, 100, 1, 1000)
		if (err != nil) != tt.wantErr {
			t.Fatalf("parsePositiveInt(%q) err = %v", tt.raw, err)
		}
		if err == nil && got != tt.want {
			t.Fatalf("parsePositiveInt(%q) = %d, want %d", tt.raw, got, tt.want)
		}
	}
}

func TestErrorResponseCarriesRequestID(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/v1/me", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]any
	decodeBody(t, rec, &body)
	if rid, _ := body["request_id"].(string); rid == "" {
		t.Fatalf("missing request_id in %v", body)
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatal("missing X-Request-Id header")
	}
}

func TestReadyProbeFailure(t *testing.T) {
	probe := ReadyProbe{}
	if err := probe.Check(context.Background()); err != nil {
		t.Fatalf("nil DB probe should pass: %v", err)
	}
}

func TestInfoShape(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/v1/info", "", nil)
	var body map[string]any
	decodeBody(t, rec, &body)
	if body["name"] != "pesabridge-api" || body["version"] != "test" {
		t.Fatalf("info = %v", body)
	}
}

// assignAdmin gives a registered user the admin role with elevated
// permissions, bypassing the HTTP surface.
func (e *testEnv) assignAdmin(t *testing.T, userID string) {
	t.Helper()
	e.store.PutRole(auth.Role{
		ID:     "role-admin",
		Name:   "admin",
		Active: true,
		Permissions: []auth.Permission{
			{ID: "p-analytics", Name: auth.PermAnalyticsRead, Active: true},
			{ID: "p-keys", Name: auth.PermKeysManage, Active: true},
		},
	})
	if err := e.store.AssignRole(context.Background(), userID, "admin"); err != nil {
		t.Fatalf("AssignRole: %v", err)
	}
}
