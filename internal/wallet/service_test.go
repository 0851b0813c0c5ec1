package wallet

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"pesabridge.io/internal/chain"
	"pesabridge.io/internal/escrow"
	"pesabridge.io/internal/onetime"
)

func newTestWallet(t *testing.T, opts ...onetime.Option) *Service {
	t.Helper()
	tokens, err := onetime.NewService(onetime.NewMemStore(), time.Hour, opts...)
	if err != nil {
		t.Fatalf("onetime.NewService: %v", err)
	}
	esc, err := escrow.New(tokens, bytes.Repeat([]byte{0x11}, 32))
	if err != nil {
		t.Fatalf("escrow.New: %v", err)
	}
	providers := chain.Registry{
		chain.NetworkStellar: chain.NewFake(chain.NetworkStellar),
		chain.NetworkHedera:  chain.NewFake(chain.NetworkHedera),
	}
	svc, err := NewService(NewMemoryStore(), providers, esc)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestCreateAccountEscrowsKey(t *testing.T) {
	svc := newTestWallet(t)
	ctx := context.Background()

	created, err := svc.CreateAccount(ctx, "user-1", chain.NetworkStellar, "savings")
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	if created.RetrievalToken == "" {
		t.Fatal("expected a retrieval token")
	}
	if !created.TokenExpiresAt.After(time.Now()) {
		t.Fatalf("token expiry %v not in the future", created.TokenExpiresAt)
	}
	if created.Account.Label != "savings" || created.Account.Network != chain.NetworkStellar {
		t.Fatalf("account = %+v", created.Account)
	}
	if !strings.HasPrefix(created.Account.AccountID, "G") {
		t.Fatalf("account id = %q", created.Account.AccountID)
	}

	// The key comes back exactly once.
	key, err := svc.RetrieveKey(ctx, "user-1", created.RetrievalToken)
	if err != nil {
		t.Fatalf("RetrieveKey: %v", err)
	}
	if key == nil || !strings.HasPrefix(key.PrivateKey, "S") {
		t.Fatalf("key = %+v", key)
	}
	if key.AccountID != created.Account.AccountID {
		t.Fatalf("key account = %q", key.AccountID)
	}

	key, err = svc.RetrieveKey(ctx, "user-1", created.RetrievalToken)
	if err != nil {
		t.Fatalf("second RetrieveKey: %v", err)
	}
	if key != nil {
		t.Fatal("second retrieval must find nothing")
	}
}

func TestRetrieveKeyUnknownToken(t *testing.T) {
	svc := newTestWallet(t)
	key, err := svc.RetrieveKey(context.Background(), "user-1", "never-issued")
	if err != nil || key != nil {
		t.Fatalf("key=%v err=%v", key, err)
	}
}

func TestRetrieveKeyForeignAccountDenied(t *testing.T) {
	svc := newTestWallet(t)
	ctx := context.Background()

	created, err := svc.CreateAccount(ctx, "user-1", chain.NetworkStellar, "")
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	if _, err := svc.RetrieveKey(ctx, "intruder", created.RetrievalToken); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	// The attempt consumed the single-use entry; even the owner cannot
	// recover it now.
	key, err := svc.RetrieveKey(ctx, "user-1", created.RetrievalToken)
	if err != nil || key != nil {
		t.Fatalf("key=%v err=%v", key, err)
	}
}

func TestGetAccountOwnership(t *testing.T) {
	svc := newTestWallet(t)
	ctx := context.Background()

	created, err := svc.CreateAccount(ctx, "user-1", chain.NetworkHedera, "")
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	if _, err := svc.GetAccount(ctx, "user-1", created.Account.ID); err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	// Another user's probe is indistinguishable from a missing account.
	if _, err := svc.GetAccount(ctx, "user-2", created.Account.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := svc.GetAccount(ctx, "user-1", "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListAccounts(t *testing.T) {
	svc := newTestWallet(t)
	ctx := context.Background()

	for _, network := range []string{chain.NetworkStellar, chain.NetworkHedera} {
		if _, err := svc.CreateAccount(ctx, "user-1", network, ""); err != nil {
			t.Fatalf("CreateAccount(%s): %v", network, err)
		}
	}
	if _, err := svc.CreateAccount(ctx, "user-2", chain.NetworkStellar, ""); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	accts, err := svc.ListAccounts(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListAccounts: %v", err)
	}
	if len(accts) != 2 {
		t.Fatalf("len = %d, want 2", len(accts))
	}
}

func TestGetBalances(t *testing.T) {
	svc := newTestWallet(t)
	ctx := context.Background()

	created, err := svc.CreateAccount(ctx, "user-1", chain.NetworkStellar, "")
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	balances, err := svc.GetBalances(ctx, "user-1", created.Account.ID)
	if err != nil {
		t.Fatalf("GetBalances: %v", err)
	}
	if len(balances) == 0 {
		t.Fatal("expected at least one balance")
	}
	if _, err := svc.GetBalances(ctx, "user-2", created.Account.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateAccountUnknownNetwork(t *testing.T) {
	svc := newTestWallet(t)
	if _, err := svc.CreateAccount(context.Background(), "user-1", "ethereum", ""); !errors.Is(err, chain.ErrUnknownNetwork) {
		t.Fatalf("expected chain.ErrUnknownNetwork, got %v", err)
	}
}
