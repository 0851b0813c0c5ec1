package chain

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestFakeStellarAccountShape(t *testing.T) {
	f := NewFake(NetworkStellar)
	acct, err := f.CreateAccount(context.Background())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !strings.HasPrefix(acct.AccountID, "G") {
		t.Fatalf("expected G... account ID, got %q", acct.AccountID)
	}
	if !strings.HasPrefix(acct.PrivateKey, "S") {
		t.Fatalf("expected S... seed, got %q", acct.PrivateKey)
	}
	if acct.Network != NetworkStellar {
		t.Fatalf("network = %q", acct.Network)
	}

	balances, err := f.GetBalances(context.Background(), acct.AccountID)
	if err != nil {
		t.Fatalf("balances: %v", err)
	}
	if len(balances) != 1 || balances[0].Asset != "USDC" {
		t.Fatalf("unexpected balances: %+v", balances)
	}
}

func TestFakeHederaAccountShape(t *testing.T) {
	f := NewFake(NetworkHedera)
	acct, err := f.CreateAccount(context.Background())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !strings.HasPrefix(acct.AccountID, "0.0.") {
		t.Fatalf("expected 0.0.N account ID, got %q", acct.AccountID)
	}
	if !strings.HasPrefix(acct.PrivateKey, hederaKeyDERPrefix) {
		t.Fatalf("expected DER-prefixed key, got %q", acct.PrivateKey)
	}
}

func TestFakePayments(t *testing.T) {
	f := NewFake(NetworkStellar)
	from, err := f.CreateAccount(context.Background())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	to, err := f.CreateAccount(context.Background())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	hash, err := f.SubmitPayment(context.Background(), Payment{
		From: from.AccountID, To: to.AccountID, Asset: "USDC", Amount: "5.00",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(hash) != 64 {
		t.Fatalf("expected 64-char hash, got %q", hash)
	}

	_, err = f.SubmitPayment(context.Background(), Payment{From: "GMISSING", To: to.AccountID})
	if !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestRegistryLookup(t *testing.T) {
	reg := Registry{NetworkStellar: NewFake(NetworkStellar)}
	if _, err := reg.Provider(NetworkStellar); err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if _, err := reg.Provider("ethereum"); !errors.Is(err, ErrUnknownNetwork) {
		t.Fatalf("expected ErrUnknownNetwork, got %v", err)
	}
}
