package escrow

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"pesabridge.io/internal/onetime"
)

var testKey = bytes.Repeat([]byte{0x42}, 32)

func newTestEscrow(t *testing.T, key []byte, opts ...onetime.Option) *Service {
	t.Helper()
	tokens, err := onetime.NewService(onetime.NewMemStore(), time.Hour, opts...)
	if err != nil {
		t.Fatalf("onetime.NewService: %v", err)
	}
	svc, err := New(tokens, key)
	if err != nil {
		t.Fatalf("escrow.New: %v", err)
	}
	return svc
}

func TestStoreAndRetrieveOnce(t *testing.T) {
	svc := newTestEscrow(t, testKey)
	ctx := context.Background()

	token, expiresAt, err := svc.Store(ctx, "GABC123", "SSEED456", "stellar", 0)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if token == "" || !expiresAt.After(time.Now()) {
		t.Fatalf("token=%q expiresAt=%v", token, expiresAt)
	}

	entry, err := svc.Retrieve(ctx, token)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if entry == nil {
		t.Fatal("first retrieval must succeed")
	}
	if entry.AccountID != "GABC123" || entry.Network != "stellar" || entry.PrivateKey != "SSEED456" {
		t.Fatalf("entry = %+v", entry)
	}

	// Exactly once: the second attempt finds nothing, with no error.
	entry, err = svc.Retrieve(ctx, token)
	if err != nil {
		t.Fatalf("second Retrieve: %v", err)
	}
	if entry != nil {
		t.Fatal("second retrieval must find nothing")
	}
}

func TestRetrieveUnknownToken(t *testing.T) {
	svc := newTestEscrow(t, testKey)
	entry, err := svc.Retrieve(context.Background(), "never-issued")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if entry != nil {
		t.Fatal("unknown token must yield nil, nil")
	}
}

func TestRetrieveAfterExpiry(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := base
	svc := newTestEscrow(t, testKey, onetime.WithClock(func() time.Time { return now }))
	ctx := context.Background()

	token, _, err := svc.Store(ctx, "GABC", "SSEED", "stellar", 0)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}

	// Default window is 30 minutes; one second past it the key is gone.
	now = base.Add(DefaultTTL + time.Second)
	entry, err := svc.Retrieve(ctx, token)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if entry != nil {
		t.Fatal("expired token must yield nil, nil")
	}
}

func TestConcurrentRetrieveExactlyOnce(t *testing.T) {
	svc := newTestEscrow(t, testKey)
	ctx := context.Background()

	token, _, err := svc.Store(ctx, "GABC", "SSEED", "stellar", 0)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}

	const workers = 16
	var wins atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			entry, err := svc.Retrieve(ctx, token)
			if err != nil {
				t.Errorf("Retrieve: %v", err)
				return
			}
			if entry != nil {
				wins.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if got := wins.Load(); got != 1 {
		t.Fatalf("exactly one retrieval must win, got %d", got)
	}
}

func TestEncryptionRoundTripNonASCII(t *testing.T) {
	svc := newTestEscrow(t, testKey)
	ctx := context.Background()

	// Key material is opaque bytes as far as the escrow is concerned.
	private := "clé-privée-\x00\xff-漢字"
	token, _, err := svc.Store(ctx, "0.0.9001", private, "hedera", 0)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	entry, err := svc.Retrieve(ctx, token)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if entry == nil || entry.PrivateKey != private {
		t.Fatalf("round trip mangled the key: %+v", entry)
	}
}

func TestPlainFallbackWithoutKey(t *testing.T) {
	svc := newTestEscrow(t, nil)
	ctx := context.Background()

	token, _, err := svc.Store(ctx, "GABC", "SSEED", "stellar", 0)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	entry, err := svc.Retrieve(ctx, token)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if entry == nil || entry.PrivateKey != "SSEED" {
		t.Fatalf("fallback round trip failed: %+v", entry)
	}
}

func TestEncryptedEntryWithoutKeyErrors(t *testing.T) {
	// Store with encryption, then retrieve through a service that lost the
	// key: this is a configuration failure and must be loud, not absent.
	tokens, err := onetime.NewService(onetime.NewMemStore(), time.Hour)
	if err != nil {
		t.Fatalf("onetime.NewService: %v", err)
	}
	encrypting, err := New(tokens, testKey)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	bare, err := New(tokens, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	token, _, err := encrypting.Store(context.Background(), "GABC", "SSEED", "stellar", 0)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if _, err := bare.Retrieve(context.Background(), token); err == nil {
		t.Fatal("expected a configuration error")
	}
}

func TestRejectsBadCipherKey(t *testing.T) {
	tokens, err := onetime.NewService(onetime.NewMemStore(), time.Hour)
	if err != nil {
		t.Fatalf("onetime.NewService: %v", err)
	}
	if _, err := New(tokens, []byte("too-short")); err == nil {
		t.Fatal("expected cipher init error")
	}
}

func TestStoreValidation(t *testing.T) {
	svc := newTestEscrow(t, testKey)
	if _, _, err := svc.Store(context.Background(), "", "SSEED", "stellar", 0); err == nil {
		t.Fatal("expected error for blank account id")
	}
	if _, _, err := svc.Store(context.Background(), "GABC", "", "stellar", 0); err == nil {
		t.Fatal("expected error for blank private key")
	}
}

func TestRevoke(t *testing.T) {
	svc := newTestEscrow(t, testKey)
	ctx := context.Background()

	token, _, err := svc.Store(ctx, "GABC", "SSEED", "stellar", 0)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	existed, err := svc.Revoke(ctx, token)
	if err != nil || !existed {
		t.Fatalf("Revoke: existed=%v err=%v", existed, err)
	}
	entry, err := svc.Retrieve(ctx, token)
	if err != nil || entry != nil {
		t.Fatalf("revoked token: entry=%v err=%v", entry, err)
	}
}

func TestCiphertextIsOpaque(t *testing.T) {
	// The envelope in the store must not contain the raw key when encryption
	// is on.
	store := onetime.NewMemStore()
	tokens, err := onetime.NewService(store, time.Hour)
	if err != nil {
		t.Fatalf("onetime.NewService: %v", err)
	}
	svc, err := New(tokens, testKey)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	private := "SVERYSECRETSEED"
	token, _, err := svc.Store(context.Background(), "GABC", private, "stellar", 0)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	payload, ok, err := tokens.Redeem(context.Background(), token)
	if err != nil || !ok {
		t.Fatalf("Redeem: ok=%v err=%v", ok, err)
	}
	if strings.Contains(string(payload), private) {
		t.Fatal("raw private key leaked into the stored envelope")
	}
}
