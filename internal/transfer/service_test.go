package transfer

import (
	"context"
	"errors"
	"testing"
	"time"

	"pesabridge.io/internal/chain"
)

type recordedEvents struct {
	completed []string
	failed    []string
}

func (r *recordedEvents) PublishTransferCompleted(ctx context.Context, t *Transfer) error {
	r.completed = append(r.completed, t.ID)
	return nil
}

func (r *recordedEvents) PublishTransferFailed(ctx context.Context, t *Transfer, reason string) error {
	r.failed = append(r.failed, t.ID)
	return nil
}

func newTestService(t *testing.T, opts ...ServiceOption) (*Service, *MemoryStore, *chain.Fake) {
	t.Helper()
	store := NewMemoryStore()
	fake := chain.NewFake(chain.NetworkStellar)
	svc, err := NewService(store, chain.Registry{chain.NetworkStellar: fake}, opts...)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, store, fake
}

func fundedAccount(t *testing.T, fake *chain.Fake) chain.Account {
	t.Helper()
	acct, err := fake.CreateAccount(context.Background())
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	return acct
}

func TestSubmitHappyPath(t *testing.T) {
	events := &recordedEvents{}
	svc, _, fake := newTestService(t, WithEvents(events))
	from := fundedAccount(t, fake)
	to := fundedAccount(t, fake)

	tx, err := svc.Submit(context.Background(), SubmitRequest{
		UserID:      "user-1",
		Network:     chain.NetworkStellar,
		FromAccount: from.AccountID,
		ToAccount:   to.AccountID,
		Asset:       "usdc",
		Amount:      50_00,
		Memo:        "school fees",
		SourceKey:   from.PrivateKey,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if tx.Status != StatusCompleted {
		t.Fatalf("status = %q", tx.Status)
	}
	if tx.TxHash == "" {
		t.Fatal("expected a transaction hash")
	}
	if tx.Asset != "USDC" {
		t.Fatalf("asset should be upcased, got %q", tx.Asset)
	}
	if tx.Sequence == 0 {
		t.Fatal("sequence must be assigned")
	}
	if len(events.completed) != 1 {
		t.Fatalf("completed events = %v", events.completed)
	}
}

func TestSubmitValidation(t *testing.T) {
	svc, _, fake := newTestService(t)
	from := fundedAccount(t, fake)

	cases := []struct {
		name string
		req  SubmitRequest
		want error
	}{
		{"zero amount", SubmitRequest{Network: chain.NetworkStellar, FromAccount: "a", ToAccount: "b", Asset: "USDC"}, ErrInvalidAmount},
		{"negative amount", SubmitRequest{Network: chain.NetworkStellar, FromAccount: "a", ToAccount: "b", Asset: "USDC", Amount: -1}, ErrInvalidAmount},
		{"blank asset", SubmitRequest{Network: chain.NetworkStellar, FromAccount: "a", ToAccount: "b", Amount: 1}, ErrInvalidAsset},
		{"missing parties", SubmitRequest{Network: chain.NetworkStellar, Asset: "USDC", Amount: 1}, ErrInvalidParty},
		{"unknown network", SubmitRequest{Network: "ethereum", FromAccount: from.AccountID, ToAccount: "b", Asset: "USDC", Amount: 1}, chain.ErrUnknownNetwork},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Submit(context.Background(), tc.req); !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
		})
	}
}

func TestSubmitIdempotentReplay(t *testing.T) {
	svc, _, fake := newTestService(t)
	from := fundedAccount(t, fake)
	to := fundedAccount(t, fake)

	req := SubmitRequest{
		UserID:         "user-1",
		Network:        chain.NetworkStellar,
		FromAccount:    from.AccountID,
		ToAccount:      to.AccountID,
		Asset:          "USDC",
		Amount:         100,
		SourceKey:      from.PrivateKey,
		IdempotencyKey: "idem-1",
	}
	first, err := svc.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	second, err := svc.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("second Submit: %v", err)
	}
	if second.ID != first.ID || second.Sequence != first.Sequence {
		t.Fatalf("replay returned a different transfer: %+v vs %+v", second, first)
	}

	// The same key under a different user is a fresh submission.
	req.UserID = "user-2"
	third, err := svc.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("other-user Submit: %v", err)
	}
	if third.ID == first.ID {
		t.Fatal("idempotency keys must be scoped per user")
	}
}

func TestSubmitFailureIsRecorded(t *testing.T) {
	events := &recordedEvents{}
	svc, store, fake := newTestService(t, WithEvents(events))
	to := fundedAccount(t, fake)

	_, err := svc.Submit(context.Background(), SubmitRequest{
		UserID:      "user-1",
		Network:     chain.NetworkStellar,
		FromAccount: "GMISSING",
		ToAccount:   to.AccountID,
		Asset:       "USDC",
		Amount:      100,
		SourceKey:   "SKEY",
	})
	if !errors.Is(err, chain.ErrAccountNotFound) {
		t.Fatalf("expected chain.ErrAccountNotFound, got %v", err)
	}

	// The failed attempt still lands in history and on the bus.
	items, _, err := store.List(context.Background(), "user-1", 10, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 1 || items[0].Status != StatusFailed {
		t.Fatalf("items = %+v", items)
	}
	if len(events.failed) != 1 {
		t.Fatalf("failed events = %v", events.failed)
	}
}

func TestListPagination(t *testing.T) {
	svc, _, fake := newTestService(t)
	from := fundedAccount(t, fake)
	to := fundedAccount(t, fake)

	for i := 0; i < 5; i++ {
		if _, err := svc.Submit(context.Background(), SubmitRequest{
			UserID:      "user-1",
			Network:     chain.NetworkStellar,
			FromAccount: from.AccountID,
			ToAccount:   to.AccountID,
			Asset:       "USDC",
			Amount:      int64(100 + i),
			SourceKey:   from.PrivateKey,
		}); err != nil {
			t.Fatalf("Submit %d: %v", i, err)
		}
	}

	page1, next, err := svc.List(context.Background(), "user-1", 3, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(page1) != 3 {
		t.Fatalf("page1 = %d items", len(page1))
	}
	page2, _, err := svc.List(context.Background(), "user-1", 3, next)
	if err != nil {
		t.Fatalf("List page 2: %v", err)
	}
	if len(page2) != 2 {
		t.Fatalf("page2 = %d items", len(page2))
	}
	if page2[0].Sequence <= page1[len(page1)-1].Sequence {
		t.Fatal("pages must advance the sequence cursor")
	}

	// Another user sees nothing.
	other, _, err := svc.List(context.Background(), "user-2", 10, 0)
	if err != nil {
		t.Fatalf("List other: %v", err)
	}
	if len(other) != 0 {
		t.Fatalf("other user sees %d items", len(other))
	}
}

func TestMemoryStoreAllSince(t *testing.T) {
	store := NewMemoryStore()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		if err := store.Create(context.Background(), &Transfer{
			UserID:    "user-1",
			Status:    StatusCompleted,
			CreatedAt: base.AddDate(0, 0, i),
		}); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	got, err := store.AllSince(context.Background(), base.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("AllSince: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
}
