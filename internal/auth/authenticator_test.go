package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

// registeredUser creates an identity through the service so it carries the
// default "user" role, and returns it with a fresh token pair.
func registeredUser(t *testing.T, store *MemoryStore, codec *Codec) (*Identity, TokenPair) {
	t.Helper()
	svc, err := NewService(store, codec, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	identity, pair, _, err := svc.Register(context.Background(), "amina@example.com", "correct-horse", "203.0.113.7", "test")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	return identity, pair
}

func TestAuthenticateSessionHappyPath(t *testing.T) {
	store := NewMemoryStore()
	codec := testCodec(t)
	identity, pair := registeredUser(t, store, codec)

	authn, err := NewAuthenticator(codec, store)
	if err != nil {
		t.Fatalf("NewAuthenticator: %v", err)
	}

	ac, err := authn.Authenticate(context.Background(), pair.AccessToken, PermAccountsRead)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if ac.Kind != KindSession {
		t.Fatalf("kind = %q", ac.Kind)
	}
	if ac.PrincipalID != identity.ID {
		t.Fatalf("principal = %q, want %q", ac.PrincipalID, identity.ID)
	}
	if ac.Identity == nil || ac.Key != nil {
		t.Fatal("session context must carry Identity, not Key")
	}
	if !ac.HasPermission(PermAccountsRead) {
		t.Fatal("expected accounts:read via default role")
	}
}

func TestAuthenticateEmptyBearer(t *testing.T) {
	authn, err := NewAuthenticator(testCodec(t), NewMemoryStore())
	if err != nil {
		t.Fatalf("NewAuthenticator: %v", err)
	}
	if _, err := authn.Authenticate(context.Background(), "   "); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestSessionBasicOperationsLeniency(t *testing.T) {
	// A session user whose roles grant nothing still passes for requests
	// covered entirely by the basic-operations allow-list.
	store := NewMemoryStore()
	store.PutRole(Role{Name: "user", Active: true}) // strip the default role's permissions
	codec := testCodec(t)
	_, pair := registeredUser(t, store, codec)

	authn, _ := NewAuthenticator(codec, store)

	ac, err := authn.Authenticate(context.Background(), pair.AccessToken, PermAccountsRead, PermTransfersWrite)
	if err != nil {
		t.Fatalf("basic-only request should pass: %v", err)
	}
	// Leniency grants passage, not permissions: the resolved set stays empty.
	if ac.HasPermission(PermAccountsRead) {
		t.Fatal("allow-list passage must not materialize permissions")
	}
}

func TestSessionMixedRequestRejectedWhole(t *testing.T) {
	// One non-basic permission in the requested set disqualifies the whole
	// request, including the basic parts.
	store := NewMemoryStore()
	store.PutRole(Role{Name: "user", Active: true})
	codec := testCodec(t)
	_, pair := registeredUser(t, store, codec)

	authn, _ := NewAuthenticator(codec, store)

	_, err := authn.Authenticate(context.Background(), pair.AccessToken, PermAccountsRead, PermAdminUsers)
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	var pe *PermissionError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *PermissionError, got %T", err)
	}
	// Both requested permissions are missing; the error names them all.
	if len(pe.Missing) != 2 {
		t.Fatalf("missing = %v", pe.Missing)
	}
}

func TestSessionExplicitGrantBeatsAllowList(t *testing.T) {
	store := NewMemoryStore()
	store.PutRole(Role{Name: "user", Active: true, Permissions: []Permission{
		{Name: PermAdminUsers, Active: true},
	}})
	codec := testCodec(t)
	_, pair := registeredUser(t, store, codec)

	authn, _ := NewAuthenticator(codec, store)
	if _, err := authn.Authenticate(context.Background(), pair.AccessToken, PermAdminUsers); err != nil {
		t.Fatalf("explicitly granted permission should pass: %v", err)
	}
}

func TestSessionInactiveIdentityRejected(t *testing.T) {
	store := NewMemoryStore()
	codec := testCodec(t)
	identity, pair := registeredUser(t, store, codec)
	if err := store.SetActive(context.Background(), identity.ID, false); err != nil {
		t.Fatalf("SetActive: %v", err)
	}

	authn, _ := NewAuthenticator(codec, store)
	if _, err := authn.Authenticate(context.Background(), pair.AccessToken); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestAPIKeyStrictEnforcement(t *testing.T) {
	// API keys get no basic-operations leniency: a key without the grant is
	// forbidden even for basic operations.
	store := NewMemoryStore()
	codec := testCodec(t)
	identity, _ := registeredUser(t, store, codec)

	svc, _ := NewService(store, codec, nil)
	_, secret, err := svc.IssueAPIKey(context.Background(), identity.ID, "ci", []string{PermTransfersRead}, 0, 0)
	if err != nil {
		t.Fatalf("IssueAPIKey: %v", err)
	}

	authn, _ := NewAuthenticator(codec, store)

	if _, err := authn.Authenticate(context.Background(), secret, PermTransfersRead); err != nil {
		t.Fatalf("granted permission should pass: %v", err)
	}

	_, err = authn.Authenticate(context.Background(), secret, PermAccountsRead)
	var pe *PermissionError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *PermissionError, got %v", err)
	}
	if len(pe.Missing) != 1 || pe.Missing[0] != PermAccountsRead {
		t.Fatalf("missing = %v", pe.Missing)
	}
}

func TestAPIKeyContextShape(t *testing.T) {
	store := NewMemoryStore()
	codec := testCodec(t)
	identity, _ := registeredUser(t, store, codec)

	svc, _ := NewService(store, codec, nil)
	key, secret, err := svc.IssueAPIKey(context.Background(), identity.ID, "ci", []string{PermTransfersRead}, 0, 0)
	if err != nil {
		t.Fatalf("IssueAPIKey: %v", err)
	}

	authn, _ := NewAuthenticator(codec, store)
	ac, err := authn.Authenticate(context.Background(), secret, PermTransfersRead)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if ac.Kind != KindAPIKey {
		t.Fatalf("kind = %q", ac.Kind)
	}
	if ac.PrincipalID != identity.ID {
		t.Fatalf("principal = %q", ac.PrincipalID)
	}
	if ac.Key == nil || ac.Identity != nil {
		t.Fatal("api key context must carry Key, not Identity")
	}

	// Usage is recorded on successful authentication.
	stored, err := store.FindAPIKeyByHash(context.Background(), key.KeyHash)
	if err != nil {
		t.Fatalf("FindAPIKeyByHash: %v", err)
	}
	if stored.UsageCount != 1 || stored.LastUsedAt == nil {
		t.Fatalf("usage not recorded: count=%d lastUsed=%v", stored.UsageCount, stored.LastUsedAt)
	}
}

func TestAPIKeyBadFormatAndUnknown(t *testing.T) {
	store := NewMemoryStore()
	codec := testCodec(t)
	authn, _ := NewAuthenticator(codec, store)

	// Neither a valid session token nor a pbk_-prefixed key.
	if _, err := authn.Authenticate(context.Background(), "garbage-bearer"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	// Right prefix, unknown key.
	if _, err := authn.Authenticate(context.Background(), APIKeyPrefix+"nope"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestAPIKeyRevokedAndExpired(t *testing.T) {
	store := NewMemoryStore()
	codec := testCodec(t)
	identity, _ := registeredUser(t, store, codec)
	svc, _ := NewService(store, codec, nil)

	key, secret, err := svc.IssueAPIKey(context.Background(), identity.ID, "ci", []string{PermTransfersRead}, 0, 0)
	if err != nil {
		t.Fatalf("IssueAPIKey: %v", err)
	}
	if err := svc.RevokeAPIKey(context.Background(), identity.ID, key.ID); err != nil {
		t.Fatalf("RevokeAPIKey: %v", err)
	}

	authn, _ := NewAuthenticator(codec, store)
	if _, err := authn.Authenticate(context.Background(), secret); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("revoked key: expected ErrUnauthorized, got %v", err)
	}

	// Expired key.
	_, secret2, err := svc.IssueAPIKey(context.Background(), identity.ID, "short", []string{PermTransfersRead}, 0, time.Nanosecond)
	if err != nil {
		t.Fatalf("IssueAPIKey: %v", err)
	}
	time.Sleep(2 * time.Millisecond)
	if _, err := authn.Authenticate(context.Background(), secret2); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expired key: expected ErrUnauthorized, got %v", err)
	}
}

// failingStore forces the identity lookup down the internal-error path.
type failingStore struct {
	*MemoryStore
}

func (f *failingStore) FindIdentity(ctx context.Context, id string) (*Identity, error) {
	return nil, errors.New("connection refused")
}

func TestSessionStoreFailureIsInternal(t *testing.T) {
	store := NewMemoryStore()
	codec := testCodec(t)
	_, pair := registeredUser(t, store, codec)

	authn, _ := NewAuthenticator(codec, &failingStore{store})
	_, err := authn.Authenticate(context.Background(), pair.AccessToken)
	if !errors.Is(err, ErrInternal) {
		t.Fatalf("expected ErrInternal, got %v", err)
	}
	if errors.Is(err, ErrUnauthorized) {
		t.Fatal("store failures must not masquerade as unauthorized")
	}
}

func TestExpiredAccessTokenFallsThroughToUnauthorized(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := base
	codec := testCodec(t, WithClock(func() time.Time { return now }))
	store := NewMemoryStore()
	_, pair := registeredUser(t, store, codec)

	authn, _ := NewAuthenticator(codec, store)
	now = base.Add(time.Hour)
	if _, err := authn.Authenticate(context.Background(), pair.AccessToken); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for expired token, got %v", err)
	}
}
