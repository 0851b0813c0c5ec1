package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestIssueAPIKeyShape(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	identity, _, _, err := svc.Register(ctx, "dev@example.com", "correct-horse", "", "")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	key, secret, err := svc.IssueAPIKey(ctx, identity.ID, "ci pipeline", []string{PermTransfersRead, PermTransfersRead, " "}, 100, 0)
	if err != nil {
		t.Fatalf("IssueAPIKey: %v", err)
	}
	if !strings.HasPrefix(secret, APIKeyPrefix) {
		t.Fatalf("secret %q lacks prefix", secret)
	}
	if key.KeyPrefix != secret[:apiKeyDisplayPrefixLen] {
		t.Fatalf("display prefix %q does not match secret", key.KeyPrefix)
	}
	if key.KeyHash != HashAPIKey(secret) {
		t.Fatal("stored hash does not match the secret")
	}
	// Blank and duplicate permissions collapse.
	if len(key.Permissions) != 1 || key.Permissions[0] != PermTransfersRead {
		t.Fatalf("permissions = %v", key.Permissions)
	}
	if key.RateLimit != 100 || !key.Active || key.ExpiresAt != nil {
		t.Fatalf("unexpected key state: %+v", key)
	}

	// The raw secret is never persisted.
	stored, err := store.FindAPIKeyByHash(ctx, key.KeyHash)
	if err != nil {
		t.Fatalf("FindAPIKeyByHash: %v", err)
	}
	if strings.Contains(stored.KeyHash, secret) || stored.KeyPrefix == secret {
		t.Fatal("secret leaked into storage")
	}
}

func TestIssueAPIKeyValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, _, err := svc.IssueAPIKey(ctx, "", "name", []string{PermTransfersRead}, 0, 0); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("blank user: got %v", err)
	}
	if _, _, err := svc.IssueAPIKey(ctx, "user-1", "name", nil, 0, 0); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("no permissions: got %v", err)
	}
}

func TestListAndRevokeAPIKeys(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	identity, _, _, err := svc.Register(ctx, "dev@example.com", "correct-horse", "", "")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	k1, _, err := svc.IssueAPIKey(ctx, identity.ID, "one", []string{PermTransfersRead}, 0, 0)
	if err != nil {
		t.Fatalf("IssueAPIKey: %v", err)
	}
	if _, _, err := svc.IssueAPIKey(ctx, identity.ID, "two", []string{PermAccountsRead}, 0, 0); err != nil {
		t.Fatalf("IssueAPIKey: %v", err)
	}

	keys, err := svc.ListAPIKeys(ctx, identity.ID)
	if err != nil {
		t.Fatalf("ListAPIKeys: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("len(keys) = %d", len(keys))
	}

	if err := svc.RevokeAPIKey(ctx, identity.ID, k1.ID); err != nil {
		t.Fatalf("RevokeAPIKey: %v", err)
	}
	// Revoking someone else's key fails.
	if err := svc.RevokeAPIKey(ctx, "other-user", k1.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cross-user revoke: got %v", err)
	}
}
