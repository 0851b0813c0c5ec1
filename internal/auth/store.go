package auth

import (
	"context"
	"time"
)

// CredentialStore describes persistence operations required by the auth
// subsystem. Identity lookups return roles and permissions fully
// materialized; nothing downstream performs its own fetch.
type CredentialStore interface {
	CreateIdentity(ctx context.Context, identity *Identity) error
	FindIdentity(ctx context.Context, id string) (*Identity, error)
	FindIdentityByEmail(ctx context.Context, email string) (*Identity, error)
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
	SetActive(ctx context.Context, userID string, active bool) error
	SetLockedUntil(ctx context.Context, userID string, until *time.Time) error
	MarkEmailVerified(ctx context.Context, userID string) error

	RecordFailedLogin(ctx context.Context, userID, ip string, at time.Time) error
	CountFailedLogins(ctx context.Context, userID string, since time.Time) (int, error)
	ClearFailedLogins(ctx context.Context, userID string) error

	AssignRole(ctx context.Context, userID, roleName string) error
	EnsurePermissions(ctx context.Context, perms []Permission) error

	CreateSession(ctx context.Context, session *Session) error
	FindSession(ctx context.Context, id string) (*Session, error)
	RevokeSession(ctx context.Context, id string) error
	RevokeSessionsForUser(ctx context.Context, userID string) error
	TouchSession(ctx context.Context, id string, at time.Time) error

	CreateAPIKey(ctx context.Context, key *APIKey) error
	FindAPIKeyByHash(ctx context.Context, keyHash string) (*APIKey, error)
	ListAPIKeys(ctx context.Context, userID string) ([]*APIKey, error)
	RevokeAPIKey(ctx context.Context, userID, keyID string) error
	RecordAPIKeyUsage(ctx context.Context, keyID string, at time.Time) error
}
