package auth

import "time"

// Identity is a password-authenticated principal with its roles and
// permissions fully materialized. Nothing in this package lazy-loads:
// functions that accept an Identity expect Roles (and each role's
// Permissions) to be present already.
type Identity struct {
	ID            string     `json:"id"`
	Email         string     `json:"email"`
	PasswordHash  string     `json:"-"`
	Active        bool       `json:"active"`
	EmailVerified bool       `json:"email_verified"`
	LockedUntil   *time.Time `json:"locked_until,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`

	Roles []Role `json:"roles,omitempty"`
}

// Role is a named bundle of permissions. An inactive role contributes zero
// permissions regardless of membership.
type Role struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Active      bool         `json:"active"`
	Permissions []Permission `json:"permissions,omitempty"`
}

// Permission is an atomic capability named "<resource>:<action>". Inactive
// permissions contribute nothing even when the owning role is active.
type Permission struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// Session is the server-side record of an issued refresh token, enabling
// revocation. The refresh token itself is stored only as a hash.
type Session struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	TokenHash      string    `json:"-"`
	IP             string    `json:"ip,omitempty"`
	UserAgent      string    `json:"user_agent,omitempty"`
	Active         bool      `json:"active"`
	ExpiresAt      time.Time `json:"expires_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	CreatedAt      time.Time `json:"created_at"`
}

// APIKey is a long-lived developer credential with an explicit permission
// list, independent of any role. The raw secret is shown only at creation;
// at rest only KeyPrefix and KeyHash remain.
type APIKey struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Name        string     `json:"name"`
	KeyPrefix   string     `json:"key_prefix"`
	KeyHash     string     `json:"-"`
	Permissions []string   `json:"permissions"`
	RateLimit   int        `json:"rate_limit"`
	Active      bool       `json:"active"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
	UsageCount  int64      `json:"usage_count"`
	CreatedAt   time.Time  `json:"created_at"`
}

// AuthKind discriminates how a request was authenticated.
type AuthKind string

const (
	KindSession AuthKind = "session"
	KindAPIKey  AuthKind = "api-key"
)

// AuthContext is the per-request result of authentication. It is constructed
// fresh for every request and never persisted.
type AuthContext struct {
	Kind        AuthKind
	PrincipalID string
	Permissions map[string]struct{}

	// Exactly one of the two is set, matching Kind.
	Identity *Identity
	Key      *APIKey
}

// HasPermission reports whether the authenticated principal holds the named
// permission.
func (c *AuthContext) HasPermission(name string) bool {
	if c == nil {
		return false
	}
	_, ok := c.Permissions[name]
	return ok
}
