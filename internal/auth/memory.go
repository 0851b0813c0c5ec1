package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	"pesabridge.io/internal/ids"
)

var _ CredentialStore = (*MemoryStore)(nil)

// MemoryStore implements CredentialStore in process memory. It backs tests
// and single-node development runs.
type MemoryStore struct {
	mu sync.RWMutex

	users     map[string]*Identity
	byEmail   map[string]string
	roles     map[string]*Role // keyed by lowercase role name
	perms     map[string]Permission
	userRoles map[string]map[string]struct{}
	failed    map[string][]time.Time
	sessions  map[string]*Session
	apiKeys   map[string]*APIKey
	byKeyHash map[string]string
}

// NewMemoryStore returns an empty store seeded with the default "user" role
// carrying the basic-operation permissions.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		users:     make(map[string]*Identity),
		byEmail:   make(map[string]string),
		roles:     make(map[string]*Role),
		perms:     make(map[string]Permission),
		userRoles: make(map[string]map[string]struct{}),
		failed:    make(map[string][]time.Time),
		sessions:  make(map[string]*Session),
		apiKeys:   make(map[string]*APIKey),
		byKeyHash: make(map[string]string),
	}
	s.PutRole(Role{
		Name:   "user",
		Active: true,
		Permissions: []Permission{
			{Name: PermAccountsRead, Active: true},
			{Name: PermAccountsWrite, Active: true},
			{Name: PermTransfersRead, Active: true},
			{Name: PermTransfersWrite, Active: true},
		},
	})
	return s
}

// PutRole creates or replaces a role definition.
func (s *MemoryStore) PutRole(role Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if role.ID == "" {
		role.ID = ids.New()
	}
	for i := range role.Permissions {
		if role.Permissions[i].ID == "" {
			role.Permissions[i].ID = ids.New()
		}
	}
	r := role
	s.roles[strings.ToLower(role.Name)] = &r
}

func (s *MemoryStore) CreateIdentity(ctx context.Context, identity *Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if identity.ID == "" {
		identity.ID = ids.New()
	}
	if _, exists := s.byEmail[identity.Email]; exists {
		return ErrAlreadyExists
	}
	cp := *identity
	s.users[identity.ID] = &cp
	s.byEmail[identity.Email] = identity.ID
	s.userRoles[identity.ID] = map[string]struct{}{"user": {}}
	return nil
}

func (s *MemoryStore) FindIdentity(ctx context.Context, id string) (*Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.materialize(id)
}

func (s *MemoryStore) FindIdentityByEmail(ctx context.Context, email string) (*Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[email]
	if !ok {
		return nil, ErrNotFound
	}
	return s.materialize(id)
}

// materialize copies the identity and attaches its assigned roles. Callers
// hold s.mu.
func (s *MemoryStore) materialize(id string) (*Identity, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	if u.LockedUntil != nil {
		t := *u.LockedUntil
		cp.LockedUntil = &t
	}
	cp.Roles = nil
	for name := range s.userRoles[id] {
		role, ok := s.roles[name]
		if !ok {
			continue
		}
		rc := *role
		rc.Permissions = append([]Permission(nil), role.Permissions...)
		cp.Roles = append(cp.Roles, rc)
	}
	return &cp, nil
}

func (s *MemoryStore) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) SetActive(ctx context.Context, userID string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.Active = active
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) SetLockedUntil(ctx context.Context, userID string, until *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.LockedUntil = until
	return nil
}

func (s *MemoryStore) MarkEmailVerified(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.EmailVerified = true
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) RecordFailedLogin(ctx context.Context, userID, ip string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed[userID] = append(s.failed[userID], at)
	return nil
}

func (s *MemoryStore) CountFailedLogins(ctx context.Context, userID string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int
	for _, at := range s.failed[userID] {
		if !at.Before(since) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) ClearFailedLogins(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.failed, userID)
	return nil
}

func (s *MemoryStore) AssignRole(ctx context.Context, userID, roleName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; !ok {
		return ErrNotFound
	}
	name := strings.ToLower(roleName)
	if _, ok := s.roles[name]; !ok {
		return ErrNotFound
	}
	if s.userRoles[userID] == nil {
		s.userRoles[userID] = make(map[string]struct{})
	}
	s.userRoles[userID][name] = struct{}{}
	return nil
}

func (s *MemoryStore) EnsurePermissions(ctx context.Context, perms []Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range perms {
		if _, ok := s.perms[p.Name]; ok {
			continue
		}
		if p.ID == "" {
			p.ID = ids.New()
		}
		s.perms[p.Name] = p
	}
	return nil
}

func (s *MemoryStore) CreateSession(ctx context.Context, session *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[session.ID]; exists {
		return ErrAlreadyExists
	}
	cp := *session
	s.sessions[session.ID] = &cp
	return nil
}

func (s *MemoryStore) FindSession(ctx context.Context, id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *MemoryStore) RevokeSession(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	sess.Active = false
	return nil
}

func (s *MemoryStore) RevokeSessionsForUser(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		if sess.UserID == userID {
			sess.Active = false
		}
	}
	return nil
}

func (s *MemoryStore) TouchSession(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	sess.LastActivityAt = at
	return nil
}

func (s *MemoryStore) CreateAPIKey(ctx context.Context, key *APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if key.ID == "" {
		key.ID = ids.New()
	}
	if _, exists := s.byKeyHash[key.KeyHash]; exists {
		return ErrAlreadyExists
	}
	cp := *key
	cp.Permissions = append([]string(nil), key.Permissions...)
	s.apiKeys[key.ID] = &cp
	s.byKeyHash[key.KeyHash] = key.ID
	return nil
}

func (s *MemoryStore) FindAPIKeyByHash(ctx context.Context, keyHash string) (*APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byKeyHash[keyHash]
	if !ok {
		return nil, ErrNotFound
	}
	key := s.apiKeys[id]
	cp := *key
	cp.Permissions = append([]string(nil), key.Permissions...)
	return &cp, nil
}

func (s *MemoryStore) ListAPIKeys(ctx context.Context, userID string) ([]*APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []*APIKey
	for _, key := range s.apiKeys {
		if key.UserID != userID {
			continue
		}
		cp := *key
		cp.Permissions = append([]string(nil), key.Permissions...)
		res = append(res, &cp)
	}
	return res, nil
}

func (s *MemoryStore) RevokeAPIKey(ctx context.Context, userID, keyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.apiKeys[keyID]
	if !ok || key.UserID != userID {
		return ErrNotFound
	}
	key.Active = false
	return nil
}

func (s *MemoryStore) RecordAPIKeyUsage(ctx context.Context, keyID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.apiKeys[keyID]
	if !ok {
		return ErrNotFound
	}
	key.UsageCount++
	t := at
	key.LastUsedAt = &t
	return nil
}
