package auth

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"pesabridge.io/internal/ids"
)

var _ CredentialStore = (*PGStore)(nil)

// PGStore implements CredentialStore using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) CreateIdentity(ctx context.Context, identity *Identity) error {
	if identity.ID == "" {
		identity.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into users(id, email, password_hash, active, email_verified, created_at, updated_at)
		 values($1,$2,$3,$4,$5,$6,$7)`,
		identity.ID, identity.Email, identity.PasswordHash, identity.Active,
		identity.EmailVerified, identity.CreatedAt, identity.UpdatedAt,
	)
	if err != nil {
		return err
	}
	// New identities always carry the default role.
	return s.AssignRole(ctx, identity.ID, "user")
}

func (s *PGStore) FindIdentity(ctx context.Context, id string) (*Identity, error) {
	return s.findIdentity(ctx, `where id=$1`, id)
}

func (s *PGStore) FindIdentityByEmail(ctx context.Context, email string) (*Identity, error) {
	return s.findIdentity(ctx, `where email=$1`, email)
}

func (s *PGStore) findIdentity(ctx context.Context, where string, arg any) (*Identity, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, email, password_hash, active, email_verified, locked_until, created_at, updated_at
		 from users `+where, arg)
	var (
		u      Identity
		locked sql.NullTime
	)
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Active, &u.EmailVerified,
		&locked, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if locked.Valid {
		t := locked.Time
		u.LockedUntil = &t
	}
	roles, err := s.rolesForUser(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	u.Roles = roles
	return &u, nil
}

// rolesForUser materializes a user's roles with their permissions in one
// query per tier; identities returned from this store never need a second
// fetch.
func (s *PGStore) rolesForUser(ctx context.Context, userID string) ([]Role, error) {
	rows, err := s.db.QueryContext(ctx,
		`select r.id, r.name, r.active from roles r
		 join user_roles ur on ur.role_id=r.id where ur.user_id=$1 order by r.name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Active); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range roles {
		perms, err := s.permissionsForRole(ctx, roles[i].ID)
		if err != nil {
			return nil, err
		}
		roles[i].Permissions = perms
	}
	return roles, nil
}

func (s *PGStore) permissionsForRole(ctx context.Context, roleID string) ([]Permission, error) {
	rows, err := s.db.QueryContext(ctx,
		`select p.id, p.name, p.active from permissions p
		 join role_permissions rp on rp.permission_id=p.id where rp.role_id=$1 order by p.name`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Active); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

func (s *PGStore) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	res, err := s.db.ExecContext(ctx,
		`update users set password_hash=$2, updated_at=now() where id=$1`, userID, passwordHash)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *PGStore) SetActive(ctx context.Context, userID string, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`update users set active=$2, updated_at=now() where id=$1`, userID, active)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *PGStore) SetLockedUntil(ctx context.Context, userID string, until *time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`update users set locked_until=$2 where id=$1`, userID, until)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *PGStore) MarkEmailVerified(ctx context.Context, userID string) error {
	res, err := s.db.ExecContext(ctx,
		`update users set email_verified=true, updated_at=now() where id=$1`, userID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *PGStore) RecordFailedLogin(ctx context.Context, userID, ip string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`insert into failed_logins(id, user_id, ip, occurred_at) values($1,$2,$3,$4)`,
		ids.New(), userID, ip, at)
	return err
}

func (s *PGStore) CountFailedLogins(ctx context.Context, userID string, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`select count(*) from failed_logins where user_id=$1 and occurred_at >= $2`,
		userID, since).Scan(&n)
	return n, err
}

func (s *PGStore) ClearFailedLogins(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `delete from failed_logins where user_id=$1`, userID)
	return err
}

func (s *PGStore) AssignRole(ctx context.Context, userID, roleName string) error {
	res, err := s.db.ExecContext(ctx,
		`insert into user_roles(user_id, role_id)
		 select $1, id from roles where lower(name)=lower($2)
		 on conflict do nothing`, userID, roleName)
	if err != nil {
		return err
	}
	// Zero rows and no conflict means the role does not exist. We cannot
	// distinguish the two from RowsAffected alone, so verify.
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		var exists bool
		if err := s.db.QueryRowContext(ctx,
			`select exists(select 1 from roles where lower(name)=lower($1))`, roleName).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
	}
	return nil
}

func (s *PGStore) EnsurePermissions(ctx context.Context, perms []Permission) error {
	for _, p := range perms {
		if p.ID == "" {
			p.ID = ids.New()
		}
		_, err := s.db.ExecContext(ctx,
			`insert into permissions(id, name, active) values($1,$2,$3) on conflict (name) do nothing`,
			p.ID, p.Name, p.Active)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *PGStore) CreateSession(ctx context.Context, session *Session) error {
	_, err := s.db.ExecContext(ctx,
		`insert into sessions(id, user_id, token_hash, ip, user_agent, active, expires_at, last_activity_at, created_at)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		session.ID, session.UserID, session.TokenHash, session.IP, session.UserAgent,
		session.Active, session.ExpiresAt, session.LastActivityAt, session.CreatedAt)
	return err
}

func (s *PGStore) FindSession(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, user_id, token_hash, ip, user_agent, active, expires_at, last_activity_at, created_at
		 from sessions where id=$1`, id)
	var sess Session
	if err := row.Scan(&sess.ID, &sess.UserID, &sess.TokenHash, &sess.IP, &sess.UserAgent,
		&sess.Active, &sess.ExpiresAt, &sess.LastActivityAt, &sess.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &sess, nil
}

func (s *PGStore) RevokeSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `update sessions set active=false where id=$1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *PGStore) RevokeSessionsForUser(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `update sessions set active=false where user_id=$1`, userID)
	return err
}

func (s *PGStore) TouchSession(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`update sessions set last_activity_at=$2 where id=$1`, id, at)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *PGStore) CreateAPIKey(ctx context.Context, key *APIKey) error {
	if key.ID == "" {
		key.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into api_keys(id, user_id, name, key_prefix, key_hash, permissions, rate_limit, active, expires_at, created_at)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		key.ID, key.UserID, key.Name, key.KeyPrefix, key.KeyHash,
		joinPermissions(key.Permissions), key.RateLimit, key.Active, key.ExpiresAt, key.CreatedAt)
	return err
}

func (s *PGStore) FindAPIKeyByHash(ctx context.Context, keyHash string) (*APIKey, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, user_id, name, key_prefix, key_hash, permissions, rate_limit, active, expires_at, last_used_at, usage_count, created_at
		 from api_keys where key_hash=$1`, keyHash)
	return scanAPIKey(row)
}

func (s *PGStore) ListAPIKeys(ctx context.Context, userID string) ([]*APIKey, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, user_id, name, key_prefix, key_hash, permissions, rate_limit, active, expires_at, last_used_at, usage_count, created_at
		 from api_keys where user_id=$1 order by created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []*APIKey
	for rows.Next() {
		key, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (s *PGStore) RevokeAPIKey(ctx context.Context, userID, keyID string) error {
	res, err := s.db.ExecContext(ctx,
		`update api_keys set active=false where id=$1 and user_id=$2`, keyID, userID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *PGStore) RecordAPIKeyUsage(ctx context.Context, keyID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`update api_keys set usage_count=usage_count+1, last_used_at=$2 where id=$1`, keyID, at)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAPIKey(row rowScanner) (*APIKey, error) {
	var (
		key      APIKey
		permsCSV string
		expires  sql.NullTime
		lastUsed sql.NullTime
	)
	if err := row.Scan(&key.ID, &key.UserID, &key.Name, &key.KeyPrefix, &key.KeyHash,
		&permsCSV, &key.RateLimit, &key.Active, &expires, &lastUsed, &key.UsageCount, &key.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	key.Permissions = splitPermissions(permsCSV)
	if expires.Valid {
		t := expires.Time
		key.ExpiresAt = &t
	}
	if lastUsed.Valid {
		t := lastUsed.Time
		key.LastUsedAt = &t
	}
	return &key, nil
}

// API key permissions persist as a comma-separated list; the sets are tiny
// and only ever read whole.
func joinPermissions(perms []string) string {
	return strings.Join(perms, ",")
}

func splitPermissions(csv string) []string {
	if csv == "" {
		return nil
	}
	return strings.Split(csv, ",")
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
