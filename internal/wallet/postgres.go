package wallet

import (
	"context"
	"database/sql"

	"pesabridge.io/internal/ids"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Create(ctx context.Context, acct *Account) error {
	if acct.ID == "" {
		acct.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into wallet_accounts(id, user_id, network, account_id, label, created_at)
		 values($1,$2,$3,$4,$5,$6)`,
		acct.ID, acct.UserID, acct.Network, acct.AccountID, acct.Label, acct.CreatedAt)
	return err
}

func (s *PGStore) Find(ctx context.Context, id string) (*Account, error) {
	return s.find(ctx, `where id=$1`, id)
}

func (s *PGStore) FindByChainAccount(ctx context.Context, accountID string) (*Account, error) {
	return s.find(ctx, `where account_id=$1`, accountID)
}

func (s *PGStore) find(ctx context.Context, where string, arg any) (*Account, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, user_id, network, account_id, label, created_at from wallet_accounts `+where, arg)
	var acct Account
	if err := row.Scan(&acct.ID, &acct.UserID, &acct.Network, &acct.AccountID, &acct.Label, &acct.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &acct, nil
}

func (s *PGStore) ListByUser(ctx context.Context, userID string) ([]*Account, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, user_id, network, account_id, label, created_at from wallet_accounts
		 where user_id=$1 order by created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*Account
	for rows.Next() {
		var acct Account
		if err := rows.Scan(&acct.ID, &acct.UserID, &acct.Network, &acct.AccountID, &acct.Label, &acct.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, &acct)
	}
	return res, rows.Err()
}
