package transfer

import (
	"context"
	"database/sql"
	"time"

	"pesabridge.io/internal/ids"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL. The seq column is a bigserial,
// which gives the strictly increasing pagination cursor for free.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Create(ctx context.Context, t *Transfer) error {
	if t.ID == "" {
		t.ID = ids.New()
	}
	return s.db.QueryRowContext(ctx,
		`insert into transfers(id, user_id, network, from_account, to_account, asset, amount, memo, tx_hash, status, idempotency_key, created_at)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,nullif($11,''),$12)
		 returning seq`,
		t.ID, t.UserID, t.Network, t.FromAccount, t.ToAccount, t.Asset, t.Amount,
		t.Memo, t.TxHash, t.Status, t.IdempotencyKey, t.CreatedAt,
	).Scan(&t.Sequence)
}

func (s *PGStore) FindByIdemKey(ctx context.Context, userID, key string) (*Transfer, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, seq, user_id, network, from_account, to_account, asset, amount, memo, tx_hash, status, coalesce(idempotency_key,''), created_at
		 from transfers where user_id=$1 and idempotency_key=$2`, userID, key)
	return scanTransfer(row)
}

func (s *PGStore) List(ctx context.Context, userID string, limit int, afterSeq uint64) ([]Transfer, uint64, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`select id, seq, user_id, network, from_account, to_account, asset, amount, memo, tx_hash, status, coalesce(idempotency_key,''), created_at
		 from transfers where user_id=$1 and seq > $2 order by seq limit $3`,
		userID, afterSeq, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var (
		res  []Transfer
		last uint64
	)
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, 0, err
		}
		res = append(res, *t)
		last = t.Sequence
	}
	return res, last, rows.Err()
}

func (s *PGStore) AllSince(ctx context.Context, since time.Time) ([]Transfer, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, seq, user_id, network, from_account, to_account, asset, amount, memo, tx_hash, status, coalesce(idempotency_key,''), created_at
		 from transfers where created_at >= $1 order by seq`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Transfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *t)
	}
	return res, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransfer(row rowScanner) (*Transfer, error) {
	var t Transfer
	if err := row.Scan(&t.ID, &t.Sequence, &t.UserID, &t.Network, &t.FromAccount, &t.ToAccount,
		&t.Asset, &t.Amount, &t.Memo, &t.TxHash, &t.Status, &t.IdempotencyKey, &t.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}
