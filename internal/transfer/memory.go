package transfer

import (
	"context"
	"sync"
	"time"

	"pesabridge.io/internal/ids"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore implements Store with in-process concurrency safety.
type MemoryStore struct {
	mu   sync.RWMutex
	seq  uint64
	txs  []Transfer
	idem map[string]Transfer // userID+"\x00"+idemKey -> transfer
}

// NewMemoryStore creates an empty transfer history.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{idem: make(map[string]Transfer)}
}

func idemIndex(userID, key string) string { return userID + "\x00" + key }

func (s *MemoryStore) Create(ctx context.Context, t *Transfer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == "" {
		t.ID = ids.New()
	}
	s.seq++
	t.Sequence = s.seq
	s.txs = append(s.txs, *t)
	if t.IdempotencyKey != "" {
		s.idem[idemIndex(t.UserID, t.IdempotencyKey)] = *t
	}
	return nil
}

func (s *MemoryStore) FindByIdemKey(ctx context.Context, userID, key string) (*Transfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.idem[idemIndex(userID, key)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := t
	return &cp, nil
}

func (s *MemoryStore) List(ctx context.Context, userID string, limit int, afterSeq uint64) ([]Transfer, uint64, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []Transfer
	var last uint64
	for _, t := range s.txs {
		if t.UserID != userID || t.Sequence <= afterSeq {
			continue
		}
		res = append(res, t)
		last = t.Sequence
		if len(res) >= limit {
			break
		}
	}
	return res, last, nil
}

func (s *MemoryStore) AllSince(ctx context.Context, since time.Time) ([]Transfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []Transfer
	for _, t := range s.txs {
		if t.CreatedAt.Before(since) {
			continue
		}
		res = append(res, t)
	}
	return res, nil
}
