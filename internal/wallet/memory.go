package wallet

import (
	"context"
	"sync"

	"pesabridge.io/internal/ids"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore implements Store in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	accts   map[string]*Account
	byChain map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accts:   make(map[string]*Account),
		byChain: make(map[string]string),
	}
}

func (s *MemoryStore) Create(ctx context.Context, acct *Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if acct.ID == "" {
		acct.ID = ids.New()
	}
	cp := *acct
	s.accts[acct.ID] = &cp
	s.byChain[acct.AccountID] = acct.ID
	return nil
}

func (s *MemoryStore) Find(ctx context.Context, id string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := s.accts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *acct
	return &cp, nil
}

func (s *MemoryStore) FindByChainAccount(ctx context.Context, accountID string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byChain[accountID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s.accts[id]
	return &cp, nil
}

func (s *MemoryStore) ListByUser(ctx context.Context, userID string) ([]*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []*Account
	for _, acct := range s.accts {
		if acct.UserID != userID {
			continue
		}
		cp := *acct
		res = append(res, &cp)
	}
	return res, nil
}
