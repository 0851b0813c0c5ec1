package onetime

import (
	"context"
	"sync"
	"time"
)

// MemStore is the in-process Store for single-instance deployments. The
// consumed check-and-delete happens under one lock, which makes Redeem
// atomic with respect to concurrent callers.
type MemStore struct {
	mu      sync.Mutex
	entries map[string]Entry
}

var _ Store = (*MemStore)(nil)

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{entries: make(map[string]Entry)}
}

func (s *MemStore) Put(ctx context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.Token] = entry
	return nil
}

func (s *MemStore) Redeem(ctx context.Context, token string, now time.Time) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[token]
	if !ok {
		return nil, false, nil
	}
	if entry.Consumed || now.After(entry.ExpiresAt) {
		delete(s.entries, token)
		return nil, false, nil
	}
	entry.Consumed = true
	delete(s.entries, token)
	return entry.Payload, true, nil
}

func (s *MemStore) Delete(ctx context.Context, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[token]
	delete(s.entries, token)
	return ok, nil
}

// DeleteExpired scans in two phases so the lock is never held across the
// whole sweep: candidates are collected first, then re-checked and removed
// one by one. A token redeemed between the phases simply disappears from the
// candidate set.
func (s *MemStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	candidates := make([]string, 0)
	for token, entry := range s.entries {
		if now.After(entry.ExpiresAt) {
			candidates = append(candidates, token)
		}
	}
	s.mu.Unlock()

	removed := 0
	for _, token := range candidates {
		s.mu.Lock()
		if entry, ok := s.entries[token]; ok && now.After(entry.ExpiresAt) {
			delete(s.entries, token)
			removed++
		}
		s.mu.Unlock()
	}
	return removed, nil
}

// Len reports the current number of stored entries. Only intended for tests.
func (s *MemStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
