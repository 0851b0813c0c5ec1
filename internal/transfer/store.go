package transfer

import (
	"context"
	"time"
)

// Store persists submitted transfers. Create assigns the sequence number.
type Store interface {
	Create(ctx context.Context, t *Transfer) error
	FindByIdemKey(ctx context.Context, userID, key string) (*Transfer, error)
	// List returns the user's transfers with sequence greater than afterSeq,
	// oldest first, and the last sequence in the page for cursoring.
	List(ctx context.Context, userID string, limit int, afterSeq uint64) ([]Transfer, uint64, error)
	// AllSince returns every transfer created at or after since, across all
	// users. It feeds the analytics aggregation.
	AllSince(ctx context.Context, since time.Time) ([]Transfer, error)
}
