// Package wallet manages users' blockchain accounts. Account creation
// generates keys on the selected network and places the private key in the
// escrow; the service itself never stores key material.
package wallet

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound  = errors.New("wallet: account not found")
	ErrForbidden = errors.New("wallet: account belongs to another user")
)

// Account is a user's on-chain account. Only public data lives here.
type Account struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Network   string    `json:"network"`
	AccountID string    `json:"account_id"`
	Label     string    `json:"label,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists wallet accounts.
type Store interface {
	Create(ctx context.Context, acct *Account) error
	Find(ctx context.Context, id string) (*Account, error)
	FindByChainAccount(ctx context.Context, accountID string) (*Account, error)
	ListByUser(ctx context.Context, userID string) ([]*Account, error)
}
