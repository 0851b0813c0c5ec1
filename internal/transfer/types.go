// Package transfer records cross-border payments submitted through the
// blockchain providers. The service is non-custodial: it forwards signed
// payments and keeps the resulting history for listing and analytics.
package transfer

import (
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("transfer: not found")
	ErrInvalidAmount = errors.New("transfer: amount must be positive")
	ErrInvalidAsset  = errors.New("transfer: asset is required")
	ErrInvalidParty  = errors.New("transfer: from and to accounts are required")
)

const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Transfer is one submitted payment. Amount is in minor units of Asset.
// Sequence is a store-assigned, strictly increasing cursor for pagination.
type Transfer struct {
	ID             string    `json:"id"`
	Sequence       uint64    `json:"sequence"`
	UserID         string    `json:"user_id"`
	Network        string    `json:"network"`
	FromAccount    string    `json:"from_account"`
	ToAccount      string    `json:"to_account"`
	Asset          string    `json:"asset"`
	Amount         int64     `json:"amount"`
	Memo           string    `json:"memo,omitempty"`
	TxHash         string    `json:"tx_hash,omitempty"`
	Status         string    `json:"status"`
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
