// Package chain holds the narrow interfaces to the Stellar and Hedera
// networks. Providers are external collaborators: the rest of the service
// only ever sees CreateAccount, GetBalances and SubmitPayment.
package chain

import (
	"context"
	"errors"
)

const (
	NetworkStellar = "stellar"
	NetworkHedera  = "hedera"
)

var (
	ErrAccountNotFound = errors.New("chain: account not found")
	ErrUnknownNetwork  = errors.New("chain: unknown network")
)

// Account is a freshly created blockchain account. PrivateKey exists only in
// memory on its way to the key escrow; providers never persist it.
type Account struct {
	AccountID  string `json:"account_id"`
	PrivateKey string `json:"-"`
	Network    string `json:"network"`
}

// Balance is one asset position on an account. Amount stays a string: chain
// precision differs per network and must not pass through floats.
type Balance struct {
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

// Payment is a signed payment submission. SourceKey is supplied by the
// caller per request; this service is non-custodial and holds no keys.
type Payment struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Asset     string `json:"asset"`
	Amount    string `json:"amount"`
	Memo      string `json:"memo,omitempty"`
	SourceKey string `json:"-"`
}

// Provider is an opaque blockchain network client.
type Provider interface {
	Network() string
	CreateAccount(ctx context.Context) (Account, error)
	GetBalances(ctx context.Context, accountID string) ([]Balance, error)
	// SubmitPayment returns the network transaction hash.
	SubmitPayment(ctx context.Context, p Payment) (string, error)
}

// Registry maps network names to providers.
type Registry map[string]Provider

// Provider returns the provider for the named network.
func (r Registry) Provider(network string) (Provider, error) {
	p, ok := r[network]
	if !ok {
		return nil, ErrUnknownNetwork
	}
	return p, nil
}
