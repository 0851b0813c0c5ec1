package chain

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
)

// Fake is an in-process Provider for development and tests. Accounts get
// real-looking keys and a seeded balance; payments only move the fake
// balances.
type Fake struct {
	network string

	mu       sync.Mutex
	seq      int
	balances map[string]map[string]string
}

var _ Provider = (*Fake)(nil)

// NewFake creates a fake provider for the named network.
func NewFake(network string) *Fake {
	return &Fake{
		network:  network,
		balances: make(map[string]map[string]string),
	}
}

func (f *Fake) Network() string { return f.network }

func (f *Fake) CreateAccount(ctx context.Context) (Account, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return Account{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++

	var accountID, privateKey string
	switch f.network {
	case NetworkStellar:
		accountID = encodeStrkey(versionAccountID, pub)
		privateKey = encodeStrkey(versionSeed, priv.Seed())
	case NetworkHedera:
		accountID = fmt.Sprintf("0.0.%d", 9000+f.seq)
		privateKey = hederaKeyDERPrefix + hex.EncodeToString(priv.Seed())
	default:
		accountID = hex.EncodeToString(pub)
		privateKey = hex.EncodeToString(priv.Seed())
	}

	f.balances[accountID] = map[string]string{"USDC": "100.00"}
	return Account{AccountID: accountID, PrivateKey: privateKey, Network: f.network}, nil
}

func (f *Fake) GetBalances(ctx context.Context, accountID string) ([]Balance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	assets, ok := f.balances[accountID]
	if !ok {
		return nil, ErrAccountNotFound
	}
	out := make([]Balance, 0, len(assets))
	for asset, amount := range assets {
		out = append(out, Balance{Asset: asset, Amount: amount})
	}
	return out, nil
}

func (f *Fake) SubmitPayment(ctx context.Context, p Payment) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.balances[p.From]; !ok {
		return "", ErrAccountNotFound
	}
	sum := sha256.Sum256([]byte(p.From + p.To + p.Asset + p.Amount + p.Memo))
	return hex.EncodeToString(sum[:]), nil
}
