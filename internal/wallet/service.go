package wallet

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"pesabridge.io/internal/chain"
	"pesabridge.io/internal/escrow"
	"pesabridge.io/internal/ids"
	"pesabridge.io/internal/obs"
)

// CreatedAccount is the result of account creation: the public record plus
// the single-use key retrieval token. The token is the only path to the
// private key; once it expires or is redeemed the key is unrecoverable.
type CreatedAccount struct {
	Account        Account   `json:"account"`
	RetrievalToken string    `json:"retrieval_token"`
	TokenExpiresAt time.Time `json:"token_expires_at"`
}

// RetrievedKey is a successfully redeemed private key.
type RetrievedKey struct {
	AccountID  string `json:"account_id"`
	Network    string `json:"network"`
	PrivateKey string `json:"private_key"`
}

// Service creates accounts on the blockchain networks and escrows their
// keys.
type Service struct {
	store     Store
	providers chain.Registry
	escrow    *escrow.Service
	now       func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the wallet service.
func NewService(store Store, providers chain.Registry, esc *escrow.Service, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("wallet: store is required")
	}
	if len(providers) == 0 {
		return nil, errors.New("wallet: at least one provider is required")
	}
	if esc == nil {
		return nil, errors.New("wallet: escrow service is required")
	}
	s := &Service{store: store, providers: providers, escrow: esc, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CreateAccount generates a fresh account on the network, escrows its private
// key and records the public half.
func (s *Service) CreateAccount(ctx context.Context, userID, network, label string) (*CreatedAccount, error) {
	provider, err := s.providers.Provider(network)
	if err != nil {
		return nil, err
	}

	chainAcct, err := provider.CreateAccount(ctx)
	if err != nil {
		return nil, fmt.Errorf("wallet: create on %s: %w", network, err)
	}

	token, expiresAt, err := s.escrow.Store(ctx, chainAcct.AccountID, chainAcct.PrivateKey, network, 0)
	if err != nil {
		// The on-chain account exists but its key cannot be handed over;
		// surface the failure rather than record an unusable account.
		return nil, fmt.Errorf("wallet: escrow key: %w", err)
	}

	acct := Account{
		ID:        ids.New(),
		UserID:    userID,
		Network:   network,
		AccountID: chainAcct.AccountID,
		Label:     strings.TrimSpace(label),
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.Create(ctx, &acct); err != nil {
		return nil, err
	}

	obs.Logger().Info().
		Str("user_id", userID).
		Str("network", network).
		Str("account_id", chainAcct.AccountID).
		Msg("wallet account created")

	return &CreatedAccount{
		Account:        acct,
		RetrievalToken: token,
		TokenExpiresAt: expiresAt,
	}, nil
}

// GetAccount returns one of the user's accounts.
func (s *Service) GetAccount(ctx context.Context, userID, id string) (*Account, error) {
	acct, err := s.store.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if acct.UserID != userID {
		// Cross-user probes look identical to missing accounts.
		return nil, ErrNotFound
	}
	return acct, nil
}

// ListAccounts returns all of the user's accounts.
func (s *Service) ListAccounts(ctx context.Context, userID string) ([]*Account, error) {
	return s.store.ListByUser(ctx, userID)
}

// GetBalances fetches the live on-chain balances for one of the user's
// accounts.
func (s *Service) GetBalances(ctx context.Context, userID, id string) ([]chain.Balance, error) {
	acct, err := s.GetAccount(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	provider, err := s.providers.Provider(acct.Network)
	if err != nil {
		return nil, err
	}
	return provider.GetBalances(ctx, acct.AccountID)
}

// RetrieveKey redeems a key retrieval token for the user. The first call
// consumes the escrow entry; absent entries return (nil, nil). A token
// escrowed for another user's account is consumed but not revealed.
func (s *Service) RetrieveKey(ctx context.Context, userID, token string) (*RetrievedKey, error) {
	entry, err := s.escrow.Retrieve(ctx, token)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, nil
	}

	acct, err := s.store.FindByChainAccount(ctx, entry.AccountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrForbidden
		}
		return nil, err
	}
	if acct.UserID != userID {
		obs.Logger().Warn().
			Str("user_id", userID).
			Str("owner_id", acct.UserID).
			Str("account_id", entry.AccountID).
			Msg("key retrieval denied for foreign account")
		return nil, ErrForbidden
	}

	return &RetrievedKey{
		AccountID:  entry.AccountID,
		Network:    entry.Network,
		PrivateKey: entry.PrivateKey,
	}, nil
}
