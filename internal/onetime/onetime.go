// Package onetime implements single-use, TTL-bound tokens over opaque
// payloads. It backs the blockchain key escrow as well as email
// verification and password reset flows.
package onetime

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"

	"pesabridge.io/internal/obs"
)

// Entry is a stored one-time token record.
type Entry struct {
	Token     string    `json:"token"`
	Payload   []byte    `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Consumed  bool      `json:"consumed"`
}

// Store is the storage contract. Redeem must be atomic: two concurrent
// redemptions of the same token must not both succeed.
type Store interface {
	Put(ctx context.Context, entry Entry) error
	// Redeem returns (payload, true) exactly once for a live token and
	// (nil, false) for unknown, expired or already-consumed tokens,
	// deleting the entry as a side effect in all of those cases.
	Redeem(ctx context.Context, token string, now time.Time) ([]byte, bool, error)
	// Delete removes the entry unconditionally and reports whether it
	// existed.
	Delete(ctx context.Context, token string) (bool, error)
	// DeleteExpired removes entries past their expiry. Idempotent and safe
	// to run concurrently with Redeem.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// NewToken generates a cryptographically random, URL-safe token with 256
// bits of entropy.
func NewToken() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// Service issues and redeems single-use tokens against a Store.
type Service struct {
	store      Store
	defaultTTL time.Duration
	now        func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs a Service. defaultTTL applies when Issue is called
// with a non-positive TTL.
func NewService(store Store, defaultTTL time.Duration, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("onetime: store is required")
	}
	if defaultTTL <= 0 {
		return nil, errors.New("onetime: default TTL must be positive")
	}
	s := &Service{store: store, defaultTTL: defaultTTL, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Issue stores the payload under a fresh token and returns the token with
// its expiry.
func (s *Service) Issue(ctx context.Context, payload []byte, ttl time.Duration) (string, time.Time, error) {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	token, err := NewToken()
	if err != nil {
		return "", time.Time{}, err
	}
	now := s.now().UTC()
	entry := Entry{
		Token:     token,
		Payload:   payload,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := s.store.Put(ctx, entry); err != nil {
		return "", time.Time{}, err
	}
	return token, entry.ExpiresAt, nil
}

// Redeem consumes the token. The second return is false when the token is
// unknown, expired or already consumed; these cases are indistinguishable
// to the caller by design.
func (s *Service) Redeem(ctx context.Context, token string) ([]byte, bool, error) {
	if token == "" {
		return nil, false, nil
	}
	return s.store.Redeem(ctx, token, s.now().UTC())
}

// Revoke deletes the token unconditionally and reports whether it existed.
func (s *Service) Revoke(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	return s.store.Delete(ctx, token)
}

// SweepExpired deletes all expired entries.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	return s.store.DeleteExpired(ctx, s.now().UTC())
}

// StartSweeper runs SweepExpired on the given interval until the context is
// cancelled.
func (s *Service) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := s.SweepExpired(ctx)
				if err != nil {
					obs.Logger().Warn().Err(err).Msg("one-time token sweep failed")
					continue
				}
				if n > 0 {
					obs.Logger().Debug().Int("removed", n).Msg("one-time token sweep")
				}
			}
		}
	}()
}
