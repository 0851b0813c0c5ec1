package transfer

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"pesabridge.io/internal/chain"
	"pesabridge.io/internal/ids"
	"pesabridge.io/internal/obs"
	"pesabridge.io/internal/stream"
)

// EventPublisher publishes transfer lifecycle events to the message bus.
// Implemented by event.Producer; nil disables publication.
type EventPublisher interface {
	PublishTransferCompleted(ctx context.Context, t *Transfer) error
	PublishTransferFailed(ctx context.Context, t *Transfer, reason string) error
}

// Service submits payments through the blockchain providers and records the
// resulting history. Failed submissions are recorded too; analytics and
// support both need them.
type Service struct {
	store     Store
	providers chain.Registry
	stream    *stream.Stream
	events    EventPublisher
	now       func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithStream attaches the live event fan-out.
func WithStream(st *stream.Stream) ServiceOption {
	return func(s *Service) { s.stream = st }
}

// WithEvents attaches the Kafka publisher.
func WithEvents(p EventPublisher) ServiceOption {
	return func(s *Service) { s.events = p }
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the transfer service.
func NewService(store Store, providers chain.Registry, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("transfer: store is required")
	}
	if len(providers) == 0 {
		return nil, errors.New("transfer: at least one provider is required")
	}
	s := &Service{store: store, providers: providers, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// SubmitRequest carries one payment submission. SourceKey is the sender's
// private key, supplied per request and never persisted.
type SubmitRequest struct {
	UserID         string
	Network        string
	FromAccount    string
	ToAccount      string
	Asset          string
	Amount         int64
	Memo           string
	SourceKey      string
	IdempotencyKey string
}

// Submit validates and forwards the payment. A repeated idempotency key
// returns the original transfer without resubmitting.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*Transfer, error) {
	req.Asset = strings.ToUpper(strings.TrimSpace(req.Asset))
	req.FromAccount = strings.TrimSpace(req.FromAccount)
	req.ToAccount = strings.TrimSpace(req.ToAccount)

	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if req.Asset == "" {
		return nil, ErrInvalidAsset
	}
	if req.FromAccount == "" || req.ToAccount == "" {
		return nil, ErrInvalidParty
	}
	provider, err := s.providers.Provider(req.Network)
	if err != nil {
		return nil, err
	}

	if req.IdempotencyKey != "" {
		if existing, err := s.store.FindByIdemKey(ctx, req.UserID, req.IdempotencyKey); err == nil {
			obs.Logger().Debug().Str("transfer_id", existing.ID).Msg("idempotent replay")
			return existing, nil
		} else if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}

	t := &Transfer{
		ID:             ids.New(),
		UserID:         req.UserID,
		Network:        req.Network,
		FromAccount:    req.FromAccount,
		ToAccount:      req.ToAccount,
		Asset:          req.Asset,
		Amount:         req.Amount,
		Memo:           req.Memo,
		IdempotencyKey: req.IdempotencyKey,
		CreatedAt:      s.now().UTC(),
	}

	hash, submitErr := provider.SubmitPayment(ctx, chain.Payment{
		From:      req.FromAccount,
		To:        req.ToAccount,
		Asset:     req.Asset,
		Amount:    strconv.FormatInt(req.Amount, 10),
		Memo:      req.Memo,
		SourceKey: req.SourceKey,
	})
	if submitErr != nil {
		t.Status = StatusFailed
		if err := s.store.Create(ctx, t); err != nil {
			obs.Logger().Error().Err(err).Str("transfer_id", t.ID).Msg("record failed transfer")
		}
		if s.events != nil {
			if err := s.events.PublishTransferFailed(ctx, t, submitErr.Error()); err != nil {
				obs.Logger().Warn().Err(err).Str("transfer_id", t.ID).Msg("publish transfer.failed")
			}
		}
		return nil, submitErr
	}

	t.Status = StatusCompleted
	t.TxHash = hash
	if err := s.store.Create(ctx, t); err != nil {
		return nil, err
	}

	if s.stream != nil {
		s.stream.Publish(stream.TransferEvent{
			From:      s.stream.LocationForID(t.FromAccount),
			To:        s.stream.LocationForID(t.ToAccount),
			Amount:    t.Amount,
			Asset:     t.Asset,
			Network:   t.Network,
			Timestamp: t.CreatedAt,
		})
	}
	if s.events != nil {
		if err := s.events.PublishTransferCompleted(ctx, t); err != nil {
			obs.Logger().Warn().Err(err).Str("transfer_id", t.ID).Msg("publish transfer.completed")
		}
	}
	return t, nil
}

// List returns the user's transfer history page.
func (s *Service) List(ctx context.Context, userID string, limit int, afterSeq uint64) ([]Transfer, uint64, error) {
	return s.store.List(ctx, userID, limit, afterSeq)
}
