// Package event publishes transfer domain events to Kafka for downstream
// consumers (reconciliation, notifications, compliance exports).
package event

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"pesabridge.io/internal/ids"
	"pesabridge.io/internal/obs"
	"pesabridge.io/internal/transfer"
)

const (
	TypeTransferCompleted = "transfer.completed"
	TypeTransferFailed    = "transfer.failed"

	source = "pesabridge-api"
)

// Envelope is the wire format shared by all published events.
type Envelope struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Source     string          `json:"source"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

// TransferData is the payload for transfer.* events.
type TransferData struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	Network     string `json:"network"`
	FromAccount string `json:"from_account"`
	ToAccount   string `json:"to_account"`
	Asset       string `json:"asset"`
	Amount      int64  `json:"amount"`
	TxHash      string `json:"tx_hash,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// writer is the part of kafka.Writer the producer uses.
type writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes events to a single topic, keyed by user so each user's
// transfers stay ordered within a partition.
type Producer struct {
	writer writer
	topic  string
}

// NewProducer creates a producer for the given brokers and topic.
func NewProducer(brokers []string, topic string) *Producer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireAll,
	}
	return &Producer{writer: w, topic: topic}
}

// PublishTransferCompleted emits a transfer.completed event.
func (p *Producer) PublishTransferCompleted(ctx context.Context, t *transfer.Transfer) error {
	return p.publish(ctx, TypeTransferCompleted, t.UserID, TransferData{
		ID:          t.ID,
		UserID:      t.UserID,
		Network:     t.Network,
		FromAccount: t.FromAccount,
		ToAccount:   t.ToAccount,
		Asset:       t.Asset,
		Amount:      t.Amount,
		TxHash:      t.TxHash,
	})
}

// PublishTransferFailed emits a transfer.failed event with the failure reason.
func (p *Producer) PublishTransferFailed(ctx context.Context, t *transfer.Transfer, reason string) error {
	return p.publish(ctx, TypeTransferFailed, t.UserID, TransferData{
		ID:          t.ID,
		UserID:      t.UserID,
		Network:     t.Network,
		FromAccount: t.FromAccount,
		ToAccount:   t.ToAccount,
		Asset:       t.Asset,
		Amount:      t.Amount,
		Reason:      reason,
	})
}

func (p *Producer) publish(ctx context.Context, eventType, key string, data TransferData) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("event: marshal data: %w", err)
	}
	env := Envelope{
		ID:         ids.New(),
		Type:       eventType,
		Source:     source,
		OccurredAt: time.Now().UTC(),
		Data:       raw,
	}
	value, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("event: marshal envelope: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(eventType)},
			{Key: "source", Value: []byte(source)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		obs.Logger().Error().Err(err).Str("topic", p.topic).Str("event_type", eventType).Msg("publish event")
		return fmt.Errorf("event: publish to %s: %w", p.topic, err)
	}
	obs.Logger().Debug().Str("topic", p.topic).Str("event_type", eventType).Msg("event published")
	return nil
}

// PingBrokers dials the given brokers and returns nil if at least one is
// reachable. Used by the readiness probe.
func PingBrokers(ctx context.Context, brokers []string) error {
	if len(brokers) == 0 {
		return fmt.Errorf("event: no brokers configured")
	}
	var lastErr error
	for _, addr := range brokers {
		conn, err := kafka.DialContext(ctx, "tcp", addr)
		if err != nil {
			lastErr = err
			continue
		}
		_, err = conn.Brokers()
		_ = conn.Close()
		if err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("event: all brokers unreachable: %w", lastErr)
}

// Close flushes pending messages and closes the underlying writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}
