// Package events publishes bet lifecycle events to Kafka for downstream
// consumers (wallet, notifications, reporting).
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"github.com/betx/exchange-engine/internal/model"
)

const (
	TypeBetPlaced  = "bet_placed"
	TypeBetSettled = "bet_settled"
)

// BetEvent is the payload of every message. Messages are keyed by user id
// so one user's events stay ordered within a partition.
type BetEvent struct {
	Type     string           `json:"type"`
	BetID    string           `json:"bet_id"`
	UserID   string           `json:"user_id"`
	EventID  string           `json:"event_id"`
	MarketID string           `json:"market_id"`
	Category model.Category   `json:"category"`
	Side     model.Side       `json:"side"`
	Stake    decimal.Decimal  `json:"stake"`
	Payout   decimal.Decimal  `json:"payout"`
	Status   model.BetStatus  `json:"status"`
	Exposure *decimal.Decimal `json:"exposure,omitempty"`
	TsUnixMs int64            `json:"ts_unix_ms"`
}

func newBetEvent(typ string, b model.Bet, ts time.Time) BetEvent {
	return BetEvent{
		Type:     typ,
		BetID:    b.ID,
		UserID:   b.UserID,
		EventID:  b.EventID,
		MarketID: b.MarketID,
		Category: b.Category,
		Side:     b.Side,
		Stake:    b.Stake,
		Payout:   b.Payout,
		Status:   b.Status,
		TsUnixMs: ts.UnixMilli(),
	}
}

// MessageWriter is the part of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// NewWriter creates a Kafka writer for a comma-separated broker list.
func NewWriter(brokers, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(strings.Split(brokers, ",")...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
}

// KafkaPublisher writes bet events to one topic.
type KafkaPublisher struct {
	writer MessageWriter
	now    func() time.Time
}

// NewKafkaPublisher creates a publisher over the given writer.
func NewKafkaPublisher(w MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: w, now: time.Now}
}

// PublishBetPlaced publishes one accepted bet with the exposure it left
// the user with.
func (p *KafkaPublisher) PublishBetPlaced(ctx context.Context, b model.Bet, exposure decimal.Decimal) error {
	e := newBetEvent(TypeBetPlaced, b, p.now())
	e.Exposure = &exposure
	msg, err := message(e)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish bet placed: %w", err)
	}
	return nil
}

// NotifySettled publishes one message per settled bet in a single write.
func (p *KafkaPublisher) NotifySettled(ctx context.Context, _ string, bets []model.Bet) error {
	if len(bets) == 0 {
		return nil
	}
	ts := p.now()
	msgs := make([]kafka.Message, 0, len(bets))
	for _, b := range bets {
		msg, err := message(newBetEvent(TypeBetSettled, b, ts))
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish %d settled bets: %w", len(msgs), err)
	}
	return nil
}

func message(e BetEvent) (kafka.Message, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal %s event: %w", e.Type, err)
	}
	return kafka.Message{
		Key:   []byte(e.UserID),
		Value: b,
		Time:  time.UnixMilli(e.TsUnixMs),
	}, nil
}
