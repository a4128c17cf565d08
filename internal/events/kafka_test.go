package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"github.com/betx/exchange-engine/internal/model"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func testBet(id, user string, status model.BetStatus) model.Bet {
	return model.Bet{
		ID: id, UserID: user, EventID: "e1", MarketID: "m1",
		Category: model.CategoryMatchOdds, Side: model.SideBack, SelectionID: "s1",
		Stake: decimal.NewFromInt(100), Odds: decimal.NewFromInt(2), Payout: decimal.NewFromInt(200),
		Status: status,
	}
}

func TestKafkaPublisher_PublishBetPlaced(t *testing.T) {
	w := &fakeWriter{}
	p := NewKafkaPublisher(w)
	p.now = func() time.Time { return time.UnixMilli(1700000000000) }

	if err := p.PublishBetPlaced(context.Background(), testBet("b1", "u1", model.StatusPending), decimal.NewFromInt(100)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(w.msgs))
	}
	if string(w.msgs[0].Key) != "u1" {
		t.Errorf("key = %q, want u1", w.msgs[0].Key)
	}

	var e BetEvent
	if err := json.Unmarshal(w.msgs[0].Value, &e); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if e.Type != TypeBetPlaced || e.BetID != "b1" || e.TsUnixMs != 1700000000000 {
		t.Errorf("event = %+v", e)
	}
	if e.Exposure == nil || !e.Exposure.Equal(decimal.NewFromInt(100)) {
		t.Errorf("exposure = %v, want 100", e.Exposure)
	}
}

func TestKafkaPublisher_NotifySettled(t *testing.T) {
	w := &fakeWriter{}
	p := NewKafkaPublisher(w)

	bets := []model.Bet{testBet("b1", "u1", model.StatusWon), testBet("b2", "u2", model.StatusLost)}
	if err := p.NotifySettled(context.Background(), "e1", bets); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(w.msgs) != 2 {
		t.Fatalf("messages = %d, want 2", len(w.msgs))
	}

	var e BetEvent
	json.Unmarshal(w.msgs[1].Value, &e)
	if e.Type != TypeBetSettled || e.Status != model.StatusLost || string(w.msgs[1].Key) != "u2" {
		t.Errorf("second event = %+v", e)
	}

	if err := p.NotifySettled(context.Background(), "e1", nil); err != nil || len(w.msgs) != 2 {
		t.Errorf("empty notify should write nothing, err=%v", err)
	}
}

func TestKafkaPublisher_WriteError(t *testing.T) {
	boom := errors.New("broker down")
	p := NewKafkaPublisher(&fakeWriter{err: boom})
	err := p.NotifySettled(context.Background(), "e1", []model.Bet{testBet("b1", "u1", model.StatusWon)})
	if !errors.Is(err, boom) {
		t.Errorf("expected wrapped broker error, got %v", err)
	}
}
