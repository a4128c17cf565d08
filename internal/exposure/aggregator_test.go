package exposure

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/betx/exchange-engine/internal/model"
	"github.com/betx/exchange-engine/internal/store"
)

func seedBet(t *testing.T, ms *store.MemoryStore, id string, snap model.PositionSnapshot, prev string) {
	t.Helper()
	snap.ID, snap.PrevID = id+"-pos", prev
	snap.CreatedAt = time.Now().UTC()
	b := &model.Bet{
		ID: id, UserID: snap.UserID, EventID: snap.EventID, MarketID: snap.MarketID,
		Category: snap.Category, Side: model.SideBack, SelectionID: snap.SelectionID,
		Stake: d(100), Odds: d(2), Payout: d(200),
		Status: model.StatusPending, CreatedAt: snap.CreatedAt,
	}
	if err := ms.RecordBet(context.Background(), b, &snap); err != nil {
		t.Fatalf("seed %s: %v", id, err)
	}
}

func TestAggregator_ComputeCountsPendingMarketsOnly(t *testing.T) {
	ctx := context.Background()
	ms := store.NewMemoryStore()
	seedBet(t, ms, "b1", position("m1", 150, -100), "")
	seedBet(t, ms, "b2", position("m2", -80, 30), "")

	agg := NewAggregator(ms, nil)
	exp, err := agg.Compute(ctx, "u1")
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if !exp.Total.Equal(d(180)) {
		t.Errorf("total = %s, want 180", exp.Total)
	}

	// Once m2 settles it no longer reserves anything.
	err = ms.ApplySettlement(ctx, store.Settlement{
		Outcomes: []model.BetOutcome{{BetID: "b2", UserID: "u1", Status: model.StatusLost}},
	})
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	exp, _ = agg.Compute(ctx, "u1")
	if !exp.Total.Equal(d(100)) {
		t.Errorf("total after settlement = %s, want 100", exp.Total)
	}
}

func TestAggregator_CheckAvailable(t *testing.T) {
	ctx := context.Background()
	ms := store.NewMemoryStore()
	ms.IncrementBalances(ctx, map[string]decimal.Decimal{"u1": d(500)})
	seedBet(t, ms, "b1", position("m1", 150, -100), "")

	agg := NewAggregator(ms, nil)
	if _, err := agg.CheckAvailable(ctx, "u1", d(400)); err != nil {
		t.Errorf("withdraw 400 of 400 available: %v", err)
	}

	_, err := agg.CheckAvailable(ctx, "u1", d(401))
	var ife *model.InsufficientFundsError
	if !errors.As(err, &ife) {
		t.Fatalf("expected InsufficientFundsError, got %v", err)
	}
	if !errors.Is(err, model.ErrInsufficientFunds) {
		t.Error("error should wrap ErrInsufficientFunds")
	}
	if !ife.Available().Equal(d(400)) {
		t.Errorf("available = %s, want 400", ife.Available())
	}
}

func TestAggregator_UnknownUserHasNoBalance(t *testing.T) {
	agg := NewAggregator(store.NewMemoryStore(), nil)
	if _, err := agg.CheckAvailable(context.Background(), "ghost", d(1)); !errors.Is(err, model.ErrInsufficientFunds) {
		t.Errorf("expected insufficient funds, got %v", err)
	}
}

func TestAggregator_CheckAdmissionIncludesProspective(t *testing.T) {
	ctx := context.Background()
	ms := store.NewMemoryStore()
	ms.IncrementBalances(ctx, map[string]decimal.Decimal{"u1": d(300)})
	seedBet(t, ms, "b1", position("m1", 150, -100), "")

	agg := NewAggregator(ms, nil)

	// Replacing m1's position with a hedge frees the reservation.
	exp, err := agg.CheckAdmission(ctx, "u1", position("m1", 50, 0))
	if err != nil {
		t.Fatalf("hedge rejected: %v", err)
	}
	if !exp.Total.IsZero() {
		t.Errorf("total = %s, want 0", exp.Total)
	}

	// A new market adding 250 on top of 100 exceeds 300.
	_, err = agg.CheckAdmission(ctx, "u1", position("m2", 200, -250))
	if !errors.Is(err, model.ErrInsufficientFunds) {
		t.Errorf("expected insufficient funds, got %v", err)
	}

	// Exactly exhausting the balance is allowed.
	if _, err := agg.CheckAdmission(ctx, "u1", position("m2", 200, -200)); err != nil {
		t.Errorf("exact fit rejected: %v", err)
	}
}

func TestAggregator_CheckAdmissionLimits(t *testing.T) {
	ctx := context.Background()
	ms := store.NewMemoryStore()
	ms.IncrementBalances(ctx, map[string]decimal.Decimal{"u1": d(10000)})

	agg := NewAggregator(ms, NewLimiter(d(1000), decimal.Zero))
	if _, err := agg.CheckAdmission(ctx, "u1", position("m1", 100, -1500)); !errors.Is(err, ErrMarketLimitExceeded) {
		t.Errorf("expected ErrMarketLimitExceeded, got %v", err)
	}
}
