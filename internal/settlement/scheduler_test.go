package settlement

import (
	"context"
	"testing"
	"time"

	"github.com/betx/exchange-engine/internal/model"
	"github.com/betx/exchange-engine/internal/store"
)

func TestScheduler_SettlesPendingEvents(t *testing.T) {
	ms := store.NewMemoryStore()
	seed(t, ms, model.Bet{
		ID: "b1", UserID: "u1", EventID: "e1", MarketID: "m1",
		Category: model.CategoryMatchOdds, Side: model.SideBack, SelectionID: "s1",
		Stake: d(100), Odds: d(2), Payout: d(200),
	}, "m1", 100, -100)
	seed(t, ms, model.Bet{
		ID: "b2", UserID: "u1", EventID: "e2", MarketID: "m2",
		Category: model.CategoryMatchOdds, Side: model.SideBack, SelectionID: "s1",
		Stake: d(100), Odds: d(2), Payout: d(200),
	}, "m2", 100, -100)

	f := &fakeFetcher{results: map[string]model.Result{
		"m1": {MarketID: "m1", Winner: "s1"},
		"m2": {MarketID: "m2", Winner: "s9"},
	}}
	s := NewScheduler(SchedulerConfig{Interval: 10 * time.Millisecond}, newEngine(ms, f), ms, nil)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		ids, _ := ms.PendingEventIDs(context.Background())
		if len(ids) == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("events still pending: %v", ids)
		}
		time.Sleep(5 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}

	if status(t, ms, "b1") != model.StatusWon || status(t, ms, "b2") != model.StatusLost {
		t.Errorf("statuses = %s/%s, want won/lost", status(t, ms, "b1"), status(t, ms, "b2"))
	}
}
