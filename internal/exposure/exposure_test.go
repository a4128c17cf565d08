package exposure

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/betx/exchange-engine/internal/ledger"
	"github.com/betx/exchange-engine/internal/model"
	"github.com/betx/exchange-engine/internal/payoff"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func position(market string, profit, loss float64) model.PositionSnapshot {
	return model.PositionSnapshot{
		UserID: "u1", EventID: "e1", MarketID: market,
		Category: model.CategoryMatchOdds, SelectionID: "s1",
		Profit: d(profit), Loss: d(loss),
	}
}

// fancyEntry files one fancy bet the way the ledger does.
func fancyEntry(t *testing.T, market string, side model.Side, number, stake, odds float64) model.PositionSnapshot {
	t.Helper()
	p, err := payoff.Calculate(d(stake), d(odds), side, model.CategoryFancy)
	if err != nil {
		t.Fatalf("payoff: %v", err)
	}
	n := d(number)
	snap := ledger.Fold(nil, ledger.Entry{Category: model.CategoryFancy, Side: side, Payoff: p})
	snap.UserID, snap.EventID, snap.MarketID = "u1", "e1", market
	snap.Category = model.CategoryFancy
	snap.FancyNumber = &n
	return snap
}

func TestWorstCase(t *testing.T) {
	tests := []struct {
		name         string
		profit, loss float64
		want         float64
	}{
		{"losing anchor, winning otherwise", -150, 80, 150},
		{"losing anchor, flat otherwise", -100, 0, 100},
		{"both negative takes the larger", -40, -90, 90},
		{"both negative, profit larger", -120, -30, 120},
		{"winning anchor, losing otherwise", 150, -100, 100},
		{"flat anchor, losing otherwise", 0, -25, 25},
		{"riskless", 50, 20, 0},
		{"flat", 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := WorstCase(position("m1", tt.profit, tt.loss))
			if !got.Equal(d(tt.want)) {
				t.Errorf("WorstCase(%v, %v) = %s, want %v", tt.profit, tt.loss, got, tt.want)
			}
			if got.IsNegative() {
				t.Errorf("worst case must be non-negative, got %s", got)
			}
		})
	}
}

// Back 45 stake 100 odds 50 files {profit −100, loss 50}; lay 50 stake 100
// odds 50 files {profit 100, loss −50}. Baseline = −50 + −100 = −150. The
// pair nets 100 + min(50, 100) = 150, so the market total is 0.
func TestFancyMarketExposure_BackAndLayPair(t *testing.T) {
	back := fancyEntry(t, "f1", model.SideBack, 45, 100, 50)
	lay := fancyEntry(t, "f1", model.SideLay, 50, 100, 50)

	if !back.Profit.Equal(d(-100)) || !back.Loss.Equal(d(50)) {
		t.Fatalf("back entry = {%s %s}, want {-100 50}", back.Profit, back.Loss)
	}
	if !lay.Profit.Equal(d(100)) || !lay.Loss.Equal(d(-50)) {
		t.Fatalf("lay entry = {%s %s}, want {100 -50}", lay.Profit, lay.Loss)
	}

	got := FancyMarketExposure([]model.PositionSnapshot{back, lay})
	if !got.Equal(d(0)) {
		t.Errorf("exposure = %s, want 0", got)
	}
}

func TestFancyMarketExposure_UnpairedBaseline(t *testing.T) {
	// Lay number below the back number: the pair is not offsetting.
	back := fancyEntry(t, "f1", model.SideBack, 50, 100, 50)
	lay := fancyEntry(t, "f1", model.SideLay, 45, 100, 50)

	got := FancyMarketExposure([]model.PositionSnapshot{back, lay})
	if !got.Equal(d(150)) {
		t.Errorf("exposure = %s, want 150", got)
	}
}

func TestFancyMarketExposure_SingleEntries(t *testing.T) {
	back := fancyEntry(t, "f1", model.SideBack, 45, 100, 90)
	if got := FancyMarketExposure([]model.PositionSnapshot{back}); !got.Equal(d(100)) {
		t.Errorf("back only = %s, want 100", got)
	}

	lay := fancyEntry(t, "f1", model.SideLay, 45, 100, 90)
	if got := FancyMarketExposure([]model.PositionSnapshot{lay}); !got.Equal(d(90)) {
		t.Errorf("lay only = %s, want 90", got)
	}
}

func TestFancyMarketExposure_GreedyOrder(t *testing.T) {
	// Each back is paired once, with the first eligible lay in ledger order.
	entries := []model.PositionSnapshot{
		fancyEntry(t, "f1", model.SideBack, 40, 100, 100),
		fancyEntry(t, "f1", model.SideBack, 42, 100, 100),
		fancyEntry(t, "f1", model.SideLay, 45, 100, 100),
	}
	// Baseline: −100 −100 −100 = −300. One pair: 100 + min(100, 100) = 200.
	got := FancyMarketExposure(entries)
	if !got.Equal(d(100)) {
		t.Errorf("exposure = %s, want 100", got)
	}
}

func TestBook_ExposureSplitsPaths(t *testing.T) {
	book := NewBook()
	book.Add(position("m1", 150, -100))
	book.Add(position("m2", -60, 40))
	book.Add(fancyEntry(t, "f1", model.SideBack, 45, 100, 90))

	exp := book.Exposure()
	if !exp.NonFancy.Equal(d(160)) {
		t.Errorf("non-fancy = %s, want 160", exp.NonFancy)
	}
	if !exp.Fancy.Equal(d(100)) {
		t.Errorf("fancy = %s, want 100", exp.Fancy)
	}
	if !exp.Total.Equal(d(260)) {
		t.Errorf("total = %s, want 260", exp.Total)
	}
}

func TestBook_AddKeepsLatestNonFancy(t *testing.T) {
	book := NewBook()
	book.Add(position("m1", 150, -100))
	book.Add(position("m1", 20, 10))

	if exp := book.Exposure(); !exp.Total.IsZero() {
		t.Errorf("total = %s, want 0 after hedge", exp.Total)
	}
}

func TestBook_WithDoesNotMutate(t *testing.T) {
	book := NewBook()
	book.Add(position("m1", 150, -100))

	next := book.With(position("m1", -300, 100))
	if !next.Exposure().Total.Equal(d(300)) {
		t.Errorf("prospective total = %s, want 300", next.Exposure().Total)
	}
	if !book.Exposure().Total.Equal(d(100)) {
		t.Errorf("original book changed: %s", book.Exposure().Total)
	}

	withFancy := book.With(fancyEntry(t, "f1", model.SideLay, 45, 100, 50))
	if len(book.FancyByMarket("e1")) != 0 {
		t.Error("fancy entry leaked into original book")
	}
	if got := withFancy.FancyByMarket("e1")["f1"]; !got.Equal(d(50)) {
		t.Errorf("fancy f1 = %s, want 50", got)
	}
}

func TestLimiter(t *testing.T) {
	book := NewBook()
	book.Add(position("m1", 150, -100))
	book.Add(position("m2", 150, -300))

	tests := []struct {
		name    string
		limiter *Limiter
		want    error
	}{
		{"nil limiter", nil, nil},
		{"disabled", NewLimiter(decimal.Zero, decimal.Zero), nil},
		{"within limits", NewLimiter(d(500), d(500)), nil},
		{"market exceeded", NewLimiter(d(250), decimal.Zero), ErrMarketLimitExceeded},
		{"event exceeded", NewLimiter(decimal.Zero, d(350)), ErrEventLimitExceeded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.limiter.Check(book, "e1", "m2"); err != tt.want {
				t.Errorf("Check = %v, want %v", err, tt.want)
			}
		})
	}
}
