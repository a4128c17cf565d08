// Package exposure computes a user's worst-case loss across pending bets.
//
// Match-odds and bookmaker markets are aggregated from the latest ledger
// snapshot of each market. Fancy markets settle on a numeric threshold, so
// their entries are kept individually and netted pairwise: a back entry at
// number n and a lay entry at number m ≥ n cannot both lose.
package exposure

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/betx/exchange-engine/internal/model"
)

// WorstCase returns the loss reserved for one non-fancy position. It is
// never negative and is zero when both outcomes are non-negative.
func WorstCase(snap model.PositionSnapshot) decimal.Decimal {
	p, l := snap.Profit, snap.Loss
	switch {
	case p.IsNegative() && !l.IsNegative():
		return p.Abs()
	case p.IsNegative() && l.IsNegative():
		return decimal.Max(p.Abs(), l.Abs())
	case l.IsNegative():
		return l.Abs()
	default:
		return decimal.Zero
	}
}

// FancyMarketExposure nets the fancy entries of one market, in ledger order.
//
// The baseline is Σ lay.Loss + Σ back.Profit. Then each back entry is paired
// with the first unmatched lay entry whose number is not below its own, and
// lay.Profit + min(|lay.Loss|, |back.Loss|) is added for the pair. The
// absolute value of the result is returned.
func FancyMarketExposure(entries []model.PositionSnapshot) decimal.Decimal {
	var backs, lays []model.PositionSnapshot
	total := decimal.Zero
	for _, e := range entries {
		switch e.SelectionID {
		case model.FancyBackSelection:
			backs = append(backs, e)
			total = total.Add(e.Profit)
		case model.FancyLaySelection:
			lays = append(lays, e)
			total = total.Add(e.Loss)
		}
	}

	used := make([]bool, len(lays))
	for _, a := range backs {
		for j, b := range lays {
			if used[j] || !numberAtMost(a.FancyNumber, b.FancyNumber) {
				continue
			}
			total = total.Add(b.Profit).Add(decimal.Min(b.Loss.Abs(), a.Loss.Abs()))
			used[j] = true
			break
		}
	}
	return total.Abs()
}

// Entries without a number never pair.
func numberAtMost(a, b *decimal.Decimal) bool {
	if a == nil || b == nil {
		return false
	}
	return a.LessThanOrEqual(*b)
}

type marketKey struct {
	EventID  string
	MarketID string
}

// Book is the set of positions that count toward one user's exposure: the
// latest snapshot of every non-fancy market and every entry of every fancy
// market that still has a pending bet.
type Book struct {
	nonFancy map[marketKey]model.PositionSnapshot
	fancy    map[marketKey][]model.PositionSnapshot
}

// NewBook returns an empty book.
func NewBook() *Book {
	return &Book{
		nonFancy: make(map[marketKey]model.PositionSnapshot),
		fancy:    make(map[marketKey][]model.PositionSnapshot),
	}
}

// Add records a snapshot in place. Non-fancy snapshots replace the market's
// position, so they must be added oldest first.
func (b *Book) Add(snap model.PositionSnapshot) {
	k := marketKey{EventID: snap.EventID, MarketID: snap.MarketID}
	if snap.Category.IsFancy() {
		b.fancy[k] = append(b.fancy[k], snap)
		return
	}
	b.nonFancy[k] = snap
}

// With returns a copy of the book with a prospective snapshot applied.
func (b *Book) With(snap model.PositionSnapshot) *Book {
	out := NewBook()
	for k, v := range b.nonFancy {
		out.nonFancy[k] = v
	}
	for k, v := range b.fancy {
		out.fancy[k] = append([]model.PositionSnapshot(nil), v...)
	}
	out.Add(snap)
	return out
}

// Exposure sums the worst case of every market in the book.
func (b *Book) Exposure() model.Exposure {
	nonFancy := decimal.Zero
	for _, snap := range b.nonFancy {
		nonFancy = nonFancy.Add(WorstCase(snap))
	}
	fancy := decimal.Zero
	for _, entries := range b.fancy {
		fancy = fancy.Add(FancyMarketExposure(entries))
	}
	return model.Exposure{NonFancy: nonFancy, Fancy: fancy, Total: nonFancy.Add(fancy)}
}

// MarketExposure returns the reserved amount for one market, fancy or not.
func (b *Book) MarketExposure(eventID, marketID string) decimal.Decimal {
	k := marketKey{EventID: eventID, MarketID: marketID}
	if entries, ok := b.fancy[k]; ok {
		return FancyMarketExposure(entries)
	}
	if snap, ok := b.nonFancy[k]; ok {
		return WorstCase(snap)
	}
	return decimal.Zero
}

// EventExposure sums the reserved amount of every market of one event.
func (b *Book) EventExposure(eventID string) decimal.Decimal {
	total := decimal.Zero
	for k, snap := range b.nonFancy {
		if k.EventID == eventID {
			total = total.Add(WorstCase(snap))
		}
	}
	for k, entries := range b.fancy {
		if k.EventID == eventID {
			total = total.Add(FancyMarketExposure(entries))
		}
	}
	return total
}

// FancyByMarket returns the netted exposure of each fancy market of the
// event, keyed by market id.
func (b *Book) FancyByMarket(eventID string) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for k, entries := range b.fancy {
		if k.EventID == eventID {
			out[k.MarketID] = FancyMarketExposure(entries)
		}
	}
	return out
}

// Positions returns the latest non-fancy snapshot of each market of the
// event, ordered by market id.
func (b *Book) Positions(eventID string) []model.PositionSnapshot {
	var out []model.PositionSnapshot
	for k, snap := range b.nonFancy {
		if k.EventID == eventID {
			out = append(out, snap)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MarketID < out[j].MarketID })
	return out
}
