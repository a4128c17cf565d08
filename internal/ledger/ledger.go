// Package ledger maintains the append-only position ledger.
//
// Every accepted bet appends one PositionSnapshot for its (user, event,
// market). For match-odds and bookmaker markets the new snapshot folds the
// bet's payoff into the previous one, so reading the latest row yields the
// user's net position; the ledger is a strict left fold over the bets.
// Fancy bets are filed as independent entries under the "1" (back) or "2"
// (lay) anchor and are netted later by the exposure aggregator.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/betx/exchange-engine/internal/model"
	"github.com/betx/exchange-engine/internal/payoff"
	"github.com/betx/exchange-engine/internal/store"
)

// Entry is one bet's contribution to a position.
type Entry struct {
	UserID      string
	EventID     string
	MarketID    string
	Category    model.Category
	SelectionID string
	FancyNumber *decimal.Decimal
	Side        model.Side
	Payoff      payoff.Payoff
}

// Key returns the position chain the entry is appended to.
func (e Entry) Key() model.PositionKey {
	return model.PositionKey{UserID: e.UserID, EventID: e.EventID, MarketID: e.MarketID}
}

// Fold combines the prior snapshot (nil for "no position") with one entry
// and returns the values of the next snapshot. Only SelectionID, Profit and
// Loss are meaningful in the result.
//
// The result is anchored to the entry's selection. When the prior anchor
// differs, the folded pair is swapped so that Profit keeps meaning "the
// anchor selection wins".
func Fold(prior *model.PositionSnapshot, e Entry) model.PositionSnapshot {
	isBack := e.Side == model.SideBack

	if e.Category.IsFancy() {
		anchor := model.FancyLaySelection
		if isBack {
			anchor = model.FancyBackSelection
		}
		profit, loss := e.Payoff.Loss, e.Payoff.Profit
		if !isBack {
			profit, loss = e.Payoff.Profit, e.Payoff.Loss
		}
		return model.PositionSnapshot{SelectionID: anchor, Profit: profit, Loss: loss}
	}

	if prior == nil {
		if isBack {
			return model.PositionSnapshot{SelectionID: e.SelectionID, Profit: e.Payoff.Profit, Loss: e.Payoff.Loss}
		}
		return model.PositionSnapshot{SelectionID: e.SelectionID, Profit: e.Payoff.Loss, Loss: e.Payoff.Profit}
	}

	sameAnchor := prior.SelectionID == e.SelectionID
	var newProfit, newLoss decimal.Decimal
	if sameAnchor == isBack {
		newProfit = prior.Profit.Add(e.Payoff.Profit)
		newLoss = prior.Loss.Add(e.Payoff.Loss)
	} else {
		newProfit = prior.Profit.Add(e.Payoff.Loss)
		newLoss = prior.Loss.Add(e.Payoff.Profit)
	}

	if !sameAnchor {
		newProfit, newLoss = newLoss, newProfit
	}
	return model.PositionSnapshot{SelectionID: e.SelectionID, Profit: newProfit, Loss: newLoss}
}

// Replay folds a sequence of entries for one market starting from "no
// position" and returns the resulting latest snapshot values.
func Replay(entries []Entry) *model.PositionSnapshot {
	var current *model.PositionSnapshot
	for _, e := range entries {
		next := Fold(current, e)
		current = &next
	}
	return current
}

// Ledger reads chain heads from a PositionStore and builds snapshots.
type Ledger struct {
	store store.PositionStore
	now   func() time.Time
}

// New creates a ledger on top of the given store.
func New(st store.PositionStore) *Ledger {
	return &Ledger{
		store: st,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Next reads the current position for the entry's key and returns the
// snapshot that appending the entry would produce. Nothing is written; the
// snapshot's PrevID pins the head it was derived from.
func (l *Ledger) Next(ctx context.Context, e Entry) (*model.PositionSnapshot, error) {
	prior, err := l.store.LatestPosition(ctx, e.Key())
	if errors.Is(err, store.ErrNotFound) {
		prior = nil
	} else if err != nil {
		return nil, fmt.Errorf("%w: read position %s: %w", model.ErrPersistence, e.Key(), err)
	}

	next := Fold(prior, e)
	next.ID = uuid.New().String()
	next.UserID = e.UserID
	next.EventID = e.EventID
	next.MarketID = e.MarketID
	next.Category = e.Category
	next.FancyNumber = e.FancyNumber
	next.CreatedAt = l.now()
	if prior != nil {
		next.PrevID = prior.ID
		if !next.CreatedAt.After(prior.CreatedAt) {
			// Keep "latest createdAt" unambiguous within a chain.
			next.CreatedAt = prior.CreatedAt.Add(time.Microsecond)
		}
	}
	return &next, nil
}

// Append computes the next snapshot and inserts it.
func (l *Ledger) Append(ctx context.Context, e Entry) (*model.PositionSnapshot, error) {
	snap, err := l.Next(ctx, e)
	if err != nil {
		return nil, err
	}
	if err := l.store.AppendPosition(ctx, snap); err != nil {
		return nil, fmt.Errorf("append position %s: %w", e.Key(), err)
	}
	return snap, nil
}
