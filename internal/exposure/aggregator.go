package exposure

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/betx/exchange-engine/internal/model"
	"github.com/betx/exchange-engine/internal/store"
)

// Reader is the slice of the store the aggregator needs.
type Reader interface {
	store.BetStore
	store.PositionStore
	store.BalanceStore
}

// Aggregator loads users' books from the store and gates operations on
// their available balance.
type Aggregator struct {
	store   Reader
	limiter *Limiter
}

// NewAggregator creates an aggregator. limiter may be nil.
func NewAggregator(st Reader, limiter *Limiter) *Aggregator {
	return &Aggregator{store: st, limiter: limiter}
}

// Load builds the user's book from the markets in which they hold at least
// one pending bet.
func (a *Aggregator) Load(ctx context.Context, userID string) (*Book, error) {
	bets, err := a.store.ListBets(ctx, store.BetFilter{UserID: userID, Status: model.StatusPending})
	if err != nil {
		return nil, fmt.Errorf("%w: list pending bets: %w", model.ErrPersistence, err)
	}

	pending := make(map[marketKey]bool)
	var events []string
	seen := make(map[string]bool)
	for _, b := range bets {
		pending[marketKey{EventID: b.EventID, MarketID: b.MarketID}] = true
		if !seen[b.EventID] {
			seen[b.EventID] = true
			events = append(events, b.EventID)
		}
	}

	book := NewBook()
	for _, eventID := range events {
		snaps, err := a.store.PositionsByUserEvent(ctx, userID, eventID)
		if err != nil {
			return nil, fmt.Errorf("%w: positions for %s: %w", model.ErrPersistence, eventID, err)
		}
		for _, s := range snaps {
			if pending[marketKey{EventID: s.EventID, MarketID: s.MarketID}] {
				book.Add(s)
			}
		}
	}
	return book, nil
}

// Compute returns the user's current exposure.
func (a *Aggregator) Compute(ctx context.Context, userID string) (model.Exposure, error) {
	book, err := a.Load(ctx, userID)
	if err != nil {
		return model.Exposure{}, err
	}
	return book.Exposure(), nil
}

// Balance returns the user's amount. Unknown users have a zero balance.
func (a *Aggregator) Balance(ctx context.Context, userID string) (decimal.Decimal, error) {
	amount, err := a.store.GetBalance(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: read balance %s: %w", model.ErrPersistence, userID, err)
	}
	return amount, nil
}

// CheckAvailable admits a deposit or withdrawal of change against the
// user's current exposure: amount − exposure must be at least change.
func (a *Aggregator) CheckAvailable(ctx context.Context, userID string, change decimal.Decimal) (model.Exposure, error) {
	amount, err := a.Balance(ctx, userID)
	if err != nil {
		return model.Exposure{}, err
	}
	exp, err := a.Compute(ctx, userID)
	if err != nil {
		return model.Exposure{}, err
	}
	if amount.Sub(exp.Total).LessThan(change) {
		return exp, &model.InsufficientFundsError{Amount: amount, Exposure: exp.Total, Requested: change}
	}
	return exp, nil
}

// CheckAdmission admits a bet whose ledger snapshot would be prospective.
// The exposure is recomputed with the snapshot in the book and the
// available balance must stay non-negative.
func (a *Aggregator) CheckAdmission(ctx context.Context, userID string, prospective model.PositionSnapshot) (model.Exposure, error) {
	amount, err := a.Balance(ctx, userID)
	if err != nil {
		return model.Exposure{}, err
	}
	book, err := a.Load(ctx, userID)
	if err != nil {
		return model.Exposure{}, err
	}
	next := book.With(prospective)
	if err := a.limiter.Check(next, prospective.EventID, prospective.MarketID); err != nil {
		return model.Exposure{}, err
	}
	exp := next.Exposure()
	if amount.Sub(exp.Total).IsNegative() {
		return exp, &model.InsufficientFundsError{Amount: amount, Exposure: exp.Total, Requested: decimal.Zero}
	}
	return exp, nil
}
