// Package settlement moves pending bets to won or lost once the results
// feed has decided their markets, and credits the balance changes.
//
// A run fetches results without holding any lock, then freezes the event
// (placements on it queue) while the pending bets are reloaded, classified
// and committed in one store call guarded on the bets still being pending.
// Running Settle twice against an unchanged feed changes nothing the second
// time.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/betx/exchange-engine/internal/feed"
	"github.com/betx/exchange-engine/internal/gate"
	"github.com/betx/exchange-engine/internal/metrics"
	"github.com/betx/exchange-engine/internal/model"
	"github.com/betx/exchange-engine/internal/store"
)

// ResultFetcher returns the decided results of a set of markets.
type ResultFetcher interface {
	FetchAll(ctx context.Context, idsByCategory map[model.Category][]string) (map[string]model.Result, []*feed.BatchError)
}

// Notifier is told about every committed run.
type Notifier interface {
	NotifySettled(ctx context.Context, eventID string, bets []model.Bet) error
}

// Inconsistency is a pending bet that could not be settled because the
// ledger holds no position for its market. Only that bet is skipped.
type Inconsistency struct {
	BetID    string `json:"bet_id"`
	UserID   string `json:"user_id"`
	EventID  string `json:"event_id"`
	MarketID string `json:"market_id"`
	Reason   string `json:"reason"`
}

func (i *Inconsistency) Error() string {
	return fmt.Sprintf("bet %s (user %s, market %s): %s", i.BetID, i.UserID, i.MarketID, i.Reason)
}

func (i *Inconsistency) Unwrap() error { return model.ErrLedgerInconsistency }

// Report summarizes one run.
type Report struct {
	EventID         string                      `json:"event_id"`
	Examined        int                         `json:"examined"`
	Won             int                         `json:"won"`
	Lost            int                         `json:"lost"`
	Deferred        int                         `json:"deferred"`
	Deltas          map[string]decimal.Decimal  `json:"deltas,omitempty"`
	Inconsistencies []*Inconsistency            `json:"inconsistencies,omitempty"`
	FailedMarkets   map[model.Category][]string `json:"failed_markets,omitempty"`
	FeedFailures    []*feed.BatchError          `json:"-"`
	Duration        time.Duration               `json:"duration_ns"`
}

// Settled is the number of bets that reached a terminal status.
func (r *Report) Settled() int { return r.Won + r.Lost }

// Engine settles events.
type Engine struct {
	store     store.Store
	fetcher   ResultFetcher
	events    *gate.Gate
	notifiers []Notifier
	logger    *slog.Logger
	now       func() time.Time
}

// NewEngine creates a settlement engine. events must be the same gate the
// placement path takes shared per event.
func NewEngine(st store.Store, fetcher ResultFetcher, events *gate.Gate, logger *slog.Logger, notifiers ...Notifier) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:     st,
		fetcher:   fetcher,
		events:    events,
		notifiers: notifiers,
		logger:    logger,
		now:       time.Now,
	}
}

// Settle runs settlement for one event. The returned error is set only when
// the store failed; feed failures and inconsistencies are in the report.
func (e *Engine) Settle(ctx context.Context, eventID string) (*Report, error) {
	start := e.now()
	report := &Report{EventID: eventID}

	pending, err := e.pendingBets(ctx, eventID)
	if err != nil {
		metrics.SettlementRuns.WithLabelValues("error").Inc()
		return nil, err
	}
	if len(pending) == 0 {
		metrics.SettlementRuns.WithLabelValues("noop").Inc()
		return report, nil
	}

	results, failures := e.fetcher.FetchAll(ctx, marketsByCategory(pending))
	report.FeedFailures = failures
	for _, f := range failures {
		if report.FailedMarkets == nil {
			report.FailedMarkets = make(map[model.Category][]string)
		}
		report.FailedMarkets[f.Category] = append(report.FailedMarkets[f.Category], f.MarketIDs...)
	}

	unlock := e.events.Lock(eventID)
	defer unlock()

	// Placements may have landed while the feed was queried.
	pending, err = e.pendingBets(ctx, eventID)
	if err != nil {
		metrics.SettlementRuns.WithLabelValues("error").Inc()
		return nil, err
	}

	st, settled, err := e.classify(ctx, pending, results, report)
	if err != nil {
		metrics.SettlementRuns.WithLabelValues("error").Inc()
		return nil, err
	}

	if len(st.Outcomes) > 0 {
		if err := e.store.ApplySettlement(ctx, st); err != nil {
			metrics.SettlementRuns.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("%w: apply settlement for event %s: %w", model.ErrPersistence, eventID, err)
		}
		report.Deltas = st.Deltas
		for _, b := range settled {
			metrics.BetsSettled.WithLabelValues(string(b.Category), string(b.Status)).Inc()
		}
	}

	report.Duration = e.now().Sub(start)
	metrics.SettlementDuration.Observe(report.Duration.Seconds())
	metrics.SettlementRuns.WithLabelValues("ok").Inc()

	e.logger.Info("settlement run complete",
		"event_id", eventID,
		"examined", report.Examined,
		"won", report.Won,
		"lost", report.Lost,
		"deferred", report.Deferred,
		"inconsistencies", len(report.Inconsistencies),
		"feed_failures", len(report.FeedFailures),
		"duration", report.Duration,
	)

	if len(settled) > 0 {
		e.notify(ctx, eventID, settled)
	}
	return report, nil
}

func (e *Engine) pendingBets(ctx context.Context, eventID string) ([]model.Bet, error) {
	bets, err := e.store.ListBets(ctx, store.BetFilter{EventID: eventID, Status: model.StatusPending})
	if err != nil {
		return nil, fmt.Errorf("%w: list pending bets for event %s: %w", model.ErrPersistence, eventID, err)
	}
	// Oldest first, so the report and notifications follow placement order.
	for i, j := 0, len(bets)-1; i < j; i, j = i+1, j-1 {
		bets[i], bets[j] = bets[j], bets[i]
	}
	return bets, nil
}

func marketsByCategory(bets []model.Bet) map[model.Category][]string {
	out := make(map[model.Category][]string)
	seen := make(map[string]bool)
	for _, b := range bets {
		if !seen[b.MarketID] {
			seen[b.MarketID] = true
			out[b.Category] = append(out[b.Category], b.MarketID)
		}
	}
	return out
}

// classify decides every pending bet whose market has a result and
// accumulates the per-user balance changes.
func (e *Engine) classify(ctx context.Context, pending []model.Bet, results map[string]model.Result, report *Report) (store.Settlement, []model.Bet, error) {
	st := store.Settlement{Deltas: make(map[string]decimal.Decimal)}
	var settled []model.Bet

	positions := make(map[model.PositionKey]*model.PositionSnapshot)
	released := make(map[model.PositionKey]bool)
	now := e.now().UTC()

	for _, b := range pending {
		report.Examined++

		res, ok := results[b.MarketID]
		if !ok {
			report.Deferred++
			continue
		}

		var (
			won   bool
			delta decimal.Decimal
		)
		if b.Category.IsFancy() {
			if res.Number == nil {
				report.Deferred++
				continue
			}
			if b.FancyNumber == nil {
				e.inconsistent(report, b, "fancy bet has no number")
				continue
			}
			// Fancy bets credit their full payout whichever way they settle.
			won = FancyWon(b.Side, *b.FancyNumber, *res.Number)
			delta = b.Payout
		} else {
			key := model.PositionKey{UserID: b.UserID, EventID: b.EventID, MarketID: b.MarketID}
			snap, ok := positions[key]
			if !ok {
				var err error
				snap, err = e.store.LatestPosition(ctx, key)
				if errors.Is(err, store.ErrNotFound) {
					snap = nil
				} else if err != nil {
					return store.Settlement{}, nil, fmt.Errorf("%w: read position %s: %w", model.ErrPersistence, key, err)
				}
				positions[key] = snap
			}
			if snap == nil {
				e.inconsistent(report, b, "no ledger position for market")
				continue
			}
			if !released[key] {
				released[key] = true
				delta = delta.Add(Release(*snap))
			}
			won = SelectionWon(b.Side, b.SelectionID, res.Winner)
			if won {
				delta = delta.Add(b.Payout.Sub(b.Stake))
			} else {
				delta = delta.Sub(b.Stake)
			}
		}

		status := model.StatusLost
		if won {
			status = model.StatusWon
			report.Won++
		} else {
			report.Lost++
		}
		if !delta.IsZero() {
			st.Deltas[b.UserID] = st.Deltas[b.UserID].Add(delta)
		}
		st.Outcomes = append(st.Outcomes, model.BetOutcome{BetID: b.ID, UserID: b.UserID, Status: status})

		b.Status = status
		b.SettledAt = &now
		settled = append(settled, b)
	}
	return st, settled, nil
}

func (e *Engine) inconsistent(report *Report, b model.Bet, reason string) {
	inc := &Inconsistency{BetID: b.ID, UserID: b.UserID, EventID: b.EventID, MarketID: b.MarketID, Reason: reason}
	report.Inconsistencies = append(report.Inconsistencies, inc)
	metrics.LedgerInconsistencies.Inc()
	e.logger.Error("skipping bet at settlement", "err", inc)
}

func (e *Engine) notify(ctx context.Context, eventID string, bets []model.Bet) {
	for _, n := range e.notifiers {
		if err := n.NotifySettled(ctx, eventID, bets); err != nil {
			e.logger.Warn("settlement notification failed", "event_id", eventID, "err", err)
		}
	}
}

// Release is the reservation a non-fancy position held, returned to the
// user once its market settles.
func Release(snap model.PositionSnapshot) decimal.Decimal {
	return decimal.Min(snap.Profit, snap.Loss, decimal.Zero).Abs()
}

// SelectionWon decides a match odds or bookmaker bet.
func SelectionWon(side model.Side, selectionID, winner string) bool {
	if side == model.SideBack {
		return winner == selectionID
	}
	return winner != selectionID
}

// FancyWon decides a fancy bet: a back wins when the result reaches the
// bet's number, a lay when it stays below.
func FancyWon(side model.Side, number, result decimal.Decimal) bool {
	if side == model.SideBack {
		return number.LessThanOrEqual(result)
	}
	return number.GreaterThan(result)
}
