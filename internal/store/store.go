// Package store defines the persistence interface for the exchange engine.
// Implementations include PostgreSQL (source of truth) and in-memory (for
// testing and development).
package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/betx/exchange-engine/internal/model"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrStalePosition is returned when a snapshot is appended on top of a
	// snapshot that is no longer the latest for its key.
	ErrStalePosition = errors.New("store: position changed concurrently")

	// ErrAlreadySettled is returned when a settlement tries to transition a
	// bet that is no longer pending. Nothing is written in that case.
	ErrAlreadySettled = errors.New("store: bet already settled")
)

// BetFilter narrows ListBets. Zero-value fields are ignored.
type BetFilter struct {
	UserID      string
	EventID     string
	MarketID    string
	SelectionID string
	Category    model.Category
	Side        model.Side
	Status      model.BetStatus
}

// Settlement is the combined write of one settlement run.
type Settlement struct {
	Outcomes []model.BetOutcome
	Deltas   map[string]decimal.Decimal // userID → balance increment
}

// BetStore persists bets.
type BetStore interface {
	// ListBets returns bets matching the filter, newest first.
	ListBets(ctx context.Context, f BetFilter) ([]model.Bet, error)

	// PendingEventIDs returns the distinct events that still have pending bets.
	PendingEventIDs(ctx context.Context) ([]string, error)
}

// PositionStore persists the append-only position ledger.
type PositionStore interface {
	// LatestPosition returns the most recent snapshot for the key, or
	// ErrNotFound.
	LatestPosition(ctx context.Context, key model.PositionKey) (*model.PositionSnapshot, error)

	// AppendPosition inserts a snapshot. It fails with ErrStalePosition
	// unless snap.PrevID is the current latest id for the key ("" when the
	// key has no snapshots yet).
	AppendPosition(ctx context.Context, snap *model.PositionSnapshot) error

	// PositionsByEvent returns all snapshots of an event, oldest first.
	PositionsByEvent(ctx context.Context, eventID string) ([]model.PositionSnapshot, error)

	// PositionsByUserEvent returns a user's snapshots of an event, oldest first.
	PositionsByUserEvent(ctx context.Context, userID, eventID string) ([]model.PositionSnapshot, error)
}

// BalanceStore persists user balances.
type BalanceStore interface {
	// GetBalance returns the user's amount, or ErrNotFound.
	GetBalance(ctx context.Context, userID string) (decimal.Decimal, error)

	// IncrementBalances adds each delta to the matching user's amount.
	IncrementBalances(ctx context.Context, deltas map[string]decimal.Decimal) error
}

// Store is the full persistence interface.
type Store interface {
	BetStore
	PositionStore
	BalanceStore

	// RecordBet atomically appends the snapshot (with the same staleness
	// check as AppendPosition) and inserts the bet.
	RecordBet(ctx context.Context, bet *model.Bet, snap *model.PositionSnapshot) error

	// ApplySettlement atomically moves every outcome's bet from pending to
	// its terminal status and applies the balance deltas. If any bet is no
	// longer pending it returns ErrAlreadySettled and writes nothing.
	ApplySettlement(ctx context.Context, s Settlement) error
}
