// Package model defines the core domain types shared across the exchange engine.
// All monetary values use shopspring/decimal, never float64.
package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Category is the market family a bet belongs to.
type Category string

const (
	CategoryMatchOdds Category = "match_odds"
	CategoryBookmaker Category = "bookmaker"
	CategoryFancy     Category = "fancy"
)

// Categories lists every category in a stable order.
var Categories = []Category{CategoryMatchOdds, CategoryBookmaker, CategoryFancy}

// ParseCategory normalizes a client-supplied category. It accepts the
// spellings used by the legacy clients ("match odds", "Match-Odds", ...).
func ParseCategory(s string) (Category, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer(" ", "_", "-", "_").Replace(norm)
	switch Category(norm) {
	case CategoryMatchOdds, CategoryBookmaker, CategoryFancy:
		return Category(norm), nil
	}
	return "", &ValidationError{Field: "category", Reason: "unknown category " + s}
}

// IsFancy reports whether the category settles on a numeric threshold.
func (c Category) IsFancy() bool { return c == CategoryFancy }

// Side is the direction of a bet.
type Side string

const (
	SideBack Side = "back" // wins if the selection wins
	SideLay  Side = "lay"  // wins if the selection does not win
)

// ParseSide normalizes a client-supplied side.
func ParseSide(s string) (Side, error) {
	switch Side(strings.ToLower(strings.TrimSpace(s))) {
	case SideBack:
		return SideBack, nil
	case SideLay:
		return SideLay, nil
	}
	return "", &ValidationError{Field: "side", Reason: "unknown side " + s}
}

// BetStatus is the lifecycle state of a bet. The only legal transitions are
// pending→won and pending→lost.
type BetStatus string

const (
	StatusPending BetStatus = "pending"
	StatusWon     BetStatus = "won"
	StatusLost    BetStatus = "lost"
)

// ParseStatus validates a status filter value.
func ParseStatus(s string) (BetStatus, error) {
	switch BetStatus(s) {
	case StatusPending, StatusWon, StatusLost:
		return BetStatus(s), nil
	}
	return "", &ValidationError{Field: "status", Reason: "unknown status " + s}
}

// Fancy anchors. Fancy positions are not tied to a runner, so back entries
// are filed under "1" and lay entries under "2".
const (
	FancyBackSelection = "1"
	FancyLaySelection  = "2"
)

// Bet is an accepted wager. Immutable after creation except for the single
// terminal status transition applied by settlement.
type Bet struct {
	ID          string           `json:"id" db:"id"`
	UserID      string           `json:"user_id" db:"user_id"`
	EventID     string           `json:"event_id" db:"event_id"`
	MarketID    string           `json:"market_id" db:"market_id"`
	Match       string           `json:"match,omitempty" db:"match"`
	Selection   string           `json:"selection,omitempty" db:"selection"`
	Category    Category         `json:"category" db:"category"`
	Side        Side             `json:"side" db:"side"`
	SelectionID string           `json:"selection_id,omitempty" db:"selection_id"`
	FancyNumber *decimal.Decimal `json:"fancy_number,omitempty" db:"fancy_number"`
	Stake       decimal.Decimal  `json:"stake" db:"stake"`
	Odds        decimal.Decimal  `json:"odds" db:"odds"`
	Payout      decimal.Decimal  `json:"payout" db:"payout"` // stake + profit
	Status      BetStatus        `json:"status" db:"status"`
	CreatedAt   time.Time        `json:"created_at" db:"created_at"`
	SettledAt   *time.Time       `json:"settled_at,omitempty" db:"settled_at"`
}

// PositionSnapshot is one append-only ledger row for (user, event, market).
// For non-fancy markets the latest row is the current position: Profit is
// the net result if SelectionID wins, Loss the net result otherwise.
type PositionSnapshot struct {
	ID          string           `json:"id" db:"id"`
	PrevID      string           `json:"prev_id,omitempty" db:"prev_id"`
	UserID      string           `json:"user_id" db:"user_id"`
	EventID     string           `json:"event_id" db:"event_id"`
	MarketID    string           `json:"market_id" db:"market_id"`
	Category    Category         `json:"category" db:"category"`
	SelectionID string           `json:"selection_id" db:"selection_id"`
	FancyNumber *decimal.Decimal `json:"fancy_number,omitempty" db:"fancy_number"`
	Profit      decimal.Decimal  `json:"profit" db:"profit"`
	Loss        decimal.Decimal  `json:"loss" db:"loss"`
	CreatedAt   time.Time        `json:"created_at" db:"created_at"`
}

// PositionKey identifies a position chain.
type PositionKey struct {
	UserID   string
	EventID  string
	MarketID string
}

// Key returns the chain this snapshot belongs to.
func (s PositionSnapshot) Key() PositionKey {
	return PositionKey{UserID: s.UserID, EventID: s.EventID, MarketID: s.MarketID}
}

// String is used for lock names and cache keys.
func (k PositionKey) String() string {
	return k.UserID + "/" + k.EventID + "/" + k.MarketID
}

// UserBalance is the spendable amount owned by a user record.
type UserBalance struct {
	UserID string          `json:"user_id" db:"id"`
	Amount decimal.Decimal `json:"amount" db:"amount"`
}

// Result is the authoritative outcome of one market as reported by the feed.
// Winner carries the winning selection id; for fancy markets Number carries
// the final numeric value.
type Result struct {
	MarketID string           `json:"market_id"`
	Winner   string           `json:"winner"`
	Number   *decimal.Decimal `json:"number,omitempty"`
}

// BetOutcome is a terminal transition decided by settlement.
type BetOutcome struct {
	BetID  string    `json:"bet_id"`
	UserID string    `json:"user_id"`
	Status BetStatus `json:"status"`
}

// Exposure is a user's amount at risk split by aggregation path.
type Exposure struct {
	NonFancy decimal.Decimal `json:"non_fancy"`
	Fancy    decimal.Decimal `json:"fancy"`
	Total    decimal.Decimal `json:"total"`
}
