package exposure

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrMarketLimitExceeded is returned when a bet would push the reserved
	// amount of a single market beyond the per-market maximum.
	ErrMarketLimitExceeded = errors.New("exposure: market limit exceeded")

	// ErrEventLimitExceeded is returned when a bet would push the reserved
	// amount summed over all markets of an event beyond the per-event maximum.
	ErrEventLimitExceeded = errors.New("exposure: event limit exceeded")
)

// Limiter caps the exposure a user may hold on one market and on one event,
// independently of their balance. Markets of the same event are settled by
// the same result run, so their exposure is correlated.
type Limiter struct {
	// MaxPerMarket is the maximum reserved amount on any single market.
	// Zero disables the check.
	MaxPerMarket decimal.Decimal

	// MaxPerEvent is the maximum reserved amount summed over every market
	// of one event. Zero disables the check.
	MaxPerEvent decimal.Decimal
}

// NewLimiter creates a limiter. Negative limits are treated as disabled.
func NewLimiter(maxPerMarket, maxPerEvent decimal.Decimal) *Limiter {
	if maxPerMarket.IsNegative() {
		maxPerMarket = decimal.Zero
	}
	if maxPerEvent.IsNegative() {
		maxPerEvent = decimal.Zero
	}
	return &Limiter{MaxPerMarket: maxPerMarket, MaxPerEvent: maxPerEvent}
}

// Check validates a book that already includes the prospective bet.
func (l *Limiter) Check(book *Book, eventID, marketID string) error {
	if l == nil {
		return nil
	}
	if l.MaxPerMarket.IsPositive() && book.MarketExposure(eventID, marketID).GreaterThan(l.MaxPerMarket) {
		return ErrMarketLimitExceeded
	}
	if l.MaxPerEvent.IsPositive() && book.EventExposure(eventID).GreaterThan(l.MaxPerEvent) {
		return ErrEventLimitExceeded
	}
	return nil
}
