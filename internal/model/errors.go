package model

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Error classes. Concrete errors wrap one of these so callers can branch
// with errors.Is regardless of which component raised them.
var (
	ErrValidation          = errors.New("validation failed")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrFeedUnavailable     = errors.New("results feed unavailable")
	ErrLedgerInconsistency = errors.New("ledger inconsistency")
	ErrPersistence         = errors.New("persistence failure")
)

// ValidationError rejects a request before anything is written.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// InsufficientFundsError is returned when an operation would leave the
// available balance (amount − exposure) below the requested change.
type InsufficientFundsError struct {
	Amount    decimal.Decimal
	Exposure  decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: balance %s, exposure %s, requested %s",
		e.Amount, e.Exposure, e.Requested)
}

func (e *InsufficientFundsError) Unwrap() error { return ErrInsufficientFunds }

// Available is the balance left once exposure is reserved.
func (e *InsufficientFundsError) Available() decimal.Decimal {
	return e.Amount.Sub(e.Exposure)
}
