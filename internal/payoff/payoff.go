// Package payoff computes the profit/loss pair of a single bet.
//
// Profit is the gain if the bet wins; Loss is the signed adverse outcome and
// is never positive. The calculation is pure and deterministic so the same
// numbers are reproduced at admission, in the ledger, and in the stored
// payout (stake + profit).
//
// All monetary values use shopspring/decimal, never float64.
package payoff

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/betx/exchange-engine/internal/model"
)

var (
	// ErrUnknownCategory is returned for a category outside the closed set.
	ErrUnknownCategory = errors.New("payoff: unknown category")

	// ErrUnknownSide is returned for a side other than back or lay.
	ErrUnknownSide = errors.New("payoff: unknown side")

	// ErrNonPositiveStake is returned when stake <= 0.
	ErrNonPositiveStake = errors.New("payoff: stake must be positive")

	// ErrNonPositiveOdds is returned when odds <= 0.
	ErrNonPositiveOdds = errors.New("payoff: odds must be positive")
)

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// Payoff is the (profit, loss) pair of one bet.
type Payoff struct {
	Profit decimal.Decimal `json:"profit"`
	Loss   decimal.Decimal `json:"loss"`
}

// Calculate returns the payoff of a bet.
//
//	match_odds  back: profit = stake·(odds−1)    loss = −stake
//	            lay:  profit = stake             loss = −stake·(odds−1)
//	bookmaker,  back: profit = stake·odds/100    loss = −stake
//	fancy       lay:  profit = stake             loss = −stake·odds/100
//
// Errors wrap model.ErrValidation.
func Calculate(stake, odds decimal.Decimal, side model.Side, category model.Category) (Payoff, error) {
	if !stake.IsPositive() {
		return Payoff{}, invalid("stake", ErrNonPositiveStake)
	}
	if !odds.IsPositive() {
		return Payoff{}, invalid("odds", ErrNonPositiveOdds)
	}

	var win decimal.Decimal // what the risk-taking side stands to pay or receive
	switch category {
	case model.CategoryMatchOdds:
		win = stake.Mul(odds.Sub(one))
	case model.CategoryBookmaker, model.CategoryFancy:
		win = stake.Mul(odds).Div(hundred)
	default:
		return Payoff{}, invalid("category", fmt.Errorf("%w: %q", ErrUnknownCategory, category))
	}

	switch side {
	case model.SideBack:
		return Payoff{Profit: win, Loss: stake.Neg()}, nil
	case model.SideLay:
		return Payoff{Profit: stake, Loss: win.Neg()}, nil
	default:
		return Payoff{}, invalid("side", fmt.Errorf("%w: %q", ErrUnknownSide, side))
	}
}

// Payout is the amount precomputed on the bet at placement.
func Payout(stake decimal.Decimal, p Payoff) decimal.Decimal {
	return stake.Add(p.Profit)
}

// invalidError carries both the payoff sentinel and the validation class.
type invalidError struct {
	field string
	err   error
}

func (e *invalidError) Error() string { return e.err.Error() }

func (e *invalidError) Unwrap() []error {
	return []error{e.err, &model.ValidationError{Field: e.field, Reason: e.err.Error()}}
}

func invalid(field string, err error) error {
	return &invalidError{field: field, err: err}
}
