package bet

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/betx/exchange-engine/internal/model"
)

var validate = newValidator()

// newValidator reports fields by their JSON name.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// PlaceBetRequest is the JSON body for POST /api/v1/bets.
type PlaceBetRequest struct {
	UserID      string           `json:"user_id" validate:"required,max=64"`
	EventID     string           `json:"event_id" validate:"required,max=64"`
	MarketID    string           `json:"market_id" validate:"required,max=64"`
	Match       string           `json:"match,omitempty" validate:"max=200"`
	Selection   string           `json:"selection,omitempty" validate:"max=200"`
	Category    string           `json:"category" validate:"required"`
	Side        string           `json:"side" validate:"required"`
	SelectionID string           `json:"selection_id,omitempty" validate:"max=64"`
	FancyNumber *decimal.Decimal `json:"fancy_number,omitempty"`
	Stake       decimal.Decimal  `json:"stake"`
	Odds        decimal.Decimal  `json:"odds"`
}

// Validate checks the fields that do not depend on the category.
func (r *PlaceBetRequest) Validate() error {
	return validationError(validate.Struct(r))
}

// BalanceCheckRequest is the JSON body for POST
// /api/v1/users/{userID}/balance-check.
type BalanceCheckRequest struct {
	Type   string          `json:"type" validate:"required,oneof=deposit withdraw"`
	Amount decimal.Decimal `json:"amount"`
}

// Validate checks the request.
func (r *BalanceCheckRequest) Validate() error {
	if err := validationError(validate.Struct(r)); err != nil {
		return err
	}
	if !r.Amount.IsPositive() {
		return &model.ValidationError{Field: "amount", Reason: "must be positive"}
	}
	return nil
}

// validationError reports the first failed field as a model.ValidationError.
func validationError(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &model.ValidationError{Field: fe.Field(), Reason: "failed " + fe.Tag() + " check"}
	}
	return &model.ValidationError{Reason: err.Error()}
}
