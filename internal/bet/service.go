// Package bet provides the HTTP handlers and business logic for placing
// bets, querying positions and exposure, and triggering settlement.
//
// All monetary values use shopspring/decimal, never float64.
package bet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/betx/exchange-engine/internal/exposure"
	"github.com/betx/exchange-engine/internal/gate"
	"github.com/betx/exchange-engine/internal/ledger"
	"github.com/betx/exchange-engine/internal/metrics"
	"github.com/betx/exchange-engine/internal/model"
	"github.com/betx/exchange-engine/internal/payoff"
	"github.com/betx/exchange-engine/internal/settlement"
	"github.com/betx/exchange-engine/internal/store"
)

// Fancy stake bounds accepted at placement.
var (
	MinFancyStake = decimal.NewFromInt(100)
	MaxFancyStake = decimal.NewFromInt(500000)
)

// maxAppendAttempts bounds retries when another writer appended to the same
// position between our read and our write.
const maxAppendAttempts = 3

// Publisher receives every accepted bet.
type Publisher interface {
	PublishBetPlaced(ctx context.Context, b model.Bet, exposure decimal.Decimal) error
}

// Settler runs settlement for one event on demand.
type Settler interface {
	Settle(ctx context.Context, eventID string) (*settlement.Report, error)
}

// Service places bets. Placements for one user are serialized in process
// and take the event shared, so a settlement run (which takes the event
// exclusively) never interleaves with them. The ledger's optimistic append
// covers writers in other processes.
type Service struct {
	store     store.Store
	ledger    *ledger.Ledger
	exposure  *exposure.Aggregator
	events    *gate.Gate
	users     *gate.Gate
	wsHub     *WSHub // optional WebSocket hub for real-time broadcasts
	publisher Publisher
	settler   Settler
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithPublisher publishes accepted bets.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithSettler enables the manual settlement endpoint.
func WithSettler(st Settler) Option {
	return func(s *Service) { s.settler = st }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// NewService creates a bet service. events must be the gate the settlement
// engine freezes events with. Pass nil for hub if WebSocket broadcasting is
// not needed.
func NewService(st store.Store, agg *exposure.Aggregator, events *gate.Gate, hub *WSHub, opts ...Option) *Service {
	s := &Service{
		store:    st,
		ledger:   ledger.New(st),
		exposure: agg,
		events:   events,
		users:    gate.New(),
		wsHub:    hub,
		logger:   slog.Default(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PlaceBetResult is the outcome of an accepted bet.
type PlaceBetResult struct {
	Bet       model.Bet              `json:"bet"`
	Position  model.PositionSnapshot `json:"position"`
	Exposure  model.Exposure         `json:"exposure"`
	Available decimal.Decimal        `json:"available"`
}

// PlaceBet validates the request, reserves the bet's worst case against
// the user's balance and records the bet with its ledger snapshot.
func (s *Service) PlaceBet(ctx context.Context, req PlaceBetRequest) (*PlaceBetResult, error) {
	start := time.Now()

	if err := req.Validate(); err != nil {
		return nil, err
	}
	category, err := model.ParseCategory(req.Category)
	if err != nil {
		return nil, err
	}
	side, err := model.ParseSide(req.Side)
	if err != nil {
		return nil, err
	}
	if err := checkCategoryFields(category, req); err != nil {
		return nil, err
	}

	p, err := payoff.Calculate(req.Stake, req.Odds, side, category)
	if err != nil {
		return nil, err
	}

	entry := ledger.Entry{
		UserID:      req.UserID,
		EventID:     req.EventID,
		MarketID:    req.MarketID,
		Category:    category,
		SelectionID: req.SelectionID,
		FancyNumber: req.FancyNumber,
		Side:        side,
		Payoff:      p,
	}

	unlockUser := s.users.Lock(req.UserID)
	defer unlockUser()
	unlockEvent := s.events.RLock(req.EventID)
	defer unlockEvent()

	var (
		snap *model.PositionSnapshot
		exp  model.Exposure
		b    model.Bet
	)
	for attempt := 1; ; attempt++ {
		snap, err = s.ledger.Next(ctx, entry)
		if err != nil {
			return nil, err
		}

		exp, err = s.exposure.CheckAdmission(ctx, req.UserID, *snap)
		if err != nil {
			metrics.AdmissionRejections.WithLabelValues(rejectionReason(err)).Inc()
			return nil, err
		}

		b = model.Bet{
			ID:          uuid.New().String(),
			UserID:      req.UserID,
			EventID:     req.EventID,
			MarketID:    req.MarketID,
			Match:       req.Match,
			Selection:   req.Selection,
			Category:    category,
			Side:        side,
			SelectionID: req.SelectionID,
			FancyNumber: req.FancyNumber,
			Stake:       req.Stake,
			Odds:        req.Odds,
			Payout:      payoff.Payout(req.Stake, p),
			Status:      model.StatusPending,
			CreatedAt:   s.now(),
		}

		err = s.store.RecordBet(ctx, &b, snap)
		if err == nil {
			break
		}
		if errors.Is(err, store.ErrStalePosition) && attempt < maxAppendAttempts {
			metrics.StalePositionRetries.Inc()
			s.logger.Debug("position changed concurrently, retrying",
				"user", req.UserID,
				"market", req.MarketID,
				"attempt", attempt,
			)
			continue
		}
		if errors.Is(err, store.ErrStalePosition) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: record bet: %w", model.ErrPersistence, err)
	}

	amount, err := s.exposure.Balance(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	metrics.BetsPlaced.WithLabelValues(string(category), string(side)).Inc()
	metrics.PlacementLatency.WithLabelValues(string(category)).Observe(time.Since(start).Seconds())

	s.logger.Info("bet placed",
		"bet_id", b.ID,
		"user", b.UserID,
		"event", b.EventID,
		"market", b.MarketID,
		"category", category,
		"side", side,
		"stake", b.Stake.String(),
		"odds", b.Odds.String(),
		"payout", b.Payout.String(),
		"exposure", exp.Total.String(),
	)

	if s.publisher != nil {
		if err := s.publisher.PublishBetPlaced(ctx, b, exp.Total); err != nil {
			s.logger.Warn("publish bet placed failed", "bet_id", b.ID, "err", err)
		}
	}
	if s.wsHub != nil {
		s.wsHub.Broadcast(betMessage(TypeBetPlaced, b))
	}

	return &PlaceBetResult{
		Bet:       b,
		Position:  *snap,
		Exposure:  exp,
		Available: amount.Sub(exp.Total),
	}, nil
}

// checkCategoryFields enforces what each category requires beyond the
// common fields.
func checkCategoryFields(category model.Category, req PlaceBetRequest) error {
	if !category.IsFancy() {
		if req.SelectionID == "" {
			return &model.ValidationError{Field: "selection_id", Reason: "required for " + string(category)}
		}
		return nil
	}
	if req.FancyNumber == nil {
		return &model.ValidationError{Field: "fancy_number", Reason: "required for fancy"}
	}
	if req.Stake.LessThan(MinFancyStake) || req.Stake.GreaterThan(MaxFancyStake) {
		return &model.ValidationError{
			Field:  "stake",
			Reason: fmt.Sprintf("fancy stake must be between %s and %s", MinFancyStake, MaxFancyStake),
		}
	}
	return nil
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, model.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, exposure.ErrMarketLimitExceeded):
		return "market_limit"
	case errors.Is(err, exposure.ErrEventLimitExceeded):
		return "event_limit"
	default:
		return "error"
	}
}

// CheckBalanceChange admits a deposit or withdrawal of the given amount
// against the user's available balance.
func (s *Service) CheckBalanceChange(ctx context.Context, userID string, req BalanceCheckRequest) (model.Exposure, error) {
	if err := req.Validate(); err != nil {
		return model.Exposure{}, err
	}

	unlock := s.users.Lock(userID)
	defer unlock()

	exp, err := s.exposure.CheckAvailable(ctx, userID, req.Amount)
	if err != nil && errors.Is(err, model.ErrInsufficientFunds) {
		metrics.AdmissionRejections.WithLabelValues(req.Type).Inc()
	}
	return exp, err
}
