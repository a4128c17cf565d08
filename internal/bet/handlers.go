package bet

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/betx/exchange-engine/internal/exposure"
	"github.com/betx/exchange-engine/internal/model"
	"github.com/betx/exchange-engine/internal/store"
)

// Routes mounts the bet API on r.
func (s *Service) Routes(r chi.Router) {
	r.Post("/bets", s.HandlePlaceBet)
	r.Get("/bets", s.HandleListBets)

	r.Get("/users/{userID}/bets", s.HandleUserBets)
	r.Get("/users/{userID}/positions", s.HandlePositions)
	r.Get("/users/{userID}/fancy-exposure", s.HandleFancyExposure)
	r.Get("/users/{userID}/exposure", s.HandleExposure)
	r.Post("/users/{userID}/balance-check", s.HandleBalanceCheck)

	r.Post("/events/{eventID}/settle", s.HandleSettle)
}

// HandlePlaceBet handles POST /api/v1/bets
func (s *Service) HandlePlaceBet(w http.ResponseWriter, r *http.Request) {
	var req PlaceBetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	res, err := s.PlaceBet(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// HandleListBets handles GET /api/v1/bets
// Filters: user_id, event_id, market_id, selection_id, category, side, status.
func (s *Service) HandleListBets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.BetFilter{
		UserID:      q.Get("user_id"),
		EventID:     q.Get("event_id"),
		MarketID:    q.Get("market_id"),
		SelectionID: q.Get("selection_id"),
	}
	if err := parseEnumFilters(&f, q.Get("category"), q.Get("side"), q.Get("status")); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.listBets(w, r, f)
}

// HandleUserBets handles GET /api/v1/users/{userID}/bets
// Optional filter: status.
func (s *Service) HandleUserBets(w http.ResponseWriter, r *http.Request) {
	f := store.BetFilter{UserID: chi.URLParam(r, "userID")}
	if err := parseEnumFilters(&f, "", "", r.URL.Query().Get("status")); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.listBets(w, r, f)
}

func (s *Service) listBets(w http.ResponseWriter, r *http.Request, f store.BetFilter) {
	bets, err := s.store.ListBets(r.Context(), f)
	if err != nil {
		s.logger.Error("list bets", "err", err)
		writeError(w, "failed to list bets", http.StatusInternalServerError)
		return
	}
	if bets == nil {
		bets = []model.Bet{}
	}
	writeJSON(w, http.StatusOK, bets)
}

func parseEnumFilters(f *store.BetFilter, category, side, status string) error {
	var err error
	if category != "" {
		if f.Category, err = model.ParseCategory(category); err != nil {
			return err
		}
	}
	if side != "" {
		if f.Side, err = model.ParseSide(side); err != nil {
			return err
		}
	}
	if status != "" {
		if f.Status, err = model.ParseStatus(status); err != nil {
			return err
		}
	}
	return nil
}

// HandlePositions handles GET /api/v1/users/{userID}/positions?event_id=
// Returns the latest position of each match odds and bookmaker market of the
// event in which the user has a pending bet.
func (s *Service) HandlePositions(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	eventID := r.URL.Query().Get("event_id")
	if eventID == "" {
		writeError(w, "event_id is required", http.StatusBadRequest)
		return
	}

	book, err := s.exposure.Load(r.Context(), userID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	positions := book.Positions(eventID)
	if positions == nil {
		positions = []model.PositionSnapshot{}
	}
	writeJSON(w, http.StatusOK, positions)
}

// FancyExposureResponse is the body of the fancy-exposure endpoint.
type FancyExposureResponse struct {
	UserID  string                     `json:"user_id"`
	EventID string                     `json:"event_id"`
	Markets map[string]decimal.Decimal `json:"markets"`
	Total   decimal.Decimal            `json:"total"`
}

// HandleFancyExposure handles GET /api/v1/users/{userID}/fancy-exposure?event_id=
func (s *Service) HandleFancyExposure(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	eventID := r.URL.Query().Get("event_id")
	if eventID == "" {
		writeError(w, "event_id is required", http.StatusBadRequest)
		return
	}

	book, err := s.exposure.Load(r.Context(), userID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	markets := book.FancyByMarket(eventID)
	total := decimal.Zero
	for _, v := range markets {
		total = total.Add(v)
	}
	writeJSON(w, http.StatusOK, FancyExposureResponse{
		UserID:  userID,
		EventID: eventID,
		Markets: markets,
		Total:   total,
	})
}

// ExposureResponse is the body of the exposure and balance-check endpoints.
type ExposureResponse struct {
	UserID    string          `json:"user_id"`
	Amount    decimal.Decimal `json:"amount"`
	Exposure  model.Exposure  `json:"exposure"`
	Available decimal.Decimal `json:"available"`
}

// HandleExposure handles GET /api/v1/users/{userID}/exposure
func (s *Service) HandleExposure(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	ctx := r.Context()

	amount, err := s.exposure.Balance(ctx, userID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	exp, err := s.exposure.Compute(ctx, userID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ExposureResponse{
		UserID:    userID,
		Amount:    amount,
		Exposure:  exp,
		Available: amount.Sub(exp.Total),
	})
}

// HandleBalanceCheck handles POST /api/v1/users/{userID}/balance-check
// The payment workflow calls it before moving funds out of the user's
// balance.
func (s *Service) HandleBalanceCheck(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var req BalanceCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	exp, err := s.CheckBalanceChange(r.Context(), userID, req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	amount, err := s.exposure.Balance(r.Context(), userID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ExposureResponse{
		UserID:    userID,
		Amount:    amount,
		Exposure:  exp,
		Available: amount.Sub(exp.Total),
	})
}

// HandleSettle handles POST /api/v1/events/{eventID}/settle
func (s *Service) HandleSettle(w http.ResponseWriter, r *http.Request) {
	if s.settler == nil {
		writeError(w, "settlement is not enabled", http.StatusNotImplemented)
		return
	}
	eventID := chi.URLParam(r, "eventID")

	report, err := s.settler.Settle(r.Context(), eventID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// insufficientFundsBody is returned with 422 so clients can show the
// available balance.
type insufficientFundsBody struct {
	Error     string          `json:"error"`
	Amount    decimal.Decimal `json:"amount"`
	Exposure  decimal.Decimal `json:"exposure"`
	Available decimal.Decimal `json:"available"`
}

// writeServiceError maps the error classes to status codes.
func (s *Service) writeServiceError(w http.ResponseWriter, err error) {
	var ife *model.InsufficientFundsError
	switch {
	case errors.As(err, &ife):
		writeJSON(w, http.StatusUnprocessableEntity, insufficientFundsBody{
			Error:     ife.Error(),
			Amount:    ife.Amount,
			Exposure:  ife.Exposure,
			Available: ife.Available(),
		})
	case errors.Is(err, model.ErrValidation):
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, exposure.ErrMarketLimitExceeded), errors.Is(err, exposure.ErrEventLimitExceeded):
		writeError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, store.ErrStalePosition):
		writeError(w, "position changed concurrently, retry", http.StatusConflict)
	default:
		s.logger.Error("request failed", "err", err)
		writeError(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "err", err)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
