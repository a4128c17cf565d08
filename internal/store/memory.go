package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/betx/exchange-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu        sync.RWMutex
	bets      []model.Bet
	betIndex  map[string]int
	positions []model.PositionSnapshot
	latest    map[model.PositionKey]int
	balances  map[string]decimal.Decimal
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		betIndex: make(map[string]int),
		latest:   make(map[model.PositionKey]int),
		balances: make(map[string]decimal.Decimal),
	}
}

// --- Bets ---

func (s *MemoryStore) ListBets(_ context.Context, f BetFilter) ([]model.Bet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Bet
	for i := len(s.bets) - 1; i >= 0; i-- {
		if b := s.bets[i]; matches(f, b) {
			result = append(result, b)
		}
	}
	return result, nil
}

func matches(f BetFilter, b model.Bet) bool {
	switch {
	case f.UserID != "" && b.UserID != f.UserID,
		f.EventID != "" && b.EventID != f.EventID,
		f.MarketID != "" && b.MarketID != f.MarketID,
		f.SelectionID != "" && b.SelectionID != f.SelectionID,
		f.Category != "" && b.Category != f.Category,
		f.Side != "" && b.Side != f.Side,
		f.Status != "" && b.Status != f.Status:
		return false
	}
	return true
}

func (s *MemoryStore) PendingEventIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	var ids []string
	for _, b := range s.bets {
		if b.Status == model.StatusPending && !seen[b.EventID] {
			seen[b.EventID] = true
			ids = append(ids, b.EventID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// --- Positions ---

func (s *MemoryStore) LatestPosition(_ context.Context, key model.PositionKey) (*model.PositionSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.latest[key]
	if !ok {
		return nil, ErrNotFound
	}
	snap := s.positions[i]
	return &snap, nil
}

func (s *MemoryStore) AppendPosition(_ context.Context, snap *model.PositionSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.appendLocked(snap)
}

func (s *MemoryStore) appendLocked(snap *model.PositionSnapshot) error {
	key := snap.Key()
	current := ""
	if i, ok := s.latest[key]; ok {
		current = s.positions[i].ID
	}
	if current != snap.PrevID {
		return ErrStalePosition
	}
	s.positions = append(s.positions, *snap)
	s.latest[key] = len(s.positions) - 1
	return nil
}

func (s *MemoryStore) PositionsByEvent(_ context.Context, eventID string) ([]model.PositionSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.PositionSnapshot
	for _, p := range s.positions {
		if p.EventID == eventID {
			result = append(result, p)
		}
	}
	return result, nil
}

func (s *MemoryStore) PositionsByUserEvent(_ context.Context, userID, eventID string) ([]model.PositionSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.PositionSnapshot
	for _, p := range s.positions {
		if p.UserID == userID && p.EventID == eventID {
			result = append(result, p)
		}
	}
	return result, nil
}

// --- Balances ---

func (s *MemoryStore) GetBalance(_ context.Context, userID string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	amount, ok := s.balances[userID]
	if !ok {
		return decimal.Zero, ErrNotFound
	}
	return amount, nil
}

// IncrementBalances creates unknown users with the delta as their amount.
func (s *MemoryStore) IncrementBalances(_ context.Context, deltas map[string]decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for userID, delta := range deltas {
		s.balances[userID] = s.balances[userID].Add(delta)
	}
	return nil
}

// --- Combined writes ---

func (s *MemoryStore) RecordBet(_ context.Context, bet *model.Bet, snap *model.PositionSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.appendLocked(snap); err != nil {
		return err
	}
	s.bets = append(s.bets, *bet)
	s.betIndex[bet.ID] = len(s.bets) - 1
	return nil
}

func (s *MemoryStore) ApplySettlement(_ context.Context, st Settlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Check everything first so a rejected settlement writes nothing.
	for _, o := range st.Outcomes {
		i, ok := s.betIndex[o.BetID]
		if !ok {
			return ErrNotFound
		}
		if s.bets[i].Status != model.StatusPending {
			return ErrAlreadySettled
		}
	}

	now := time.Now().UTC()
	for _, o := range st.Outcomes {
		b := &s.bets[s.betIndex[o.BetID]]
		b.Status = o.Status
		b.SettledAt = &now
	}
	for userID, delta := range st.Deltas {
		s.balances[userID] = s.balances[userID].Add(delta)
	}
	return nil
}
