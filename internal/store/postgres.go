package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/betx/exchange-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const betColumns = `id, user_id, event_id, market_id, match, selection, category, side,
	selection_id, fancy_number::TEXT, stake::TEXT, odds::TEXT, payout::TEXT,
	status, created_at, settled_at`

const positionColumns = `id, prev_id, user_id, event_id, market_id, category, selection_id,
	fancy_number::TEXT, profit::TEXT, loss::TEXT, created_at`

// --- Bets ---

func (s *PostgresStore) ListBets(ctx context.Context, f BetFilter) ([]model.Bet, error) {
	var where []string
	var args []any
	add := func(col, val string) {
		if val == "" {
			return
		}
		args = append(args, val)
		where = append(where, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	add("user_id", f.UserID)
	add("event_id", f.EventID)
	add("market_id", f.MarketID)
	add("selection_id", f.SelectionID)
	add("category", string(f.Category))
	add("side", string(f.Side))
	add("status", string(f.Status))

	query := `SELECT ` + betColumns + ` FROM bets`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list bets: %w", err)
	}
	defer rows.Close()

	return scanBets(rows)
}

func (s *PostgresStore) PendingEventIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT event_id FROM bets WHERE status = 'pending' ORDER BY event_id`)
	if err != nil {
		return nil, fmt.Errorf("pending events: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// --- Positions ---

func (s *PostgresStore) LatestPosition(ctx context.Context, key model.PositionKey) (*model.PositionSnapshot, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+positionColumns+`
		 FROM positions
		 WHERE user_id = $1 AND event_id = $2 AND market_id = $3
		 ORDER BY created_at DESC, seq DESC LIMIT 1`,
		key.UserID, key.EventID, key.MarketID)

	snap, err := scanPosition(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest position %s: %w", key, err)
	}
	return snap, nil
}

func (s *PostgresStore) AppendPosition(ctx context.Context, snap *model.PositionSnapshot) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return appendPosition(ctx, tx, snap)
	})
}

// appendPosition serializes appends per key with a transaction-scoped
// advisory lock, then checks that PrevID is still the chain head.
func appendPosition(ctx context.Context, tx pgx.Tx, snap *model.PositionSnapshot) error {
	key := snap.Key()
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key.String()); err != nil {
		return fmt.Errorf("lock position %s: %w", key, err)
	}

	var head string
	err := tx.QueryRow(ctx,
		`SELECT id FROM positions
		 WHERE user_id = $1 AND event_id = $2 AND market_id = $3
		 ORDER BY created_at DESC, seq DESC LIMIT 1`,
		key.UserID, key.EventID, key.MarketID).Scan(&head)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("read position head %s: %w", key, err)
	}
	if head != snap.PrevID {
		return ErrStalePosition
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO positions (id, prev_id, user_id, event_id, market_id, category, selection_id,
		                        fancy_number, profit, loss, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8::NUMERIC, $9::NUMERIC, $10::NUMERIC, $11)`,
		snap.ID, snap.PrevID, snap.UserID, snap.EventID, snap.MarketID,
		string(snap.Category), snap.SelectionID, decimalPtrText(snap.FancyNumber),
		snap.Profit.String(), snap.Loss.String(), snap.CreatedAt,
	)
	return err
}

func (s *PostgresStore) PositionsByEvent(ctx context.Context, eventID string) ([]model.PositionSnapshot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionColumns+` FROM positions
		 WHERE event_id = $1 ORDER BY created_at, seq`, eventID)
	if err != nil {
		return nil, fmt.Errorf("positions by event %s: %w", eventID, err)
	}
	defer rows.Close()

	return scanPositions(rows)
}

func (s *PostgresStore) PositionsByUserEvent(ctx context.Context, userID, eventID string) ([]model.PositionSnapshot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionColumns+` FROM positions
		 WHERE user_id = $1 AND event_id = $2 ORDER BY created_at, seq`, userID, eventID)
	if err != nil {
		return nil, fmt.Errorf("positions by user %s event %s: %w", userID, eventID, err)
	}
	defer rows.Close()

	return scanPositions(rows)
}

// --- Balances ---

func (s *PostgresStore) GetBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	var amount string
	err := s.pool.QueryRow(ctx, `SELECT amount::TEXT FROM users WHERE id = $1`, userID).Scan(&amount)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, ErrNotFound
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("get balance %s: %w", userID, err)
	}
	return decimal.NewFromString(amount)
}

func (s *PostgresStore) IncrementBalances(ctx context.Context, deltas map[string]decimal.Decimal) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return incrementBalances(ctx, tx, deltas)
	})
}

func incrementBalances(ctx context.Context, tx pgx.Tx, deltas map[string]decimal.Decimal) error {
	if len(deltas) == 0 {
		return nil
	}
	ids := make([]string, 0, len(deltas))
	amounts := make([]string, 0, len(deltas))
	for id, delta := range deltas {
		ids = append(ids, id)
		amounts = append(amounts, delta.String())
	}
	_, err := tx.Exec(ctx,
		`INSERT INTO users (id, amount)
		 SELECT u.id, u.delta::NUMERIC FROM unnest($1::TEXT[], $2::TEXT[]) AS u(id, delta)
		 ON CONFLICT (id) DO UPDATE SET amount = users.amount + EXCLUDED.amount`,
		ids, amounts)
	if err != nil {
		return fmt.Errorf("increment balances: %w", err)
	}
	return nil
}

// --- Combined writes ---

func (s *PostgresStore) RecordBet(ctx context.Context, bet *model.Bet, snap *model.PositionSnapshot) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := appendPosition(ctx, tx, snap); err != nil {
			return err
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO bets (id, user_id, event_id, market_id, match, selection, category, side,
			                   selection_id, fancy_number, stake, odds, payout, status, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::NUMERIC, $11::NUMERIC, $12::NUMERIC,
			         $13::NUMERIC, $14, $15)`,
			bet.ID, bet.UserID, bet.EventID, bet.MarketID, bet.Match, bet.Selection,
			string(bet.Category), string(bet.Side), bet.SelectionID, decimalPtrText(bet.FancyNumber),
			bet.Stake.String(), bet.Odds.String(), bet.Payout.String(),
			string(bet.Status), bet.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert bet: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) ApplySettlement(ctx context.Context, st Settlement) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if len(st.Outcomes) > 0 {
			ids := make([]string, len(st.Outcomes))
			statuses := make([]string, len(st.Outcomes))
			for i, o := range st.Outcomes {
				ids[i] = o.BetID
				statuses[i] = string(o.Status)
			}
			tag, err := tx.Exec(ctx,
				`UPDATE bets SET status = u.status, settled_at = NOW()
				 FROM unnest($1::TEXT[], $2::TEXT[]) AS u(id, status)
				 WHERE bets.id = u.id AND bets.status = 'pending'`,
				ids, statuses)
			if err != nil {
				return fmt.Errorf("update bet statuses: %w", err)
			}
			if tag.RowsAffected() != int64(len(ids)) {
				return ErrAlreadySettled
			}
		}
		return incrementBalances(ctx, tx, st.Deltas)
	})
}

// --- Scanning ---

type pgxRow interface {
	Scan(dest ...any) error
}

type pgxRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanBets(rows pgxRows) ([]model.Bet, error) {
	var bets []model.Bet
	for rows.Next() {
		var b model.Bet
		var category, side, status string
		var fancy *string
		var stake, odds, payout string

		if err := rows.Scan(&b.ID, &b.UserID, &b.EventID, &b.MarketID, &b.Match, &b.Selection,
			&category, &side, &b.SelectionID, &fancy, &stake, &odds, &payout,
			&status, &b.CreatedAt, &b.SettledAt); err != nil {
			return nil, err
		}

		b.Category = model.Category(category)
		b.Side = model.Side(side)
		b.Status = model.BetStatus(status)
		b.FancyNumber = parseDecimalPtr(fancy)
		b.Stake, _ = decimal.NewFromString(stake)
		b.Odds, _ = decimal.NewFromString(odds)
		b.Payout, _ = decimal.NewFromString(payout)

		bets = append(bets, b)
	}
	return bets, rows.Err()
}

func scanPosition(row pgxRow) (*model.PositionSnapshot, error) {
	var p model.PositionSnapshot
	var category string
	var fancy *string
	var profit, loss string

	if err := row.Scan(&p.ID, &p.PrevID, &p.UserID, &p.EventID, &p.MarketID, &category,
		&p.SelectionID, &fancy, &profit, &loss, &p.CreatedAt); err != nil {
		return nil, err
	}

	p.Category = model.Category(category)
	p.FancyNumber = parseDecimalPtr(fancy)
	p.Profit, _ = decimal.NewFromString(profit)
	p.Loss, _ = decimal.NewFromString(loss)
	return &p, nil
}

func scanPositions(rows pgxRows) ([]model.PositionSnapshot, error) {
	var positions []model.PositionSnapshot
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, *p)
	}
	return positions, rows.Err()
}

func decimalPtrText(v *decimal.Decimal) *string {
	if v == nil {
		return nil
	}
	s := v.String()
	return &s
}

func parseDecimalPtr(s *string) *decimal.Decimal {
	if s == nil {
		return nil
	}
	v, err := decimal.NewFromString(*s)
	if err != nil {
		return nil
	}
	return &v
}
