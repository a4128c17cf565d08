package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id     TEXT PRIMARY KEY,
		amount NUMERIC NOT NULL DEFAULT 0
	)`,

	`CREATE TABLE IF NOT EXISTS bets (
		id           TEXT PRIMARY KEY,
		user_id      TEXT NOT NULL,
		event_id     TEXT NOT NULL,
		market_id    TEXT NOT NULL,
		match        TEXT NOT NULL DEFAULT '',
		selection    TEXT NOT NULL DEFAULT '',
		category     TEXT NOT NULL CHECK (category IN ('match_odds', 'bookmaker', 'fancy')),
		side         TEXT NOT NULL CHECK (side IN ('back', 'lay')),
		selection_id TEXT NOT NULL DEFAULT '',
		fancy_number NUMERIC,
		stake        NUMERIC NOT NULL CHECK (stake > 0),
		odds         NUMERIC NOT NULL CHECK (odds > 0),
		payout       NUMERIC NOT NULL,
		status       TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'won', 'lost')),
		created_at   TIMESTAMPTZ NOT NULL,
		settled_at   TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_bets_event_status ON bets(event_id, status)`,
	`CREATE INDEX IF NOT EXISTS idx_bets_user_status ON bets(user_id, status)`,
	`CREATE INDEX IF NOT EXISTS idx_bets_market ON bets(market_id)`,

	// Append-only: rows are never updated.
	`CREATE TABLE IF NOT EXISTS positions (
		seq          BIGSERIAL PRIMARY KEY,
		id           TEXT NOT NULL UNIQUE,
		prev_id      TEXT NOT NULL DEFAULT '',
		user_id      TEXT NOT NULL,
		event_id     TEXT NOT NULL,
		market_id    TEXT NOT NULL,
		category     TEXT NOT NULL,
		selection_id TEXT NOT NULL,
		fancy_number NUMERIC,
		profit       NUMERIC NOT NULL,
		loss         NUMERIC NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_positions_key ON positions(user_id, event_id, market_id, created_at DESC, seq DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_positions_event ON positions(event_id)`,
}

// Migrate creates the tables and indexes if they do not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for i, stmt := range migrations {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
