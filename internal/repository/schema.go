package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is the engine's DDL. Statements are idempotent so Bootstrap can
// run on every startup.
const Schema = `
CREATE TABLE IF NOT EXISTS game_data (
	game_id    TEXT NOT NULL,
	child_id   TEXT NOT NULL,
	data       JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (game_id, child_id)
);

CREATE TABLE IF NOT EXISTS unlocks (
	game_id        TEXT NOT NULL,
	child_id       TEXT NOT NULL,
	achievement_id TEXT NOT NULL,
	unlocked_at    TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (game_id, child_id, achievement_id)
);

CREATE TABLE IF NOT EXISTS accounts (
	child_id   TEXT PRIMARY KEY,
	balance    BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS transactions (
	id            UUID PRIMARY KEY,
	child_id      TEXT NOT NULL,
	amount        BIGINT NOT NULL,
	reason        TEXT NOT NULL,
	balance_after BIGINT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_transactions_child ON transactions (child_id, created_at DESC);

CREATE TABLE IF NOT EXISTS approvals (
	id            UUID PRIMARY KEY,
	game_id       TEXT NOT NULL,
	child_id      TEXT NOT NULL,
	game_name     TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL,
	restriction   JSONB,
	requested_at  TIMESTAMPTZ NOT NULL,
	decided_at    TIMESTAMPTZ,
	guardian_note TEXT NOT NULL DEFAULT '',
	UNIQUE (game_id, child_id)
);

CREATE TABLE IF NOT EXISTS play_minutes (
	child_id TEXT NOT NULL,
	day      DATE NOT NULL,
	minutes  INT NOT NULL DEFAULT 0,
	PRIMARY KEY (child_id, day)
);

CREATE TABLE IF NOT EXISTS child_stats (
	child_id      TEXT PRIMARY KEY,
	last_play_day DATE
);

CREATE TABLE IF NOT EXISTS sync_items (
	id              UUID PRIMARY KEY,
	kind            TEXT NOT NULL,
	idempotency_key TEXT NOT NULL,
	payload         JSONB NOT NULL,
	attempts        INT NOT NULL DEFAULT 0,
	next_attempt_at TIMESTAMPTZ NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sync_items_due ON sync_items (next_attempt_at);
`

// Bootstrap applies the schema to the connected database.
func Bootstrap(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
