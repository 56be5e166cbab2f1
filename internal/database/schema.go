// internal/database/schema.go
package database

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS profiles (
		id            TEXT PRIMARY KEY,
		display_name  TEXT NOT NULL,
		avatar_ref    TEXT NOT NULL DEFAULT '',
		rating        DOUBLE PRECISION NOT NULL DEFAULT 1500,
		rd            DOUBLE PRECISION NOT NULL DEFAULT 350,
		sigma         DOUBLE PRECISION NOT NULL DEFAULT 0.06,
		games_played  INTEGER NOT NULL DEFAULT 0,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS games (
		id          UUID PRIMARY KEY,
		room_id     UUID,
		status      TEXT NOT NULL DEFAULT 'in_progress',
		winner      TEXT,
		tokens_a    INTEGER,
		tokens_b    INTEGER,
		rounds      INTEGER,
		start_time  TIMESTAMPTZ,
		end_time    TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS game_results (
		game_id      UUID NOT NULL REFERENCES games(id) ON DELETE CASCADE,
		seat         SMALLINT NOT NULL,
		player_id    TEXT NOT NULL,
		display_name TEXT NOT NULL DEFAULT '',
		is_bot       BOOLEAN NOT NULL DEFAULT FALSE,
		partnership  TEXT NOT NULL,
		did_win      BOOLEAN NOT NULL,
		old_rating   DOUBLE PRECISION,
		new_rating   DOUBLE PRECISION,
		PRIMARY KEY (game_id, seat)
	)`,
	`CREATE TABLE IF NOT EXISTS game_actions (
		game_id        UUID NOT NULL,
		action_index   BIGINT NOT NULL,
		actor_id       TEXT NOT NULL,
		action_type    TEXT NOT NULL,
		action_payload JSONB,
		created_at     TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (game_id, action_index, action_type)
	)`,
}

// EnsureSchema creates any missing tables.
func EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := DB.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
