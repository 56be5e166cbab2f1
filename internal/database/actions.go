// internal/database/actions.go
package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/omi/internal/cache"
)

// InsertActions writes a batch of action records in one transaction. Each
// record also marks its game as in progress unless it already finished.
// Records already stored are skipped.
func InsertActions(ctx context.Context, recs []cache.GameActionRecord) error {
	if len(recs) == 0 {
		return nil
	}
	return pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, rec := range recs {
			payload, err := json.Marshal(rec.ActionPayload)
			if err != nil {
				return fmt.Errorf("marshal payload of %s: %w", rec.ActionType, err)
			}
			batch.Queue(`
				INSERT INTO games (id, status, start_time)
				VALUES ($1, 'in_progress', NOW())
				ON CONFLICT (id) DO NOTHING
			`, rec.GameID)
			batch.Queue(`
				INSERT INTO game_actions (game_id, action_index, actor_id, action_type, action_payload, created_at)
				VALUES ($1, $2, $3, $4, $5, $6)
				ON CONFLICT DO NOTHING
			`, rec.GameID, int64(rec.ActionIndex), rec.ActorID, rec.ActionType, payload, time.UnixMilli(rec.Timestamp))
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

// MarkGameAbandoned flags a game still in progress as abandoned. It reports
// whether a row changed.
func MarkGameAbandoned(ctx context.Context, gameID uuid.UUID) (bool, error) {
	var changed bool
	err := pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		tag, e := tx.Exec(ctx, `
			UPDATE games
			SET status = 'abandoned', end_time = NOW()
			WHERE id = $1 AND status = 'in_progress'
		`, gameID)
		if e != nil {
			return e
		}
		changed = tag.RowsAffected() > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("mark game %s abandoned: %w", gameID, err)
	}
	return changed, nil
}

// GameStatus returns the stored status of a game.
func GameStatus(ctx context.Context, gameID uuid.UUID) (string, error) {
	var status string
	if err := DB.QueryRow(ctx, `SELECT status FROM games WHERE id = $1`, gameID).Scan(&status); err != nil {
		return "", fmt.Errorf("game %s status: %w", gameID, err)
	}
	return status, nil
}
