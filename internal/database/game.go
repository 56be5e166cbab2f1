// internal/database/game.go
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/omi/internal/models"
	"github.com/jason-s-yu/omi/internal/rating"
)

// Results adapts the package functions to the room's result recorder.
type Results struct{}

func (Results) RecordGameResult(ctx context.Context, res models.GameResult) error {
	return RecordGameResult(ctx, res)
}

// RecordGameResult persists the final outcome of a game and updates the
// ratings of every human seat in one transaction. Bots are recorded but
// never rated, and a partnership made only of bots rates nobody.
func RecordGameResult(ctx context.Context, res models.GameResult) error {
	err := pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		upsertGame := `
			INSERT INTO games (id, room_id, status, winner, tokens_a, tokens_b, rounds, start_time, end_time)
			VALUES ($1, $2, 'completed', $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO UPDATE SET
				status = 'completed', winner = $3, tokens_a = $4, tokens_b = $5,
				rounds = $6, start_time = COALESCE(games.start_time, $7), end_time = $8
		`
		if _, e := tx.Exec(ctx, upsertGame,
			res.GameID, res.RoomID, res.Winner, res.TokensA, res.TokensB, res.Rounds,
			nullTime(res.StartedAt), nullTime(res.EndedAt),
		); e != nil {
			return fmt.Errorf("upsert game: %w", e)
		}

		old, err := lockRatings(ctx, tx, res.Seats)
		if err != nil {
			return err
		}
		updated := rateSeats(res.Seats, old)

		for _, sr := range res.Seats {
			var oldElo, newElo *float64
			if r, ok := old[sr.Seat]; ok {
				oldElo = &r.Elo
				n := updated[sr.Seat]
				newElo = &n.Elo
				if _, e := tx.Exec(ctx, `
					UPDATE profiles
					SET rating = $1, rd = $2, sigma = $3, games_played = games_played + 1, updated_at = NOW()
					WHERE id = $4
				`, n.Elo, n.RD, n.Sigma, sr.PlayerID); e != nil {
					return fmt.Errorf("update rating of %s: %w", sr.PlayerID, e)
				}
			}
			q := `
				INSERT INTO game_results (game_id, seat, player_id, display_name, is_bot, partnership, did_win, old_rating, new_rating)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
				ON CONFLICT (game_id, seat)
				DO UPDATE SET player_id = $3, display_name = $4, is_bot = $5, partnership = $6,
				              did_win = $7, old_rating = $8, new_rating = $9
			`
			if _, e := tx.Exec(ctx, q,
				res.GameID, sr.Seat, sr.PlayerID, sr.DisplayName, sr.Bot, sr.Partnership, sr.Won, oldElo, newElo,
			); e != nil {
				return fmt.Errorf("insert result seat %d: %w", sr.Seat, e)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("tx record game %s: %w", res.GameID, err)
	}
	return nil
}

// lockRatings loads the current rating of each human seat, creating missing
// profiles with the default rating. Rows stay locked until commit.
func lockRatings(ctx context.Context, tx pgx.Tx, seats []models.SeatResult) (map[int]rating.Rating, error) {
	out := make(map[int]rating.Rating)
	for _, sr := range seats {
		if sr.Bot || sr.PlayerID == "" {
			continue
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO profiles (id, display_name) VALUES ($1, $2)
			ON CONFLICT (id) DO NOTHING
		`, sr.PlayerID, sr.DisplayName); err != nil {
			return nil, fmt.Errorf("ensure profile %s: %w", sr.PlayerID, err)
		}
		var r rating.Rating
		if err := tx.QueryRow(ctx, `
			SELECT rating, rd, sigma FROM profiles WHERE id = $1 FOR UPDATE
		`, sr.PlayerID).Scan(&r.Elo, &r.RD, &r.Sigma); err != nil {
			return nil, fmt.Errorf("load rating of %s: %w", sr.PlayerID, err)
		}
		out[sr.Seat] = r
	}
	return out, nil
}

// rateSeats splits the rated seats into partnerships and applies one
// Glicko-2 update. The result is keyed by seat.
func rateSeats(seats []models.SeatResult, old map[int]rating.Rating) map[int]rating.Rating {
	var aSeats, bSeats []int
	var a, b []rating.Rating
	aWon := false
	for _, sr := range seats {
		r, ok := old[sr.Seat]
		if !ok {
			continue
		}
		if sr.Partnership == "A" {
			aSeats = append(aSeats, sr.Seat)
			a = append(a, r)
			aWon = sr.Won
		} else {
			bSeats = append(bSeats, sr.Seat)
			b = append(b, r)
			aWon = !sr.Won
		}
	}
	newA, newB := rating.UpdatePartnerships(a, b, aWon)

	out := make(map[int]rating.Rating, len(old))
	for i, seat := range aSeats {
		out[seat] = newA[i]
	}
	for i, seat := range bSeats {
		out[seat] = newB[i]
	}
	return out
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
