// internal/database/profile.go
package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/omi/internal/models"
	"github.com/jason-s-yu/omi/internal/rating"
)

// ErrProfileNotFound is returned when no profile row exists for an id.
var ErrProfileNotFound = errors.New("profile not found")

// Profile is a stored player with their partnership rating.
type Profile struct {
	models.Identity
	Rating      rating.Rating `json:"rating"`
	GamesPlayed int           `json:"gamesPlayed"`
}

// UpsertProfile stores the identity, keeping any existing rating.
func UpsertProfile(ctx context.Context, id models.Identity) error {
	q := `
		INSERT INTO profiles (id, display_name, avatar_ref)
		VALUES ($1, $2, $3)
		ON CONFLICT (id)
		DO UPDATE SET display_name = EXCLUDED.display_name,
		              avatar_ref = EXCLUDED.avatar_ref,
		              updated_at = NOW()
	`
	return pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q, id.ID, id.DisplayName, id.AvatarRef)
		return err
	})
}

// GetProfile loads one profile.
func GetProfile(ctx context.Context, id string) (*Profile, error) {
	return scanProfile(DB.QueryRow(ctx, `
		SELECT id, display_name, avatar_ref, rating, rd, sigma, games_played
		FROM profiles
		WHERE id = $1
	`, id))
}

// LookupIdentity is the profile collaborator: it resolves a player id to
// the display triple shown at the table.
func LookupIdentity(ctx context.Context, id string) (models.Identity, error) {
	p, err := GetProfile(ctx, id)
	if err != nil {
		return models.Identity{}, err
	}
	return p.Identity, nil
}

func scanProfile(row pgx.Row) (*Profile, error) {
	var p Profile
	err := row.Scan(
		&p.ID, &p.DisplayName, &p.AvatarRef,
		&p.Rating.Elo, &p.Rating.RD, &p.Rating.Sigma,
		&p.GamesPlayed,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan profile: %w", err)
	}
	return &p, nil
}

// Profiles adapts the package functions to the handlers' directory.
type Profiles struct{}

func (Profiles) LookupIdentity(ctx context.Context, id string) (models.Identity, error) {
	return LookupIdentity(ctx, id)
}

func (Profiles) UpsertProfile(ctx context.Context, id models.Identity) error {
	return UpsertProfile(ctx, id)
}
