// internal/models/result.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// SeatResult is one participant of a finished game.
type SeatResult struct {
	Seat        int    `json:"seat"`
	PlayerID    string `json:"playerId"`
	DisplayName string `json:"displayName"`
	Bot         bool   `json:"bot"`
	Partnership string `json:"partnership"`
	Won         bool   `json:"won"`
}

// GameResult is what gets persisted when a session reaches game over.
type GameResult struct {
	GameID    uuid.UUID    `json:"gameId"`
	RoomID    uuid.UUID    `json:"roomId"`
	Winner    string       `json:"winner"`
	TokensA   int          `json:"tokensA"`
	TokensB   int          `json:"tokensB"`
	Rounds    int          `json:"rounds"`
	Seats     []SeatResult `json:"seats"`
	StartedAt time.Time    `json:"startedAt"`
	EndedAt   time.Time    `json:"endedAt"`
}
