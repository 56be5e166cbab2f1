// internal/models/room.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// RoomSummary is the listing view of a room returned by the HTTP endpoints.
type RoomSummary struct {
	ID        uuid.UUID `json:"id"`
	HostID    string    `json:"hostId"`
	Phase     string    `json:"phase"`
	Seated    int       `json:"seated"`
	Version   uint64    `json:"stateVersion"`
	CreatedAt time.Time `json:"createdAt"`
}
