// internal/room/store.go
package room

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/jason-s-yu/omi/internal/models"
)

// Store holds the rooms this process is the authority for.
type Store struct {
	mu    sync.Mutex
	rooms map[uuid.UUID]*Room
}

func NewStore() *Store {
	return &Store{
		rooms: make(map[uuid.UUID]*Room),
	}
}

func (s *Store) AddRoom(r *Room) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[r.ID] = r
}

func (s *Store) GetRoom(id uuid.UUID) (*Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, exists := s.rooms[id]
	return r, exists
}

// DeleteRoom closes the room and forgets it.
func (s *Store) DeleteRoom(ctx context.Context, id uuid.UUID) {
	s.mu.Lock()
	r, ok := s.rooms[id]
	delete(s.rooms, id)
	s.mu.Unlock()
	if ok {
		r.Close(ctx)
	}
}

// RoomForPlayer returns the room in which the player holds a seat, or nil.
func (s *Store) RoomForPlayer(playerID string) *Room {
	for _, r := range s.snapshot() {
		if r.SeatOf(playerID) >= 0 {
			return r
		}
	}
	return nil
}

// Summaries lists every room, newest first.
func (s *Store) Summaries() []models.RoomSummary {
	rooms := s.snapshot()
	out := make([]models.RoomSummary, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, r.Summary())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// CloseAll shuts down every room, used at process exit.
func (s *Store) CloseAll(ctx context.Context) {
	for _, r := range s.snapshot() {
		s.DeleteRoom(ctx, r.ID)
	}
}

func (s *Store) snapshot() []*Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		out = append(out, r)
	}
	return out
}
