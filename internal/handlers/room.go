// internal/handlers/room.go
package handlers

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/omi/internal/auth"
	"github.com/jason-s-yu/omi/internal/broadcast"
	"github.com/jason-s-yu/omi/internal/game"
	"github.com/jason-s-yu/omi/internal/middleware"
	"github.com/jason-s-yu/omi/internal/room"
	"github.com/sirupsen/logrus"
)

// RoomServer holds the rooms this process is the authority for and the
// options every new room is wired with.
type RoomServer struct {
	Rooms    *room.Store
	Options  room.Options
	Profiles Profiles
	Logger   *logrus.Logger

	// IdleTimeout is how long a room with no connected client survives.
	// Set it before serving.
	IdleTimeout time.Duration

	mu       sync.Mutex
	attached map[uuid.UUID]*presence
}

func NewRoomServer(opts room.Options, profiles Profiles) *RoomServer {
	return &RoomServer{
		Rooms:    room.NewStore(),
		Options:  opts,
		Profiles: profiles,
		Logger:   opts.Logger,
		attached: make(map[uuid.UUID]*presence),
	}
}

func (rs *RoomServer) bus() broadcast.Broadcaster {
	return rs.Options.Bus
}

// CreateRoom starts a new room hosted by hostID.
func (rs *RoomServer) CreateRoom(ctx context.Context, hostID string) (*room.Room, error) {
	rm := room.New(uuid.New(), hostID, rs.Options)
	if err := rm.Start(ctx); err != nil {
		return nil, err
	}
	rs.Rooms.AddRoom(rm)
	rs.watch(rm)
	rs.Logger.WithField("room", rm.ID).Infof("room created by %s", hostID)
	return rm, nil
}

// CreateRoomHandler creates a room with the caller as host.
func (rs *RoomServer) CreateRoomHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id, err := rs.EnsureIdentity(w, r)
	if err != nil {
		http.Error(w, "could not establish identity", http.StatusInternalServerError)
		return
	}
	rm, err := rs.CreateRoom(r.Context(), id.ID)
	if err != nil {
		rs.Logger.Errorf("create room: %v", err)
		http.Error(w, "could not create room", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, rm.Summary())
}

// ListRoomsHandler returns every room, newest first.
func (rs *RoomServer) ListRoomsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, rs.Rooms.Summaries())
}

type stateResponse struct {
	State  game.PublicState `json:"session"`
	GameID uuid.UUID        `json:"gameId"`
	Seat   *int             `json:"seat,omitempty"`
	Hand   []game.Card      `json:"hand,omitempty"`
}

// RoomStateHandler returns the public snapshot, plus the caller's own hand
// when they are seated.
func (rs *RoomServer) RoomStateHandler(w http.ResponseWriter, r *http.Request) {
	rm, ok := rs.roomFromPath(w, r, "/room/state/")
	if !ok {
		return
	}
	resp := stateResponse{State: rm.State(), GameID: rm.GameID()}
	token := extractCookieToken(r.Header.Get("Cookie"), authCookie)
	if id, err := auth.AuthenticateJWT(token); err == nil {
		if seat, hand := rm.HandOf(id.ID); seat >= 0 {
			resp.Seat = &seat
			resp.Hand = hand
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// roomFromPath parses the room id after prefix and looks it up, writing
// the HTTP error itself when it fails.
func (rs *RoomServer) roomFromPath(w http.ResponseWriter, r *http.Request, prefix string) (*room.Room, bool) {
	raw := strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/")
	if raw == "" {
		http.Error(w, "missing room_id", http.StatusBadRequest)
		return nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		http.Error(w, "invalid room_id", http.StatusBadRequest)
		return nil, false
	}
	rm, exists := rs.Rooms.GetRoom(id)
	if !exists {
		http.Error(w, "room does not exist", http.StatusNotFound)
		return nil, false
	}
	return rm, true
}

// Shutdown closes every room.
func (rs *RoomServer) Shutdown(ctx context.Context) {
	rs.forgetAll()
	rs.Rooms.CloseAll(ctx)
}

// Register mounts every room endpoint on mux behind the access log.
func (rs *RoomServer) Register(mux *http.ServeMux) {
	logged := middleware.LogMiddleware(rs.Logger)
	mux.Handle("/identity", logged(http.HandlerFunc(rs.IdentityHandler)))
	mux.Handle("/room/create", logged(http.HandlerFunc(rs.CreateRoomHandler)))
	mux.Handle("/room/list", logged(http.HandlerFunc(rs.ListRoomsHandler)))
	mux.Handle("/room/state/", logged(http.HandlerFunc(rs.RoomStateHandler)))
	mux.Handle("/room/ws/", logged(http.HandlerFunc(rs.RoomWSHandler)))
}
