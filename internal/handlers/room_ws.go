// internal/handlers/room_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/jason-s-yu/omi/internal/broadcast"
	"github.com/jason-s-yu/omi/internal/game"
	"github.com/jason-s-yu/omi/internal/middleware"
	"github.com/jason-s-yu/omi/internal/models"
	"github.com/jason-s-yu/omi/internal/replication"
	"github.com/jason-s-yu/omi/internal/room"
	"github.com/sirupsen/logrus"
)

const (
	subprotocol    = "omi"
	outboundBuffer = 64
	pingInterval   = 30 * time.Second
)

// clientMessage is everything a client may send. Unused fields are ignored.
type clientMessage struct {
	Type string `json:"type"`
	Seat *int   `json:"seat,omitempty"`
	Suit string `json:"suit,omitempty"`
	Card string `json:"card,omitempty"`
}

type errorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// roomClient bridges one websocket to the room topics. It forwards the
// shared topic and only its own seat's topic, following the seat the
// player holds in the latest snapshot.
type roomClient struct {
	rs     *RoomServer
	rm     *room.Room
	conn   *websocket.Conn
	id     models.Identity
	logger *logrus.Entry

	out    chan []byte
	lagged atomic.Bool

	mu      sync.Mutex
	seat    int
	shared  broadcast.Subscription
	seatSub broadcast.Subscription
}

// RoomWSHandler upgrades /room/ws/{id} and serves the client until either
// side goes away.
func (rs *RoomServer) RoomWSHandler(w http.ResponseWriter, r *http.Request) {
	remoteAddr := r.RemoteAddr
	rm, ok := rs.roomFromPath(w, r, "/room/ws/")
	if !ok {
		return
	}
	// Identity first, so a minted guest cookie rides on the upgrade response.
	id, err := rs.EnsureIdentity(w, r)
	if err != nil {
		rs.Logger.Warnf("identity for %s failed: %v", remoteAddr, err)
		http.Error(w, "could not establish identity", http.StatusInternalServerError)
		return
	}

	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{subprotocol},
		OriginPatterns: []string{"*"}, // Adjust in production
	})
	if err != nil {
		rs.Logger.Warnf("websocket accept error: %v", err)
		return
	}
	defer c.Close(websocket.StatusInternalError, "handler finished")

	if c.Subprotocol() != subprotocol {
		c.Close(BadSubprotocolError, "client must speak the omi subprotocol")
		return
	}
	if !rs.join(rm) {
		c.Close(RoomClosedError, "room is closed")
		return
	}
	defer rs.leave(rm)
	if rm.Closed() {
		c.Close(RoomClosedError, "room is closed")
		return
	}

	middleware.LogWebSocketConnect(rs.Logger, remoteAddr, r.URL.Path)
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	client := &roomClient{
		rs:     rs,
		rm:     rm,
		conn:   c,
		id:     id,
		logger: rs.Logger.WithFields(logrus.Fields{"room": rm.ID, "player": id.ID}),
		out:    make(chan []byte, outboundBuffer),
		seat:   -1,
	}
	if err := client.subscribe(ctx); err != nil {
		client.logger.Errorf("subscribe: %v", err)
		c.Close(websocket.StatusInternalError, "subscribe failed")
		return
	}
	defer client.unsubscribe()

	go client.writePump(ctx)
	rm.Resync(ctx, client.currentSeat())

	err = client.readPump(ctx)
	middleware.LogWebSocketDisconnect(rs.Logger, remoteAddr, r.URL.Path, err)
	if errors.Is(err, room.ErrClosed) {
		c.Close(RoomClosedError, "room is closed")
		return
	}
	c.Close(websocket.StatusNormalClosure, "")
}

func (rc *roomClient) subscribe(ctx context.Context) error {
	shared, err := rc.rs.bus().Subscribe(ctx, broadcast.RoomTopic(rc.rm.ID), rc.enqueue)
	if err != nil {
		return err
	}
	rc.mu.Lock()
	rc.shared = shared
	rc.mu.Unlock()
	return rc.followSeat(ctx, rc.rm.SeatOf(rc.id.ID))
}

func (rc *roomClient) unsubscribe() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.shared != nil {
		_ = rc.shared.Unsubscribe()
		rc.shared = nil
	}
	if rc.seatSub != nil {
		_ = rc.seatSub.Unsubscribe()
		rc.seatSub = nil
	}
}

// followSeat moves the private subscription to seat, or drops it when the
// player no longer holds one.
func (rc *roomClient) followSeat(ctx context.Context, seat int) error {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if seat == rc.seat {
		return nil
	}
	if rc.seatSub != nil {
		_ = rc.seatSub.Unsubscribe()
		rc.seatSub = nil
	}
	rc.seat = seat
	if seat < 0 {
		return nil
	}
	sub, err := rc.rs.bus().Subscribe(ctx, broadcast.SeatTopic(rc.rm.ID, seat), rc.enqueue)
	if err != nil {
		rc.seat = -1
		return err
	}
	rc.seatSub = sub
	rc.logger.WithField("seat", seat).Debug("following seat topic")
	return nil
}

func (rc *roomClient) currentSeat() int {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.seat
}

// enqueue runs on the broadcaster's delivery path, possibly while the
// room holds its lock, so it never blocks. A dropped message is made up
// for by a resync once the writer catches up.
func (rc *roomClient) enqueue(payload []byte) {
	select {
	case rc.out <- payload:
	default:
		rc.lagged.Store(true)
	}
}

func (rc *roomClient) send(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		rc.logger.Errorf("encode reply: %v", err)
		return
	}
	rc.enqueue(data)
}

func (rc *roomClient) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case data := <-rc.out:
			rc.track(ctx, data)
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := rc.conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				rc.logger.Warnf("write failed: %v", err)
				return
			}
			if len(rc.out) == 0 && rc.lagged.CompareAndSwap(true, false) {
				rc.logger.Debug("client lagged, resyncing")
				rc.rm.Resync(ctx, rc.currentSeat())
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			err := rc.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				rc.logger.Warnf("ping failed: %v", err)
				return
			}
		}
	}
}

// track follows the player's seat as snapshots go by.
func (rc *roomClient) track(ctx context.Context, data []byte) {
	m, err := replication.Decode(data)
	if err != nil || m.Type != replication.TypeFullState {
		return
	}
	seat := -1
	for _, s := range m.State.Seats {
		if s.Occupant != nil && s.Occupant.ID == rc.id.ID {
			seat = s.Seat
			break
		}
	}
	if seat == rc.currentSeat() {
		return
	}
	if err := rc.followSeat(ctx, seat); err != nil {
		rc.logger.Warnf("follow seat %d: %v", seat, err)
		return
	}
	if seat >= 0 {
		rc.rm.Resync(ctx, seat)
	}
}

// readPump turns client messages into intents until the connection ends.
// It returns room.ErrClosed if the room shut down underneath the client.
func (rc *roomClient) readPump(ctx context.Context) error {
	for {
		typ, msg, err := rc.conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || ctx.Err() != nil {
				return nil
			}
			return err
		}
		if typ != websocket.MessageText {
			continue
		}

		var cm clientMessage
		if err := json.Unmarshal(msg, &cm); err != nil {
			rc.send(errorMessage{Type: "error", Code: "bad_request", Message: "invalid JSON format"})
			continue
		}
		if err := rc.handle(ctx, cm); err != nil {
			if errors.Is(err, room.ErrClosed) {
				return err
			}
			rc.send(errorMessage{Type: "error", Code: codeOf(err), Message: err.Error()})
		}
	}
}

// errBadRequest marks a message that could not be read as an intent.
var errBadRequest = errors.New("bad request")

func codeOf(err error) string {
	if errors.Is(err, errBadRequest) {
		return "bad_request"
	}
	return room.Code(err)
}

func (rc *roomClient) handle(ctx context.Context, cm clientMessage) error {
	switch cm.Type {
	case "ping":
		rc.send(map[string]string{"type": "pong"})
		return nil
	case "resync":
		rc.rm.Resync(ctx, rc.currentSeat())
		return nil
	}

	in := room.Intent{Kind: room.IntentKind(cm.Type), Actor: rc.id, Seat: -1}
	if cm.Seat != nil {
		in.Seat = *cm.Seat
	}
	switch in.Kind {
	case room.IntentSit:
		if other := rc.rs.Rooms.RoomForPlayer(rc.id.ID); other != nil && other.ID != rc.rm.ID {
			return fmt.Errorf("%w: already seated in room %s", room.ErrNotAllowed, other.ID)
		}
	case room.IntentSelectTrump:
		suit, err := game.ParseSuit(cm.Suit)
		if err != nil {
			return err
		}
		in.Suit = suit
	case room.IntentPlayCard:
		card, err := game.ParseCard(cm.Card)
		if err != nil {
			return errors.Join(errBadRequest, err)
		}
		in.Card = card
	}
	return rc.rm.Submit(ctx, in)
}
