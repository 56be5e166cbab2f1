// internal/handlers/presence.go
package handlers

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/omi/internal/room"
)

// DefaultIdleTimeout applies when RoomServer.IdleTimeout is zero.
const DefaultIdleTimeout = 10 * time.Minute

// presence counts the websockets attached to one room. gen invalidates an
// idle timer that fired while a client was joining.
type presence struct {
	conns int
	gen   uint64
	idle  *time.Timer
}

func (rs *RoomServer) idleTimeout() time.Duration {
	if rs.IdleTimeout > 0 {
		return rs.IdleTimeout
	}
	return DefaultIdleTimeout
}

// watch starts tracking a new room. A room nobody connects to is reaped
// after the idle timeout.
func (rs *RoomServer) watch(rm *room.Room) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	p := &presence{}
	rs.attached[rm.ID] = p
	rs.armLocked(rm.ID, p)
}

// join attaches a connection to the room. It reports false once the room
// has been reaped.
func (rs *RoomServer) join(rm *room.Room) bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	p, ok := rs.attached[rm.ID]
	if !ok {
		return false
	}
	p.conns++
	p.gen++
	if p.idle != nil {
		p.idle.Stop()
		p.idle = nil
	}
	return true
}

// leave detaches a connection. When the last one goes the room is reaped
// at once if no person holds a seat, otherwise after the idle timeout so
// seated players can reconnect.
func (rs *RoomServer) leave(rm *room.Room) {
	rs.mu.Lock()
	p, ok := rs.attached[rm.ID]
	if !ok {
		rs.mu.Unlock()
		return
	}
	p.conns--
	if p.conns > 0 {
		rs.mu.Unlock()
		return
	}
	if rm.HasHumans() {
		rs.armLocked(rm.ID, p)
		rs.mu.Unlock()
		return
	}
	delete(rs.attached, rm.ID)
	rs.mu.Unlock()
	rs.reap(rm.ID, "last client left and no player is seated")
}

func (rs *RoomServer) armLocked(id uuid.UUID, p *presence) {
	p.gen++
	gen := p.gen
	p.idle = time.AfterFunc(rs.idleTimeout(), func() {
		rs.mu.Lock()
		cur, ok := rs.attached[id]
		if !ok || cur != p || p.gen != gen || p.conns > 0 {
			rs.mu.Unlock()
			return
		}
		delete(rs.attached, id)
		rs.mu.Unlock()
		rs.reap(id, "idle")
	})
}

func (rs *RoomServer) reap(id uuid.UUID, reason string) {
	rs.Rooms.DeleteRoom(context.Background(), id)
	rs.Logger.WithField("room", id).Infof("room removed: %s", reason)
}

// forgetAll stops every idle timer, used at shutdown.
func (rs *RoomServer) forgetAll() {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	for id, p := range rs.attached {
		if p.idle != nil {
			p.idle.Stop()
		}
		delete(rs.attached, id)
	}
}
