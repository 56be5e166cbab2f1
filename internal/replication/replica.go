// internal/replication/replica.go
package replication

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jason-s-yu/omi/internal/broadcast"
	"github.com/jason-s-yu/omi/internal/cache"
	"github.com/jason-s-yu/omi/internal/game"
	"github.com/sirupsen/logrus"
)

// ErrStaleTransition means an incoming message is not newer than what the
// replica already holds. It is dropped without telling anyone.
var ErrStaleTransition = errors.New("stale transition")

// maxEvents bounds the advisory event log a replica keeps.
const maxEvents = 64

// Replica is a passive mirror of one room. It only ever replaces its
// state with a strictly newer snapshot.
type Replica struct {
	room   uuid.UUID
	seat   int
	bus    broadcast.Broadcaster
	store  cache.SnapshotStore
	logger *logrus.Entry

	mu          sync.RWMutex
	state       *game.PublicState
	hand        []game.Card
	handVersion uint64
	haveHand    bool
	events      []game.Event
	subs        []broadcast.Subscription
	onUpdate    func(Message)
}

// NewReplica mirrors room from the given seat's point of view; seat < 0
// for an observer with no hand. store may be nil.
func NewReplica(room uuid.UUID, seat int, bus broadcast.Broadcaster, store cache.SnapshotStore, logger *logrus.Logger) *Replica {
	return &Replica{
		room:   room,
		seat:   seat,
		bus:    bus,
		store:  store,
		logger: logger.WithFields(logrus.Fields{"room": room, "seat": seat, "component": "replica"}),
	}
}

// OnUpdate registers a callback run after every accepted message. It is
// called without the replica lock held.
func (r *Replica) OnUpdate(fn func(Message)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onUpdate = fn
}

// Apply folds one message into the mirror.
func (r *Replica) Apply(m Message) error {
	if m.RoomID != r.room {
		return fmt.Errorf("message for room %s delivered to replica of %s", m.RoomID, r.room)
	}

	r.mu.Lock()
	switch m.Type {
	case TypeFullState:
		if m.State == nil {
			r.mu.Unlock()
			return fmt.Errorf("fullState without session")
		}
		if r.state != nil && m.Version <= r.state.Version {
			have := r.state.Version
			r.mu.Unlock()
			return fmt.Errorf("%w: have %d, got %d", ErrStaleTransition, have, m.Version)
		}
		st := *m.State
		st.Version = m.Version
		r.state = &st
	case TypeHand:
		if m.Seat == nil || *m.Seat != r.seat {
			r.mu.Unlock()
			return fmt.Errorf("hand for another seat")
		}
		if r.haveHand && m.Version <= r.handVersion {
			have := r.handVersion
			r.mu.Unlock()
			return fmt.Errorf("%w: hand at %d, got %d", ErrStaleTransition, have, m.Version)
		}
		r.hand = append([]game.Card(nil), m.Cards...)
		r.handVersion = m.Version
		r.haveHand = true
	case TypeEvent:
		if m.Event == nil {
			r.mu.Unlock()
			return fmt.Errorf("event without body")
		}
		r.events = append(r.events, *m.Event)
		if len(r.events) > maxEvents {
			r.events = append([]game.Event(nil), r.events[len(r.events)-maxEvents:]...)
		}
	case TypeResyncRequest:
		// Answered by the authority, not by replicas.
		r.mu.Unlock()
		return nil
	default:
		r.mu.Unlock()
		return fmt.Errorf("unknown message type %q", m.Type)
	}
	fn := r.onUpdate
	r.mu.Unlock()

	if fn != nil {
		fn(m)
	}
	return nil
}

// Start subscribes to the shared topic and, for a seated replica, its own
// seat topic.
func (r *Replica) Start(ctx context.Context) error {
	topics := []string{broadcast.RoomTopic(r.room)}
	if r.seat >= 0 {
		topics = append(topics, broadcast.SeatTopic(r.room, r.seat))
	}
	for _, topic := range topics {
		sub, err := r.bus.Subscribe(ctx, topic, r.receive)
		if err != nil {
			r.Stop()
			return fmt.Errorf("replica subscribe %s: %w", topic, err)
		}
		r.mu.Lock()
		r.subs = append(r.subs, sub)
		r.mu.Unlock()
	}
	return nil
}

func (r *Replica) receive(payload []byte) {
	m, err := Decode(payload)
	if err != nil {
		r.logger.Warnf("dropping undecodable message: %v", err)
		return
	}
	if err := r.Apply(m); err != nil && !errors.Is(err, ErrStaleTransition) {
		r.logger.Warnf("dropping %s message: %v", m.Type, err)
	}
}

// Bootstrap seeds the mirror from the snapshot store, if any, and then asks
// the authority for anything newer.
func (r *Replica) Bootstrap(ctx context.Context) error {
	if r.store != nil {
		snap, err := r.store.LoadSnapshot(ctx, r.room)
		switch {
		case err == nil:
			var st game.PublicState
			if err := json.Unmarshal(snap.Data, &st); err != nil {
				r.logger.Warnf("ignoring unreadable stored snapshot: %v", err)
				break
			}
			st.Version = snap.Version
			if err := r.Apply(FullState(r.room, st)); err != nil && !errors.Is(err, ErrStaleTransition) {
				return err
			}
		case errors.Is(err, cache.ErrNoSnapshot):
		default:
			r.logger.Warnf("snapshot store unavailable: %v", err)
		}
	}

	data, err := Encode(ResyncRequest(r.room, r.Version(), r.seat))
	if err != nil {
		return err
	}
	return r.bus.Publish(ctx, broadcast.RoomTopic(r.room), data)
}

// Stop drops every subscription.
func (r *Replica) Stop() {
	r.mu.Lock()
	subs := r.subs
	r.subs = nil
	r.mu.Unlock()
	for _, s := range subs {
		_ = s.Unsubscribe()
	}
}

// State returns the mirrored snapshot.
func (r *Replica) State() (game.PublicState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.state == nil {
		return game.PublicState{}, false
	}
	return *r.state, true
}

// Version is the mirrored stateVersion, zero before any snapshot.
func (r *Replica) Version() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.state == nil {
		return 0
	}
	return r.state.Version
}

// Hand returns the seat's cards as last delivered.
func (r *Replica) Hand() []game.Card {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]game.Card(nil), r.hand...)
}

// Events returns the recent advisory events, oldest first.
func (r *Replica) Events() []game.Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]game.Event(nil), r.events...)
}
