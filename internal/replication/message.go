// internal/replication/message.go
package replication

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jason-s-yu/omi/internal/game"
)

// MessageType tags a broadcast envelope.
type MessageType string

const (
	TypeFullState     MessageType = "fullState"
	TypeHand          MessageType = "hand"
	TypeResyncRequest MessageType = "resyncRequest"
	TypeEvent         MessageType = "event"
)

// Message is the envelope every room topic carries.
//
//   - fullState: State and Version, on the shared topic.
//   - hand: Seat, Cards and Version, on that seat's topic only.
//   - resyncRequest: optional Seat asking for its hand too, plus the
//     requester's Version.
//   - event: Event, advisory.
type Message struct {
	Type    MessageType       `json:"type"`
	RoomID  uuid.UUID         `json:"roomId"`
	Version uint64            `json:"stateVersion"`
	State   *game.PublicState `json:"session,omitempty"`
	Seat    *int              `json:"seat,omitempty"`
	Cards   []game.Card       `json:"cards,omitempty"`
	Event   *game.Event       `json:"event,omitempty"`
}

// FullState wraps a snapshot.
func FullState(room uuid.UUID, st game.PublicState) Message {
	return Message{Type: TypeFullState, RoomID: room, Version: st.Version, State: &st}
}

// Hand wraps one seat's private cards as of version.
func Hand(room uuid.UUID, version uint64, seat int, cards []game.Card) Message {
	if cards == nil {
		cards = []game.Card{}
	}
	return Message{Type: TypeHand, RoomID: room, Version: version, Seat: &seat, Cards: cards}
}

// ResyncRequest asks the authority for the current snapshot. seat < 0
// means the requester holds no seat.
func ResyncRequest(room uuid.UUID, have uint64, seat int) Message {
	m := Message{Type: TypeResyncRequest, RoomID: room, Version: have}
	if seat >= 0 {
		m.Seat = &seat
	}
	return m
}

// EventMessage wraps an advisory event.
func EventMessage(room uuid.UUID, ev game.Event) Message {
	return Message{Type: TypeEvent, RoomID: room, Version: ev.Version, Event: &ev}
}

func Encode(m Message) ([]byte, error) {
	return json.Marshal(m)
}

// Decode parses an envelope and checks it carries what its type needs.
func Decode(raw []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return Message{}, fmt.Errorf("invalid envelope: %w", err)
	}
	switch m.Type {
	case TypeFullState:
		if m.State == nil {
			return Message{}, fmt.Errorf("fullState without session")
		}
	case TypeHand:
		if m.Seat == nil {
			return Message{}, fmt.Errorf("hand without seat")
		}
	case TypeEvent:
		if m.Event == nil {
			return Message{}, fmt.Errorf("event without body")
		}
	case TypeResyncRequest:
	default:
		return Message{}, fmt.Errorf("unknown message type %q", m.Type)
	}
	return m, nil
}
