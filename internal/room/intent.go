// internal/room/intent.go
package room

import (
	"errors"
	"fmt"

	"github.com/jason-s-yu/omi/internal/game"
	"github.com/jason-s-yu/omi/internal/models"
)

// IntentKind names what a client asks the authority to do.
type IntentKind string

const (
	IntentSit         IntentKind = "sit"
	IntentAddBot      IntentKind = "add_bot"
	IntentLeave       IntentKind = "leave"
	IntentDeal        IntentKind = "deal"
	IntentSelectTrump IntentKind = "select_trump"
	IntentPlayCard    IntentKind = "play_card"
	IntentReset       IntentKind = "reset"
)

// Intent is one client request. Seat is only read for seat management;
// game actions act for whatever seat Actor occupies.
type Intent struct {
	Kind  IntentKind
	Actor models.Identity
	Seat  int
	Suit  game.Suit
	Card  game.Card
}

var (
	// ErrNotAllowed rejects an intent the actor has no right to make.
	ErrNotAllowed = errors.New("not allowed")
	// ErrUnknownIntent rejects an unrecognised intent kind.
	ErrUnknownIntent = errors.New("unknown intent")
	// ErrClosed is returned once the room has shut down.
	ErrClosed = errors.New("room closed")
)

// Code maps a rejection to the short code sent to the client.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrNotAllowed):
		return "not_allowed"
	case errors.Is(err, ErrUnknownIntent):
		return "unknown_intent"
	case errors.Is(err, ErrClosed):
		return "room_closed"
	}
	return game.Code(err)
}

func (in Intent) payload() map[string]interface{} {
	p := map[string]interface{}{}
	switch in.Kind {
	case IntentSit, IntentAddBot, IntentLeave:
		p["seat"] = in.Seat
	case IntentSelectTrump:
		p["suit"] = string(in.Suit)
	case IntentPlayCard:
		p["card"] = in.Card.String()
	}
	return p
}

func (in Intent) String() string {
	return fmt.Sprintf("%s by %s", in.Kind, in.Actor.ID)
}
