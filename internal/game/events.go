// internal/game/events.go
package game

// EventKind labels an advisory event.
type EventKind string

const (
	EventSeatUpdate  EventKind = "seat_update"
	EventDeal        EventKind = "deal"
	EventCallTrump   EventKind = "call_trump"
	EventTrumpCalled EventKind = "trump_called"
	EventCardPlayed  EventKind = "card_played"
	EventTrickFull   EventKind = "trick_full"
	EventTrickWon    EventKind = "trick_won"
	EventRoundEnd    EventKind = "round_end"
	EventRoundScored EventKind = "round_scored"
	EventGameOver    EventKind = "game_over"
	EventReset       EventKind = "reset"
)

// Event is a human-readable notice emitted alongside a transition. It is
// advisory only; nothing reads it back into session state.
type Event struct {
	Version uint64    `json:"stateVersion"`
	Kind    EventKind `json:"kind"`
	Seat    *int      `json:"seat,omitempty"`
	Message string    `json:"message"`
}
