// internal/bot/agent.go
package bot

import (
	"fmt"
	"math/rand/v2"

	"github.com/jason-s-yu/omi/internal/game"
	"github.com/jason-s-yu/omi/internal/models"
)

// Policy is the decision interface a bot seat runs.
type Policy interface {
	Trump(hand []game.Card) game.Suit
	Card(hand []game.Card, table []game.Play, trump game.Suit) game.Card
}

// Heuristic is the default Policy.
type Heuristic struct {
	Rand *rand.Rand
}

func (h *Heuristic) Trump(hand []game.Card) game.Suit {
	return ChooseTrump(hand)
}

func (h *Heuristic) Card(hand []game.Card, table []game.Play, trump game.Suit) game.Card {
	return ChooseCard(hand, table, trump, h.Rand)
}

// Agent is a bot occupying a seat.
type Agent struct {
	Identity models.Identity
	Seat     int
	Policy   Policy
}

// NewAgent returns a heuristic bot for the seat. rng drives its random
// choices; nil uses the global source.
func NewAgent(seat int, rng *rand.Rand) *Agent {
	return &Agent{Identity: NewIdentity(seat), Seat: seat, Policy: &Heuristic{Rand: rng}}
}

// Action is what an agent wants to do next. Exactly one of Trump or Card is set.
type Action struct {
	Trump game.Suit
	Card  *game.Card
}

// Decide looks at the session from the agent's seat and returns its
// action, or false when it is not this seat's move.
func (a *Agent) Decide(s *game.Session) (Action, bool) {
	switch s.Phase {
	case game.PhaseCallingTrump:
		if s.DeclarerSeat != a.Seat {
			return Action{}, false
		}
		return Action{Trump: a.Policy.Trump(s.Hand(a.Seat))}, true
	case game.PhasePlaying:
		if s.TurnSeat != a.Seat {
			return Action{}, false
		}
		card := a.Policy.Card(s.Hand(a.Seat), s.Trick, s.Trump)
		if !card.Valid() {
			return Action{}, false
		}
		return Action{Card: &card}, true
	}
	return Action{}, false
}

// Apply runs the action against the session.
func (a *Agent) Apply(s *game.Session, act Action) error {
	if act.Card != nil {
		return s.PlayCard(a.Seat, *act.Card)
	}
	if act.Trump.Valid() {
		return s.SelectTrump(a.Seat, act.Trump)
	}
	return fmt.Errorf("bot at seat %d has no action", a.Seat)
}
