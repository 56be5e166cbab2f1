// internal/game/sync_state.go
package game

import (
	"github.com/google/uuid"
	"github.com/jason-s-yu/omi/internal/models"
)

// PublicSeat is one seat as every client sees it. Cards are never included,
// only how many the seat holds.
type PublicSeat struct {
	Seat        int              `json:"seat"`
	Occupant    *models.Identity `json:"occupant,omitempty"`
	Bot         bool             `json:"bot"`
	Partnership Partnership      `json:"partnership"`
	HandSize    int              `json:"handSize"`
}

// PublicState is the shared snapshot broadcast after every transition.
type PublicState struct {
	SessionID    uuid.UUID       `json:"sessionId"`
	Version      uint64          `json:"stateVersion"`
	Phase        Phase           `json:"phase"`
	Seats        []PublicSeat    `json:"seats"`
	DealerSeat   int             `json:"dealerSeat"`
	DeclarerSeat int             `json:"declarerSeat"`
	TurnSeat     int             `json:"turnSeat"`
	Trump        *Suit           `json:"trump"`
	Tokens       Tally           `json:"tokens"`
	TricksWon    Tally           `json:"tricksWon"`
	Trick        []Play          `json:"trick"`
	LastTrick    *CompletedTrick `json:"lastTrick,omitempty"`
	Round        int             `json:"round"`
	LastRound    *RoundResult    `json:"lastRound,omitempty"`
	Winner       *Partnership    `json:"winner,omitempty"`
}

// PublicState builds the snapshot for the current version. The returned
// value shares nothing with the session.
func (s *Session) PublicState() PublicState {
	c := s.Clone()
	ps := PublicState{
		SessionID:    c.ID,
		Version:      c.Version,
		Phase:        c.Phase,
		Seats:        make([]PublicSeat, SeatCount),
		DealerSeat:   c.DealerSeat,
		DeclarerSeat: c.DeclarerSeat,
		TurnSeat:     c.TurnSeat,
		Tokens:       c.Tokens,
		TricksWon:    c.TricksWon,
		Trick:        c.Trick,
		LastTrick:    c.LastTrick,
		Round:        c.Round,
		LastRound:    c.LastRound,
		Winner:       c.Winner,
	}
	if ps.Trick == nil {
		ps.Trick = []Play{}
	}
	if c.Trump.Valid() {
		t := c.Trump
		ps.Trump = &t
	}
	for i, st := range c.Seats {
		ps.Seats[i] = PublicSeat{
			Seat:        i,
			Occupant:    st.Occupant,
			Bot:         st.Bot,
			Partnership: PartnershipOf(i),
			HandSize:    len(c.hands[i]),
		}
	}
	return ps
}
