// internal/game/trick.go
package game

import "errors"

// Play is one card laid on the table by a seat.
type Play struct {
	Card Card `json:"card"`
	Seat int  `json:"seat"`
}

// CompletedTrick is a resolved trick kept for display until the next one.
type CompletedTrick struct {
	Plays  []Play `json:"plays"`
	Winner Play   `json:"winner"`
}

// DetermineTrickWinner resolves the plays in table order. Any trump beats
// any non-trump; among trumps, and among lead-suit cards while no trump has
// been seen, higher power wins. Cards of any other suit never win.
// trump may be NoSuit, in which case only the lead suit counts.
func DetermineTrickWinner(plays []Play, trump Suit) (Play, error) {
	if len(plays) == 0 {
		return Play{}, errors.New("cannot resolve an empty trick")
	}

	leadSuit := plays[0].Card.Suit
	winner := plays[0]
	winningPower := plays[0].Card.Power()
	trumpSeen := trump.Valid() && leadSuit == trump

	for _, p := range plays[1:] {
		power := p.Card.Power()
		switch {
		case trump.Valid() && p.Card.Suit == trump:
			if !trumpSeen {
				winner, winningPower, trumpSeen = p, power, true
			} else if power > winningPower {
				winner, winningPower = p, power
			}
		case p.Card.Suit == leadSuit && !trumpSeen:
			if power > winningPower {
				winner, winningPower = p, power
			}
		}
	}
	return winner, nil
}
