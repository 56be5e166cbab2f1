// internal/game/scoring.go
package game

import "fmt"

// Partnership is one of the two fixed teams: A holds seats 0 and 2, B holds 1 and 3.
type Partnership int

const (
	PartnershipA Partnership = 0
	PartnershipB Partnership = 1
)

// PartnershipOf maps a seat to its team.
func PartnershipOf(seat int) Partnership {
	return Partnership(seat % 2)
}

// Other returns the opposing team.
func (p Partnership) Other() Partnership {
	return 1 - p
}

func (p Partnership) String() string {
	if p == PartnershipA {
		return "A"
	}
	return "B"
}

func (p Partnership) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Partnership) UnmarshalText(b []byte) error {
	switch string(b) {
	case "A":
		*p = PartnershipA
	case "B":
		*p = PartnershipB
	default:
		return fmt.Errorf("unknown partnership %q", b)
	}
	return nil
}

// Tally is a per-partnership counter, used for tricks and tokens.
type Tally struct {
	A int `json:"A"`
	B int `json:"B"`
}

// Get returns the count for p.
func (t Tally) Get(p Partnership) int {
	if p == PartnershipA {
		return t.A
	}
	return t.B
}

// Add adds n to p's count.
func (t *Tally) Add(p Partnership, n int) {
	if p == PartnershipA {
		t.A += n
	} else {
		t.B += n
	}
}

// Total is A + B.
func (t Tally) Total() int {
	return t.A + t.B
}

const (
	TricksPerRound = 8
	StartingTokens = 5

	KapothiPenalty      = 3
	DeclarerLossPenalty = 2
	DefenderLossPenalty = 1
)

// RoundResult is the scoring outcome of one deal.
type RoundResult struct {
	Round      int          `json:"round"`
	TricksWon  Tally        `json:"tricksWon"`
	Declarer   Partnership  `json:"declarer"`
	Loser      *Partnership `json:"loser"`
	TokensLost int          `json:"tokensLost"`
	Kapothi    bool         `json:"kapothi"`
}

// ScoreRound computes the token penalty for a finished round. The declaring
// side pays 2 for losing, the defenders pay 1; a Kapothi sweep costs 3
// either way and a 4-4 split costs nothing.
func ScoreRound(tricksWon Tally, declarer Partnership) RoundResult {
	res := RoundResult{TricksWon: tricksWon, Declarer: declarer}
	other := declarer.Other()
	mine, theirs := tricksWon.Get(declarer), tricksWon.Get(other)

	switch {
	case mine > theirs:
		loser := other
		res.Loser = &loser
		res.TokensLost = DefenderLossPenalty
		if mine == TricksPerRound {
			res.Kapothi = true
			res.TokensLost = KapothiPenalty
		}
	case theirs > mine:
		loser := declarer
		res.Loser = &loser
		res.TokensLost = DeclarerLossPenalty
		if theirs == TricksPerRound {
			res.Kapothi = true
			res.TokensLost = KapothiPenalty
		}
	}
	return res
}

// ApplyTokens deducts the round's penalty with a floor of zero. The second
// return value is the partnership that has been eliminated, if any.
func ApplyTokens(tokens Tally, res RoundResult) (Tally, *Partnership) {
	if res.Loser == nil || res.TokensLost == 0 {
		return tokens, nil
	}
	loser := *res.Loser
	left := tokens.Get(loser) - res.TokensLost
	if left < 0 {
		left = 0
	}
	tokens.Add(loser, left-tokens.Get(loser))
	if left == 0 {
		return tokens, &loser
	}
	return tokens, nil
}
