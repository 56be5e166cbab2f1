// internal/bot/policy.go
package bot

import (
	"math/rand/v2"

	"github.com/jason-s-yu/omi/internal/game"
)

// ChooseTrump picks the suit the hand holds most of, breaking ties by the
// summed power of that suit and then by canonical suit order.
func ChooseTrump(hand []game.Card) game.Suit {
	best := game.Suits[0]
	bestCount, bestPower := -1, -1
	for _, s := range game.Suits {
		count, power := 0, 0
		for _, c := range hand {
			if c.Suit == s {
				count++
				power += c.Power()
			}
		}
		if count > bestCount || (count == bestCount && power > bestPower) {
			best, bestCount, bestPower = s, count, power
		}
	}
	return best
}

// ChooseCard returns a legal card for the seat holding hand. rng is only
// used when leading with nothing but trump; nil uses the global source.
func ChooseCard(hand []game.Card, table []game.Play, trump game.Suit, rng *rand.Rand) game.Card {
	legal := game.LegalCards(hand, table, trump)
	if len(legal) == 0 {
		return game.Card{}
	}
	if len(table) == 0 {
		return lead(legal, trump, rng)
	}

	leadSuit := table[0].Card.Suit
	following := filter(legal, func(c game.Card) bool { return c.Suit == leadSuit })
	if len(following) > 0 {
		return follow(following, table, trump)
	}

	trumps := filter(legal, func(c game.Card) bool { return c.Suit == trump })
	others := filter(legal, func(c game.Card) bool { return c.Suit != trump })
	if len(table) >= 2 && len(trumps) > 0 {
		return lowest(trumps)
	}
	if len(others) > 0 {
		return lowest(others)
	}
	return lowest(trumps)
}

func lead(legal []game.Card, trump game.Suit, rng *rand.Rand) game.Card {
	nonTrump := filter(legal, func(c game.Card) bool { return c.Suit != trump })
	if len(nonTrump) > 0 {
		return highest(nonTrump)
	}
	if rng != nil {
		return legal[rng.IntN(len(legal))]
	}
	return legal[rand.IntN(len(legal))]
}

// follow plays the cheapest lead-suit card that takes the trick, otherwise
// the cheapest lead-suit card. A lead-suit card cannot win once someone has
// trumped a non-trump lead.
func follow(following []game.Card, table []game.Play, trump game.Suit) game.Card {
	leadSuit := table[0].Card.Suit
	bestOnTable := -1
	for _, p := range table {
		if trump.Valid() && p.Card.Suit == trump && leadSuit != trump {
			return lowest(following)
		}
		if p.Card.Suit == leadSuit && p.Card.Power() > bestOnTable {
			bestOnTable = p.Card.Power()
		}
	}

	winners := filter(following, func(c game.Card) bool { return c.Power() > bestOnTable })
	if len(winners) > 0 {
		return lowest(winners)
	}
	return lowest(following)
}

func filter(cards []game.Card, keep func(game.Card) bool) []game.Card {
	out := make([]game.Card, 0, len(cards))
	for _, c := range cards {
		if keep(c) {
			out = append(out, c)
		}
	}
	return out
}

func lowest(cards []game.Card) game.Card {
	low := cards[0]
	for _, c := range cards[1:] {
		if c.Power() < low.Power() {
			low = c
		}
	}
	return low
}

func highest(cards []game.Card) game.Card {
	high := cards[0]
	for _, c := range cards[1:] {
		if c.Power() > high.Power() {
			high = c
		}
	}
	return high
}
