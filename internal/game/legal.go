// internal/game/legal.go
package game

// IsValidMove reports whether card may be played onto table from hand.
// The lead is free; a follower must follow the lead suit when holding it and
// may otherwise slough or trump. trump does not affect legality.
func IsValidMove(card Card, hand []Card, table []Play, trump Suit) bool {
	if len(table) == 0 {
		return true
	}
	leadSuit := table[0].Card.Suit
	for _, c := range hand {
		if c.Suit == leadSuit {
			return card.Suit == leadSuit
		}
	}
	return true
}

// LegalCards filters hand down to the cards IsValidMove accepts, keeping
// hand order.
func LegalCards(hand []Card, table []Play, trump Suit) []Card {
	out := make([]Card, 0, len(hand))
	for _, c := range hand {
		if IsValidMove(c, hand, table, trump) {
			out = append(out, c)
		}
	}
	return out
}
