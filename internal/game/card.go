// internal/game/card.go
package game

import (
	"fmt"
	"math/rand/v2"
	"strings"
)

// Suit is one of the four Omi suits, encoded as a single letter on the wire.
type Suit string

const (
	NoSuit   Suit = ""
	Spades   Suit = "S"
	Hearts   Suit = "H"
	Clubs    Suit = "C"
	Diamonds Suit = "D"
)

// Suits lists the suits in canonical order. Bots break ties in this order.
var Suits = [4]Suit{Spades, Hearts, Clubs, Diamonds}

// Valid reports whether s is one of the four playable suits.
func (s Suit) Valid() bool {
	switch s {
	case Spades, Hearts, Clubs, Diamonds:
		return true
	}
	return false
}

// Symbol returns the display glyph for the suit.
func (s Suit) Symbol() string {
	switch s {
	case Spades:
		return "♠"
	case Hearts:
		return "♥"
	case Clubs:
		return "♣"
	case Diamonds:
		return "♦"
	}
	return "?"
}

// ParseSuit accepts the wire letter, the glyph, or the English name.
func ParseSuit(raw string) (Suit, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s", "♠", "♠️", "spades":
		return Spades, nil
	case "h", "♥", "♥️", "hearts":
		return Hearts, nil
	case "c", "♣", "♣️", "clubs":
		return Clubs, nil
	case "d", "♦", "♦️", "diamonds":
		return Diamonds, nil
	}
	return NoSuit, fmt.Errorf("%w: %q", ErrInvalidSuit, raw)
}

// Rank is a card rank from 7 up to Ace.
type Rank string

const (
	Seven Rank = "7"
	Eight Rank = "8"
	Nine  Rank = "9"
	Ten   Rank = "10"
	Jack  Rank = "J"
	Queen Rank = "Q"
	King  Rank = "K"
	Ace   Rank = "A"
)

// Ranks lists ranks by ascending power.
var Ranks = [8]Rank{Seven, Eight, Nine, Ten, Jack, Queen, King, Ace}

// Power is the rank's position in the strict order 7 < 8 < ... < A, or -1
// for an unknown rank.
func (r Rank) Power() int {
	for i, rk := range Ranks {
		if rk == r {
			return i
		}
	}
	return -1
}

// Card is an immutable (rank, suit) pair. At most one of each exists in a deck.
type Card struct {
	Rank Rank `json:"rank"`
	Suit Suit `json:"suit"`
}

func (c Card) String() string {
	return string(c.Rank) + string(c.Suit)
}

// Power is shorthand for c.Rank.Power().
func (c Card) Power() int {
	return c.Rank.Power()
}

// Valid reports whether the card exists in an Omi deck.
func (c Card) Valid() bool {
	return c.Suit.Valid() && c.Rank.Power() >= 0
}

// ParseCard parses the compact id form produced by String, e.g. "10H" or "AS".
func ParseCard(raw string) (Card, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) < 2 {
		return Card{}, fmt.Errorf("card %q too short", raw)
	}
	c := Card{Rank: Rank(strings.ToUpper(raw[:len(raw)-1])), Suit: Suit(strings.ToUpper(raw[len(raw)-1:]))}
	if !c.Valid() {
		return Card{}, fmt.Errorf("card %q is not in the deck", raw)
	}
	return c, nil
}

const (
	DeckSize      = 32
	HandSize      = 8
	FirstDealSize = 4
)

// Deck is an ordered sequence of cards. A fresh deck is used for every round.
type Deck []Card

// CanonicalDeck returns the 32 distinct cards, suit-major in canonical order.
func CanonicalDeck() Deck {
	deck := make(Deck, 0, DeckSize)
	for _, s := range Suits {
		for _, r := range Ranks {
			deck = append(deck, Card{Rank: r, Suit: s})
		}
	}
	return deck
}

// NewDeck returns a uniformly shuffled deck. The package-level source of
// math/rand/v2 is seeded from the operating system.
func NewDeck() Deck {
	deck := CanonicalDeck()
	rand.Shuffle(len(deck), func(i, j int) {
		deck[i], deck[j] = deck[j], deck[i]
	})
	return deck
}

// NewDeckWithRand shuffles with the given source. A nil source falls back
// to NewDeck.
func NewDeckWithRand(r *rand.Rand) Deck {
	if r == nil {
		return NewDeck()
	}
	deck := CanonicalDeck()
	r.Shuffle(len(deck), func(i, j int) {
		deck[i], deck[j] = deck[j], deck[i]
	})
	return deck
}

// DealSlice copies count cards starting at offset.
func DealSlice(deck Deck, offset, count int) ([]Card, error) {
	if offset < 0 || count < 0 || offset+count > len(deck) {
		return nil, fmt.Errorf("deal slice [%d:%d] out of range for %d cards", offset, offset+count, len(deck))
	}
	out := make([]Card, count)
	copy(out, deck[offset:offset+count])
	return out, nil
}

func containsCard(hand []Card, c Card) bool {
	for _, h := range hand {
		if h == c {
			return true
		}
	}
	return false
}

// withoutCard returns a new slice with the first occurrence of c removed.
func withoutCard(hand []Card, c Card) []Card {
	out := make([]Card, 0, len(hand))
	removed := false
	for _, h := range hand {
		if !removed && h == c {
			removed = true
			continue
		}
		out = append(out, h)
	}
	return out
}
