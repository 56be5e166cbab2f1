// internal/game/legal_test.go
package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func hand(cards ...string) []Card {
	out := make([]Card, len(cards))
	for i, raw := range cards {
		out[i] = c(raw)
	}
	return out
}

func TestFreeLead(t *testing.T) {
	h := hand("7S", "AH", "9C", "KD")
	for _, card := range h {
		assert.True(t, IsValidMove(card, h, nil, Hearts))
	}
}

func TestMustFollowSuit(t *testing.T) {
	h := hand("7S", "AH", "9C", "KD")
	table := plays(0, "10C")

	assert.True(t, IsValidMove(c("9C"), h, table, Hearts))
	assert.False(t, IsValidMove(c("AH"), h, table, Hearts), "trump not allowed while holding lead suit")
	assert.False(t, IsValidMove(c("7S"), h, table, Hearts))
	assert.Equal(t, hand("9C"), LegalCards(h, table, Hearts))
}

func TestVoidMayTrumpOrSlough(t *testing.T) {
	h := hand("7S", "AH", "KD")
	table := plays(0, "10C", "JC")

	assert.True(t, IsValidMove(c("AH"), h, table, Hearts))
	assert.True(t, IsValidMove(c("7S"), h, table, Hearts))
	assert.Equal(t, h, LegalCards(h, table, Hearts))
}
