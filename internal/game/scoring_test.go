// internal/game/scoring_test.go
package game

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScoreRound(t *testing.T) {
	a, b := PartnershipA, PartnershipB
	tests := []struct {
		name     string
		tricks   Tally
		declarer Partnership
		loser    *Partnership
		lost     int
		kapothi  bool
	}{
		{"declarer kapothi", Tally{A: 8}, a, &b, 3, true},
		{"declarer wins 5-3", Tally{A: 5, B: 3}, a, &b, 1, false},
		{"defenders win 6-2", Tally{A: 2, B: 6}, a, &a, 2, false},
		{"defenders kapothi", Tally{B: 8}, a, &a, 3, true},
		{"split 4-4", Tally{A: 4, B: 4}, b, nil, 0, false},
		{"declarer B wins", Tally{A: 3, B: 5}, b, &a, 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ScoreRound(tt.tricks, tt.declarer)
			assert.Equal(t, tt.loser, res.Loser)
			assert.Equal(t, tt.lost, res.TokensLost)
			assert.Equal(t, tt.kapothi, res.Kapothi)
			assert.Equal(t, tt.declarer, res.Declarer)
		})
	}
}

func TestApplyTokensFloor(t *testing.T) {
	res := ScoreRound(Tally{A: 8}, PartnershipA)
	tokens, out := ApplyTokens(Tally{A: 5, B: 2}, res)
	assert.Equal(t, Tally{A: 5, B: 0}, tokens)
	require.NotNil(t, out)
	assert.Equal(t, PartnershipB, *out)
}

func TestApplyTokensStillPlaying(t *testing.T) {
	res := ScoreRound(Tally{A: 2, B: 6}, PartnershipA)
	tokens, out := ApplyTokens(Tally{A: 5, B: 5}, res)
	assert.Equal(t, Tally{A: 3, B: 5}, tokens)
	assert.Nil(t, out)

	tokens, out = ApplyTokens(tokens, ScoreRound(Tally{A: 4, B: 4}, PartnershipA))
	assert.Equal(t, Tally{A: 3, B: 5}, tokens)
	assert.Nil(t, out)
}

func TestPartnershipJSON(t *testing.T) {
	assert.Equal(t, PartnershipA, PartnershipOf(2))
	assert.Equal(t, PartnershipB, PartnershipOf(3))

	raw, err := json.Marshal(map[string]Partnership{"w": PartnershipB})
	require.NoError(t, err)
	assert.JSONEq(t, `{"w":"B"}`, string(raw))

	var p Partnership
	require.NoError(t, json.Unmarshal([]byte(`"A"`), &p))
	assert.Equal(t, PartnershipA, p)
	assert.Error(t, json.Unmarshal([]byte(`"C"`), &p))
}
