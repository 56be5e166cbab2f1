package rating

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUpdatePartnerships(t *testing.T) {
	a := []Rating{Default(), Default()}
	b := []Rating{Default(), Default()}

	newA, newB := UpdatePartnerships(a, b, true)
	for _, r := range newA {
		assert.Greater(t, r.Elo, DefaultMu, "winners go up")
		assert.Less(t, r.RD, DefaultPhi, "deviation shrinks after a game")
	}
	for _, r := range newB {
		assert.Less(t, r.Elo, DefaultMu, "losers go down")
	}
}

func TestUpsetMovesMore(t *testing.T) {
	strong := []Rating{{Elo: 1800, RD: 80, Sigma: DefaultSigma}}
	weak := []Rating{{Elo: 1300, RD: 80, Sigma: DefaultSigma}}

	_, expected := UpdatePartnerships(strong, weak, true)
	_, upset := UpdatePartnerships(strong, weak, false)
	assert.Greater(t, upset[0].Elo-weak[0].Elo, weak[0].Elo-expected[0].Elo)
}

func TestNoOpponentsNoChange(t *testing.T) {
	a := []Rating{Default()}
	newA, newB := UpdatePartnerships(a, nil, true)
	assert.Equal(t, a, newA)
	assert.Empty(t, newB)
}
