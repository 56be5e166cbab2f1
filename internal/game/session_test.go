// internal/game/session_test.go
package game

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/google/uuid"
	"github.com/jason-s-yu/omi/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupFullSession seats four players and fixes the shuffle.
func setupFullSession(t *testing.T) *Session {
	t.Helper()
	s := NewSession(uuid.New())
	s.SetRand(rand.New(rand.NewPCG(7, 11)))
	for i := 0; i < SeatCount; i++ {
		who := models.Identity{ID: fmt.Sprintf("p%d", i), DisplayName: fmt.Sprintf("Player %d", i)}
		require.NoError(t, s.SitPlayer(i, who))
	}
	return s
}

// playTrick plays the first legal card for each seat in turn.
func playTrick(t *testing.T, s *Session) {
	t.Helper()
	for i := 0; i < SeatCount; i++ {
		seat := s.TurnSeat
		legal := LegalCards(s.Hand(seat), s.Trick, s.Trump)
		require.NotEmpty(t, legal)
		require.NoError(t, s.PlayCard(seat, legal[0]))
	}
	require.Equal(t, PhaseTrickResolution, s.Phase)
}

func TestNewSession(t *testing.T) {
	s := NewSession(uuid.New())
	assert.Equal(t, PhaseLobby, s.Phase)
	assert.Equal(t, Tally{A: 5, B: 5}, s.Tokens)
	assert.Equal(t, 0, s.DealerSeat)
	assert.Equal(t, 1, s.DeclarerSeat)
	assert.Zero(t, s.Version)
}

func TestSeating(t *testing.T) {
	s := NewSession(uuid.New())
	alice := models.Identity{ID: "alice", DisplayName: "Alice"}

	require.NoError(t, s.SitPlayer(2, alice))
	assert.Equal(t, uint64(1), s.Version)
	assert.Equal(t, 2, s.SeatOf("alice"))

	assert.ErrorIs(t, s.SitPlayer(2, models.Identity{ID: "bob"}), ErrSeatTaken)
	assert.ErrorIs(t, s.SitPlayer(1, alice), ErrSeatTaken)
	assert.ErrorIs(t, s.SitPlayer(4, models.Identity{ID: "bob"}), ErrInvalidSeat)
	assert.ErrorIs(t, s.SitBot(1, models.Identity{}), ErrInvalidSeat)
	assert.Equal(t, uint64(1), s.Version)

	require.NoError(t, s.Vacate(2))
	assert.Equal(t, -1, s.SeatOf("alice"))
	assert.ErrorIs(t, s.Vacate(2), ErrNotSeated)
	assert.Equal(t, uint64(2), s.Version)

	events := s.DrainEvents()
	require.Len(t, events, 2)
	assert.Equal(t, EventSeatUpdate, events[0].Kind)
	assert.Empty(t, s.DrainEvents())
}

func TestDealRequiresFullRoom(t *testing.T) {
	s := NewSession(uuid.New())
	require.NoError(t, s.SitPlayer(0, models.Identity{ID: "a"}))
	before := s.Clone()

	err := s.Deal(0)
	assert.ErrorIs(t, err, ErrIncompleteRoom)
	assert.Equal(t, before, s)
}

func TestDealOnlyByDealer(t *testing.T) {
	s := setupFullSession(t)
	before := s.Clone()
	assert.ErrorIs(t, s.Deal(1), ErrNotDealer)
	assert.Equal(t, before, s)
}

func TestDealAndSelectTrump(t *testing.T) {
	s := setupFullSession(t)
	v := s.Version

	require.NoError(t, s.Deal(0))
	assert.Equal(t, PhaseCallingTrump, s.Phase)
	assert.Equal(t, v+2, s.Version, "dealing and calling trump are two transitions")
	staged := s.DrainStaged()
	require.Len(t, staged, 1)
	assert.Equal(t, PhaseDealing, staged[0].Phase)
	assert.Equal(t, v+1, staged[0].Version)
	assert.Equal(t, FirstDealSize, staged[0].Seats[1].HandSize)
	assert.Empty(t, s.DrainStaged())
	assert.Equal(t, 1, s.TurnSeat)
	assert.Len(t, s.Hand(1), FirstDealSize)
	for _, seat := range []int{0, 2, 3} {
		assert.Empty(t, s.Hand(seat))
	}
	assert.Equal(t, 1, s.Round)

	before := s.Clone()
	assert.ErrorIs(t, s.SelectTrump(0, Hearts), ErrOutOfTurn)
	assert.ErrorIs(t, s.SelectTrump(1, Suit("X")), ErrInvalidSuit)
	assert.ErrorIs(t, s.PlayCard(1, s.Hand(1)[0]), ErrWrongPhase)
	assert.Equal(t, before, s)

	first := s.Hand(1)
	require.NoError(t, s.SelectTrump(1, Hearts))
	assert.Equal(t, PhasePlaying, s.Phase)
	assert.Equal(t, Hearts, s.Trump)
	assert.Equal(t, 1, s.TurnSeat)
	assert.Equal(t, first, s.Hand(1)[:FirstDealSize], "first four cards are kept")

	seen := make(map[Card]bool)
	for seat := 0; seat < SeatCount; seat++ {
		h := s.Hand(seat)
		require.Len(t, h, HandSize)
		for _, card := range h {
			require.False(t, seen[card], "card %s dealt twice", card)
			seen[card] = true
		}
	}
	assert.Len(t, seen, DeckSize)
}

func TestPlayCardRejections(t *testing.T) {
	s := setupFullSession(t)
	require.NoError(t, s.Deal(0))
	require.NoError(t, s.SelectTrump(1, Spades))

	before := s.Clone()
	assert.ErrorIs(t, s.PlayCard(2, s.Hand(2)[0]), ErrOutOfTurn)
	assert.ErrorIs(t, s.PlayCard(1, s.Hand(2)[0]), ErrIllegalMove, "card not in hand")
	assert.Equal(t, before, s)

	lead := s.Hand(1)[0]
	require.NoError(t, s.PlayCard(1, lead))
	assert.Equal(t, 2, s.TurnSeat)

	var offSuit *Card
	hasLead := false
	for _, card := range s.Hand(2) {
		if card.Suit == lead.Suit {
			hasLead = true
		} else if offSuit == nil {
			cc := card
			offSuit = &cc
		}
	}
	if hasLead && offSuit != nil {
		before = s.Clone()
		assert.ErrorIs(t, s.PlayCard(2, *offSuit), ErrIllegalMove)
		assert.Equal(t, before, s)
	}
}

func TestFullRound(t *testing.T) {
	s := setupFullSession(t)
	require.NoError(t, s.Deal(0))
	require.NoError(t, s.SelectTrump(1, Diamonds))

	for trick := 1; trick <= TricksPerRound; trick++ {
		playTrick(t, s)
		require.NoError(t, s.ResolveTrick())
		assert.Equal(t, trick, s.TricksWon.Total())
		require.NotNil(t, s.LastTrick)
		assert.Equal(t, s.LastTrick.Winner.Seat, s.TurnSeat, "winner leads next")
		assert.Empty(t, s.Trick)
		if trick < TricksPerRound {
			assert.Equal(t, PhasePlaying, s.Phase)
		}
	}
	assert.Equal(t, PhaseRoundEnd, s.Phase)
	for seat := 0; seat < SeatCount; seat++ {
		assert.Empty(t, s.Hand(seat))
	}
	assert.ErrorIs(t, s.ResolveTrick(), ErrWrongPhase)

	tricks := s.TricksWon
	require.NoError(t, s.FinishRound())
	require.NotNil(t, s.LastRound)
	assert.Equal(t, tricks, s.LastRound.TricksWon)
	assert.Equal(t, 2, s.Round)
	assert.Equal(t, 1, s.DealerSeat)
	assert.Equal(t, 2, s.DeclarerSeat)
	assert.Equal(t, PhaseCallingTrump, s.Phase)
	assert.Equal(t, NoSuit, s.Trump)
	assert.Zero(t, s.TricksWon.Total())
	assert.Len(t, s.Hand(2), FirstDealSize)
}

func TestEveryTransitionBumpsVersionOnce(t *testing.T) {
	s := setupFullSession(t)
	require.NoError(t, s.Deal(0))
	require.NoError(t, s.SelectTrump(1, Clubs))
	s.DrainEvents()

	v := s.Version
	seat := s.TurnSeat
	require.NoError(t, s.PlayCard(seat, s.Hand(seat)[0]))
	assert.Equal(t, v+1, s.Version)

	events := s.DrainEvents()
	require.Len(t, events, 1)
	assert.Equal(t, EventCardPlayed, events[0].Kind)
	assert.Equal(t, s.Version, events[0].Version)
}

func TestDealerRotation(t *testing.T) {
	s := setupFullSession(t)
	require.NoError(t, s.Deal(0))

	for _, want := range []int{1, 2, 3, 0} {
		s.Phase = PhaseRoundEnd
		s.TricksWon = Tally{A: 4, B: 4}
		require.NoError(t, s.FinishRound())
		assert.Equal(t, want, s.DealerSeat)
		assert.Equal(t, (want+1)%4, s.DeclarerSeat)
		assert.Equal(t, s.DeclarerSeat, s.TurnSeat)
	}
}

func TestGameOver(t *testing.T) {
	s := setupFullSession(t)
	require.NoError(t, s.Deal(0))

	// Declarer is seat 1 (B). B takes 6 tricks so A loses one token.
	s.Tokens = Tally{A: 1, B: 5}
	s.Phase = PhaseRoundEnd
	s.TricksWon = Tally{A: 2, B: 6}
	require.NoError(t, s.FinishRound())

	assert.Equal(t, PhaseGameOver, s.Phase)
	assert.Equal(t, Tally{A: 0, B: 5}, s.Tokens)
	require.NotNil(t, s.Winner)
	assert.Equal(t, PartnershipB, *s.Winner)

	before := s.Clone()
	assert.ErrorIs(t, s.Deal(0), ErrWrongPhase)
	assert.ErrorIs(t, s.FinishRound(), ErrWrongPhase)
	assert.Equal(t, before, s)

	s.Reset()
	assert.Equal(t, PhaseLobby, s.Phase)
	assert.Equal(t, Tally{A: 5, B: 5}, s.Tokens)
	assert.Nil(t, s.Winner)
	assert.True(t, s.Full(), "reset keeps the seats")
	require.NoError(t, s.Deal(0))
}

func TestPublicStateHidesHands(t *testing.T) {
	s := setupFullSession(t)
	require.NoError(t, s.Deal(0))
	require.NoError(t, s.SelectTrump(1, Hearts))

	ps := s.PublicState()
	assert.Equal(t, s.Version, ps.Version)
	require.NotNil(t, ps.Trump)
	assert.Equal(t, Hearts, *ps.Trump)
	require.Len(t, ps.Seats, SeatCount)
	for i, seat := range ps.Seats {
		assert.Equal(t, HandSize, seat.HandSize)
		assert.Equal(t, PartnershipOf(i), seat.Partnership)
	}

	ps.Seats[0].Occupant.DisplayName = "changed"
	assert.Equal(t, "Player 0", s.Seats[0].Occupant.DisplayName, "snapshot must not alias the session")
}

func TestCloneIsDeep(t *testing.T) {
	s := setupFullSession(t)
	require.NoError(t, s.Deal(0))
	cp := s.Clone()
	assert.Equal(t, s, cp)

	cp.hands[1][0] = Card{Rank: "2", Suit: "X"}
	cp.Seats[0].Occupant.ID = "other"
	assert.NotEqual(t, s.hands[1][0], cp.hands[1][0])
	assert.Equal(t, "p0", s.Seats[0].Occupant.ID)
}
