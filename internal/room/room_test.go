// internal/room/room_test.go
package room

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/omi/internal/bot"
	"github.com/jason-s-yu/omi/internal/broadcast"
	"github.com/jason-s-yu/omi/internal/cache"
	"github.com/jason-s-yu/omi/internal/game"
	"github.com/jason-s-yu/omi/internal/models"
	"github.com/jason-s-yu/omi/internal/replication"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockRecorder collects actions and results instead of writing them out.
type mockRecorder struct {
	mu      sync.Mutex
	actions []cache.GameActionRecord
	results []models.GameResult
}

func (m *mockRecorder) PublishGameAction(_ context.Context, rec cache.GameActionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions = append(m.actions, rec)
	return nil
}

func (m *mockRecorder) RecordGameResult(_ context.Context, res models.GameResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, res)
	return nil
}

func (m *mockRecorder) resultCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.results)
}

func (m *mockRecorder) actionTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.actions))
	for i, a := range m.actions {
		out[i] = a.ActionType
	}
	return out
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

var slowTiming = Timing{BotThink: time.Hour, TrickPause: time.Hour, RoundPause: time.Hour}

type fixture struct {
	room     *Room
	bus      *broadcast.Memory
	store    *cache.MemoryStore
	rec      *mockRecorder
	players  []models.Identity
	replicas []*replication.Replica
}

func setupRoom(t *testing.T, timing Timing) *fixture {
	t.Helper()
	f := &fixture{bus: broadcast.NewMemory(), store: cache.NewMemoryStore(), rec: &mockRecorder{}}
	f.room = New(uuid.New(), "host", Options{
		Bus:     f.bus,
		Store:   f.store,
		Actions: f.rec,
		Results: f.rec,
		Timing:  timing,
		Logger:  quietLogger(),
		Rand:    rand.New(rand.NewPCG(42, 1)),
	})
	require.NoError(t, f.room.Start(context.Background()))
	t.Cleanup(func() { f.room.Close(context.Background()) })
	return f
}

// seatHumans sits four players, each with a replica listening on their seat.
func (f *fixture) seatHumans(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < game.SeatCount; i++ {
		who := models.Identity{ID: fmt.Sprintf("p%d", i), DisplayName: fmt.Sprintf("P%d", i)}
		rep := replication.NewReplica(f.room.ID, i, f.bus, f.store, quietLogger())
		require.NoError(t, rep.Start(ctx))
		t.Cleanup(rep.Stop)
		require.NoError(t, f.room.Submit(ctx, Intent{Kind: IntentSit, Actor: who, Seat: i}))
		f.players = append(f.players, who)
		f.replicas = append(f.replicas, rep)
	}
}

func TestSubmitPublishesStateAndPrivateHands(t *testing.T) {
	f := setupRoom(t, slowTiming)
	f.seatHumans(t)
	ctx := context.Background()

	v := f.room.State().Version
	err := f.room.Submit(ctx, Intent{Kind: IntentDeal, Actor: f.players[2]})
	assert.ErrorIs(t, err, game.ErrNotDealer)
	assert.Equal(t, "not_dealer", Code(err))
	assert.Equal(t, v, f.room.State().Version, "rejected intent must not change state")

	require.NoError(t, f.room.Submit(ctx, Intent{Kind: IntentDeal, Actor: f.players[0]}))
	st := f.room.State()
	assert.Equal(t, game.PhaseCallingTrump, st.Phase)

	for i, rep := range f.replicas {
		assert.Equal(t, st.Version, rep.Version(), "replica %d", i)
	}
	assert.Len(t, f.replicas[1].Hand(), game.FirstDealSize)
	for _, i := range []int{0, 2, 3} {
		assert.Empty(t, f.replicas[i].Hand(), "seat %d must not see the declarer's cards", i)
	}

	snap, err := f.store.LoadSnapshot(ctx, f.room.ID)
	require.NoError(t, err)
	assert.Equal(t, st.Version, snap.Version)

	require.NoError(t, f.room.Submit(ctx, Intent{Kind: IntentSelectTrump, Actor: f.players[1], Suit: game.Hearts}))
	for i, rep := range f.replicas {
		_, own := f.room.HandOf(f.players[i].ID)
		assert.Equal(t, own, rep.Hand(), "seat %d hand", i)
		assert.Len(t, rep.Hand(), game.HandSize)
	}
	assert.NotEmpty(t, f.replicas[0].Events())
	assert.Equal(t, []string{"sit", "sit", "sit", "sit", "deal", "select_trump"}, f.rec.actionTypes())
}

func TestIntentPermissions(t *testing.T) {
	f := setupRoom(t, slowTiming)
	ctx := context.Background()
	alice := models.Identity{ID: "alice"}
	mallory := models.Identity{ID: "mallory"}

	require.NoError(t, f.room.Submit(ctx, Intent{Kind: IntentSit, Actor: alice, Seat: 0}))
	assert.ErrorIs(t, f.room.Submit(ctx, Intent{Kind: IntentLeave, Actor: mallory, Seat: 0}), ErrNotAllowed)
	assert.ErrorIs(t, f.room.Submit(ctx, Intent{Kind: IntentAddBot, Actor: mallory, Seat: 1}), ErrNotAllowed)
	assert.ErrorIs(t, f.room.Submit(ctx, Intent{Kind: IntentPlayCard, Actor: mallory}), game.ErrNotSeated)
	assert.ErrorIs(t, f.room.Submit(ctx, Intent{Kind: "dance", Actor: alice}), ErrUnknownIntent)

	require.NoError(t, f.room.Submit(ctx, Intent{Kind: IntentAddBot, Actor: alice, Seat: 1}))
	require.NoError(t, f.room.Submit(ctx, Intent{Kind: IntentLeave, Actor: alice, Seat: 1}), "anyone seated may remove a bot")
	require.NoError(t, f.room.Submit(ctx, Intent{Kind: IntentLeave, Actor: alice, Seat: 0}))
	assert.Equal(t, 0, f.room.Summary().Seated)
}

func TestStaleTimerAfterReset(t *testing.T) {
	f := setupRoom(t, Timing{BotThink: time.Hour, TrickPause: 200 * time.Millisecond, RoundPause: time.Hour})
	f.seatHumans(t)
	ctx := context.Background()

	require.NoError(t, f.room.Submit(ctx, Intent{Kind: IntentDeal, Actor: f.players[0]}))
	require.NoError(t, f.room.Submit(ctx, Intent{Kind: IntentSelectTrump, Actor: f.players[1], Suit: game.Spades}))
	for i := 0; i < game.SeatCount; i++ {
		st := f.room.State()
		seat := st.TurnSeat
		_, h := f.room.HandOf(f.players[seat].ID)
		card := game.LegalCards(h, st.Trick, game.Spades)[0]
		require.NoError(t, f.room.Submit(ctx, Intent{Kind: IntentPlayCard, Actor: f.players[seat], Card: card}))
	}
	require.Equal(t, game.PhaseTrickResolution, f.room.State().Phase)

	require.NoError(t, f.room.Submit(ctx, Intent{Kind: IntentReset, Actor: f.players[3]}))
	v := f.room.State().Version

	time.Sleep(400 * time.Millisecond)
	st := f.room.State()
	assert.Equal(t, game.PhaseLobby, st.Phase)
	assert.Equal(t, v, st.Version, "stale trick timer must not fire")
}

func TestTrickResolvesAfterPause(t *testing.T) {
	f := setupRoom(t, Timing{BotThink: time.Hour, TrickPause: 10 * time.Millisecond, RoundPause: time.Hour})
	f.seatHumans(t)
	ctx := context.Background()

	require.NoError(t, f.room.Submit(ctx, Intent{Kind: IntentDeal, Actor: f.players[0]}))
	require.NoError(t, f.room.Submit(ctx, Intent{Kind: IntentSelectTrump, Actor: f.players[1], Suit: game.Clubs}))
	for i := 0; i < game.SeatCount; i++ {
		st := f.room.State()
		_, h := f.room.HandOf(f.players[st.TurnSeat].ID)
		card := game.LegalCards(h, st.Trick, game.Clubs)[0]
		require.NoError(t, f.room.Submit(ctx, Intent{Kind: IntentPlayCard, Actor: f.players[st.TurnSeat], Card: card}))
	}

	assert.Eventually(t, func() bool {
		st := f.room.State()
		return st.Phase == game.PhasePlaying && st.TricksWon.Total() == 1
	}, 2*time.Second, 5*time.Millisecond)
	st := f.room.State()
	require.NotNil(t, st.LastTrick)
	assert.Equal(t, st.LastTrick.Winner.Seat, st.TurnSeat)
	for _, rep := range f.replicas {
		assert.Eventually(t, func() bool { return rep.Version() == st.Version }, time.Second, 5*time.Millisecond)
	}
}

func TestBotsPlayWholeGame(t *testing.T) {
	fast := Timing{BotThink: time.Millisecond, TrickPause: time.Millisecond, RoundPause: time.Millisecond}
	f := setupRoom(t, fast)
	ctx := context.Background()
	host := models.Identity{ID: "host"}

	observer := replication.NewReplica(f.room.ID, -1, f.bus, nil, quietLogger())
	require.NoError(t, observer.Start(ctx))
	defer observer.Stop()

	var mu sync.Mutex
	var versions []uint64
	phases := make(map[game.Phase]int)
	sub, err := f.bus.Subscribe(ctx, broadcast.RoomTopic(f.room.ID), func(payload []byte) {
		m, err := replication.Decode(payload)
		if err != nil || m.Type != replication.TypeFullState {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		versions = append(versions, m.Version)
		phases[m.State.Phase]++
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	for seat := 0; seat < game.SeatCount; seat++ {
		require.NoError(t, f.room.Submit(ctx, Intent{Kind: IntentAddBot, Actor: host, Seat: seat}))
	}

	require.Eventually(t, func() bool {
		return f.room.State().Phase == game.PhaseGameOver
	}, 20*time.Second, 10*time.Millisecond)

	st := f.room.State()
	require.NotNil(t, st.Winner)
	assert.Zero(t, st.Tokens.Get(st.Winner.Other()))
	assert.Positive(t, st.Tokens.Get(*st.Winner))

	require.Eventually(t, func() bool { return f.rec.resultCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	f.rec.mu.Lock()
	res := f.rec.results[0]
	f.rec.mu.Unlock()
	assert.Equal(t, st.Winner.String(), res.Winner)
	assert.Len(t, res.Seats, game.SeatCount)
	assert.Equal(t, st.Round, res.Rounds)

	assert.Equal(t, st.Version, observer.Version())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, st.Round, phases[game.PhaseDealing], "every round publishes its dealing snapshot")
	for i := 1; i < len(versions); i++ {
		assert.LessOrEqual(t, versions[i]-versions[i-1], uint64(1), "snapshot v%d follows v%d", versions[i], versions[i-1])
	}
}

func TestDealPublishesDealingSnapshot(t *testing.T) {
	f := setupRoom(t, slowTiming)
	f.seatHumans(t)
	ctx := context.Background()

	var got []game.PublicState
	sub, err := f.bus.Subscribe(ctx, broadcast.RoomTopic(f.room.ID), func(payload []byte) {
		if m, err := replication.Decode(payload); err == nil && m.Type == replication.TypeFullState {
			got = append(got, *m.State)
		}
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	v := f.room.State().Version
	require.NoError(t, f.room.Submit(ctx, Intent{Kind: IntentDeal, Actor: f.players[0]}))

	require.Len(t, got, 2)
	assert.Equal(t, game.PhaseDealing, got[0].Phase)
	assert.Equal(t, v+1, got[0].Version)
	assert.Equal(t, game.PhaseCallingTrump, got[1].Phase)
	assert.Equal(t, v+2, got[1].Version)
}

func TestSeededBotGamesRepeat(t *testing.T) {
	fast := Timing{BotThink: time.Millisecond, TrickPause: time.Millisecond, RoundPause: time.Millisecond}
	ctx := context.Background()
	play := func() game.PublicState {
		f := setupRoom(t, fast)
		for seat := 0; seat < game.SeatCount; seat++ {
			require.NoError(t, f.room.Submit(ctx, Intent{Kind: IntentAddBot, Actor: models.Identity{ID: "host"}, Seat: seat}))
		}
		require.Eventually(t, func() bool {
			return f.room.State().Phase == game.PhaseGameOver
		}, 20*time.Second, 10*time.Millisecond)
		return f.room.State()
	}

	first, second := play(), play()
	assert.Equal(t, first.Version, second.Version)
	assert.Equal(t, first.Round, second.Round)
	assert.Equal(t, first.Tokens, second.Tokens)
	assert.Equal(t, first.Winner, second.Winner)
	assert.Equal(t, first.LastTrick, second.LastTrick)
}

func TestBotIdentityCannotSit(t *testing.T) {
	f := setupRoom(t, slowTiming)
	err := f.room.Submit(context.Background(), Intent{Kind: IntentSit, Actor: bot.NewIdentity(0), Seat: 0})
	assert.ErrorIs(t, err, ErrNotAllowed)
	assert.True(t, f.room.State().Seats[0].Occupant == nil)
}

func TestLateJoinerResync(t *testing.T) {
	f := setupRoom(t, slowTiming)
	f.seatHumans(t)
	ctx := context.Background()
	require.NoError(t, f.room.Submit(ctx, Intent{Kind: IntentDeal, Actor: f.players[0]}))
	require.NoError(t, f.room.Submit(ctx, Intent{Kind: IntentSelectTrump, Actor: f.players[1], Suit: game.Diamonds}))

	late := replication.NewReplica(f.room.ID, 2, f.bus, nil, quietLogger())
	require.NoError(t, late.Start(ctx))
	defer late.Stop()
	require.NoError(t, late.Bootstrap(ctx))

	assert.Equal(t, f.room.State().Version, late.Version())
	_, h := f.room.HandOf(f.players[2].ID)
	assert.Equal(t, h, late.Hand())
}

func TestStoreListing(t *testing.T) {
	store := NewStore()
	opts := Options{Bus: broadcast.NewMemory(), Logger: quietLogger(), Timing: slowTiming}
	a := New(uuid.New(), "a", opts)
	time.Sleep(time.Millisecond)
	b := New(uuid.New(), "b", opts)
	store.AddRoom(a)
	store.AddRoom(b)

	list := store.Summaries()
	require.Len(t, list, 2)
	assert.Equal(t, b.ID, list[0].ID)

	require.NoError(t, a.Submit(context.Background(), Intent{Kind: IntentSit, Actor: models.Identity{ID: "x"}, Seat: 3}))
	assert.Equal(t, a, store.RoomForPlayer("x"))
	assert.Nil(t, store.RoomForPlayer("y"))

	store.DeleteRoom(context.Background(), a.ID)
	_, ok := store.GetRoom(a.ID)
	assert.False(t, ok)
	assert.True(t, a.Closed())
	store.CloseAll(context.Background())
	assert.Empty(t, store.Summaries())
}
