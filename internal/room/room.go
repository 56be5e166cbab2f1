// internal/room/room.go
package room

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/omi/internal/bot"
	"github.com/jason-s-yu/omi/internal/broadcast"
	"github.com/jason-s-yu/omi/internal/cache"
	"github.com/jason-s-yu/omi/internal/game"
	"github.com/jason-s-yu/omi/internal/models"
	"github.com/jason-s-yu/omi/internal/replication"
	"github.com/jason-s-yu/omi/internal/scheduler"
	"github.com/sirupsen/logrus"
)

// ActionRecorder receives every accepted intent for the history log.
type ActionRecorder interface {
	PublishGameAction(ctx context.Context, record cache.GameActionRecord) error
}

// ResultRecorder persists finished games.
type ResultRecorder interface {
	RecordGameResult(ctx context.Context, res models.GameResult) error
}

// Timing holds the pauses the authority inserts between automatic steps.
type Timing struct {
	BotThink   time.Duration
	TrickPause time.Duration
	RoundPause time.Duration
}

// DefaultTiming is used for any zero field.
var DefaultTiming = Timing{
	BotThink:   900 * time.Millisecond,
	TrickPause: 1500 * time.Millisecond,
	RoundPause: 3 * time.Second,
}

// Options wires a room to its collaborators. Bus and Logger are required.
type Options struct {
	Bus     broadcast.Broadcaster
	Store   cache.SnapshotStore
	Actions ActionRecorder
	Results ResultRecorder
	Timing  Timing
	Logger  *logrus.Logger
	Rand    *rand.Rand
}

// systemActor authors the transitions no client asks for.
const systemActor = "system"

// Room is the single authority for one table. Every transition runs under
// mu and is published before mu is released, so subscribers see versions
// in order.
type Room struct {
	ID        uuid.UUID
	HostID    string
	CreatedAt time.Time

	mu        sync.Mutex
	session   *game.Session
	bots      map[int]*bot.Agent
	hands     [game.SeatCount][]game.Card
	gameID    uuid.UUID
	startedAt time.Time
	recorded  bool
	closed    bool
	rng       *rand.Rand

	bus     broadcast.Broadcaster
	store   cache.SnapshotStore
	actions ActionRecorder
	results ResultRecorder
	timing  Timing
	queue   *scheduler.Queue
	resync  broadcast.Subscription
	logger  *logrus.Entry
}

// New creates a room in the lobby. Call Start to answer resync requests.
func New(id uuid.UUID, hostID string, opts Options) *Room {
	t := opts.Timing
	if t.BotThink <= 0 {
		t.BotThink = DefaultTiming.BotThink
	}
	if t.TrickPause <= 0 {
		t.TrickPause = DefaultTiming.TrickPause
	}
	if t.RoundPause <= 0 {
		t.RoundPause = DefaultTiming.RoundPause
	}

	s := game.NewSession(id)
	if opts.Rand != nil {
		s.SetRand(opts.Rand)
	}
	return &Room{
		ID:        id,
		HostID:    hostID,
		CreatedAt: time.Now(),
		session:   s,
		bots:      make(map[int]*bot.Agent),
		gameID:    uuid.New(),
		rng:       opts.Rand,
		bus:       opts.Bus,
		store:     opts.Store,
		actions:   opts.Actions,
		results:   opts.Results,
		timing:    t,
		queue:     scheduler.NewQueue(),
		logger:    opts.Logger.WithField("room", id),
	}
}

// Start subscribes to resync requests on the shared topic and publishes the
// initial snapshot.
func (r *Room) Start(ctx context.Context) error {
	sub, err := r.bus.Subscribe(ctx, broadcast.RoomTopic(r.ID), r.onShared)
	if err != nil {
		return fmt.Errorf("room %s subscribe: %w", r.ID, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resync = sub
	r.publishStateLocked(ctx)
	return nil
}

// Close stops timers and subscriptions and drops the stored snapshot.
func (r *Room) Close(ctx context.Context) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	sub := r.resync
	r.resync = nil
	r.mu.Unlock()

	r.queue.Close()
	if sub != nil {
		_ = sub.Unsubscribe()
	}
	if r.store != nil {
		if err := r.store.DeleteSnapshot(ctx, r.ID); err != nil {
			r.logger.Warnf("failed to delete snapshot: %v", err)
		}
	}
	r.logger.Info("room closed")
}

// Submit validates an intent and, if accepted, applies and publishes the
// resulting state. A rejected intent changes nothing.
func (r *Room) Submit(ctx context.Context, in Intent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}

	prevPhase := r.session.Phase
	if err := r.applyLocked(in); err != nil {
		r.logger.Debugf("rejected %s: %v", in, err)
		return err
	}
	if in.Kind == IntentDeal && prevPhase == game.PhaseLobby {
		r.startedAt = time.Now()
	}
	r.recordActionLocked(ctx, in.Actor.ID, string(in.Kind), in.payload())
	r.commitLocked(ctx)
	return nil
}

func (r *Room) applyLocked(in Intent) error {
	s := r.session
	switch in.Kind {
	case IntentSit:
		if bot.IsBot(in.Actor) {
			return fmt.Errorf("%w: %s is a bot identity", ErrNotAllowed, in.Actor.ID)
		}
		return s.SitPlayer(in.Seat, in.Actor)
	case IntentAddBot:
		if s.SeatOf(in.Actor.ID) < 0 && in.Actor.ID != r.HostID {
			return fmt.Errorf("%w: only seated players or the host add bots", ErrNotAllowed)
		}
		agent := bot.NewAgent(in.Seat, r.rng)
		if err := s.SitBot(in.Seat, agent.Identity); err != nil {
			return err
		}
		r.bots[in.Seat] = agent
		return nil
	case IntentLeave:
		if in.Seat >= 0 && in.Seat < game.SeatCount {
			st := s.Seats[in.Seat]
			own := st.Occupant != nil && st.Occupant.ID == in.Actor.ID
			if !st.Empty() && !own && !st.Bot {
				return fmt.Errorf("%w: seat %d belongs to someone else", ErrNotAllowed, in.Seat)
			}
		}
		if err := s.Vacate(in.Seat); err != nil {
			return err
		}
		delete(r.bots, in.Seat)
		return nil
	case IntentDeal, IntentSelectTrump, IntentPlayCard:
		seat := s.SeatOf(in.Actor.ID)
		if seat < 0 {
			return fmt.Errorf("%w: %s holds no seat", game.ErrNotSeated, in.Actor.ID)
		}
		switch in.Kind {
		case IntentDeal:
			return s.Deal(seat)
		case IntentSelectTrump:
			return s.SelectTrump(seat, in.Suit)
		}
		return s.PlayCard(seat, in.Card)
	case IntentReset:
		if s.SeatOf(in.Actor.ID) < 0 && in.Actor.ID != r.HostID {
			return fmt.Errorf("%w: only seated players or the host reset", ErrNotAllowed)
		}
		r.queue.CancelAll()
		s.Reset()
		r.newGameLocked()
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownIntent, in.Kind)
}

// newGameLocked starts a fresh history id. Actions logged before it keep
// the previous id.
func (r *Room) newGameLocked() {
	r.gameID = uuid.New()
	r.startedAt = time.Time{}
	r.recorded = false
}

// commitLocked publishes everything the last transition produced and
// schedules the next automatic step.
func (r *Room) commitLocked(ctx context.Context) {
	for _, ps := range r.session.DrainStaged() {
		r.publishSnapshotLocked(ctx, ps)
	}
	r.publishStateLocked(ctx)
	r.publishHandsLocked(ctx)
	for _, ev := range r.session.DrainEvents() {
		r.publishLocked(ctx, broadcast.RoomTopic(r.ID), replication.EventMessage(r.ID, ev))
	}
	if r.session.Phase == game.PhaseGameOver && !r.recorded {
		r.recorded = true
		r.recordResultLocked()
	}
	r.scheduleLocked()
}

func (r *Room) publishLocked(ctx context.Context, topic string, m replication.Message) {
	data, err := replication.Encode(m)
	if err != nil {
		r.logger.Errorf("failed to encode %s: %v", m.Type, err)
		return
	}
	if err := r.bus.Publish(ctx, topic, data); err != nil {
		r.logger.Warnf("failed to publish %s v%d: %v", m.Type, m.Version, err)
	}
}

func (r *Room) publishStateLocked(ctx context.Context) {
	r.publishSnapshotLocked(ctx, r.session.PublicState())
}

func (r *Room) publishSnapshotLocked(ctx context.Context, ps game.PublicState) {
	r.publishLocked(ctx, broadcast.RoomTopic(r.ID), replication.FullState(r.ID, ps))
	if r.store == nil {
		return
	}
	data, err := json.Marshal(ps)
	if err != nil {
		r.logger.Errorf("failed to encode snapshot: %v", err)
		return
	}
	if err := r.store.SaveSnapshot(ctx, r.ID, cache.Snapshot{Version: ps.Version, Data: data}); err != nil {
		r.logger.Warnf("failed to save snapshot v%d: %v", ps.Version, err)
	}
}

// publishHandsLocked sends each human seat its hand when it changed.
func (r *Room) publishHandsLocked(ctx context.Context) {
	for seat := 0; seat < game.SeatCount; seat++ {
		h := r.session.Hand(seat)
		if slices.Equal(h, r.hands[seat]) {
			continue
		}
		r.hands[seat] = h
		if r.session.Seats[seat].Empty() || r.session.Seats[seat].Bot {
			continue
		}
		r.publishLocked(ctx, broadcast.SeatTopic(r.ID, seat), replication.Hand(r.ID, r.session.Version, seat, h))
	}
}

func (r *Room) recordActionLocked(ctx context.Context, actor, kind string, payload map[string]interface{}) {
	if r.actions == nil {
		return
	}
	rec := cache.GameActionRecord{
		GameID:        r.gameID,
		ActionIndex:   r.session.Version,
		ActorID:       actor,
		ActionType:    kind,
		ActionPayload: payload,
		Timestamp:     time.Now().UnixMilli(),
	}
	if err := r.actions.PublishGameAction(ctx, rec); err != nil {
		r.logger.Warnf("failed to log action %s: %v", kind, err)
	}
}

func (r *Room) recordResultLocked() {
	if r.results == nil || r.session.Winner == nil {
		return
	}
	s := r.session
	res := models.GameResult{
		GameID:    r.gameID,
		RoomID:    r.ID,
		Winner:    s.Winner.String(),
		TokensA:   s.Tokens.A,
		TokensB:   s.Tokens.B,
		Rounds:    s.Round,
		StartedAt: r.startedAt,
		EndedAt:   time.Now(),
	}
	for i, st := range s.Seats {
		sr := models.SeatResult{
			Seat:        i,
			Bot:         st.Bot,
			Partnership: game.PartnershipOf(i).String(),
			Won:         game.PartnershipOf(i) == *s.Winner,
		}
		if st.Occupant != nil {
			sr.PlayerID = st.Occupant.ID
			sr.DisplayName = st.Occupant.DisplayName
		}
		res.Seats = append(res.Seats, sr)
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := r.results.RecordGameResult(ctx, res); err != nil {
			r.logger.Errorf("failed to record result of game %s: %v", res.GameID, err)
			return
		}
		r.logger.Infof("recorded game %s, partnership %s won", res.GameID, res.Winner)
	}()
}

// scheduleLocked queues the next automatic step for the current version,
// if the current phase has one.
func (r *Room) scheduleLocked() {
	s := r.session
	v := s.Version
	switch s.Phase {
	case game.PhaseTrickResolution:
		r.queue.Schedule(v, r.timing.TrickPause, r.guarded("resolve_trick", func() error {
			return s.ResolveTrick()
		}))
	case game.PhaseRoundEnd:
		r.queue.Schedule(v, r.timing.RoundPause, r.guarded("finish_round", func() error {
			return s.FinishRound()
		}))
	case game.PhaseLobby:
		if s.Full() && r.bots[s.DealerSeat] != nil && s.Seats[s.DealerSeat].Bot {
			dealer := s.DealerSeat
			r.queue.Schedule(v, r.timing.BotThink, r.guarded("deal", func() error {
				return s.Deal(dealer)
			}))
		}
	case game.PhaseCallingTrump:
		r.scheduleBotLocked(s.DeclarerSeat)
	case game.PhasePlaying:
		r.scheduleBotLocked(s.TurnSeat)
	}
}

func (r *Room) scheduleBotLocked(seat int) {
	agent := r.bots[seat]
	if agent == nil || !r.session.Seats[seat].Bot {
		return
	}
	r.queue.Schedule(r.session.Version, r.timing.BotThink, r.guarded("bot", func() error {
		act, ok := agent.Decide(r.session)
		if !ok {
			return fmt.Errorf("bot at seat %d has nothing to do", seat)
		}
		return agent.Apply(r.session, act)
	}))
}

// guarded wraps a step so that it only runs if the session is still at the
// version the step was scheduled for.
func (r *Room) guarded(name string, step func() error) scheduler.Task {
	return func(version uint64) {
		ctx := context.Background()
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.closed || r.session.Version != version {
			r.logger.WithField("version", version).Debugf("stale %s task ignored at v%d", name, r.session.Version)
			return
		}
		prevPhase := r.session.Phase
		if err := step(); err != nil {
			r.logger.Warnf("%s step failed: %v", name, err)
			return
		}
		if name == "deal" && prevPhase == game.PhaseLobby {
			r.startedAt = time.Now()
		}
		r.recordActionLocked(ctx, systemActor, name, nil)
		r.commitLocked(ctx)
	}
}

// Resync republishes the current snapshot, and the seat's hand when seat
// is a valid occupied seat.
func (r *Room) Resync(ctx context.Context, seat int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.publishStateLocked(ctx)
	if seat >= 0 && seat < game.SeatCount && !r.session.Seats[seat].Empty() && !r.session.Seats[seat].Bot {
		h := r.session.Hand(seat)
		r.publishLocked(ctx, broadcast.SeatTopic(r.ID, seat), replication.Hand(r.ID, r.session.Version, seat, h))
	}
}

func (r *Room) onShared(payload []byte) {
	m, err := replication.Decode(payload)
	if err != nil || m.Type != replication.TypeResyncRequest {
		return
	}
	seat := -1
	if m.Seat != nil {
		seat = *m.Seat
	}
	r.Resync(context.Background(), seat)
}

// State returns the current public snapshot.
func (r *Room) State() game.PublicState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session.PublicState()
}

// HandOf returns a copy of the player's hand and their seat, or -1.
func (r *Room) HandOf(playerID string) (int, []game.Card) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seat := r.session.SeatOf(playerID)
	if seat < 0 {
		return -1, nil
	}
	return seat, r.session.Hand(seat)
}

// SeatOf returns the player's seat, or -1.
func (r *Room) SeatOf(playerID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session.SeatOf(playerID)
}

// HasHumans reports whether any seat is held by a person.
func (r *Room) HasHumans() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, st := range r.session.Seats {
		if !st.Empty() && !st.Bot {
			return true
		}
	}
	return false
}

// Summary is the listing view.
func (r *Room) Summary() models.RoomSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return models.RoomSummary{
		ID:        r.ID,
		HostID:    r.HostID,
		Phase:     string(r.session.Phase),
		Seated:    r.session.Seated(),
		Version:   r.session.Version,
		CreatedAt: r.CreatedAt,
	}
}

// GameID is the history id actions are currently logged under.
func (r *Room) GameID() uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gameID
}

// Closed reports whether Close has run.
func (r *Room) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
