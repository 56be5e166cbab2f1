// internal/game/session.go
package game

import (
	"fmt"
	"math/rand/v2"

	"github.com/google/uuid"
	"github.com/jason-s-yu/omi/internal/models"
)

// Phase is a node of the session state graph.
type Phase string

const (
	PhaseLobby           Phase = "lobby"
	PhaseDealing         Phase = "dealing"
	PhaseCallingTrump    Phase = "calling_trump"
	PhasePlaying         Phase = "playing"
	PhaseTrickResolution Phase = "trick_resolution"
	PhaseRoundEnd        Phase = "round_end"
	PhaseGameOver        Phase = "game_over"
)

// SeatCount is fixed; Omi is always four players in two partnerships.
const SeatCount = 4

// Seat holds at most one occupant. Bot seats are driven by the room authority.
type Seat struct {
	Occupant *models.Identity `json:"occupant,omitempty"`
	Bot      bool             `json:"bot"`
}

// Empty reports whether nobody sits here.
func (s Seat) Empty() bool {
	return s.Occupant == nil
}

// Session is the authoritative state of one room across rounds. All
// methods that change state validate first and mutate only on success, and
// every transition bumps Version by exactly one.
//
// Session is not safe for concurrent use; the room serializes access.
type Session struct {
	ID           uuid.UUID
	Seats        [SeatCount]Seat
	DealerSeat   int
	DeclarerSeat int
	TurnSeat     int
	Trump        Suit
	Phase        Phase
	Tokens       Tally
	TricksWon    Tally
	Trick        []Play
	LastTrick    *CompletedTrick
	Round        int
	LastRound    *RoundResult
	Winner       *Partnership
	Version      uint64

	hands  [SeatCount][]Card
	deck   Deck
	rng    *rand.Rand
	events []Event
	staged []PublicState
}

// NewSession returns a session in the lobby with fresh tokens.
func NewSession(id uuid.UUID) *Session {
	s := &Session{ID: id}
	s.clearTable()
	s.Phase = PhaseLobby
	s.Tokens = Tally{A: StartingTokens, B: StartingTokens}
	s.DealerSeat = 0
	s.DeclarerSeat = declarerFor(0)
	return s
}

// SetRand fixes the shuffle source. Tests use this for deterministic deals.
func (s *Session) SetRand(r *rand.Rand) {
	s.rng = r
}

func declarerFor(dealer int) int {
	return (dealer + 1) % SeatCount
}

func validSeat(seat int) error {
	if seat < 0 || seat >= SeatCount {
		return fmt.Errorf("%w: %d", ErrInvalidSeat, seat)
	}
	return nil
}

func (s *Session) requirePhase(want Phase) error {
	if s.Phase != want {
		return fmt.Errorf("%w: in %s, need %s", ErrWrongPhase, s.Phase, want)
	}
	return nil
}

// transition moves to the given phase, bumps the version and records an event.
func (s *Session) transition(to Phase, kind EventKind, seat int, format string, args ...interface{}) {
	s.Phase = to
	s.Version++
	s.emit(kind, seat, format, args...)
}

// emit records an extra event against the current version.
func (s *Session) emit(kind EventKind, seat int, format string, args ...interface{}) {
	ev := Event{Version: s.Version, Kind: kind, Message: fmt.Sprintf(format, args...)}
	if seat >= 0 {
		st := seat
		ev.Seat = &st
	}
	s.events = append(s.events, ev)
}

// stage keeps the snapshot of an intermediate phase that a single call
// passes through, so it can be published before the final one.
func (s *Session) stage() {
	s.staged = append(s.staged, s.PublicState())
}

// DrainStaged returns and clears the intermediate snapshots recorded since
// the last drain, oldest first.
func (s *Session) DrainStaged() []PublicState {
	out := s.staged
	s.staged = nil
	return out
}

// DrainEvents returns and clears the events recorded since the last drain.
func (s *Session) DrainEvents() []Event {
	out := s.events
	s.events = nil
	return out
}

// SeatName is the occupant's display name or a positional fallback.
func (s *Session) SeatName(seat int) string {
	if seat >= 0 && seat < SeatCount && s.Seats[seat].Occupant != nil && s.Seats[seat].Occupant.DisplayName != "" {
		return s.Seats[seat].Occupant.DisplayName
	}
	return fmt.Sprintf("seat %d", seat)
}

// SeatOf returns the seat held by the given player id, or -1.
func (s *Session) SeatOf(playerID string) int {
	for i, st := range s.Seats {
		if st.Occupant != nil && st.Occupant.ID == playerID {
			return i
		}
	}
	return -1
}

// Full reports whether all four seats are occupied.
func (s *Session) Full() bool {
	for _, st := range s.Seats {
		if st.Empty() {
			return false
		}
	}
	return true
}

// Seated counts occupied seats.
func (s *Session) Seated() int {
	n := 0
	for _, st := range s.Seats {
		if !st.Empty() {
			n++
		}
	}
	return n
}

// Hand returns a copy of the seat's private hand.
func (s *Session) Hand(seat int) []Card {
	if validSeat(seat) != nil {
		return nil
	}
	out := make([]Card, len(s.hands[seat]))
	copy(out, s.hands[seat])
	return out
}

// SitPlayer seats a human in the lobby.
func (s *Session) SitPlayer(seat int, who models.Identity) error {
	return s.sit(seat, who, false)
}

// SitBot seats a bot in the lobby.
func (s *Session) SitBot(seat int, who models.Identity) error {
	return s.sit(seat, who, true)
}

func (s *Session) sit(seat int, who models.Identity, bot bool) error {
	if err := s.requirePhase(PhaseLobby); err != nil {
		return err
	}
	if err := validSeat(seat); err != nil {
		return err
	}
	if !who.Valid() {
		return fmt.Errorf("%w: occupant has no id", ErrInvalidSeat)
	}
	if !s.Seats[seat].Empty() {
		return fmt.Errorf("%w: seat %d held by %s", ErrSeatTaken, seat, s.SeatName(seat))
	}
	if at := s.SeatOf(who.ID); at >= 0 {
		return fmt.Errorf("%w: %s already sits at seat %d", ErrSeatTaken, who.ID, at)
	}

	occupant := who
	s.Seats[seat] = Seat{Occupant: &occupant, Bot: bot}
	kind := "player"
	if bot {
		kind = "bot"
	}
	s.transition(PhaseLobby, EventSeatUpdate, seat, "%s (%s) takes seat %d", s.SeatName(seat), kind, seat)
	return nil
}

// Vacate empties a seat in the lobby.
func (s *Session) Vacate(seat int) error {
	if err := s.requirePhase(PhaseLobby); err != nil {
		return err
	}
	if err := validSeat(seat); err != nil {
		return err
	}
	if s.Seats[seat].Empty() {
		return fmt.Errorf("%w: seat %d", ErrNotSeated, seat)
	}
	name := s.SeatName(seat)
	s.Seats[seat] = Seat{}
	s.transition(PhaseLobby, EventSeatUpdate, seat, "%s leaves seat %d", name, seat)
	return nil
}

// Deal starts the first round. Only the dealer may deal and only once all
// four seats are filled. The declarer receives the first four cards and is
// asked to call trump.
func (s *Session) Deal(seat int) error {
	if err := s.requirePhase(PhaseLobby); err != nil {
		return err
	}
	if err := validSeat(seat); err != nil {
		return err
	}
	if !s.Full() {
		return fmt.Errorf("%w: %d of %d seats filled", ErrIncompleteRoom, s.Seated(), SeatCount)
	}
	if seat != s.DealerSeat {
		return fmt.Errorf("%w: dealer is seat %d", ErrNotDealer, s.DealerSeat)
	}
	s.Round = 1
	s.startDeal()
	return nil
}

// startDeal performs Dealing -> CallingTrump. Assumes the table is clear.
func (s *Session) startDeal() {
	s.deck = NewDeckWithRand(s.rng)
	for i := range s.hands {
		s.hands[i] = nil
	}
	first, _ := DealSlice(s.deck, 0, FirstDealSize)
	s.hands[s.DeclarerSeat] = first
	s.transition(PhaseDealing, EventDeal, s.DealerSeat, "%s deals round %d", s.SeatName(s.DealerSeat), s.Round)
	s.stage()

	s.TurnSeat = s.DeclarerSeat
	s.transition(PhaseCallingTrump, EventCallTrump, s.DeclarerSeat, "%s to call trump", s.SeatName(s.DeclarerSeat))
}

// SelectTrump fixes the trump suit for the round and completes the deal:
// four more cards to the declarer, then eight to each other seat clockwise.
// The declarer leads the first trick.
func (s *Session) SelectTrump(seat int, suit Suit) error {
	if err := s.requirePhase(PhaseCallingTrump); err != nil {
		return err
	}
	if err := validSeat(seat); err != nil {
		return err
	}
	if seat != s.DeclarerSeat {
		return fmt.Errorf("%w: seat %d is the declarer", ErrOutOfTurn, s.DeclarerSeat)
	}
	if !suit.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidSuit, string(suit))
	}
	if len(s.deck) != DeckSize {
		return fmt.Errorf("%w: deck holds %d cards", ErrWrongPhase, len(s.deck))
	}

	rest, _ := DealSlice(s.deck, FirstDealSize, HandSize-FirstDealSize)
	s.hands[s.DeclarerSeat] = append(s.hands[s.DeclarerSeat], rest...)
	for i := 1; i < SeatCount; i++ {
		target := (s.DeclarerSeat + i) % SeatCount
		s.hands[target], _ = DealSlice(s.deck, HandSize*i, HandSize)
	}
	s.deck = nil

	s.Trump = suit
	s.TurnSeat = s.DeclarerSeat
	s.transition(PhasePlaying, EventTrumpCalled, seat, "trump is %s", suit.Symbol())
	return nil
}

// PlayCard lays a card from the acting seat's hand onto the current trick.
func (s *Session) PlayCard(seat int, card Card) error {
	if err := s.requirePhase(PhasePlaying); err != nil {
		return err
	}
	if err := validSeat(seat); err != nil {
		return err
	}
	if seat != s.TurnSeat {
		return fmt.Errorf("%w: it is seat %d's turn", ErrOutOfTurn, s.TurnSeat)
	}
	hand := s.hands[seat]
	if !containsCard(hand, card) {
		return fmt.Errorf("%w: %s is not in hand", ErrIllegalMove, card)
	}
	if !IsValidMove(card, hand, s.Trick, s.Trump) {
		return fmt.Errorf("%w: must follow %s", ErrIllegalMove, s.Trick[0].Card.Suit.Symbol())
	}

	s.hands[seat] = withoutCard(hand, card)
	s.Trick = append(s.Trick, Play{Card: card, Seat: seat})
	if len(s.Trick) < SeatCount {
		s.TurnSeat = (s.TurnSeat + 1) % SeatCount
		s.transition(PhasePlaying, EventCardPlayed, seat, "%s plays %s%s", s.SeatName(seat), card.Rank, card.Suit.Symbol())
		return nil
	}
	s.transition(PhaseTrickResolution, EventTrickFull, seat, "%s plays %s%s", s.SeatName(seat), card.Rank, card.Suit.Symbol())
	return nil
}

// ResolveTrick awards the full trick and hands the lead to its winner. The
// eighth trick ends the round.
func (s *Session) ResolveTrick() error {
	if err := s.requirePhase(PhaseTrickResolution); err != nil {
		return err
	}
	winner, err := DetermineTrickWinner(s.Trick, s.Trump)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWrongPhase, err)
	}

	s.TricksWon.Add(PartnershipOf(winner.Seat), 1)
	s.LastTrick = &CompletedTrick{Plays: s.Trick, Winner: winner}
	s.Trick = nil
	s.TurnSeat = winner.Seat

	next := PhasePlaying
	if s.TricksWon.Total() == TricksPerRound {
		next = PhaseRoundEnd
	}
	s.transition(next, EventTrickWon, winner.Seat, "trick won by %s with %s%s", s.SeatName(winner.Seat), winner.Card.Rank, winner.Card.Suit.Symbol())
	if next == PhaseRoundEnd {
		s.emit(EventRoundEnd, -1, "round %d over: A %d, B %d", s.Round, s.TricksWon.A, s.TricksWon.B)
	}
	return nil
}

// FinishRound scores the round. If a partnership runs out of tokens the
// session is over; otherwise the deal passes one seat clockwise and the
// next round is dealt.
func (s *Session) FinishRound() error {
	if err := s.requirePhase(PhaseRoundEnd); err != nil {
		return err
	}
	res := ScoreRound(s.TricksWon, PartnershipOf(s.DeclarerSeat))
	res.Round = s.Round
	tokens, eliminated := ApplyTokens(s.Tokens, res)
	s.Tokens = tokens
	s.LastRound = &res

	if eliminated != nil {
		winner := eliminated.Other()
		s.Winner = &winner
		s.transition(PhaseGameOver, EventGameOver, -1, "partnership %s is out of tokens, partnership %s wins", eliminated, winner)
		return nil
	}

	s.DealerSeat = (s.DealerSeat + 1) % SeatCount
	s.DeclarerSeat = declarerFor(s.DealerSeat)
	s.clearTable()
	s.Round++
	s.emit(EventRoundScored, -1, "%s", describeResult(res))
	s.startDeal()
	return nil
}

// Reset returns the room to the lobby with fresh tokens, keeping the seats.
func (s *Session) Reset() {
	s.clearTable()
	for i := range s.hands {
		s.hands[i] = nil
	}
	s.deck = nil
	s.Tokens = Tally{A: StartingTokens, B: StartingTokens}
	s.DealerSeat = 0
	s.DeclarerSeat = declarerFor(0)
	s.TurnSeat = 0
	s.Round = 0
	s.LastRound = nil
	s.Winner = nil
	s.transition(PhaseLobby, EventReset, -1, "table reset")
}

func (s *Session) clearTable() {
	s.TricksWon = Tally{}
	s.Trump = NoSuit
	s.Trick = nil
	s.LastTrick = nil
}

func describeResult(res RoundResult) string {
	if res.Loser == nil {
		return fmt.Sprintf("round %d tied %d-%d, no tokens change hands", res.Round, res.TricksWon.A, res.TricksWon.B)
	}
	msg := fmt.Sprintf("round %d: partnership %s loses %d token", res.Round, *res.Loser, res.TokensLost)
	if res.TokensLost != 1 {
		msg += "s"
	}
	if res.Kapothi {
		msg += " (kapothi)"
	}
	return msg
}

// Clone returns a deep copy, pending events and staged snapshots included.
func (s *Session) Clone() *Session {
	c := *s
	for i, st := range s.Seats {
		if st.Occupant != nil {
			who := *st.Occupant
			c.Seats[i].Occupant = &who
		}
	}
	for i := range s.hands {
		c.hands[i] = cloneCards(s.hands[i])
	}
	if s.deck != nil {
		c.deck = Deck(cloneCards(s.deck))
	}
	c.Trick = clonePlays(s.Trick)
	if s.LastTrick != nil {
		lt := *s.LastTrick
		lt.Plays = clonePlays(lt.Plays)
		c.LastTrick = &lt
	}
	if s.LastRound != nil {
		lr := *s.LastRound
		if lr.Loser != nil {
			l := *lr.Loser
			lr.Loser = &l
		}
		c.LastRound = &lr
	}
	if s.Winner != nil {
		w := *s.Winner
		c.Winner = &w
	}
	if s.events != nil {
		c.events = make([]Event, len(s.events))
		copy(c.events, s.events)
	}
	if s.staged != nil {
		c.staged = make([]PublicState, len(s.staged))
		copy(c.staged, s.staged)
	}
	return &c
}

func cloneCards(in []Card) []Card {
	if in == nil {
		return nil
	}
	out := make([]Card, len(in))
	copy(out, in)
	return out
}

func clonePlays(in []Play) []Play {
	if in == nil {
		return nil
	}
	out := make([]Play, len(in))
	copy(out, in)
	return out
}
