package game

import "errors"

// Rejections. None of these mutate the session.
var (
	ErrIllegalMove    = errors.New("illegal move")
	ErrOutOfTurn      = errors.New("out of turn")
	ErrIncompleteRoom = errors.New("room is not full")
	ErrWrongPhase     = errors.New("action not allowed in current phase")
	ErrNotDealer      = errors.New("only the dealer can deal")
	ErrInvalidSeat    = errors.New("invalid seat")
	ErrSeatTaken      = errors.New("seat is taken")
	ErrNotSeated      = errors.New("seat is empty")
	ErrInvalidSuit    = errors.New("invalid suit")
)

// Code maps a rejection to the short code sent to clients.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrIllegalMove):
		return "illegal_move"
	case errors.Is(err, ErrOutOfTurn):
		return "out_of_turn"
	case errors.Is(err, ErrIncompleteRoom):
		return "incomplete_room"
	case errors.Is(err, ErrWrongPhase):
		return "wrong_phase"
	case errors.Is(err, ErrNotDealer):
		return "not_dealer"
	case errors.Is(err, ErrInvalidSeat):
		return "invalid_seat"
	case errors.Is(err, ErrSeatTaken):
		return "seat_taken"
	case errors.Is(err, ErrNotSeated):
		return "not_seated"
	case errors.Is(err, ErrInvalidSuit):
		return "invalid_suit"
	}
	return "error"
}
