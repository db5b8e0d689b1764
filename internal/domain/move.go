package domain

import "errors"

// Local pre-send guards for a move. These never leave the client; the
// server re-validates everything.
var (
	ErrBadCell       = errors.New("cell index out of range")
	ErrCellOccupied  = errors.New("cell already taken")
	ErrNotYourTurn   = errors.New("not your turn")
	ErrMatchFinished = errors.New("match already finished")
)

// ValidateMove checks whether sending a move for the given cell is
// worth attempting. A nil error only means the send may go out; the
// next authoritative snapshot decides whether the move happened.
func ValidateMove(s *MatchState, localUserID string, cell int) error {
	if cell < 0 || cell >= BoardSize {
		return ErrBadCell
	}
	if s.IsFinished {
		return ErrMatchFinished
	}
	if s.NextTurnUserID != "" && s.NextTurnUserID != localUserID {
		return ErrNotYourTurn
	}
	if s.Board[cell] != MarkEmpty {
		return ErrCellOccupied
	}
	return nil
}
