package domain

import "time"

// Mark is a single board cell value.
type Mark string

const (
	// MarkEmpty is an unclaimed cell.
	MarkEmpty Mark = ""
	// MarkX is the first player's mark.
	MarkX Mark = "X"
	// MarkO is the second player's mark.
	MarkO Mark = "O"
)

// Mode selects the match ruleset variant.
type Mode string

const (
	// ModeClassic is untimed play.
	ModeClassic Mode = "classic"
	// ModeTimed enforces a per-turn deadline.
	ModeTimed Mode = "timed"
)

// BoardSize is the fixed number of cells on a tic-tac-toe board.
const BoardSize = 9

// PlayerInfo identifies one participant in a match.
type PlayerInfo struct {
	UserID   string
	Username string
	Mark     Mark
}

// MatchState is the client-held mirror of the latest authoritative
// snapshot for a match. It is always replaced wholesale from a decoded
// STATE payload and never mutated locally.
type MatchState struct {
	Board          [BoardSize]Mark
	Players        []PlayerInfo
	NextTurnUserID string
	TurnDeadline   *time.Time
	WinnerUserID   string
	IsDraw         bool
	IsFinished     bool
	EndReason      string
	Mode           Mode

	// Version is a monotonic snapshot counter when the server provides
	// one, or zero. Zero means ordering cannot be verified and the last
	// received snapshot wins.
	Version int64
}

// PlayerByID returns the participant with the given user id, or nil.
func (s *MatchState) PlayerByID(userID string) *PlayerInfo {
	for i := range s.Players {
		if s.Players[i].UserID == userID {
			return &s.Players[i]
		}
	}
	return nil
}

// Opponent returns the participant that is not the given user, or nil
// if no opponent has joined yet.
func (s *MatchState) Opponent(userID string) *PlayerInfo {
	for i := range s.Players {
		if s.Players[i].UserID != userID {
			return &s.Players[i]
		}
	}
	return nil
}

// Clone returns a deep copy of the snapshot.
func (s *MatchState) Clone() *MatchState {
	if s == nil {
		return nil
	}
	out := *s
	out.Players = append([]PlayerInfo(nil), s.Players...)
	if s.TurnDeadline != nil {
		d := *s.TurnDeadline
		out.TurnDeadline = &d
	}
	return &out
}
