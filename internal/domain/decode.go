package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrDecode marks an inbound payload that failed strict validation.
// Payloads carrying it are dropped; the prior mirror is retained.
var ErrDecode = errors.New("malformed match payload")

// MaxPlayers is the participant cap for a match.
const MaxPlayers = 2

type playerWire struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Mark     string `json:"mark"`
}

// stateWire mirrors the server's STATE payload. Required booleans are
// pointers so a missing field is distinguishable from false.
type stateWire struct {
	Board          []string     `json:"board"`
	Players        []playerWire `json:"players"`
	NextTurnUserID *string      `json:"nextTurnUserId"`
	WinnerUserID   *string      `json:"winnerUserId"`
	IsDraw         *bool        `json:"isDraw"`
	IsFinished     *bool        `json:"isFinished"`
	EndReason      string       `json:"endReason"`
	Mode           string       `json:"mode"`
	TurnDeadline   *int64       `json:"turnDeadline"` // unix millis, absolute
	Version        int64        `json:"version"`
}

// DecodeState validates and decodes a STATE payload into a MatchState.
// Any deviation from the expected shape returns an error wrapping
// ErrDecode; nothing is ever coerced silently.
func DecodeState(data []byte) (*MatchState, error) {
	var w stateWire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	if len(w.Board) != BoardSize {
		return nil, fmt.Errorf("%w: board has %d cells, want %d", ErrDecode, len(w.Board), BoardSize)
	}
	if len(w.Players) > MaxPlayers {
		return nil, fmt.Errorf("%w: %d players, max %d", ErrDecode, len(w.Players), MaxPlayers)
	}
	if w.IsDraw == nil {
		return nil, fmt.Errorf("%w: missing isDraw", ErrDecode)
	}
	if w.IsFinished == nil {
		return nil, fmt.Errorf("%w: missing isFinished", ErrDecode)
	}
	if w.Version < 0 {
		return nil, fmt.Errorf("%w: negative version %d", ErrDecode, w.Version)
	}

	st := &MatchState{
		IsDraw:     *w.IsDraw,
		IsFinished: *w.IsFinished,
		EndReason:  w.EndReason,
		Version:    w.Version,
	}

	for i, cell := range w.Board {
		m, ok := parseMark(cell)
		if !ok {
			return nil, fmt.Errorf("%w: illegal cell %q at index %d", ErrDecode, cell, i)
		}
		st.Board[i] = m
	}

	for _, p := range w.Players {
		if p.UserID == "" {
			return nil, fmt.Errorf("%w: player with empty userId", ErrDecode)
		}
		m, ok := parseMark(p.Mark)
		if !ok || m == MarkEmpty {
			return nil, fmt.Errorf("%w: illegal player mark %q", ErrDecode, p.Mark)
		}
		st.Players = append(st.Players, PlayerInfo{UserID: p.UserID, Username: p.Username, Mark: m})
	}

	if w.NextTurnUserID != nil {
		st.NextTurnUserID = *w.NextTurnUserID
	}
	if w.WinnerUserID != nil {
		st.WinnerUserID = *w.WinnerUserID
	}

	switch w.Mode {
	case "", string(ModeClassic):
		st.Mode = ModeClassic
	case string(ModeTimed):
		st.Mode = ModeTimed
	default:
		return nil, fmt.Errorf("%w: unknown mode %q", ErrDecode, w.Mode)
	}

	if w.TurnDeadline != nil {
		if *w.TurnDeadline <= 0 {
			return nil, fmt.Errorf("%w: non-positive turnDeadline %d", ErrDecode, *w.TurnDeadline)
		}
		d := time.UnixMilli(*w.TurnDeadline)
		st.TurnDeadline = &d
	}

	return st, nil
}

// ErrorPayload is the body of an ERROR opcode message.
type ErrorPayload struct {
	Message string `json:"message"`
}

// DecodeError extracts the message from an ERROR payload, falling back
// to a generic message when the body is unreadable.
func DecodeError(data []byte) string {
	var p ErrorPayload
	if err := json.Unmarshal(data, &p); err != nil || p.Message == "" {
		return "server error"
	}
	return p.Message
}

// MovePayload is the body of a MOVE opcode message.
type MovePayload struct {
	Index int `json:"index"`
}

func parseMark(s string) (Mark, bool) {
	switch Mark(s) {
	case MarkEmpty, MarkX, MarkO:
		return Mark(s), true
	default:
		return "", false
	}
}
