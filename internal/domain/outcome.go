package domain

// End reasons reported by the server on a terminal snapshot.
const (
	EndReasonDraw         = "DRAW"
	EndReasonOpponentLeft = "OPPONENT_LEFT"
	EndReasonTimeout      = "TIMEOUT"
)

// Outcome classifies a terminal snapshot from one player's perspective.
type Outcome int

const (
	// OutcomeNone means the match has not finished.
	OutcomeNone Outcome = iota
	// OutcomeDraw means neither side won.
	OutcomeDraw
	// OutcomeWinByForfeit means the opponent left and the remaining
	// player takes the win.
	OutcomeWinByForfeit
	// OutcomeWinOnTime means the opponent's clock elapsed.
	OutcomeWinOnTime
	// OutcomeLossOnTime means the local player's clock elapsed.
	OutcomeLossOnTime
	// OutcomeWin is a regular win.
	OutcomeWin
	// OutcomeLoss is a regular loss.
	OutcomeLoss
	// OutcomeGameOver means the match ended without enough detail to
	// classify it further.
	OutcomeGameOver
)

// ResolveOutcome derives the termination classification for localUserID
// from a snapshot, in priority order: draw, opponent-left, timeout,
// plain win/loss, generic game over. The server decides who won; this
// only names the result.
func ResolveOutcome(s *MatchState, localUserID string) Outcome {
	if s == nil || !s.IsFinished {
		return OutcomeNone
	}
	if s.IsDraw || s.EndReason == EndReasonDraw {
		return OutcomeDraw
	}
	if s.EndReason == EndReasonOpponentLeft {
		// The recipient of a terminal snapshot is the remaining player,
		// so an unnamed winner still means a forfeit win.
		if s.WinnerUserID == "" || s.WinnerUserID == localUserID {
			return OutcomeWinByForfeit
		}
		return OutcomeLoss
	}
	if s.EndReason == EndReasonTimeout {
		if s.WinnerUserID == localUserID {
			return OutcomeWinOnTime
		}
		return OutcomeLossOnTime
	}
	switch {
	case s.WinnerUserID == "":
		return OutcomeGameOver
	case s.WinnerUserID == localUserID:
		return OutcomeWin
	default:
		return OutcomeLoss
	}
}
