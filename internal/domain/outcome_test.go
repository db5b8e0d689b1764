package domain

import "testing"

func TestResolveOutcome(t *testing.T) {
	const me = "u1"
	const them = "u2"

	tests := []struct {
		name  string
		state *MatchState
		want  Outcome
	}{
		{name: "nil state", state: nil, want: OutcomeNone},
		{name: "not finished", state: &MatchState{IsFinished: false}, want: OutcomeNone},
		{name: "draw flag", state: &MatchState{IsFinished: true, IsDraw: true}, want: OutcomeDraw},
		{name: "draw reason", state: &MatchState{IsFinished: true, EndReason: EndReasonDraw}, want: OutcomeDraw},
		{
			name:  "draw wins over winner field",
			state: &MatchState{IsFinished: true, IsDraw: true, WinnerUserID: me},
			want:  OutcomeDraw,
		},
		{
			name:  "opponent left, I win",
			state: &MatchState{IsFinished: true, EndReason: EndReasonOpponentLeft, WinnerUserID: me},
			want:  OutcomeWinByForfeit,
		},
		{
			name:  "opponent left, I am not the winner",
			state: &MatchState{IsFinished: true, EndReason: EndReasonOpponentLeft, WinnerUserID: them},
			want:  OutcomeLoss,
		},
		{
			name:  "opponent left, winner unnamed",
			state: &MatchState{IsFinished: true, EndReason: EndReasonOpponentLeft},
			want:  OutcomeWinByForfeit,
		},
		{
			name:  "timeout win",
			state: &MatchState{IsFinished: true, EndReason: EndReasonTimeout, WinnerUserID: me},
			want:  OutcomeWinOnTime,
		},
		{
			name:  "timeout loss",
			state: &MatchState{IsFinished: true, EndReason: EndReasonTimeout, WinnerUserID: them},
			want:  OutcomeLossOnTime,
		},
		{
			name:  "plain win",
			state: &MatchState{IsFinished: true, WinnerUserID: me},
			want:  OutcomeWin,
		},
		{
			name:  "plain loss",
			state: &MatchState{IsFinished: true, WinnerUserID: them},
			want:  OutcomeLoss,
		},
		{
			name:  "finished with no detail",
			state: &MatchState{IsFinished: true},
			want:  OutcomeGameOver,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveOutcome(tt.state, me); got != tt.want {
				t.Fatalf("ResolveOutcome() = %d, want %d", got, tt.want)
			}
		})
	}
}
