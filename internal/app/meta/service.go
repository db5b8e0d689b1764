package meta

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"tictactoe/internal/ports"
)

// Stats is the player's win/loss record.
type Stats struct {
	Wins   int `json:"wins"`
	Losses int `json:"losses"`
	Draws  int `json:"draws"`
}

// LeaderboardEntry is one ranked row.
type LeaderboardEntry struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Wins        int    `json:"wins"`
	Losses      int    `json:"losses"`
	Draws       int    `json:"draws"`
	Rank        int    `json:"rank"`
}

// Leaderboard is the ranked listing plus the caller's own row.
type Leaderboard struct {
	Entries []LeaderboardEntry `json:"entries"`
	Me      *LeaderboardEntry  `json:"me"`
}

// Service wraps the read-only informational RPCs. Plain request and
// response, no state machine.
type Service struct {
	api    ports.ApiPort
	logger *zap.Logger
}

// NewService constructs the informational RPC wrapper.
func NewService(api ports.ApiPort, logger *zap.Logger) *Service {
	return &Service{api: api, logger: logger}
}

// Stats fetches the caller's win/loss record.
func (s *Service) Stats(ctx context.Context, token string) (*Stats, error) {
	var stats Stats
	if err := s.api.Rpc(ctx, token, "get_tiktaktoe_stats", struct{}{}, &stats); err != nil {
		return nil, fmt.Errorf("failed to fetch stats: %w", err)
	}
	return &stats, nil
}

// Leaderboard fetches the top ranked players.
func (s *Service) Leaderboard(ctx context.Context, token string, limit int) (*Leaderboard, error) {
	payload := struct {
		Limit int `json:"limit"`
	}{Limit: limit}

	var board Leaderboard
	if err := s.api.Rpc(ctx, token, "get_tiktaktoe_leaderboard", payload, &board); err != nil {
		return nil, fmt.Errorf("failed to fetch leaderboard: %w", err)
	}
	return &board, nil
}

// DisplayName resolves the caller's human-facing name, falling back to
// the username when none is set.
func (s *Service) DisplayName(ctx context.Context, token string) (string, error) {
	account, err := s.api.GetAccount(ctx, token)
	if err != nil {
		return "", fmt.Errorf("failed to fetch account: %w", err)
	}
	user := account.GetUser()
	if user == nil {
		return "Player", nil
	}
	if user.DisplayName != "" {
		return user.DisplayName, nil
	}
	if user.Username != "" {
		return user.Username, nil
	}
	return "Player", nil
}
