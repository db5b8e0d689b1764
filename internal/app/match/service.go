package match

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"tictactoe/internal/app"
	"tictactoe/internal/clock"
	"tictactoe/internal/domain"
	"tictactoe/internal/ports"
)

// Phase is the controller's lifecycle stage.
type Phase string

const (
	// PhaseIdle means no match is tracked.
	PhaseIdle Phase = "idle"
	// PhaseJoining means a join went out, or succeeded and the first
	// authoritative snapshot is still awaited.
	PhaseJoining Phase = "joining"
	// PhaseInMatch means at least one snapshot has been applied.
	PhaseInMatch Phase = "in_match"
)

var (
	// ErrJoin means the join or create request was rejected.
	ErrJoin = errors.New("failed to join match")
	// ErrBusy means a match is already tracked.
	ErrBusy = errors.New("already in a match")
	// ErrNotInMatch means no match is tracked.
	ErrNotInMatch = errors.New("not in a match")
	// ErrNoState means no authoritative snapshot has arrived yet.
	ErrNoState = errors.New("no match state yet")
	// ErrMatchNotOver guards rematch requests on a live match.
	ErrMatchNotOver = errors.New("match is not over")
)

// createMatchRpc is the server RPC that creates an authoritative match.
const createMatchRpc = "create_tiktaktoe_match"

// tickInterval is how often the turn countdown is recomputed.
const tickInterval = time.Second

// Identity provides the local player's credential and user id.
type Identity interface {
	UserID() string
	Token() string
}

// Service owns the authoritative-state mirror for one match at a time:
// join, strict snapshot decode, pre-send move validation, turn timing,
// termination and rematch. It never computes game rules; every mirror
// update comes wholesale from a validated server snapshot.
type Service struct {
	socket   ports.SocketPort
	api      ports.ApiPort
	settings ports.SettingsPort
	identity Identity
	bus      *app.Bus
	clk      clock.Clock
	logger   *zap.Logger

	mu        sync.Mutex
	phase     Phase
	matchID   string
	state     *domain.MatchState
	stopTimer context.CancelFunc
}

// NewService constructs an idle controller.
func NewService(socket ports.SocketPort, api ports.ApiPort, settings ports.SettingsPort, identity Identity, bus *app.Bus, clk clock.Clock, logger *zap.Logger) *Service {
	return &Service{
		socket:   socket,
		api:      api,
		settings: settings,
		identity: identity,
		bus:      bus,
		clk:      clk,
		logger:   logger,
		phase:    PhaseIdle,
	}
}

// JoinByID joins an existing match. On success the controller waits in
// PhaseJoining for the first authoritative snapshot.
func (s *Service) JoinByID(ctx context.Context, matchID string) error {
	s.mu.Lock()
	if s.phase != PhaseIdle {
		s.mu.Unlock()
		return ErrBusy
	}
	s.phase = PhaseJoining
	s.mu.Unlock()

	// Rebind the single match-data slot for this join cycle.
	s.socket.SetMatchDataHandler(s.onMatchData)

	joined, err := s.socket.JoinMatch(ctx, matchID)
	if err != nil {
		s.mu.Lock()
		s.phase = PhaseIdle
		s.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrJoin, err)
	}

	s.mu.Lock()
	s.matchID = joined
	s.mu.Unlock()

	if err := s.settings.SetLastMatchID(joined); err != nil {
		s.logger.Warn("failed to persist last match id", zap.Error(err))
	}

	s.logger.Info("joined match", zap.String("match_id", joined))
	s.bus.Publish(app.Event{Kind: app.EventMatchJoined, MatchID: joined})
	return nil
}

// CreateAndJoin asks the server to create an authoritative match, then
// joins it.
func (s *Service) CreateAndJoin(ctx context.Context) error {
	var resp struct {
		MatchID string `json:"matchId"`
	}
	if err := s.api.Rpc(ctx, s.identity.Token(), createMatchRpc, struct{}{}, &resp); err != nil {
		return fmt.Errorf("%w: %v", ErrJoin, err)
	}
	if resp.MatchID == "" {
		return fmt.Errorf("%w: create returned no match id", ErrJoin)
	}
	return s.JoinByID(ctx, resp.MatchID)
}

// SubmitMove validates a move locally and, when every guard passes,
// sends it. The mirror is never touched: whether the move happened is
// decided by the next authoritative snapshot alone.
func (s *Service) SubmitMove(ctx context.Context, cell int) error {
	s.mu.Lock()
	phase := s.phase
	st := s.state
	matchID := s.matchID
	s.mu.Unlock()

	if phase != PhaseInMatch {
		return s.reject(ErrNotInMatch)
	}
	if st == nil {
		return s.reject(ErrNoState)
	}
	if err := domain.ValidateMove(st, s.identity.UserID(), cell); err != nil {
		return s.reject(err)
	}

	payload, err := json.Marshal(domain.MovePayload{Index: cell})
	if err != nil {
		return fmt.Errorf("failed to marshal move: %w", err)
	}
	if err := s.socket.SendMatchData(ctx, matchID, domain.OpMove, payload); err != nil {
		return fmt.Errorf("move send failed: %w", err)
	}
	return nil
}

// RequestRematch signals rematch intent on a finished match. Local
// state is untouched; a fresh snapshot, possibly for a new match id,
// is awaited.
func (s *Service) RequestRematch(ctx context.Context) error {
	s.mu.Lock()
	phase := s.phase
	st := s.state
	matchID := s.matchID
	s.mu.Unlock()

	if phase != PhaseInMatch || st == nil {
		return ErrNotInMatch
	}
	if !st.IsFinished {
		return ErrMatchNotOver
	}
	if err := s.socket.SendMatchData(ctx, matchID, domain.OpRematch, []byte("{}")); err != nil {
		return fmt.Errorf("rematch send failed: %w", err)
	}
	return nil
}

// Leave sends leave intent best-effort and always clears the tracked
// match, the mirror and the persisted resume hint.
func (s *Service) Leave(ctx context.Context) {
	s.mu.Lock()
	matchID := s.matchID
	s.matchID = ""
	s.state = nil
	s.phase = PhaseIdle
	s.stopTimerLocked()
	s.mu.Unlock()

	if err := s.settings.ClearLastMatchID(); err != nil {
		s.logger.Warn("failed to clear last match id", zap.Error(err))
	}

	if matchID != "" {
		if err := s.socket.LeaveMatch(ctx, matchID); err != nil {
			s.logger.Warn("match leave failed", zap.String("match_id", matchID), zap.Error(err))
		}
	}

	s.bus.Publish(app.Event{Kind: app.EventMatchLeft, MatchID: matchID})
}

// Phase returns the controller's lifecycle stage.
func (s *Service) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// MatchID returns the tracked match id, or "".
func (s *Service) MatchID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.matchID
}

// State returns a copy of the latest snapshot, or nil before the first
// one arrives.
func (s *Service) State() *domain.MatchState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Outcome classifies the tracked match's termination for the local
// player.
func (s *Service) Outcome() domain.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.ResolveOutcome(s.state, s.identity.UserID())
}

// Remaining returns the time left on the current turn, clamped at
// zero. Zero is also returned when no deadline applies. Presentation
// only: guards never consult it.
func (s *Service) Remaining() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remainingLocked()
}

func (s *Service) remainingLocked() time.Duration {
	if s.state == nil || s.state.TurnDeadline == nil || s.state.IsFinished {
		return 0
	}
	remaining := s.state.TurnDeadline.Sub(s.clk.Now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// ResumeHint returns the persisted last match id. A fresh join is
// still required; the hint is never trusted on its own.
func (s *Service) ResumeHint() string {
	return s.settings.LastMatchID()
}

// onMatchData is the single inbound dispatch point for the match
// channel.
func (s *Service) onMatchData(md ports.MatchData) {
	switch md.OpCode {
	case domain.OpState:
		s.applyState(md)
	case domain.OpError:
		s.mu.Lock()
		tracked := s.phase != PhaseIdle
		s.mu.Unlock()
		if !tracked {
			// Error for a match we already left.
			return
		}
		s.bus.PublishError("match", domain.DecodeError(md.Data))
	default:
		// Unknown opcodes are ignored for forward compatibility.
	}
}

// applyState validates a snapshot and replaces the mirror wholesale.
// Malformed payloads are dropped and the previous good state retained;
// stale versions are dropped when the server numbers its snapshots. A
// snapshot carrying a new match id invalidates the prior match and is
// tracked from scratch.
func (s *Service) applyState(md ports.MatchData) {
	st, err := domain.DecodeState(md.Data)
	if err != nil {
		s.logger.Warn("dropping malformed snapshot", zap.String("match_id", md.MatchID), zap.Error(err))
		return
	}

	s.mu.Lock()
	if s.phase == PhaseIdle {
		// Data for a match we already left.
		s.mu.Unlock()
		return
	}

	// A snapshot for a different match id supersedes the tracked match
	// wholesale, as happens after a rematch. Version ordering restarts
	// with it; the gate only applies within one match.
	fresh := md.MatchID != "" && md.MatchID != s.matchID
	if !fresh && s.state != nil && s.state.Version > 0 && st.Version > 0 && st.Version < s.state.Version {
		s.mu.Unlock()
		s.logger.Warn("dropping stale snapshot",
			zap.Int64("got", st.Version),
			zap.Int64("have", s.state.Version))
		return
	}

	persistHint := false
	if fresh {
		s.matchID = md.MatchID
		persistHint = true
	}
	s.phase = PhaseInMatch
	s.state = st

	if st.Mode == domain.ModeTimed && !st.IsFinished && st.TurnDeadline != nil {
		s.startTimerLocked()
	} else {
		s.stopTimerLocked()
	}
	matchID := s.matchID
	s.mu.Unlock()

	if persistHint {
		if err := s.settings.SetLastMatchID(matchID); err != nil {
			s.logger.Warn("failed to persist last match id", zap.Error(err))
		}
	}

	s.bus.Publish(app.Event{Kind: app.EventStateUpdated, MatchID: matchID, State: st.Clone()})
}

// startTimerLocked ensures the countdown loop is running. Caller holds
// s.mu.
func (s *Service) startTimerLocked() {
	if s.stopTimer != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.stopTimer = cancel
	go s.runTimer(ctx)
}

// stopTimerLocked halts the countdown loop. Caller holds s.mu.
func (s *Service) stopTimerLocked() {
	if s.stopTimer != nil {
		s.stopTimer()
		s.stopTimer = nil
	}
}

// runTimer recomputes the remaining turn time on a fixed interval. The
// deadline is the server's absolute timestamp, so repeated snapshots
// cannot drift the countdown.
func (s *Service) runTimer(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			remaining := s.remainingLocked()
			matchID := s.matchID
			s.mu.Unlock()
			s.bus.Publish(app.Event{Kind: app.EventTurnTick, MatchID: matchID, Remaining: remaining})
		}
	}
}

// reject surfaces a local validation failure as a transient notice.
// Nothing is sent to the network.
func (s *Service) reject(err error) error {
	s.bus.PublishError("match", err.Error())
	return err
}
