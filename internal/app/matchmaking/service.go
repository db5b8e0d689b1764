package matchmaking

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"tictactoe/internal/app"
	"tictactoe/internal/domain"
	"tictactoe/internal/ports"
)

var (
	// ErrAlreadySearching means a ticket is already live. A new search
	// must wait for the current one to resolve or be cancelled.
	ErrAlreadySearching = errors.New("matchmaking already in progress")
	// ErrSearch means the ticket could not be created.
	ErrSearch = errors.New("failed to start matchmaking")
)

// searchQuery matches any opponent; pairing is two players exactly.
const (
	searchQuery = "*"
	minPlayers  = 2
	maxPlayers  = 2
)

// HandoffFunc receives the matched match id. Invoked exactly once per
// resolved ticket; a failure is reported but the search is not resumed.
type HandoffFunc func(ctx context.Context, matchID string) error

// Service runs the matchmaking ticket state machine. At most one live
// ticket exists at any time; match-found events for any other ticket
// are discarded.
type Service struct {
	socket  ports.SocketPort
	bus     *app.Bus
	logger  *zap.Logger
	handoff HandoffFunc

	mu     sync.Mutex
	ticket string
	adding bool
}

// NewService constructs an idle coordinator.
func NewService(socket ports.SocketPort, bus *app.Bus, logger *zap.Logger, handoff HandoffFunc) *Service {
	return &Service{
		socket:  socket,
		bus:     bus,
		logger:  logger,
		handoff: handoff,
	}
}

// StartSearch creates a matchmaking ticket tagged with the given mode.
// Rejects while another ticket is live.
func (s *Service) StartSearch(ctx context.Context, mode domain.Mode) error {
	s.mu.Lock()
	if s.ticket != "" || s.adding {
		s.mu.Unlock()
		return ErrAlreadySearching
	}
	s.adding = true
	s.mu.Unlock()

	// Rebind the single match-found slot before the ticket exists, so
	// a fast match cannot slip past the listener.
	s.socket.SetMatchedHandler(s.onMatched)

	ticket, err := s.socket.AddMatchmaker(ctx, searchQuery, minPlayers, maxPlayers, map[string]string{
		"mode": string(mode),
	})

	s.mu.Lock()
	s.adding = false
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrSearch, err)
	}
	s.ticket = ticket
	s.mu.Unlock()

	s.logger.Info("matchmaking started", zap.String("ticket", ticket), zap.String("mode", string(mode)))
	s.bus.Publish(app.Event{Kind: app.EventSearching, Searching: true})
	return nil
}

// CancelSearch withdraws the live ticket. The removal request is best
// effort: local searching state is cleared regardless, since a ticket
// the server already resolved is not an error.
func (s *Service) CancelSearch(ctx context.Context) error {
	s.mu.Lock()
	ticket := s.ticket
	s.ticket = ""
	s.mu.Unlock()

	if ticket == "" {
		return nil
	}

	if err := s.socket.RemoveMatchmaker(ctx, ticket); err != nil {
		s.logger.Warn("matchmaker remove failed", zap.String("ticket", ticket), zap.Error(err))
	}

	s.logger.Info("matchmaking cancelled", zap.String("ticket", ticket))
	s.bus.Publish(app.Event{Kind: app.EventSearching, Searching: false})
	return nil
}

// Searching reports whether a ticket is live.
func (s *Service) Searching() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticket != ""
}

// onMatched resolves the tracked ticket and hands the match id off.
// Events for an unknown ticket, including one already cancelled, are
// discarded.
func (s *Service) onMatched(m ports.MatchmakerMatched) {
	s.mu.Lock()
	if s.ticket == "" || m.Ticket != s.ticket {
		s.mu.Unlock()
		s.logger.Debug("discarding stale matchmaker event", zap.String("ticket", m.Ticket))
		return
	}
	s.ticket = ""
	s.mu.Unlock()

	s.logger.Info("match found", zap.String("match_id", m.MatchID))
	s.bus.Publish(app.Event{Kind: app.EventSearching, Searching: false})

	if err := s.handoff(context.Background(), m.MatchID); err != nil {
		s.logger.Warn("match hand-off failed", zap.String("match_id", m.MatchID), zap.Error(err))
		s.bus.PublishError("matchmaking", fmt.Sprintf("failed to join matched game: %v", err))
	}
}
