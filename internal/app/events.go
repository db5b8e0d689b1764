package app

import (
	"time"

	"go.uber.org/zap"

	"tictactoe/internal/domain"
)

// EventKind tags a boundary event.
type EventKind string

const (
	// EventConnState reports a session/connection state change.
	EventConnState EventKind = "conn_state"
	// EventSearching reports the matchmaking searching flag.
	EventSearching EventKind = "searching"
	// EventMatchJoined reports that a match was joined and the first
	// snapshot is awaited.
	EventMatchJoined EventKind = "match_joined"
	// EventStateUpdated carries a fresh authoritative snapshot.
	EventStateUpdated EventKind = "state_updated"
	// EventMatchLeft reports that the local player left the match.
	EventMatchLeft EventKind = "match_left"
	// EventTurnTick carries the remaining turn time in timed matches.
	EventTurnTick EventKind = "turn_tick"
	// EventTransientError carries a dismissible user-facing notice.
	EventTransientError EventKind = "transient_error"
)

// TransientError is a user-facing notice that does not change any
// state. It is cleared by the boundary, not by the core.
type TransientError struct {
	Message string
	Origin  string
}

// Event is one item on the boundary stream.
type Event struct {
	Kind EventKind

	ConnState string
	Searching bool
	MatchID   string
	State     *domain.MatchState
	Remaining time.Duration
	Err       *TransientError
}

// Bus fans core events out to the single boundary consumer. Publishing
// never blocks the core; when the consumer falls behind, the oldest
// events are dropped.
type Bus struct {
	ch     chan Event
	logger *zap.Logger
}

// NewBus creates a Bus with a fixed buffer.
func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		ch:     make(chan Event, 64),
		logger: logger,
	}
}

// Events returns the consumer side of the stream.
func (b *Bus) Events() <-chan Event {
	return b.ch
}

// Publish enqueues an event, evicting the oldest one when full.
func (b *Bus) Publish(ev Event) {
	for {
		select {
		case b.ch <- ev:
			return
		default:
			select {
			case dropped := <-b.ch:
				b.logger.Warn("event consumer behind, dropping", zap.String("kind", string(dropped.Kind)))
			default:
			}
		}
	}
}

// PublishError is shorthand for a transient error event.
func (b *Bus) PublishError(origin, message string) {
	b.Publish(Event{
		Kind: EventTransientError,
		Err:  &TransientError{Message: message, Origin: origin},
	})
}
