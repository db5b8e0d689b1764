package ports

import "context"

// MatchmakerMatched is a match-found push event.
type MatchmakerMatched struct {
	Ticket  string
	MatchID string
}

// MatchData is an inbound opcoded match message.
type MatchData struct {
	MatchID string
	OpCode  int64
	Data    []byte
}

// SocketPort defines the interface for the persistent realtime channel.
// The session manager owns the connection lifecycle; other components
// only send and receive through it. Each handler category holds a
// single slot: setting a handler replaces the previous one, so repeated
// join/search cycles never stack duplicate listeners.
type SocketPort interface {
	// Connect dials the realtime channel with a session token.
	Connect(ctx context.Context, token string) error

	// Close tears the channel down. Safe to call when not connected.
	Close() error

	// AddMatchmaker submits a matchmaking ticket and returns its id.
	AddMatchmaker(ctx context.Context, query string, minCount, maxCount int, stringProps map[string]string) (string, error)

	// RemoveMatchmaker withdraws a ticket.
	RemoveMatchmaker(ctx context.Context, ticket string) error

	// JoinMatch joins a match by id and returns the joined match id.
	JoinMatch(ctx context.Context, matchID string) (string, error)

	// LeaveMatch leaves a match.
	LeaveMatch(ctx context.Context, matchID string) error

	// SendMatchData sends an opcoded message into a match.
	SendMatchData(ctx context.Context, matchID string, opCode int64, data []byte) error

	SetMatchedHandler(func(MatchmakerMatched))
	SetMatchDataHandler(func(MatchData))
	SetDisconnectHandler(func(error))
}
