package domain

// Op codes carried on the match-data envelope.
const (
	// Client -> Server
	OpMove    int64 = 1
	OpRematch int64 = 4

	// Server -> Client
	OpState int64 = 2
	OpError int64 = 3
)
