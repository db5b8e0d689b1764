package ports

import (
	"context"

	"github.com/heroiclabs/nakama-common/api"
)

// Rejection is implemented by API errors representing an active
// refusal by the server, as opposed to a transport failure.
type Rejection interface {
	Rejected() bool
}

// ApiPort defines the interface for the backend's request/response API.
type ApiPort interface {
	// AuthenticateDevice exchanges a durable device id for a session,
	// creating the account when it does not exist yet.
	AuthenticateDevice(ctx context.Context, deviceID string, create bool) (*api.Session, error)

	// UpdateAccount sets the display name on the authenticated account.
	UpdateAccount(ctx context.Context, token, displayName string) error

	// SessionRefresh exchanges a refresh token for a fresh session.
	SessionRefresh(ctx context.Context, refreshToken string) (*api.Session, error)

	// GetAccount fetches the authenticated account.
	GetAccount(ctx context.Context, token string) (*api.Account, error)

	// Rpc calls a named server RPC with a JSON payload and decodes the
	// JSON response into out (out may be nil to ignore the response).
	Rpc(ctx context.Context, token, id string, payload any, out any) error
}
