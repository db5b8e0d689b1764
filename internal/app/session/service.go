package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	jwt "github.com/form3tech-oss/jwt-go"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"tictactoe/internal/app"
	"tictactoe/internal/ports"
)

// State is the session manager's lifecycle stage.
type State string

const (
	// StateLoggedOut means no session and no channel.
	StateLoggedOut State = "logged_out"
	// StateConnecting means a connect attempt is in flight.
	StateConnecting State = "connecting"
	// StateConnected means the session and the channel are live.
	StateConnected State = "connected"
	// StateReconnecting means the transport dropped and the session is
	// waiting for an explicit reconnect.
	StateReconnecting State = "reconnecting"
)

var (
	// ErrAuth means the credential exchange was rejected.
	ErrAuth = errors.New("authentication rejected")
	// ErrNetwork means a transport failure; reconnection is an explicit
	// re-invocation, never automatic.
	ErrNetwork = errors.New("network failure")
	// ErrConnectInFlight means another connect attempt is running.
	ErrConnectInFlight = errors.New("connect already in progress")
	// ErrAlreadyConnected means a live session exists.
	ErrAlreadyConnected = errors.New("already connected")
	// ErrNotConnected means no session exists for the operation.
	ErrNotConnected = errors.New("not connected")
)

// Session is the live credential state for the connected account.
type Session struct {
	UserID       string
	Username     string
	Token        string
	RefreshToken string
	ExpiresAt    time.Time
}

// Service owns identity, credential exchange and the realtime channel
// lifecycle. The channel is lent to the other components; only this
// service opens or closes it.
type Service struct {
	api      ports.ApiPort
	socket   ports.SocketPort
	settings ports.SettingsPort
	bus      *app.Bus
	logger   *zap.Logger

	mu         sync.Mutex
	state      State
	session    *Session
	connecting bool
}

// NewService constructs a logged-out session manager and binds the
// channel's disconnect listener.
func NewService(api ports.ApiPort, socket ports.SocketPort, settings ports.SettingsPort, bus *app.Bus, logger *zap.Logger) *Service {
	s := &Service{
		api:      api,
		socket:   socket,
		settings: settings,
		bus:      bus,
		logger:   logger,
		state:    StateLoggedOut,
	}
	socket.SetDisconnectHandler(s.onDisconnect)
	return s
}

// AcquireIdentity returns the durable device identifier, creating and
// persisting one on first use. Idempotent.
func (s *Service) AcquireIdentity() (string, error) {
	if id := s.settings.DeviceID(); id != "" {
		return id, nil
	}
	id := uuid.NewString()
	if err := s.settings.SetDeviceID(id); err != nil {
		return "", fmt.Errorf("failed to persist device id: %w", err)
	}
	s.logger.Info("created device identity")
	return id, nil
}

// Connect exchanges the device identity for a session, updates the
// display name, and opens the realtime channel. On any failure both the
// session and the channel are rolled back to nothing.
func (s *Service) Connect(ctx context.Context, displayName string) error {
	s.mu.Lock()
	if s.connecting {
		s.mu.Unlock()
		return ErrConnectInFlight
	}
	if s.session != nil && s.state == StateConnected {
		s.mu.Unlock()
		return ErrAlreadyConnected
	}
	s.connecting = true
	s.setStateLocked(StateConnecting)
	s.mu.Unlock()

	err := s.connect(ctx, displayName)

	s.mu.Lock()
	s.connecting = false
	if err != nil {
		s.session = nil
		s.setStateLocked(StateLoggedOut)
	} else {
		s.setStateLocked(StateConnected)
	}
	s.mu.Unlock()

	return err
}

func (s *Service) connect(ctx context.Context, displayName string) error {
	deviceID, err := s.AcquireIdentity()
	if err != nil {
		return err
	}

	raw, err := s.api.AuthenticateDevice(ctx, deviceID, true)
	if err != nil {
		return classify(err, "device authentication failed")
	}

	if err := s.api.UpdateAccount(ctx, raw.Token, displayName); err != nil {
		return classify(err, "display name update failed")
	}

	refreshed, err := s.api.SessionRefresh(ctx, raw.RefreshToken)
	if err != nil {
		return classify(err, "session refresh failed")
	}

	sess, err := sessionFromTokens(refreshed.Token, refreshed.RefreshToken)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAuth, err)
	}

	if err := s.socket.Connect(ctx, sess.Token); err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	if err := s.settings.SetDisplayName(displayName); err != nil {
		s.logger.Warn("failed to persist display name", zap.Error(err))
	}

	s.mu.Lock()
	s.session = sess
	s.mu.Unlock()

	s.logger.Info("connected", zap.String("user_id", sess.UserID), zap.String("username", sess.Username))
	return nil
}

// AutoConnect connects with the persisted display name when one exists
// and no session is live. Returns false when it had nothing to do.
func (s *Service) AutoConnect(ctx context.Context) (bool, error) {
	name := s.settings.DisplayName()
	if name == "" {
		return false, nil
	}
	s.mu.Lock()
	busy := s.connecting || s.session != nil
	s.mu.Unlock()
	if busy {
		return false, nil
	}
	return true, s.Connect(ctx, name)
}

// Reconnect re-opens the realtime channel after a transport drop,
// refreshing the credential when it has expired. Explicitly invoked by
// the boundary; the core never retries on its own.
func (s *Service) Reconnect(ctx context.Context) error {
	s.mu.Lock()
	if s.connecting {
		s.mu.Unlock()
		return ErrConnectInFlight
	}
	sess := s.session
	if sess == nil || s.state != StateReconnecting {
		s.mu.Unlock()
		return ErrNotConnected
	}
	s.connecting = true
	s.setStateLocked(StateConnecting)
	s.mu.Unlock()

	err := s.reconnect(ctx, sess)

	s.mu.Lock()
	s.connecting = false
	if err != nil {
		s.setStateLocked(StateReconnecting)
	} else {
		s.setStateLocked(StateConnected)
	}
	s.mu.Unlock()
	return err
}

func (s *Service) reconnect(ctx context.Context, sess *Session) error {
	token := sess.Token
	if time.Now().After(sess.ExpiresAt) {
		refreshed, err := s.api.SessionRefresh(ctx, sess.RefreshToken)
		if err != nil {
			return classify(err, "session refresh failed")
		}
		fresh, err := sessionFromTokens(refreshed.Token, refreshed.RefreshToken)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrAuth, err)
		}
		s.mu.Lock()
		s.session = fresh
		s.mu.Unlock()
		token = fresh.Token
	}
	if err := s.socket.Connect(ctx, token); err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	return nil
}

// Logout closes the channel best-effort and clears the session and the
// persisted display name. The device identity is kept.
func (s *Service) Logout() {
	if err := s.socket.Close(); err != nil {
		s.logger.Warn("socket close failed", zap.Error(err))
	}
	if err := s.settings.ClearDisplayName(); err != nil {
		s.logger.Warn("failed to clear display name", zap.Error(err))
	}

	s.mu.Lock()
	s.session = nil
	s.setStateLocked(StateLoggedOut)
	s.mu.Unlock()

	s.logger.Info("logged out")
}

// State returns the current lifecycle stage.
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Current returns the live session, or nil.
func (s *Service) Current() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil
	}
	copied := *s.session
	return &copied
}

// UserID returns the connected account's user id, or "".
func (s *Service) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return ""
	}
	return s.session.UserID
}

// Token returns the live credential, or "".
func (s *Service) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return ""
	}
	return s.session.Token
}

// onDisconnect handles a transport drop. The session is kept so an
// explicit Reconnect can resume; the failure is surfaced to the
// boundary instead of silently retrying.
func (s *Service) onDisconnect(err error) {
	s.mu.Lock()
	if s.session == nil {
		s.mu.Unlock()
		return
	}
	s.setStateLocked(StateReconnecting)
	s.mu.Unlock()

	s.bus.PublishError("session", fmt.Sprintf("connection lost: %v", err))
}

// setStateLocked updates state and notifies the boundary. Caller holds
// s.mu.
func (s *Service) setStateLocked(state State) {
	if s.state == state {
		return
	}
	s.state = state
	s.bus.Publish(app.Event{Kind: app.EventConnState, ConnState: string(state)})
}

// sessionFromTokens builds the Session entity from the credential's
// claims. The signature is the server's business; only the claims are
// read here.
func sessionFromTokens(token, refreshToken string) (*Session, error) {
	claims := jwt.MapClaims{}
	if _, _, err := new(jwt.Parser).ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("failed to parse session token: %w", err)
	}

	uid, _ := claims["uid"].(string)
	if uid == "" {
		return nil, errors.New("session token has no user id")
	}
	usn, _ := claims["usn"].(string)

	sess := &Session{
		UserID:       uid,
		Username:     usn,
		Token:        token,
		RefreshToken: refreshToken,
	}
	if exp, ok := claims["exp"].(float64); ok {
		sess.ExpiresAt = time.Unix(int64(exp), 0)
	}
	return sess, nil
}

// classify maps an API failure onto the error taxonomy: an active
// rejection is an auth failure, anything else is the network.
func classify(err error, msg string) error {
	var rejection ports.Rejection
	if errors.As(err, &rejection) && rejection.Rejected() {
		return fmt.Errorf("%w: %s: %v", ErrAuth, msg, err)
	}
	return fmt.Errorf("%w: %s: %v", ErrNetwork, msg, err)
}
