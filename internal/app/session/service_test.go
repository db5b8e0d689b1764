package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	jwt "github.com/form3tech-oss/jwt-go"
	"github.com/heroiclabs/nakama-common/api"
	"go.uber.org/zap"

	"tictactoe/internal/app"
	"tictactoe/internal/ports"
)

func signedToken(t *testing.T, uid, usn string, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"uid": uid,
		"usn": usn,
		"exp": float64(exp.Unix()),
	})
	s, err := token.SignedString([]byte("test-key"))
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return s
}

type rejectionErr struct{ msg string }

func (e rejectionErr) Error() string  { return e.msg }
func (e rejectionErr) Rejected() bool { return true }

type fakeApi struct {
	mu          sync.Mutex
	token       string
	refresh     string
	authErr     error
	updateErr   error
	refreshErr  error
	authCalls   int
	updateNames []string
	deviceIDs   []string
}

func (f *fakeApi) AuthenticateDevice(ctx context.Context, deviceID string, create bool) (*api.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authCalls++
	f.deviceIDs = append(f.deviceIDs, deviceID)
	if f.authErr != nil {
		return nil, f.authErr
	}
	return &api.Session{Token: f.token, RefreshToken: f.refresh}, nil
}

func (f *fakeApi) UpdateAccount(ctx context.Context, token, displayName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateNames = append(f.updateNames, displayName)
	return f.updateErr
}

func (f *fakeApi) SessionRefresh(ctx context.Context, refreshToken string) (*api.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return &api.Session{Token: f.token, RefreshToken: f.refresh}, nil
}

func (f *fakeApi) GetAccount(ctx context.Context, token string) (*api.Account, error) {
	return nil, errors.New("not used")
}

func (f *fakeApi) Rpc(ctx context.Context, token, id string, payload any, out any) error {
	return errors.New("not used")
}

type fakeSocket struct {
	mu           sync.Mutex
	connectErr   error
	connects     int
	closes       int
	onDisconnect func(error)
}

func (f *fakeSocket) Connect(ctx context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connects++
	return nil
}

func (f *fakeSocket) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

func (f *fakeSocket) AddMatchmaker(ctx context.Context, query string, minCount, maxCount int, props map[string]string) (string, error) {
	return "", errors.New("not used")
}
func (f *fakeSocket) RemoveMatchmaker(ctx context.Context, ticket string) error { return nil }
func (f *fakeSocket) JoinMatch(ctx context.Context, matchID string) (string, error) {
	return "", errors.New("not used")
}
func (f *fakeSocket) LeaveMatch(ctx context.Context, matchID string) error { return nil }
func (f *fakeSocket) SendMatchData(ctx context.Context, matchID string, opCode int64, data []byte) error {
	return nil
}
func (f *fakeSocket) SetMatchedHandler(h func(ports.MatchmakerMatched)) {}
func (f *fakeSocket) SetMatchDataHandler(h func(ports.MatchData))      {}

func (f *fakeSocket) SetDisconnectHandler(h func(error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onDisconnect = h
}

func (f *fakeSocket) drop(err error) {
	f.mu.Lock()
	h := f.onDisconnect
	f.mu.Unlock()
	if h != nil {
		h(err)
	}
}

type fakeSettings struct {
	mu          sync.Mutex
	deviceID    string
	displayName string
	lastMatchID string
}

func (f *fakeSettings) DeviceID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deviceID
}
func (f *fakeSettings) SetDeviceID(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deviceID = id
	return nil
}
func (f *fakeSettings) DisplayName() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.displayName
}
func (f *fakeSettings) SetDisplayName(n string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.displayName = n
	return nil
}
func (f *fakeSettings) ClearDisplayName() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.displayName = ""
	return nil
}
func (f *fakeSettings) LastMatchID() string            { return f.lastMatchID }
func (f *fakeSettings) SetLastMatchID(id string) error { f.lastMatchID = id; return nil }
func (f *fakeSettings) ClearLastMatchID() error        { f.lastMatchID = ""; return nil }

func newTestService(t *testing.T) (*Service, *fakeApi, *fakeSocket, *fakeSettings) {
	t.Helper()
	fapi := &fakeApi{
		token:   signedToken(t, "u1", "alice", time.Now().Add(time.Hour)),
		refresh: "refresh-token",
	}
	socket := &fakeSocket{}
	settings := &fakeSettings{}
	bus := app.NewBus(zap.NewNop())
	return NewService(fapi, socket, settings, bus, zap.NewNop()), fapi, socket, settings
}

func TestAcquireIdentity_Idempotent(t *testing.T) {
	svc, _, _, settings := newTestService(t)

	first, err := svc.AcquireIdentity()
	if err != nil {
		t.Fatalf("AcquireIdentity() error = %v", err)
	}
	if first == "" {
		t.Fatalf("AcquireIdentity() returned empty id")
	}
	second, err := svc.AcquireIdentity()
	if err != nil {
		t.Fatalf("AcquireIdentity() error = %v", err)
	}
	if first != second {
		t.Fatalf("identity changed between calls: %q != %q", first, second)
	}
	if settings.DeviceID() != first {
		t.Fatalf("identity not persisted")
	}
}

func TestConnect(t *testing.T) {
	svc, fapi, socket, settings := newTestService(t)

	if err := svc.Connect(context.Background(), "alice"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if svc.State() != StateConnected {
		t.Fatalf("State = %q, want connected", svc.State())
	}

	sess := svc.Current()
	if sess == nil {
		t.Fatalf("Current() = nil after connect")
	}
	if sess.UserID != "u1" || sess.Username != "alice" {
		t.Fatalf("session claims wrong: %+v", sess)
	}
	if sess.ExpiresAt.IsZero() || !sess.ExpiresAt.After(time.Now()) {
		t.Fatalf("session expiry not populated: %v", sess.ExpiresAt)
	}
	if socket.connects != 1 {
		t.Fatalf("socket connects = %d, want 1", socket.connects)
	}
	if settings.DisplayName() != "alice" {
		t.Fatalf("display name not persisted")
	}
	if len(fapi.updateNames) != 1 || fapi.updateNames[0] != "alice" {
		t.Fatalf("display name not sent to server: %v", fapi.updateNames)
	}
}

func TestConnect_AuthRejected(t *testing.T) {
	svc, fapi, socket, _ := newTestService(t)
	fapi.authErr = rejectionErr{msg: "invalid server key"}

	err := svc.Connect(context.Background(), "alice")
	if !errors.Is(err, ErrAuth) {
		t.Fatalf("Connect() = %v, want ErrAuth", err)
	}
	if svc.State() != StateLoggedOut || svc.Current() != nil {
		t.Fatalf("failed connect must leave no partial state")
	}
	if socket.connects != 0 {
		t.Fatalf("socket must not be opened after auth failure")
	}
}

func TestConnect_TransportFailure(t *testing.T) {
	svc, _, socket, _ := newTestService(t)
	socket.connectErr = errors.New("connection refused")

	err := svc.Connect(context.Background(), "alice")
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("Connect() = %v, want ErrNetwork", err)
	}
	if svc.State() != StateLoggedOut || svc.Current() != nil {
		t.Fatalf("failed connect must leave no partial state")
	}
}

func TestConnect_AlreadyConnected(t *testing.T) {
	svc, fapi, _, _ := newTestService(t)

	if err := svc.Connect(context.Background(), "alice"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := svc.Connect(context.Background(), "bob"); !errors.Is(err, ErrAlreadyConnected) {
		t.Fatalf("second Connect() = %v, want ErrAlreadyConnected", err)
	}
	if fapi.authCalls != 1 {
		t.Fatalf("auth calls = %d, want 1", fapi.authCalls)
	}
}

func TestAutoConnect(t *testing.T) {
	t.Run("no saved name", func(t *testing.T) {
		svc, _, _, _ := newTestService(t)
		attempted, err := svc.AutoConnect(context.Background())
		if attempted || err != nil {
			t.Fatalf("AutoConnect() = %v, %v; want false, nil", attempted, err)
		}
	})

	t.Run("saved name connects", func(t *testing.T) {
		svc, fapi, _, settings := newTestService(t)
		if err := settings.SetDisplayName("alice"); err != nil {
			t.Fatal(err)
		}
		attempted, err := svc.AutoConnect(context.Background())
		if !attempted || err != nil {
			t.Fatalf("AutoConnect() = %v, %v; want true, nil", attempted, err)
		}
		if svc.State() != StateConnected {
			t.Fatalf("State = %q, want connected", svc.State())
		}
		if len(fapi.updateNames) != 1 || fapi.updateNames[0] != "alice" {
			t.Fatalf("auto-connect must use the saved name: %v", fapi.updateNames)
		}
	})

	t.Run("live session skips", func(t *testing.T) {
		svc, fapi, _, _ := newTestService(t)
		if err := svc.Connect(context.Background(), "alice"); err != nil {
			t.Fatal(err)
		}
		attempted, err := svc.AutoConnect(context.Background())
		if attempted || err != nil {
			t.Fatalf("AutoConnect() = %v, %v; want false, nil", attempted, err)
		}
		if fapi.authCalls != 1 {
			t.Fatalf("auth calls = %d, want 1", fapi.authCalls)
		}
	})
}

func TestLogout(t *testing.T) {
	svc, _, socket, settings := newTestService(t)

	if err := svc.Connect(context.Background(), "alice"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	deviceID := settings.DeviceID()

	svc.Logout()

	if svc.State() != StateLoggedOut || svc.Current() != nil {
		t.Fatalf("logout must clear the session")
	}
	if socket.closes != 1 {
		t.Fatalf("socket closes = %d, want 1", socket.closes)
	}
	if settings.DisplayName() != "" {
		t.Fatalf("logout must clear the display name")
	}
	if settings.DeviceID() != deviceID {
		t.Fatalf("logout must keep the device identity")
	}
}

func TestDisconnectThenReconnect(t *testing.T) {
	svc, _, socket, _ := newTestService(t)

	if err := svc.Connect(context.Background(), "alice"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	socket.drop(errors.New("connection reset"))

	if svc.State() != StateReconnecting {
		t.Fatalf("State after drop = %q, want reconnecting", svc.State())
	}
	if svc.Current() == nil {
		t.Fatalf("drop must keep the session for an explicit reconnect")
	}

	if err := svc.Reconnect(context.Background()); err != nil {
		t.Fatalf("Reconnect() error = %v", err)
	}
	if svc.State() != StateConnected {
		t.Fatalf("State after reconnect = %q, want connected", svc.State())
	}
	if socket.connects != 2 {
		t.Fatalf("socket connects = %d, want 2", socket.connects)
	}
}

func TestReconnect_WithoutDrop(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	if err := svc.Reconnect(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Reconnect() = %v, want ErrNotConnected", err)
	}
}

func TestDisconnectBeforeConnectIgnored(t *testing.T) {
	svc, _, socket, _ := newTestService(t)

	socket.drop(errors.New("stray event"))

	if svc.State() != StateLoggedOut {
		t.Fatalf("State = %q, want logged_out", svc.State())
	}
}
