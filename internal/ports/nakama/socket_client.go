package nakama

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/coder/websocket"
	"github.com/heroiclabs/nakama-common/rtapi"
	"go.uber.org/zap"
	"google.golang.org/protobuf/encoding/protojson"

	"tictactoe/internal/config"
	"tictactoe/internal/ports"
)

// ErrSocketClosed is returned for operations on a socket that is not
// connected.
var ErrSocketClosed = errors.New("socket is not connected")

// RemoteError is a server-pushed protocol error on the realtime channel.
type RemoteError struct {
	Code    int32
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error %d: %s", e.Code, e.Message)
}

// Socket is the realtime channel adapter. It multiplexes JSON-framed
// protocol envelopes over a single websocket: request/response pairs
// are correlated by cid, pushes are dispatched to single-slot handlers.
type Socket struct {
	cfg    *config.Config
	logger *zap.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	cancel  context.CancelFunc
	closed  bool
	nextCid int64
	pending map[string]chan *rtapi.Envelope

	hmu               sync.RWMutex
	matchedHandler    func(ports.MatchmakerMatched)
	matchDataHandler  func(ports.MatchData)
	disconnectHandler func(error)
}

// NewSocket constructs a disconnected Socket.
func NewSocket(cfg *config.Config, logger *zap.Logger) *Socket {
	return &Socket{
		cfg:     cfg,
		logger:  logger,
		pending: make(map[string]chan *rtapi.Envelope),
	}
}

// Connect dials the realtime endpoint with a session token and starts
// the read loop. Only one connection may be live at a time.
func (s *Socket) Connect(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		return errors.New("socket already connected")
	}

	conn, _, err := websocket.Dial(ctx, s.cfg.SocketURL(token), nil)
	if err != nil {
		return fmt.Errorf("failed to dial realtime socket: %w", err)
	}

	readCtx, cancel := context.WithCancel(context.Background())
	s.conn = conn
	s.cancel = cancel
	s.closed = false

	go s.readLoop(readCtx, conn)

	s.logger.Info("realtime socket connected")
	return nil
}

// Close tears down the connection. Pending requests fail; the
// disconnect handler is not invoked for a deliberate close.
func (s *Socket) Close() error {
	s.mu.Lock()
	conn := s.conn
	cancel := s.cancel
	s.conn = nil
	s.cancel = nil
	s.closed = true
	s.failPendingLocked()
	s.mu.Unlock()

	if conn == nil {
		return nil
	}
	if cancel != nil {
		cancel()
	}
	return conn.Close(websocket.StatusNormalClosure, "bye")
}

// AddMatchmaker submits a matchmaking ticket.
func (s *Socket) AddMatchmaker(ctx context.Context, query string, minCount, maxCount int, stringProps map[string]string) (string, error) {
	resp, err := s.call(ctx, &rtapi.Envelope{Message: &rtapi.Envelope_MatchmakerAdd{
		MatchmakerAdd: &rtapi.MatchmakerAdd{
			Query:            query,
			MinCount:         int32(minCount),
			MaxCount:         int32(maxCount),
			StringProperties: stringProps,
		},
	}})
	if err != nil {
		return "", err
	}
	ticket := resp.GetMatchmakerTicket()
	if ticket == nil {
		return "", errors.New("matchmaker add returned no ticket")
	}
	return ticket.Ticket, nil
}

// RemoveMatchmaker withdraws a ticket.
func (s *Socket) RemoveMatchmaker(ctx context.Context, ticket string) error {
	_, err := s.call(ctx, &rtapi.Envelope{Message: &rtapi.Envelope_MatchmakerRemove{
		MatchmakerRemove: &rtapi.MatchmakerRemove{Ticket: ticket},
	}})
	return err
}

// JoinMatch joins a match by id.
func (s *Socket) JoinMatch(ctx context.Context, matchID string) (string, error) {
	resp, err := s.call(ctx, &rtapi.Envelope{Message: &rtapi.Envelope_MatchJoin{
		MatchJoin: &rtapi.MatchJoin{Id: &rtapi.MatchJoin_MatchId{MatchId: matchID}},
	}})
	if err != nil {
		return "", err
	}
	match := resp.GetMatch()
	if match == nil {
		return "", errors.New("match join returned no match")
	}
	return match.MatchId, nil
}

// LeaveMatch leaves a match.
func (s *Socket) LeaveMatch(ctx context.Context, matchID string) error {
	_, err := s.call(ctx, &rtapi.Envelope{Message: &rtapi.Envelope_MatchLeave{
		MatchLeave: &rtapi.MatchLeave{MatchId: matchID},
	}})
	return err
}

// SendMatchData sends an opcoded message into a match. Fire and forget;
// the authoritative snapshot is the only acknowledgment that matters.
func (s *Socket) SendMatchData(ctx context.Context, matchID string, opCode int64, data []byte) error {
	return s.send(ctx, &rtapi.Envelope{Message: &rtapi.Envelope_MatchDataSend{
		MatchDataSend: &rtapi.MatchDataSend{
			MatchId: matchID,
			OpCode:  opCode,
			Data:    data,
		},
	}})
}

// SetMatchedHandler binds the match-found listener, replacing any
// previous one.
func (s *Socket) SetMatchedHandler(h func(ports.MatchmakerMatched)) {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	s.matchedHandler = h
}

// SetMatchDataHandler binds the match-data listener, replacing any
// previous one.
func (s *Socket) SetMatchDataHandler(h func(ports.MatchData)) {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	s.matchDataHandler = h
}

// SetDisconnectHandler binds the transport-drop listener, replacing any
// previous one.
func (s *Socket) SetDisconnectHandler(h func(error)) {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	s.disconnectHandler = h
}

// call sends a request envelope and waits for the response with a
// matching cid.
func (s *Socket) call(ctx context.Context, env *rtapi.Envelope) (*rtapi.Envelope, error) {
	s.mu.Lock()
	if s.conn == nil {
		s.mu.Unlock()
		return nil, ErrSocketClosed
	}
	s.nextCid++
	cid := strconv.FormatInt(s.nextCid, 10)
	ch := make(chan *rtapi.Envelope, 1)
	s.pending[cid] = ch
	s.mu.Unlock()

	env.Cid = cid
	if err := s.send(ctx, env); err != nil {
		s.mu.Lock()
		delete(s.pending, cid)
		s.mu.Unlock()
		return nil, err
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, ErrSocketClosed
		}
		if respErr := resp.GetError(); respErr != nil {
			return nil, &RemoteError{Code: respErr.Code, Message: respErr.Message}
		}
		return resp, nil
	case <-ctx.Done():
		s.mu.Lock()
		delete(s.pending, cid)
		s.mu.Unlock()
		return nil, ctx.Err()
	}
}

func (s *Socket) send(ctx context.Context, env *rtapi.Envelope) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrSocketClosed
	}

	payload, err := protojson.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	writeCtx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()
	if err := conn.Write(writeCtx, websocket.MessageText, payload); err != nil {
		return fmt.Errorf("socket write failed: %w", err)
	}
	return nil
}

// readLoop dispatches inbound envelopes one at a time, so pushes never
// run concurrently with each other.
func (s *Socket) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			s.onReadError(err)
			return
		}

		env := &rtapi.Envelope{}
		unmarshaler := protojson.UnmarshalOptions{DiscardUnknown: true}
		if err := unmarshaler.Unmarshal(data, env); err != nil {
			s.logger.Warn("dropping unreadable envelope", zap.Error(err))
			continue
		}

		if env.Cid != "" {
			s.deliver(env)
			continue
		}
		s.dispatch(env)
	}
}

func (s *Socket) deliver(env *rtapi.Envelope) {
	s.mu.Lock()
	ch, ok := s.pending[env.Cid]
	delete(s.pending, env.Cid)
	s.mu.Unlock()
	if !ok {
		s.logger.Warn("response for unknown cid", zap.String("cid", env.Cid))
		return
	}
	ch <- env
}

func (s *Socket) dispatch(env *rtapi.Envelope) {
	switch msg := env.Message.(type) {
	case *rtapi.Envelope_MatchmakerMatched:
		s.hmu.RLock()
		h := s.matchedHandler
		s.hmu.RUnlock()
		if h != nil {
			h(ports.MatchmakerMatched{
				Ticket:  msg.MatchmakerMatched.Ticket,
				MatchID: msg.MatchmakerMatched.GetMatchId(),
			})
		}
	case *rtapi.Envelope_MatchData:
		s.hmu.RLock()
		h := s.matchDataHandler
		s.hmu.RUnlock()
		if h != nil {
			h(ports.MatchData{
				MatchID: msg.MatchData.MatchId,
				OpCode:  msg.MatchData.OpCode,
				Data:    msg.MatchData.Data,
			})
		}
	case *rtapi.Envelope_Error:
		s.logger.Warn("unsolicited protocol error",
			zap.Int32("code", msg.Error.Code),
			zap.String("message", msg.Error.Message))
	default:
		// Unknown push, ignored for forward compatibility.
	}
}

func (s *Socket) onReadError(err error) {
	s.mu.Lock()
	deliberate := s.closed
	s.conn = nil
	s.cancel = nil
	s.failPendingLocked()
	s.mu.Unlock()

	if deliberate {
		return
	}

	s.logger.Warn("realtime socket dropped", zap.Error(err))
	s.hmu.RLock()
	h := s.disconnectHandler
	s.hmu.RUnlock()
	if h != nil {
		h(err)
	}
}

// failPendingLocked unblocks callers waiting on a response. Caller
// holds s.mu.
func (s *Socket) failPendingLocked() {
	for cid, ch := range s.pending {
		close(ch)
		delete(s.pending, cid)
	}
}
