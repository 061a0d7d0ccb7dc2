// Package wsapi implements the venue-agnostic WebSocket session used by
// every adapter: a single reconnecting connection with request/response
// correlation over a shared multiplexed channel, plus a round-robin pool of
// such sessions for outbound WS-API traffic.
package wsapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ReconnectDelay is the fixed pause between a disconnect and the next dial
// attempt. Unlike a generic exchange client, a hedge trader wants a short,
// constant delay: every second disconnected is a second of lost arbitrage
// coverage, and the venues themselves rate-limit reconnects far above this.
const ReconnectDelay = 200 * time.Millisecond

// State is the session's connection state machine.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// OnMessage decodes an inbound frame, returning the decoded value and the
// correlation id it answers (empty if the frame is an unsolicited push such
// as a BBO tick or a private-stream event).
type OnMessage func(raw []byte) (decoded interface{}, correlationID string)

// OnConnect is invoked once a connection is live. It may perform
// authentication and spawn auxiliary tasks (keep-alive, listen-key refresh)
// tied to the returned context; that context is cancelled when the
// connection drops. A non-nil error aborts the connection attempt.
type OnConnect func(ctx context.Context, conn *websocket.Conn) error

// Session manages one reconnecting WebSocket connection with request/
// response correlation. The zero value is not usable; construct with New.
type Session struct {
	name string
	url  string
	log  *zap.Logger

	sendTimeout time.Duration

	state int32 // atomic State

	mu   sync.RWMutex
	conn *websocket.Conn

	pendingMu sync.Mutex
	pending   map[string]chan interface{}

	onMessage OnMessage
	onConnect OnConnect

	consecutiveFailures int32 // atomic; >=3 marks the session not-ready

	closeOnce sync.Once
	closed    chan struct{}
}

// Config configures a Session.
type Config struct {
	Name        string
	URL         string
	SendTimeout time.Duration // default 5s
	OnMessage   OnMessage
	OnConnect   OnConnect
}

// New constructs a Session. Call Run to start the connect/reconnect loop.
func New(cfg Config, log *zap.Logger) *Session {
	timeout := cfg.SendTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Session{
		name:        cfg.Name,
		url:         cfg.URL,
		log:         log,
		sendTimeout: timeout,
		onMessage:   cfg.OnMessage,
		onConnect:   cfg.OnConnect,
		pending:     make(map[string]chan interface{}),
		closed:      make(chan struct{}),
	}
}

func (s *Session) setState(st State) { atomic.StoreInt32(&s.state, int32(st)) }
func (s *Session) getState() State   { return State(atomic.LoadInt32(&s.state)) }

// Ready reports whether a connection is currently live.
func (s *Session) Ready() bool { return s.getState() == StateOpen }

// Degraded reports whether the session has failed authentication or send
// three times in a row without an intervening success, per the pool's
// round-robin skip policy.
func (s *Session) Degraded() bool {
	return atomic.LoadInt32(&s.consecutiveFailures) >= 3
}

// Run blocks, looping: connect, invoke onConnect, read frames until failure,
// cancel auxiliary tasks, sleep ReconnectDelay, reconnect. It returns only
// when ctx is cancelled.
func (s *Session) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			s.setState(StateDisconnected)
			return
		default:
		}

		if err := s.connectAndServe(ctx); err != nil {
			s.log.Warn("ws session disconnected", zap.String("session", s.name), zap.Error(err))
			atomic.AddInt32(&s.consecutiveFailures, 1)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(ReconnectDelay):
		}
	}
}

func (s *Session) connectAndServe(ctx context.Context) error {
	s.setState(StateConnecting)

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, s.url, nil)
	cancel()
	if err != nil {
		s.setState(StateDisconnected)
		return fmt.Errorf("dial: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	connCtx, connCancel := context.WithCancel(ctx)
	defer connCancel()
	defer s.teardownConn(conn)

	if s.onConnect != nil {
		if err := s.onConnect(connCtx, conn); err != nil {
			return fmt.Errorf("on-connect: %w", err)
		}
	}

	s.setState(StateOpen)
	atomic.StoreInt32(&s.consecutiveFailures, 0)
	s.log.Info("ws session connected", zap.String("session", s.name), zap.String("url", s.url))

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			s.setState(StateDisconnected)
			return fmt.Errorf("read: %w", err)
		}
		s.dispatch(raw)
	}
}

func (s *Session) teardownConn(conn *websocket.Conn) {
	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	s.mu.Unlock()
	conn.Close()
	s.failAllPending()
}

func (s *Session) dispatch(raw []byte) {
	if s.onMessage == nil {
		return
	}
	decoded, correlationID := s.onMessage(raw)
	if correlationID == "" {
		return
	}
	s.pendingMu.Lock()
	ch, ok := s.pending[correlationID]
	if ok {
		delete(s.pending, correlationID)
	}
	s.pendingMu.Unlock()
	if ok {
		ch <- decoded
	}
}

func (s *Session) failAllPending() {
	s.pendingMu.Lock()
	pending := s.pending
	s.pending = make(map[string]chan interface{})
	s.pendingMu.Unlock()
	for _, ch := range pending {
		close(ch)
	}
}

// ErrNotConnected is returned by Send when the socket is not currently open.
var ErrNotConnected = errors.New("ws not connected")

// ErrTimeout is returned by Send when a correlated response does not arrive
// within the session's send timeout.
var ErrTimeout = errors.New("ws response timeout")

// Send JSON-encodes and transmits payload. If correlationID is non-empty, it
// registers a pending-response slot and blocks (bounded by the session's
// send timeout) for the matching reply. If the session is not open, it
// returns immediately without blocking.
func (s *Session) Send(payload interface{}, correlationID string) (interface{}, error) {
	if !s.Ready() {
		return nil, ErrNotConnected
	}

	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()
	if conn == nil {
		return nil, ErrNotConnected
	}

	var waiter chan interface{}
	if correlationID != "" {
		waiter = make(chan interface{}, 1)
		s.pendingMu.Lock()
		s.pending[correlationID] = waiter
		s.pendingMu.Unlock()
	}

	body, err := json.Marshal(payload)
	if err != nil {
		if correlationID != "" {
			s.pendingMu.Lock()
			delete(s.pending, correlationID)
			s.pendingMu.Unlock()
		}
		return nil, err
	}

	if err := conn.WriteMessage(websocket.TextMessage, body); err != nil {
		atomic.AddInt32(&s.consecutiveFailures, 1)
		if correlationID != "" {
			s.pendingMu.Lock()
			delete(s.pending, correlationID)
			s.pendingMu.Unlock()
		}
		return nil, err
	}

	if correlationID == "" {
		return nil, nil
	}

	select {
	case resp, ok := <-waiter:
		if !ok {
			return nil, ErrNotConnected
		}
		return resp, nil
	case <-time.After(s.sendTimeout):
		s.pendingMu.Lock()
		delete(s.pending, correlationID)
		s.pendingMu.Unlock()
		return nil, ErrTimeout
	}
}

// Close marks the session closed; Run exits once it observes ctx.Done (the
// owning trader/adapter is responsible for cancelling that context. Close
// only releases the current connection immediately rather than waiting a
// full ReconnectDelay).
func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.closed) })
	s.setState(StateClosing)
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
	s.failAllPending()
}
