// Package session implements the client-side transport: one logical
// session per participant and match, framed protocol messages, liveness via
// periodic heartbeat, and reconnection with exponential backoff. The
// session survives connection swaps; only an explicit Close or backoff
// exhaustion ends it.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.uber.org/zap"

	"github.com/gungifree/gungi-server-go/internal/protocol"
)

// State is the transport state of a session.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateReconnecting:
		return "RECONNECTING"
	default:
		return "UNKNOWN"
	}
}

// Transport errors surfaced to callers of Connect. Everything else feeds
// the reconnection state machine instead of failing the session.
var (
	ErrConnectionTimeout = errors.New("CONNECTION_TIMEOUT")
	ErrConnectionFailed  = errors.New("CONNECTION_FAILED")
)

// Config carries the transport knobs.
type Config struct {
	ConnectTimeout       time.Duration
	HeartbeatInterval    time.Duration
	HeartbeatTimeout     time.Duration
	BackoffBase          time.Duration
	BackoffMax           time.Duration
	MaxReconnectAttempts int
}

// DefaultConfig returns the transport defaults.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout:       10 * time.Second,
		HeartbeatInterval:    15 * time.Second,
		HeartbeatTimeout:     45 * time.Second,
		BackoffBase:          500 * time.Millisecond,
		BackoffMax:           30 * time.Second,
		MaxReconnectAttempts: 8,
	}
}

// BackoffDelay computes the wait before reconnect attempt n (1-based):
// min(base * 2^(n-1), max).
func BackoffDelay(attempt int, base, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max || delay < 0 {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

// Session binds one participant to one match over a swappable connection.
type Session struct {
	ID      string
	MatchID string

	dial       Dialer
	cfg        Config
	logger     *zap.Logger
	dispatcher *Dispatcher
	pool       *ConnPool

	mu                sync.Mutex
	state             State
	conn              Conn
	generation        int
	reconnectAttempts int
	lastHeartbeatAck  time.Time
	manualClose       bool
	closeCh           chan struct{}
}

// New creates a session for a match. The dialer is retained for the life of
// the session so reconnection can mint fresh connections.
func New(matchID string, dial Dialer, cfg Config, logger *zap.Logger) *Session {
	id, err := gonanoid.New()
	if err != nil {
		// gonanoid only fails when the OS entropy source is broken.
		panic("session: id generation failed: " + err.Error())
	}
	s := &Session{
		ID:         id,
		MatchID:    matchID,
		dial:       dial,
		cfg:        cfg,
		logger:     logger.With(zap.String("session_id", id), zap.String("match_id", matchID)),
		dispatcher: NewDispatcher(logger),
		pool:       NewConnPool(logger),
		state:      StateDisconnected,
		closeCh:    make(chan struct{}),
	}
	s.dispatcher.On(protocol.TypePong, func(protocol.Envelope) {
		s.mu.Lock()
		s.lastHeartbeatAck = time.Now()
		s.mu.Unlock()
	})
	return s
}

// On registers a handler for an inbound message type.
func (s *Session) On(msgType string, h Handler) {
	s.dispatcher.On(msgType, h)
}

// Pool exposes the session's named connection pool.
func (s *Session) Pool() *ConnPool {
	return s.pool
}

// State returns the current transport state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ReconnectAttempts returns the current reconnect attempt counter. It is
// reset to zero by any successful connect.
func (s *Session) ReconnectAttempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconnectAttempts
}

// LastHeartbeatAck returns the time of the most recent pong.
func (s *Session) LastHeartbeatAck() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastHeartbeatAck
}

// Connect opens the underlying connection with a bounded timeout and starts
// the read and heartbeat loops.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateConnected {
		s.mu.Unlock()
		return nil
	}
	if s.manualClose {
		// Reopening after an explicit Close; arm a fresh close signal.
		s.manualClose = false
		s.closeCh = make(chan struct{})
	}
	s.state = StateConnecting
	s.mu.Unlock()

	if err := s.dialAndStart(ctx); err != nil {
		s.mu.Lock()
		s.state = StateDisconnected
		s.mu.Unlock()
		return err
	}
	return nil
}

// dialAndStart performs one connection attempt and, on success, installs
// the new Conn and spins up its loops.
func (s *Session) dialAndStart(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancel()

	conn, err := s.dial(dialCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(dialCtx.Err(), context.DeadlineExceeded) {
			return ErrConnectionTimeout
		}
		return errors.Join(ErrConnectionFailed, err)
	}

	s.mu.Lock()
	if s.manualClose {
		s.mu.Unlock()
		_ = conn.Close()
		return ErrConnectionFailed
	}
	// A racing dial (explicit Connect during a reconnect attempt) may have
	// installed a connection already. The superseded one is closed so its
	// loops unwind instead of leaking.
	prev := s.conn
	s.conn = conn
	s.state = StateConnected
	s.generation++
	s.reconnectAttempts = 0
	s.lastHeartbeatAck = time.Now()
	gen := s.generation
	s.mu.Unlock()

	if prev != nil {
		_ = prev.Close()
	}
	s.logger.Info("session connected")
	go s.readLoop(conn, gen)
	go s.heartbeatLoop(conn, gen)
	return nil
}

// Send frames and writes a message. It returns false, without error
// propagation, when the session is not connected or when serialization or
// the write fails.
func (s *Session) Send(msgType string, payload any) bool {
	s.mu.Lock()
	conn := s.conn
	connected := s.state == StateConnected
	s.mu.Unlock()

	if !connected || conn == nil {
		return false
	}
	data, err := protocol.Encode(msgType, payload)
	if err != nil {
		s.logger.Warn("failed to serialize outbound message",
			zap.String("type", msgType),
			zap.Error(err),
		)
		return false
	}
	if err := conn.WriteMessage(data); err != nil {
		s.logger.Warn("failed to write message", zap.String("type", msgType), zap.Error(err))
		return false
	}
	return true
}

// Close moves the session to disconnected, suppresses any reconnection, and
// closes the pooled connections.
func (s *Session) Close() {
	s.mu.Lock()
	if s.manualClose {
		s.mu.Unlock()
		return
	}
	s.manualClose = true
	s.state = StateDisconnected
	conn := s.conn
	s.conn = nil
	close(s.closeCh)
	s.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	s.pool.CloseAll()
	s.logger.Info("session closed")
}

// readLoop pumps inbound frames into the dispatcher until the connection
// dies, then hands off to the disconnect path.
func (s *Session) readLoop(conn Conn, gen int) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			s.handleDisconnect(conn, gen, err)
			return
		}
		s.dispatcher.Dispatch(data)
	}
}

// heartbeatLoop sends a periodic ping and force-closes the connection when
// the pong window is missed, which funnels into the reconnection path via
// readLoop. The loop never holds the session lock while waiting.
func (s *Session) heartbeatLoop(conn Conn, gen int) {
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()

	s.mu.Lock()
	closeCh := s.closeCh
	s.mu.Unlock()

	for {
		select {
		case <-closeCh:
			return
		case <-ticker.C:
		}

		s.mu.Lock()
		stale := s.generation != gen || s.conn != conn
		lastAck := s.lastHeartbeatAck
		s.mu.Unlock()
		if stale {
			return
		}

		if time.Since(lastAck) > s.cfg.HeartbeatTimeout {
			s.logger.Warn("heartbeat window missed, forcing connection closed",
				zap.Duration("window", s.cfg.HeartbeatTimeout),
			)
			_ = conn.Close()
			return
		}
		if !s.Send(protocol.TypePing, protocol.Ping{Timestamp: time.Now()}) {
			return
		}
	}
}

// handleDisconnect decides between terminal disconnect (manual close) and
// the reconnection state machine.
func (s *Session) handleDisconnect(conn Conn, gen int, cause error) {
	s.mu.Lock()
	if s.generation != gen || s.manualClose {
		// A stale loop or an intentional close; nothing to recover.
		s.mu.Unlock()
		return
	}
	s.conn = nil
	s.state = StateReconnecting
	s.mu.Unlock()

	_ = conn.Close()
	s.logger.Warn("connection lost, entering reconnection", zap.Error(cause))
	go s.reconnectLoop()
}

// reconnectLoop retries with exponential backoff until success, manual
// close, or attempt exhaustion. Exhaustion is terminal until a new explicit
// Connect.
func (s *Session) reconnectLoop() {
	s.mu.Lock()
	closeCh := s.closeCh
	s.mu.Unlock()

	for attempt := 1; attempt <= s.cfg.MaxReconnectAttempts; attempt++ {
		s.mu.Lock()
		if s.manualClose {
			s.mu.Unlock()
			return
		}
		s.reconnectAttempts = attempt
		s.mu.Unlock()

		delay := BackoffDelay(attempt, s.cfg.BackoffBase, s.cfg.BackoffMax)
		timer := time.NewTimer(delay)
		select {
		case <-closeCh:
			timer.Stop()
			return
		case <-timer.C:
		}

		err := s.dialAndStart(context.Background())
		if err == nil {
			s.logger.Info("session reconnected", zap.Int("attempt", attempt))
			return
		}
		s.logger.Warn("reconnect attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", s.cfg.MaxReconnectAttempts),
			zap.Error(err),
		)
	}

	s.mu.Lock()
	s.state = StateDisconnected
	s.mu.Unlock()
	s.logger.Error("reconnect attempts exhausted, session disconnected")
}
