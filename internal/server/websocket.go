// Package server hosts the websocket endpoint that connects participants
// to their matches: it upgrades connections, validates inbound protocol
// frames, routes moves into the lifecycle manager, and broadcasts results
// to every participant of the affected match.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gungifree/gungi-server-go/internal/board"
	"github.com/gungifree/gungi-server-go/internal/config"
	"github.com/gungifree/gungi-server-go/internal/match"
	"github.com/gungifree/gungi-server-go/internal/protocol"
	"github.com/gungifree/gungi-server-go/internal/rules"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 256
)

// Server is the websocket front end.
type Server struct {
	cfg      config.ServerConfig
	mgr      *match.Manager
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]bool
}

// client is one connected participant or spectator.
type client struct {
	conn      *websocket.Conn
	send      chan []byte
	sessionID string

	mu        sync.Mutex
	matchID   string
	side      board.Side
	sideBound bool
}

// New creates the websocket server and subscribes it to the manager's
// committed moves, so agent-driven moves reach connected clients too.
func New(cfg config.ServerConfig, mgr *match.Manager, logger *zap.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		mgr:    mgr,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*client]bool),
	}
	mgr.OnMoveApplied(s.broadcastMove)
	return s
}

// broadcastMove fans a committed move out to every client joined to the
// match, regardless of whether a participant or an agent played it.
func (s *Server) broadcastMove(snap match.Snapshot) {
	moveID, err := gonanoid.New()
	if err != nil {
		moveID = snap.ID
	}
	result := protocol.MoveValidated{
		MoveID:  moveID,
		Success: true,
		Board:   &snap.Board,
		Status:  snap.Status.String(),
	}
	if snap.Winner != nil {
		result.Winner = snap.Winner.String()
	}
	s.broadcast(snap.ID, protocol.TypeMoveValidated, result)
}

// Run serves until ctx is cancelled, then drains with the configured
// shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.serveWS)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{Addr: s.cfg.Address, Handler: mux}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("websocket server listening", zap.String("address", s.cfg.Address))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	sessionID, err := gonanoid.New()
	if err != nil {
		s.logger.Error("session id generation failed", zap.Error(err))
		_ = conn.Close()
		return
	}
	c := &client{
		conn:      conn,
		send:      make(chan []byte, sendBuffer),
		sessionID: sessionID,
	}

	s.mu.Lock()
	s.clients[c] = true
	s.mu.Unlock()
	s.logger.Info("client connected", zap.String("session_id", c.sessionID))

	go s.writePump(c)
	go s.readPump(c)
}

func (s *Server) readPump(c *client) {
	defer func() {
		s.mu.Lock()
		delete(s.clients, c)
		s.mu.Unlock()
		close(c.send)
		_ = c.conn.Close()
		s.logger.Info("client disconnected", zap.String("session_id", c.sessionID))
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		env, err := protocol.Decode(data)
		if err != nil {
			s.logger.Warn("dropping malformed frame",
				zap.String("session_id", c.sessionID),
				zap.Error(err),
			)
			s.sendError(c, "BAD_FRAME", "malformed message")
			continue
		}
		s.handleMessage(c, env)
	}
}

func (s *Server) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) handleMessage(c *client, env protocol.Envelope) {
	switch env.Type {
	case protocol.TypeJoinSession:
		s.handleJoin(c, env)
	case protocol.TypeSubmitMove:
		s.handleSubmitMove(c, env)
	case protocol.TypeLeaveSession:
		s.handleLeave(c, env)
	case protocol.TypePing:
		s.handlePing(c, env)
	default:
		s.logger.Debug("dropping frame of unknown type",
			zap.String("session_id", c.sessionID),
			zap.String("type", env.Type),
		)
	}
}

func (s *Server) handleJoin(c *client, env protocol.Envelope) {
	var req protocol.JoinSession
	if err := json.Unmarshal(env.Payload, &req); err != nil {
		s.sendError(c, "BAD_PAYLOAD", "invalid join_session payload")
		return
	}
	if _, err := s.mgr.Get(req.MatchID); err != nil {
		s.sendError(c, "MATCH_NOT_FOUND", "no such match: "+req.MatchID)
		return
	}

	c.mu.Lock()
	c.matchID = req.MatchID
	if side, ok := board.ParseSide(req.Side); ok {
		c.side = side
		c.sideBound = true
	}
	c.mu.Unlock()

	s.reply(c, protocol.TypeSessionJoined, protocol.SessionJoined{
		SessionID:        c.sessionID,
		MatchID:          req.MatchID,
		PlayersConnected: s.connectedTo(req.MatchID),
	})
	s.logger.Info("session joined match",
		zap.String("session_id", c.sessionID),
		zap.String("match_id", req.MatchID),
	)
}

func (s *Server) handleSubmitMove(c *client, env protocol.Envelope) {
	var req protocol.SubmitMove
	if err := json.Unmarshal(env.Payload, &req); err != nil {
		s.sendError(c, "BAD_PAYLOAD", "invalid submit_move payload")
		return
	}

	c.mu.Lock()
	side, sideBound := c.side, c.sideBound
	c.mu.Unlock()
	if !sideBound {
		s.sendError(c, "NO_SIDE", "join the session with a side before moving")
		return
	}

	pieceType, ok := board.ParsePieceType(req.Move.PieceType)
	if !ok {
		s.sendError(c, "BAD_PAYLOAD", "unknown piece type: "+req.Move.PieceType)
		return
	}
	mv := rules.Move{
		From:      req.Move.From,
		To:        req.Move.To,
		PieceType: pieceType,
		Timestamp: time.Now().UTC(),
	}

	moveID, err := gonanoid.New()
	if err != nil {
		moveID = req.MatchID
	}

	if _, err := s.mgr.SubmitMove(context.Background(), req.MatchID, side, mv); err != nil {
		s.reply(c, protocol.TypeMoveValidated, protocol.MoveValidated{
			MoveID:  moveID,
			Success: false,
		})
		s.sendError(c, errorCode(err), err.Error())
		return
	}
	// The committed move reaches this client through broadcastMove.
}

func (s *Server) handleLeave(c *client, env protocol.Envelope) {
	var req protocol.LeaveSession
	if err := json.Unmarshal(env.Payload, &req); err != nil {
		s.sendError(c, "BAD_PAYLOAD", "invalid leave_session payload")
		return
	}
	c.mu.Lock()
	c.matchID = ""
	c.sideBound = false
	c.mu.Unlock()
	s.logger.Info("session left match",
		zap.String("session_id", c.sessionID),
		zap.String("match_id", req.MatchID),
	)
}

func (s *Server) handlePing(c *client, env protocol.Envelope) {
	var req protocol.Ping
	if err := json.Unmarshal(env.Payload, &req); err != nil {
		s.sendError(c, "BAD_PAYLOAD", "invalid ping payload")
		return
	}
	s.reply(c, protocol.TypePong, protocol.Pong{
		Timestamp:  req.Timestamp,
		ServerTime: time.Now().UTC(),
	})
}

// connectedTo counts clients currently joined to a match.
func (s *Server) connectedTo(matchID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for c := range s.clients {
		c.mu.Lock()
		if c.matchID == matchID {
			count++
		}
		c.mu.Unlock()
	}
	return count
}

// broadcast sends a frame to every client joined to a match. Slow clients
// are skipped rather than allowed to stall the rest.
func (s *Server) broadcast(matchID, msgType string, payload any) {
	data, err := protocol.Encode(msgType, payload)
	if err != nil {
		s.logger.Error("failed to encode broadcast", zap.String("type", msgType), zap.Error(err))
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for c := range s.clients {
		c.mu.Lock()
		joined := c.matchID == matchID
		c.mu.Unlock()
		if !joined {
			continue
		}
		select {
		case c.send <- data:
		default:
			s.logger.Warn("dropping broadcast to slow client",
				zap.String("session_id", c.sessionID),
			)
		}
	}
}

func (s *Server) reply(c *client, msgType string, payload any) {
	data, err := protocol.Encode(msgType, payload)
	if err != nil {
		s.logger.Error("failed to encode reply", zap.String("type", msgType), zap.Error(err))
		return
	}
	select {
	case c.send <- data:
	default:
		s.logger.Warn("dropping reply to slow client", zap.String("session_id", c.sessionID))
	}
}

func (s *Server) sendError(c *client, code, message string) {
	s.reply(c, protocol.TypeError, protocol.Error{Code: code, Message: message})
}

// errorCode maps lifecycle and validation errors to wire codes.
func errorCode(err error) string {
	if code := rules.CodeOf(err); code != "" {
		return string(code)
	}
	switch {
	case errors.Is(err, match.ErrMatchNotFound):
		return "MATCH_NOT_FOUND"
	case errors.Is(err, match.ErrAlreadyStarted):
		return "ALREADY_STARTED"
	case errors.Is(err, match.ErrMatchNotActive):
		return "MATCH_NOT_ACTIVE"
	case errors.Is(err, match.ErrAgentTimeout):
		return "AGENT_TIMEOUT"
	case errors.Is(err, match.ErrSideNotBound):
		return "SIDE_NOT_BOUND"
	default:
		return "INTERNAL"
	}
}
