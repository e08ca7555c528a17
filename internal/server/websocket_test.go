package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gungifree/gungi-server-go/internal/board"
	"github.com/gungifree/gungi-server-go/internal/config"
	"github.com/gungifree/gungi-server-go/internal/match"
	"github.com/gungifree/gungi-server-go/internal/protocol"
)

func newTestServer(t *testing.T) (*Server, *match.Manager, string) {
	t.Helper()
	mgr := match.NewManager(match.NewRegistry(), nil, nil, match.DefaultConfig(), zap.NewNop())
	s := New(config.ServerConfig{ShutdownTimeout: time.Second}, mgr, zap.NewNop())

	ts := httptest.NewServer(http.HandlerFunc(s.serveWS))
	t.Cleanup(ts.Close)
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	return s, mgr, wsURL
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msgType string, payload any) {
	t.Helper()
	data, err := protocol.Encode(msgType, payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

func recv(t *testing.T, conn *websocket.Conn) protocol.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	env, err := protocol.Decode(data)
	require.NoError(t, err)
	return env
}

func unpack[T any](t *testing.T, env protocol.Envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Payload, &out))
	return out
}

func startedMatch(t *testing.T, mgr *match.Manager) *match.Match {
	t.Helper()
	m, err := mgr.Create(match.CreateSpec{
		Type: match.TypeHumanVsHuman,
		Participants: map[board.Side]string{
			board.SideBlack: "alice",
			board.SideWhite: "bob",
		},
	})
	require.NoError(t, err)
	_, err = mgr.Start(context.Background(), m.ID)
	require.NoError(t, err)
	return m
}

func TestJoinUnknownMatch(t *testing.T) {
	_, _, url := newTestServer(t)
	conn := dial(t, url)

	send(t, conn, protocol.TypeJoinSession, protocol.JoinSession{MatchID: "ghost"})
	env := recv(t, conn)
	require.Equal(t, protocol.TypeError, env.Type)
	assert.Equal(t, "MATCH_NOT_FOUND", unpack[protocol.Error](t, env).Code)
}

func TestJoinAndPlayersConnected(t *testing.T) {
	_, mgr, url := newTestServer(t)
	m := startedMatch(t, mgr)
	conn := dial(t, url)

	send(t, conn, protocol.TypeJoinSession, protocol.JoinSession{MatchID: m.ID, Side: "black"})
	env := recv(t, conn)
	require.Equal(t, protocol.TypeSessionJoined, env.Type)

	joined := unpack[protocol.SessionJoined](t, env)
	assert.Equal(t, m.ID, joined.MatchID)
	assert.NotEmpty(t, joined.SessionID)
	assert.Equal(t, 1, joined.PlayersConnected)
}

func TestSubmitMoveBroadcasts(t *testing.T) {
	_, mgr, url := newTestServer(t)
	m := startedMatch(t, mgr)

	black := dial(t, url)
	send(t, black, protocol.TypeJoinSession, protocol.JoinSession{MatchID: m.ID, Side: "black"})
	recv(t, black)

	white := dial(t, url)
	send(t, white, protocol.TypeJoinSession, protocol.JoinSession{MatchID: m.ID, Side: "white"})
	recv(t, white)

	send(t, black, protocol.TypeSubmitMove, protocol.SubmitMove{
		MatchID: m.ID,
		Move: protocol.MovePayload{
			From:      board.Position{Row: 2, Col: 3},
			To:        board.Position{Row: 3, Col: 3},
			PieceType: "MINOR",
		},
	})

	// Both participants see the validated move.
	for _, conn := range []*websocket.Conn{black, white} {
		env := recv(t, conn)
		require.Equal(t, protocol.TypeMoveValidated, env.Type)
		result := unpack[protocol.MoveValidated](t, env)
		assert.True(t, result.Success)
		require.NotNil(t, result.Board)
		assert.Equal(t, "ACTIVE", result.Status)
	}
	assert.Len(t, m.Snapshot().MoveHistory, 1)
}

func TestAgentReplyBroadcast(t *testing.T) {
	_, mgr, url := newTestServer(t)
	m, err := mgr.Create(match.CreateSpec{
		Type:         match.TypeHumanVsAI,
		Participants: map[board.Side]string{board.SideBlack: "alice"},
		Agents:       map[board.Side]match.AgentDriver{board.SideWhite: match.NewRandomAgent(1)},
	})
	require.NoError(t, err)
	_, err = mgr.Start(context.Background(), m.ID)
	require.NoError(t, err)

	human := dial(t, url)
	send(t, human, protocol.TypeJoinSession, protocol.JoinSession{MatchID: m.ID, Side: "black"})
	recv(t, human)

	send(t, human, protocol.TypeSubmitMove, protocol.SubmitMove{
		MatchID: m.ID,
		Move: protocol.MovePayload{
			From:      board.Position{Row: 2, Col: 3},
			To:        board.Position{Row: 3, Col: 3},
			PieceType: "MINOR",
		},
	})

	// The human's own move arrives first, then the agent's reply.
	for i := 0; i < 2; i++ {
		env := recv(t, human)
		require.Equal(t, protocol.TypeMoveValidated, env.Type)
		result := unpack[protocol.MoveValidated](t, env)
		assert.True(t, result.Success)
		require.NotNil(t, result.Board)
	}
	assert.Len(t, m.Snapshot().MoveHistory, 2)
}

func TestSubmitMoveRejection(t *testing.T) {
	_, mgr, url := newTestServer(t)
	m := startedMatch(t, mgr)

	white := dial(t, url)
	send(t, white, protocol.TypeJoinSession, protocol.JoinSession{MatchID: m.ID, Side: "white"})
	recv(t, white)

	// White moves while black is to move.
	send(t, white, protocol.TypeSubmitMove, protocol.SubmitMove{
		MatchID: m.ID,
		Move: protocol.MovePayload{
			From:      board.Position{Row: 6, Col: 3},
			To:        board.Position{Row: 5, Col: 3},
			PieceType: "MINOR",
		},
	})

	env := recv(t, white)
	require.Equal(t, protocol.TypeMoveValidated, env.Type)
	assert.False(t, unpack[protocol.MoveValidated](t, env).Success)

	env = recv(t, white)
	require.Equal(t, protocol.TypeError, env.Type)
	assert.Equal(t, "NOT_YOUR_TURN", unpack[protocol.Error](t, env).Code)
	assert.Empty(t, m.Snapshot().MoveHistory)
}

func TestSubmitMoveWithoutSide(t *testing.T) {
	_, mgr, url := newTestServer(t)
	m := startedMatch(t, mgr)

	conn := dial(t, url)
	send(t, conn, protocol.TypeJoinSession, protocol.JoinSession{MatchID: m.ID})
	recv(t, conn)

	send(t, conn, protocol.TypeSubmitMove, protocol.SubmitMove{MatchID: m.ID})
	env := recv(t, conn)
	require.Equal(t, protocol.TypeError, env.Type)
	assert.Equal(t, "NO_SIDE", unpack[protocol.Error](t, env).Code)
}

func TestMalformedFrame(t *testing.T) {
	_, _, url := newTestServer(t)
	conn := dial(t, url)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{broken")))
	env := recv(t, conn)
	require.Equal(t, protocol.TypeError, env.Type)
	assert.Equal(t, "BAD_FRAME", unpack[protocol.Error](t, env).Code)
}

func TestUnknownPieceType(t *testing.T) {
	_, mgr, url := newTestServer(t)
	m := startedMatch(t, mgr)

	conn := dial(t, url)
	send(t, conn, protocol.TypeJoinSession, protocol.JoinSession{MatchID: m.ID, Side: "black"})
	recv(t, conn)

	send(t, conn, protocol.TypeSubmitMove, protocol.SubmitMove{
		MatchID: m.ID,
		Move:    protocol.MovePayload{PieceType: "DRAGON"},
	})
	env := recv(t, conn)
	require.Equal(t, protocol.TypeError, env.Type)
	assert.Equal(t, "BAD_PAYLOAD", unpack[protocol.Error](t, env).Code)
}

func TestPingPong(t *testing.T) {
	_, _, url := newTestServer(t)
	conn := dial(t, url)

	sent := time.Now().UTC().Truncate(time.Millisecond)
	send(t, conn, protocol.TypePing, protocol.Ping{Timestamp: sent})
	env := recv(t, conn)
	require.Equal(t, protocol.TypePong, env.Type)

	pong := unpack[protocol.Pong](t, env)
	assert.True(t, pong.Timestamp.Equal(sent))
	assert.False(t, pong.ServerTime.IsZero())
}
