// Package protocol defines the type-discriminated message shapes exchanged
// between the transport layer and its peers. Frames are JSON envelopes with
// a type tag and an opaque payload; dispatch is by the tag alone, never by
// reflection.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gungifree/gungi-server-go/internal/board"
)

// Client-to-server message types.
const (
	TypeJoinSession  = "join_session"
	TypeSubmitMove   = "submit_move"
	TypeLeaveSession = "leave_session"
	TypePing         = "ping"
)

// Server-to-client message types.
const (
	TypePong          = "pong"
	TypeSessionJoined = "session_joined"
	TypeMoveValidated = "move_validated"
	TypeError         = "error"
)

// Envelope is the framing for every protocol message.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// JoinSession asks to bind the connection to a match.
type JoinSession struct {
	MatchID string `json:"matchId"`
	Side    string `json:"side,omitempty"`
}

// MovePayload is the wire form of a move.
type MovePayload struct {
	From      board.Position `json:"from"`
	To        board.Position `json:"to"`
	PieceType string         `json:"pieceType"`
}

// SubmitMove submits a move for the joined side.
type SubmitMove struct {
	MatchID string      `json:"matchId"`
	Move    MovePayload `json:"move"`
}

// LeaveSession detaches the connection from a match.
type LeaveSession struct {
	MatchID string `json:"matchId"`
}

// Ping is the client-side heartbeat probe.
type Ping struct {
	Timestamp time.Time `json:"timestamp"`
}

// Pong acknowledges a Ping.
type Pong struct {
	Timestamp  time.Time `json:"timestamp"`
	ServerTime time.Time `json:"serverTime"`
}

// SessionJoined confirms a JoinSession.
type SessionJoined struct {
	SessionID        string `json:"sessionId"`
	MatchID          string `json:"matchId"`
	PlayersConnected int    `json:"playersConnected"`
}

// MoveValidated reports the outcome of a SubmitMove. Board is present on
// success.
type MoveValidated struct {
	MoveID  string      `json:"moveId"`
	Success bool        `json:"success"`
	Board   *board.View `json:"board,omitempty"`
	Status  string      `json:"status,omitempty"`
	Winner  string      `json:"winner,omitempty"`
}

// Error carries a typed failure to the client.
type Error struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Encode frames a payload into an envelope of the given type.
func Encode(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	return json.Marshal(Envelope{Type: msgType, Payload: raw})
}

// Decode parses a frame into its envelope. The payload stays raw until the
// handler for the type unpacks it.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("malformed frame: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("frame missing type discriminator")
	}
	return env, nil
}
