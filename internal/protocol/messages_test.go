package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gungifree/gungi-server-go/internal/board"
)

func TestEncodeDecodeEnvelope(t *testing.T) {
	data, err := Encode(TypeSubmitMove, SubmitMove{
		MatchID: "m1",
		Move: MovePayload{
			From:      board.Position{Row: 2, Col: 3},
			To:        board.Position{Row: 3, Col: 3},
			PieceType: "MINOR",
		},
	})
	require.NoError(t, err)

	env, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, TypeSubmitMove, env.Type)

	var submit SubmitMove
	require.NoError(t, json.Unmarshal(env.Payload, &submit))
	assert.Equal(t, "m1", submit.MatchID)
	assert.Equal(t, 3, submit.Move.To.Row)
	assert.Equal(t, "MINOR", submit.Move.PieceType)
}

func TestDecodeRejectsBadFrames(t *testing.T) {
	_, err := Decode([]byte("{truncated"))
	assert.Error(t, err)

	// A frame without a type tag is undispatchable.
	_, err = Decode([]byte(`{"payload":{"matchId":"m1"}}`))
	assert.Error(t, err)
}

func TestMoveValidatedOmitsBoardOnFailure(t *testing.T) {
	data, err := Encode(TypeMoveValidated, MoveValidated{MoveID: "mv1", Success: false})
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"board"`)

	view := board.NewStandard().Snapshot()
	data, err = Encode(TypeMoveValidated, MoveValidated{MoveID: "mv2", Success: true, Board: &view, Status: "ACTIVE"})
	require.NoError(t, err)

	env, err := Decode(data)
	require.NoError(t, err)
	var mv MoveValidated
	require.NoError(t, json.Unmarshal(env.Payload, &mv))
	require.NotNil(t, mv.Board)
	assert.Equal(t, view, *mv.Board)
}
