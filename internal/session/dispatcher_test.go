package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gungifree/gungi-server-go/internal/protocol"
)

func TestDispatcherRoutesByType(t *testing.T) {
	d := NewDispatcher(zap.NewNop())

	var got []string
	d.On(protocol.TypeSessionJoined, func(env protocol.Envelope) {
		got = append(got, "joined:"+env.Type)
	})
	d.On(protocol.TypeSessionJoined, func(env protocol.Envelope) {
		got = append(got, "second")
	})
	d.On(protocol.TypeError, func(env protocol.Envelope) {
		got = append(got, "error")
	})

	data, err := protocol.Encode(protocol.TypeSessionJoined, protocol.SessionJoined{SessionID: "s1"})
	require.NoError(t, err)
	d.Dispatch(data)

	assert.Equal(t, []string{"joined:session_joined", "second"}, got)
}

func TestDispatcherDropsMalformedAndUnknown(t *testing.T) {
	d := NewDispatcher(zap.NewNop())

	var calls int
	d.On(protocol.TypePong, func(protocol.Envelope) { calls++ })

	d.Dispatch([]byte("{not json"))
	d.Dispatch([]byte(`{"payload":{}}`))

	unknown, err := protocol.Encode("no_such_type", struct{}{})
	require.NoError(t, err)
	d.Dispatch(unknown)

	assert.Zero(t, calls)
}

func TestDispatcherContainsHandlerPanic(t *testing.T) {
	d := NewDispatcher(zap.NewNop())

	var after bool
	d.On(protocol.TypePong, func(protocol.Envelope) { panic("boom") })
	d.On(protocol.TypePong, func(protocol.Envelope) { after = true })

	data, err := protocol.Encode(protocol.TypePong, protocol.Pong{})
	require.NoError(t, err)
	assert.NotPanics(t, func() { d.Dispatch(data) })
	assert.True(t, after, "panic in one handler starved its sibling")
}
