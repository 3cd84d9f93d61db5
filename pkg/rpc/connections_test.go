package rpc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/triplexrpc/triplex/pkg/envelope"
)

func TestConnectionRegistry_RegisterGetUnregister(t *testing.T) {
	t.Parallel()

	reg := NewConnectionRegistry()
	c, _ := newCaptureConn(TransportWS, 1)

	_, ok := reg.Get(TransportWS, c.ID())
	assert.False(t, ok)

	reg.Register(c)
	got, ok := reg.Get(TransportWS, c.ID())
	require.True(t, ok)
	assert.Same(t, c, got)

	// Buckets are per transport: the same id is not visible elsewhere.
	_, ok = reg.Get(TransportTCP, c.ID())
	assert.False(t, ok)

	reg.Unregister(TransportWS, c.ID())
	_, ok = reg.Get(TransportWS, c.ID())
	assert.False(t, ok)

	// Unregistering twice is harmless.
	reg.Unregister(TransportWS, c.ID())
}

func TestConnectionRegistry_TrySend(t *testing.T) {
	t.Parallel()

	reg := NewConnectionRegistry()
	c, ch := newCaptureConn(TransportTCP, 1)
	reg.Register(c)

	err := reg.TrySend(TransportTCP, c.ID(), envelope.NewResponse("message.test", "", []byte("hello")))
	require.NoError(t, err)

	e := waitEnvelope(t, ch)
	assert.Equal(t, "message.test", e.ID)
	assert.Empty(t, e.RequestID)
	assert.Equal(t, []byte("hello"), e.Data)
}

func TestConnectionRegistry_TrySendUnknownConnection(t *testing.T) {
	t.Parallel()

	reg := NewConnectionRegistry()

	err := reg.TrySend(TransportTCP, "nope", envelope.NewResponse("message.test", "", nil))
	assert.ErrorIs(t, err, ErrConnectionNotFound)
}

func TestConnectionRegistry_Counts(t *testing.T) {
	t.Parallel()

	reg := NewConnectionRegistry()

	ws1, _ := newCaptureConn(TransportWS, 1)
	ws2 := NewConn(ConnConfig{
		Info:       ConnInfo{ID: "conn-ws-2", Transport: TransportWS},
		WriteFrame: func([]byte) error { return nil },
	})
	tcp1 := NewConn(ConnConfig{
		Info:       ConnInfo{ID: "conn-tcp-1", Transport: TransportTCP},
		WriteFrame: func([]byte) error { return nil },
	})

	reg.Register(ws1)
	reg.Register(ws2)
	reg.Register(tcp1)

	assert.Equal(t, 2, reg.Count(TransportWS))
	assert.Equal(t, 1, reg.Count(TransportTCP))
	assert.Equal(t, 0, reg.Count(TransportKCP))

	counts := reg.Counts()
	assert.Equal(t, map[Transport]int{
		TransportWS:  2,
		TransportTCP: 1,
		TransportKCP: 0,
	}, counts)
}

func TestConnectionRegistry_Snapshot(t *testing.T) {
	t.Parallel()

	reg := NewConnectionRegistry()
	c1 := NewConn(ConnConfig{
		Info:       ConnInfo{ID: "a", Transport: TransportKCP},
		WriteFrame: func([]byte) error { return nil },
	})
	c2 := NewConn(ConnConfig{
		Info:       ConnInfo{ID: "b", Transport: TransportKCP},
		WriteFrame: func([]byte) error { return nil },
	})
	reg.Register(c1)
	reg.Register(c2)

	snap := reg.Snapshot(TransportKCP)
	assert.Len(t, snap, 2)

	// The snapshot is detached: mutating the registry afterwards does not
	// change it.
	reg.Unregister(TransportKCP, "a")
	assert.Len(t, snap, 2)
	assert.Equal(t, 1, reg.Count(TransportKCP))
}
