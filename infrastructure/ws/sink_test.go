package ws

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"devicesync/observability"
)

func newTestConn(t *testing.T, bufferSize int) *Conn {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	conn := newConn(context.Background(), log, nil, "c1", bufferSize, time.Second, observability.NewMetrics())
	t.Cleanup(conn.cancel)
	return conn
}

func TestConn_StateTransitions(t *testing.T) {
	req := require.New(t)
	conn := newTestConn(t, 4)

	// A fresh connection has not authenticated yet
	req.Equal(stateConnecting, conn.State())

	conn.setState(stateAuthenticated)
	req.Equal(stateAuthenticated, conn.State())

	conn.setState(stateActive)
	req.Equal(stateActive, conn.State())

	conn.setState(stateDisconnected)
	req.Equal(stateDisconnected, conn.State())
}

func TestConn_EnqueueDropsWhenBufferFull(t *testing.T) {
	req := require.New(t)
	conn := newTestConn(t, 1)

	conn.enqueue(serverMessage{Type: "first"})
	conn.enqueue(serverMessage{Type: "second"})

	// Only the first fit; the second was dropped, not blocked on
	req.Len(conn.send, 1)
	req.Equal("first", (<-conn.send).Type)
}

func TestConn_EnqueueWaitBlocksInsteadOfDropping(t *testing.T) {
	req := require.New(t)
	conn := newTestConn(t, 1)

	conn.enqueueWait(serverMessage{Type: "first"})

	delivered := make(chan struct{})
	go func() {
		defer close(delivered)
		conn.enqueueWait(serverMessage{Type: "second"})
	}()

	// The second send waits for a drain instead of dropping
	select {
	case <-delivered:
		t.Fatal("enqueueWait returned before the buffer was drained")
	case <-time.After(20 * time.Millisecond):
	}

	req.Equal("first", (<-conn.send).Type)
	select {
	case <-delivered:
	case <-time.After(time.Second):
		t.Fatal("enqueueWait never completed after the drain")
	}
	req.Equal("second", (<-conn.send).Type)
}

func TestConn_EnqueueWaitReturnsOnClosedConnection(t *testing.T) {
	conn := newTestConn(t, 1)
	conn.enqueueWait(serverMessage{Type: "first"})
	conn.cancel()

	// Must not hang on a full buffer once the connection is gone
	conn.enqueueWait(serverMessage{Type: "second"})
}
