package client

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/beacon-notify/beacon/internal/models"
	"github.com/beacon-notify/beacon/internal/protocol"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// streamServer is a stand-in push server. The session callback runs once per
// accepted websocket with the 1-based dial count.
type streamServer struct {
	*httptest.Server
	dials atomic.Int32
	live  atomic.Int32
}

func newStreamServer(t *testing.T, session func(n int, conn *websocket.Conn)) *streamServer {
	t.Helper()
	s := &streamServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		n := int(s.dials.Add(1))
		s.live.Add(1)
		defer s.live.Add(-1)
		defer conn.Close()
		session(n, conn)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *streamServer) wsURL() string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

// hold blocks until the peer goes away
func hold(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func newTestConnection(t *testing.T, streamURL string) (*Connection, chan *protocol.StreamMessage, chan models.Status) {
	t.Helper()
	messages := make(chan *protocol.StreamMessage, 32)
	statuses := make(chan models.Status, 32)

	conn := NewConnection(uuid.New(), streamURL, zap.NewNop())
	conn.retryDelay = 50 * time.Millisecond
	conn.SetHandlers(
		func(msg *protocol.StreamMessage) { messages <- msg },
		func(status models.Status) { statuses <- status },
	)
	t.Cleanup(conn.Disconnect)
	return conn, messages, statuses
}

// waitStatus consumes statuses until the wanted one arrives
func waitStatus(t *testing.T, statuses <-chan models.Status, want models.Status) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case status := <-statuses:
			if status == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for status %v", want)
		}
	}
}

func TestConnectionDeliversFramesInOrder(t *testing.T) {
	server := newStreamServer(t, func(n int, conn *websocket.Conn) {
		for i := 1; i <= 3; i++ {
			frame := fmt.Sprintf(`{"id":%d,"appid":1,"message":"m%d","date":"2026-08-27T10:00:0%d.000Z"}`, i, i, i)
			if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
				return
			}
		}
		hold(conn)
	})

	conn, messages, statuses := newTestConnection(t, server.wsURL())
	require.NoError(t, conn.Connect())
	waitStatus(t, statuses, models.StatusConnected)

	for i := 1; i <= 3; i++ {
		select {
		case msg := <-messages:
			assert.Equal(t, int64(i), msg.ID)
			assert.Equal(t, fmt.Sprintf("m%d", i), msg.Message)
		case <-time.After(3 * time.Second):
			t.Fatalf("timed out waiting for frame %d", i)
		}
	}
}

func TestConnectionDropsMalformedFrames(t *testing.T) {
	server := newStreamServer(t, func(n int, conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage, []byte(`{not json`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"id":7,"appid":1,"message":"ok","date":"2026-08-27T10:00:00.000Z"}`))
		hold(conn)
	})

	conn, messages, statuses := newTestConnection(t, server.wsURL())
	require.NoError(t, conn.Connect())
	waitStatus(t, statuses, models.StatusConnected)

	select {
	case msg := <-messages:
		assert.Equal(t, int64(7), msg.ID)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for the valid frame")
	}
	assert.Empty(t, messages)
}

func TestConnectionReconnectsAfterDrop(t *testing.T) {
	server := newStreamServer(t, func(n int, conn *websocket.Conn) {
		if n == 1 {
			return // Drop the first session immediately
		}
		hold(conn)
	})

	conn, _, statuses := newTestConnection(t, server.wsURL())
	require.NoError(t, conn.Connect())

	waitStatus(t, statuses, models.StatusConnected)
	waitStatus(t, statuses, models.StatusError)
	waitStatus(t, statuses, models.StatusConnecting)
	waitStatus(t, statuses, models.StatusConnected)

	assert.Equal(t, int32(2), server.dials.Load())
	assert.Equal(t, models.StatusConnected, conn.Status())
}

func TestConnectionDisconnectCancelsPendingRetry(t *testing.T) {
	server := newStreamServer(t, func(n int, conn *websocket.Conn) {})

	conn, _, statuses := newTestConnection(t, server.wsURL())
	conn.retryDelay = 300 * time.Millisecond
	require.NoError(t, conn.Connect())

	waitStatus(t, statuses, models.StatusError)
	conn.Disconnect()
	waitStatus(t, statuses, models.StatusDisconnected)

	// The armed retry must never fire
	time.Sleep(3 * conn.retryDelay)
	assert.Equal(t, int32(1), server.dials.Load())
	assert.Equal(t, models.StatusDisconnected, conn.Status())
}

func TestConnectionDialFailureSchedulesRetry(t *testing.T) {
	messages := make(chan *protocol.StreamMessage, 1)
	statuses := make(chan models.Status, 32)

	conn := NewConnection(uuid.New(), "ws://127.0.0.1:1/stream", zap.NewNop())
	conn.retryDelay = time.Minute // Keep the retry pending for the assertion
	conn.SetHandlers(
		func(msg *protocol.StreamMessage) { messages <- msg },
		func(status models.Status) { statuses <- status },
	)
	t.Cleanup(conn.Disconnect)

	assert.Error(t, conn.Connect())
	waitStatus(t, statuses, models.StatusError)
	assert.Equal(t, models.StatusError, conn.Status())
}

func TestConnectionDisconnectIsTerminal(t *testing.T) {
	server := newStreamServer(t, func(n int, conn *websocket.Conn) {
		hold(conn)
	})

	conn, _, statuses := newTestConnection(t, server.wsURL())
	conn.Disconnect()
	waitStatus(t, statuses, models.StatusDisconnected)

	// A spent connection never dials again
	require.NoError(t, conn.Connect())
	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, server.dials.Load())
	assert.Equal(t, models.StatusDisconnected, conn.Status())
}

func TestConnectionConnectSupersedesPreviousSession(t *testing.T) {
	server := newStreamServer(t, func(n int, conn *websocket.Conn) {
		hold(conn)
	})

	conn, _, statuses := newTestConnection(t, server.wsURL())
	require.NoError(t, conn.Connect())
	waitStatus(t, statuses, models.StatusConnected)

	require.NoError(t, conn.Connect())
	waitStatus(t, statuses, models.StatusConnected)

	assert.Equal(t, int32(2), server.dials.Load())
	assert.Eventually(t, func() bool { return server.live.Load() == 1 },
		3*time.Second, 10*time.Millisecond, "exactly one live session expected")
}
