package client

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/beacon-notify/beacon/internal/models"
	"github.com/beacon-notify/beacon/internal/protocol"
)

// DefaultRetryDelay is how long a dropped connection waits before the single
// scheduled reconnect attempt
const DefaultRetryDelay = 5 * time.Second

// Connection is one persistent streaming connection to a push server. It owns
// its own reconnect state machine:
//
//	disconnected -> connecting -> connected
//	connected/connecting -> error -> connecting (after the retry delay)
//
// An explicit Disconnect is terminal from any state and cancels pending
// retries. Disconnection signals arriving while a retry is already scheduled
// are coalesced so at most one retry is ever pending.
type Connection struct {
	serverID  uuid.UUID
	streamURL string
	logger    *zap.Logger

	// Message and status handlers
	onMessage func(*protocol.StreamMessage)
	onStatus  func(models.Status)

	// RetryDelay is fixed; only tests shorten it
	retryDelay time.Duration

	mu           sync.Mutex
	conn         *websocket.Conn
	done         chan struct{} // Closed on teardown; identifies the live session
	status       models.Status
	closed       bool // Explicit Disconnect happened
	retryPending bool
	retryTimer   *time.Timer
}

// NewConnection creates a connection for a server's streaming endpoint. It
// does not connect until Connect is called.
func NewConnection(serverID uuid.UUID, streamURL string, logger *zap.Logger) *Connection {
	return &Connection{
		serverID:   serverID,
		streamURL:  streamURL,
		logger:     logger.With(zap.String("server_id", serverID.String())),
		retryDelay: DefaultRetryDelay,
		status:     models.StatusDisconnected,
	}
}

// SetHandlers sets the message and status-change handlers. Must be called
// before Connect.
func (c *Connection) SetHandlers(onMessage func(*protocol.StreamMessage), onStatus func(models.Status)) {
	c.onMessage = onMessage
	c.onStatus = onStatus
}

// Status returns the current connection status
func (c *Connection) Status() models.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Connect establishes the streaming session and starts the receive loop. Any
// previous session is fully torn down first, so calling Connect while already
// connected never leaks a socket or a second receive loop. A dial failure
// schedules the usual single retry. Once Disconnect has been called the
// connection is spent and Connect is a no-op, so a dial racing an explicit
// teardown can never resurrect the session; callers wanting to reconnect
// build a fresh Connection.
func (c *Connection) Connect() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.cancelRetryLocked()
	c.closeSessionLocked()
	c.status = models.StatusConnecting
	cb := c.onStatus
	c.mu.Unlock()

	if cb != nil {
		cb(models.StatusConnecting)
	}

	dialer := &websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
		Proxy:            http.ProxyFromEnvironment,
	}
	conn, _, err := dialer.Dial(c.streamURL, nil)
	if err != nil {
		c.scheduleRetry(nil, err)
		return fmt.Errorf("failed to connect: %w", err)
	}

	c.mu.Lock()
	if c.closed {
		// Disconnect raced with the dial; drop the fresh socket
		c.mu.Unlock()
		conn.Close()
		return nil
	}
	c.conn = conn
	done := make(chan struct{})
	c.done = done
	c.status = models.StatusConnected
	cb = c.onStatus
	c.mu.Unlock()

	if cb != nil {
		cb(models.StatusConnected)
	}

	go c.readPump(conn, done)
	return nil
}

// Disconnect cancels any pending retry, stops the receive loop, closes the
// transport, and reports the disconnected status. Safe to call from any
// state, including when already disconnected.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	c.closed = true
	c.cancelRetryLocked()
	c.closeSessionLocked()
	c.status = models.StatusDisconnected
	cb := c.onStatus
	c.mu.Unlock()

	if cb != nil {
		cb(models.StatusDisconnected)
	}
}

// readPump reads frames from the stream until the session ends. Frames are
// delivered in arrival order; malformed frames are dropped without
// terminating the connection.
func (c *Connection) readPump(conn *websocket.Conn, done chan struct{}) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-done:
				// Deliberate teardown, not a transport failure
				return
			default:
			}
			c.scheduleRetry(done, err)
			return
		}

		var msg protocol.StreamMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn("Dropping malformed stream frame", zap.Error(err))
			continue
		}

		if c.onMessage != nil {
			c.onMessage(&msg)
		}
	}
}

// scheduleRetry transitions to the error state and arms the single retry
// timer. done identifies the session the failure belongs to (nil for dial
// failures); stale sessions and reentrant failures are ignored.
func (c *Connection) scheduleRetry(done chan struct{}, cause error) {
	c.mu.Lock()
	if c.closed || c.retryPending || (done != nil && c.done != done) {
		c.mu.Unlock()
		return
	}
	c.closeSessionLocked()
	c.retryPending = true
	c.retryTimer = time.AfterFunc(c.retryDelay, c.retry)
	c.status = models.StatusError
	cb := c.onStatus
	c.mu.Unlock()

	c.logger.Warn("Connection lost, retry scheduled",
		zap.Duration("delay", c.retryDelay),
		zap.Error(cause))

	if cb != nil {
		cb(models.StatusError)
	}
}

// retry fires when the reconnect timer elapses
func (c *Connection) retry() {
	c.mu.Lock()
	c.retryPending = false
	c.retryTimer = nil
	c.mu.Unlock()

	if err := c.Connect(); err != nil {
		c.logger.Warn("Reconnect attempt failed", zap.Error(err))
	}
}

// cancelRetryLocked stops a pending retry timer. Caller holds c.mu.
func (c *Connection) cancelRetryLocked() {
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	c.retryPending = false
}

// closeSessionLocked tears down the live transport and receive loop without
// reporting a status. Caller holds c.mu.
func (c *Connection) closeSessionLocked() {
	if c.done != nil {
		close(c.done)
		c.done = nil
	}
	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
		c.conn = nil
	}
}
