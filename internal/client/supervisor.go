package client

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/beacon-notify/beacon/internal/models"
	"github.com/beacon-notify/beacon/internal/protocol"
)

// MessageHandler receives every decoded stream frame with its originating
// server
type MessageHandler func(serverID uuid.UUID, msg *protocol.StreamMessage)

// StatusHandler receives connection status transitions per server
type StatusHandler func(serverID uuid.UUID, status models.Status)

// Supervisor tracks the set of live connections keyed by server identity and
// fans out inbound frames and status transitions to its owner. Per-server
// event order matches arrival order from that server; no ordering is
// guaranteed across servers.
type Supervisor struct {
	logger *zap.Logger

	onMessage MessageHandler
	onStatus  StatusHandler

	mu    sync.Mutex
	conns map[uuid.UUID]*Connection
}

// NewSupervisor creates an empty supervisor
func NewSupervisor(logger *zap.Logger) *Supervisor {
	return &Supervisor{
		logger: logger,
		conns:  make(map[uuid.UUID]*Connection),
	}
}

// SetHandlers sets the fan-out handlers. Must be called before any Connect.
func (s *Supervisor) SetHandlers(onMessage MessageHandler, onStatus StatusHandler) {
	s.onMessage = onMessage
	s.onStatus = onStatus
}

// Connect opens a connection for a server. Disabled servers are a no-op. A
// server whose streaming address cannot be derived gets a forced error status
// and no connection. Any existing connection for the same identity is torn
// down first, so at most one live connection exists per server.
func (s *Supervisor) Connect(server *models.ServerConfig) {
	if !server.Enabled {
		return
	}

	streamURL, err := server.StreamURL()
	if err != nil {
		s.logger.Warn("Cannot derive streaming address",
			zap.String("server_id", server.ID.String()),
			zap.Error(err))
		s.report(server.ID, models.StatusError)
		return
	}

	serverID := server.ID
	conn := NewConnection(serverID, streamURL, s.logger)
	conn.SetHandlers(
		func(msg *protocol.StreamMessage) {
			if s.onMessage != nil {
				s.onMessage(serverID, msg)
			}
		},
		func(status models.Status) {
			s.report(serverID, status)
		},
	)

	s.mu.Lock()
	if prev, ok := s.conns[serverID]; ok {
		prev.Disconnect()
	}
	s.conns[serverID] = conn
	s.mu.Unlock()

	// Dialing blocks; the connection reports its own transitions
	go func() {
		if err := conn.Connect(); err != nil {
			s.logger.Warn("Initial connect failed",
				zap.String("server_id", serverID.String()),
				zap.Error(err))
		}
	}()
}

// Disconnect tears down and removes a server's connection. The disconnected
// status is reported even when no connection existed, keeping the owner's
// view consistent.
func (s *Supervisor) Disconnect(serverID uuid.UUID) {
	s.mu.Lock()
	conn, ok := s.conns[serverID]
	delete(s.conns, serverID)
	s.mu.Unlock()

	if ok {
		conn.Disconnect()
		return
	}
	s.report(serverID, models.StatusDisconnected)
}

// Reconnect tears down and reopens a server's connection sequentially
func (s *Supervisor) Reconnect(server *models.ServerConfig) {
	s.Disconnect(server.ID)
	s.Connect(server)
}

// ConnectAllEnabled connects every enabled server. Disabled servers are left
// untouched; they should already be disconnected.
func (s *Supervisor) ConnectAllEnabled(servers []*models.ServerConfig) {
	for _, server := range servers {
		if server.Enabled {
			s.Connect(server)
		}
	}
}

// DisconnectAll tears down every live connection; used on shutdown to release
// all sockets before exit
func (s *Supervisor) DisconnectAll() {
	s.mu.Lock()
	conns := make([]*Connection, 0, len(s.conns))
	for _, conn := range s.conns {
		conns = append(conns, conn)
	}
	s.conns = make(map[uuid.UUID]*Connection)
	s.mu.Unlock()

	for _, conn := range conns {
		conn.Disconnect()
	}
}

// Status returns the connection status for a server; absent servers report
// disconnected
func (s *Supervisor) Status(serverID uuid.UUID) models.Status {
	s.mu.Lock()
	conn, ok := s.conns[serverID]
	s.mu.Unlock()

	if !ok {
		return models.StatusDisconnected
	}
	return conn.Status()
}

func (s *Supervisor) report(serverID uuid.UUID, status models.Status) {
	if s.onStatus != nil {
		s.onStatus(serverID, status)
	}
}
