package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/beacon-notify/beacon/internal/client"
	"github.com/beacon-notify/beacon/internal/database"
	"github.com/beacon-notify/beacon/internal/models"
	"github.com/beacon-notify/beacon/internal/notify"
	"github.com/beacon-notify/beacon/internal/protocol"
)

// ErrStopped is returned by operations submitted after shutdown
var ErrStopped = errors.New("application state stopped")

// eventBuffer bounds the queue between connection goroutines and the owning
// loop
const eventBuffer = 256

// ConnectionSupervisor is the subset of the supervisor the state drives
type ConnectionSupervisor interface {
	SetHandlers(onMessage client.MessageHandler, onStatus client.StatusHandler)
	Connect(server *models.ServerConfig)
	Disconnect(serverID uuid.UUID)
	Reconnect(server *models.ServerConfig)
	ConnectAllEnabled(servers []*models.ServerConfig)
	DisconnectAll()
}

// Syncer reconciles a server's application registry
type Syncer interface {
	SyncServer(ctx context.Context, server *models.ServerConfig) error
}

// Policy decides notification eligibility and owns badge bookkeeping
type Policy interface {
	ShouldNotify(msg *models.Message, server *models.ServerConfig) bool
	Deliver(ctx context.Context, msg *models.Message, server *models.ServerConfig)
	UpdateBadge(count int)
}

// State orchestrates the connection supervisor, the ingestion pipeline, the
// policy engine, and registry sync. All mutations of the store and the
// unread counter are serialized onto a single owning event loop; connection
// callbacks and public operations alike are marshaled through it.
type State struct {
	db         *database.DB
	supervisor ConnectionSupervisor
	syncer     Syncer
	policy     Policy
	notifier   notify.Notifier
	logger     *zap.Logger

	events  chan interface{}
	stopped chan struct{}
	stop    sync.Once

	// Owned by the event loop
	unread int64
}

// Event types marshaled onto the owning loop

type messageEvent struct {
	serverID uuid.UUID
	frame    *protocol.StreamMessage
}

type statusEvent struct {
	serverID uuid.UUID
	status   models.Status
}

type taskEvent struct {
	fn   func() error
	errc chan error
}

// NewState wires the orchestrator. Start must be called before use.
func NewState(db *database.DB, supervisor ConnectionSupervisor, syncer Syncer, policy Policy, notifier notify.Notifier, logger *zap.Logger) *State {
	return &State{
		db:         db,
		supervisor: supervisor,
		syncer:     syncer,
		policy:     policy,
		notifier:   notifier,
		logger:     logger,
		events:     make(chan interface{}, eventBuffer),
		stopped:    make(chan struct{}),
	}
}

// Start loads the persisted unread count, registers the supervisor callbacks,
// launches the owning loop, requests notification permission, and connects
// every enabled server.
func (s *State) Start(ctx context.Context) error {
	unread, err := s.db.CountUnreadMessages()
	if err != nil {
		return err
	}
	s.unread = unread
	s.policy.UpdateBadge(int(unread))

	s.supervisor.SetHandlers(
		func(serverID uuid.UUID, frame *protocol.StreamMessage) {
			s.enqueue(messageEvent{serverID: serverID, frame: frame})
		},
		func(serverID uuid.UUID, status models.Status) {
			s.enqueue(statusEvent{serverID: serverID, status: status})
		},
	)

	go s.run(ctx)

	// Permission is requested once; the result must not block startup
	go func() {
		if err := s.notifier.RequestPermission(ctx); err != nil {
			s.logger.Warn("Notification permission not granted", zap.Error(err))
		}
	}()

	servers, err := s.db.ListServers()
	if err != nil {
		return err
	}
	s.supervisor.ConnectAllEnabled(servers)
	return nil
}

// Shutdown tears down every connection and stops the owning loop
func (s *State) Shutdown() {
	s.supervisor.DisconnectAll()
	s.stop.Do(func() { close(s.stopped) })
}

// run is the single owning loop; it is the only goroutine that mutates the
// store and the unread counter
func (s *State) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			s.stop.Do(func() { close(s.stopped) })
			return
		case <-s.stopped:
			return
		case ev := <-s.events:
			switch ev := ev.(type) {
			case messageEvent:
				s.handleMessage(ctx, ev)
			case statusEvent:
				s.handleStatus(ctx, ev)
			case taskEvent:
				ev.errc <- ev.fn()
			}
		}
	}
}

// enqueue posts an event to the owning loop, dropping it after shutdown
func (s *State) enqueue(ev interface{}) {
	select {
	case s.events <- ev:
	case <-s.stopped:
	}
}

// do marshals an operation onto the owning loop and waits for its result
func (s *State) do(fn func() error) error {
	ev := taskEvent{fn: fn, errc: make(chan error, 1)}
	select {
	case s.events <- ev:
	case <-s.stopped:
		return ErrStopped
	}
	select {
	case err := <-ev.errc:
		return err
	case <-s.stopped:
		return ErrStopped
	}
}

// handleMessage turns a wire frame into a durable record, advances the
// unread counter, and hands the message to the policy engine
func (s *State) handleMessage(ctx context.Context, ev messageEvent) {
	server, err := s.db.GetServer(ev.serverID)
	if err != nil {
		// Server deleted while the frame was in flight
		s.logger.Debug("Dropping message for unknown server",
			zap.String("server_id", ev.serverID.String()), zap.Error(err))
		return
	}

	frame := ev.frame
	msg := models.NewMessage(ev.serverID, frame.ID, frame.AppID, frame.Title, frame.Message,
		frame.Priority, models.ParseMessageDate(frame.Date), frame.Extras)

	// Persistence is best-effort: the live counter advances even when the
	// save fails, storage only has to be right for the next restart
	if err := s.db.CreateMessage(msg); err != nil {
		s.logger.Error("Failed to persist message",
			zap.String("server_id", ev.serverID.String()),
			zap.Int64("msg_id", frame.ID),
			zap.Error(err))
	}

	s.unread++
	s.policy.UpdateBadge(int(s.unread))

	if s.policy.ShouldNotify(msg, server) {
		s.policy.Deliver(ctx, msg, server)
	}
}

// handleStatus reflects connection transitions; a successful connection
// stamps the server and triggers a registry sync
func (s *State) handleStatus(ctx context.Context, ev statusEvent) {
	s.logger.Info("Server status changed",
		zap.String("server_id", ev.serverID.String()),
		zap.String("status", ev.status.String()))

	if ev.status != models.StatusConnected {
		return
	}

	if err := s.db.UpdateServerLastConnected(ev.serverID, time.Now()); err != nil && !errors.Is(err, database.ErrNotFound) {
		s.logger.Warn("Failed to stamp last connected", zap.Error(err))
	}

	server, err := s.db.GetServer(ev.serverID)
	if err != nil {
		return
	}
	server.Status = ev.status

	// Sync does network work; keep the owning loop responsive
	go func() {
		if err := s.syncer.SyncServer(ctx, server); err != nil {
			s.logger.Warn("Registry sync failed",
				zap.String("server_id", server.ID.String()),
				zap.Error(err))
		}
	}()
}

// --- Message operations ---

// MarkAsRead sets the read flag on one message. Already-read messages are a
// no-op; the counter never goes below zero.
func (s *State) MarkAsRead(id uuid.UUID) error {
	return s.do(func() error {
		changed, err := s.db.MarkMessageRead(id)
		if err != nil {
			return err
		}
		if changed && s.unread > 0 {
			s.unread--
		}
		s.policy.UpdateBadge(int(s.unread))
		return nil
	})
}

// MarkAllAsRead clears the read flag on every unread message in one bulk
// mutation and resets the counter. Calling it with nothing unread is a
// harmless no-op.
func (s *State) MarkAllAsRead() error {
	return s.do(func() error {
		if _, err := s.db.MarkAllMessagesRead(); err != nil {
			return err
		}
		s.unread = 0
		s.policy.UpdateBadge(0)
		return nil
	})
}

// DeleteMessage removes one message, adjusting the counter if it was unread
func (s *State) DeleteMessage(id uuid.UUID) error {
	return s.do(func() error {
		msg, err := s.db.GetMessage(id)
		if err != nil {
			return err
		}
		if err := s.db.DeleteMessage(id); err != nil {
			return err
		}
		if !msg.Read && s.unread > 0 {
			s.unread--
		}
		s.policy.UpdateBadge(int(s.unread))
		return nil
	})
}

// DeleteAllMessages removes every message and resets the counter
func (s *State) DeleteAllMessages() error {
	return s.do(func() error {
		if err := s.db.DeleteAllMessages(); err != nil {
			return err
		}
		s.unread = 0
		s.policy.UpdateBadge(0)
		return nil
	})
}

// UnreadCount reports the live unread counter. After Shutdown the loop no
// longer answers and the count reads as zero; callers needing the persisted
// value afterwards should ask the store directly.
func (s *State) UnreadCount() int64 {
	var n int64
	_ = s.do(func() error {
		n = s.unread
		return nil
	})
	return n
}

// --- Server operations ---

// AddServer persists a new server and connects it when enabled
func (s *State) AddServer(server *models.ServerConfig) error {
	return s.do(func() error {
		if err := s.db.CreateServer(server); err != nil {
			return err
		}
		if server.Enabled {
			s.supervisor.Connect(server)
		}
		return nil
	})
}

// UpdateServer persists configuration changes and reconciles the connection:
// enabled servers reconnect with the new settings, disabled servers are torn
// down synchronously
func (s *State) UpdateServer(server *models.ServerConfig) error {
	return s.do(func() error {
		if err := s.db.UpdateServer(server); err != nil {
			return err
		}
		if server.Enabled {
			s.supervisor.Reconnect(server)
		} else {
			s.supervisor.Disconnect(server.ID)
		}
		return nil
	})
}

// DeleteServer tears down the server's connection synchronously, removes the
// server with its applications and messages, and recounts unread from the
// store
func (s *State) DeleteServer(id uuid.UUID) error {
	return s.do(func() error {
		s.supervisor.Disconnect(id)
		if err := s.db.DeleteServer(id); err != nil {
			return err
		}
		unread, err := s.db.CountUnreadMessages()
		if err != nil {
			return err
		}
		s.unread = unread
		s.policy.UpdateBadge(int(unread))
		return nil
	})
}
