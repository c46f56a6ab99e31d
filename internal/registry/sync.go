package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/beacon-notify/beacon/internal/client"
	"github.com/beacon-notify/beacon/internal/database"
	"github.com/beacon-notify/beacon/internal/models"
)

// Syncer reconciles the locally cached application list of a server against
// the server's authoritative list. Concurrent syncs for the same server are
// collapsed into a single flight so rapid reconnects cannot race
// duplicate inserts.
type Syncer struct {
	db     *database.DB
	api    *client.APIClient
	logger *zap.Logger
	group  singleflight.Group
}

// NewSyncer creates a registry syncer
func NewSyncer(db *database.DB, api *client.APIClient, logger *zap.Logger) *Syncer {
	return &Syncer{
		db:     db,
		api:    api,
		logger: logger,
	}
}

// SyncServer reconciles one server's cached applications. A fetch or
// persistence failure aborts without partial mutation, leaving the prior
// cache untouched.
func (s *Syncer) SyncServer(ctx context.Context, server *models.ServerConfig) error {
	_, err, _ := s.group.Do(server.ID.String(), func() (interface{}, error) {
		return nil, s.syncServer(ctx, server)
	})
	return err
}

func (s *Syncer) syncServer(ctx context.Context, server *models.ServerConfig) error {
	entries, err := s.api.GetApplications(ctx, server)
	if err != nil {
		return fmt.Errorf("registry fetch failed: %w", err)
	}

	cached, err := s.db.ListApplications(server.ID)
	if err != nil {
		return err
	}

	// Lookup of cached applications by server-assigned id; entries still
	// present after the loop were not seen on the server and get deleted
	unseen := make(map[int64]*models.Application, len(cached))
	for _, app := range cached {
		unseen[app.AppID] = app
	}

	now := time.Now()
	var creates, updates []*models.Application
	for _, entry := range entries {
		if app, ok := unseen[entry.ID]; ok {
			app.Name = entry.Name
			app.Description = entry.Description
			app.Image = entry.Image
			app.UpdatedAt = now
			updates = append(updates, app)
			delete(unseen, entry.ID)
			continue
		}
		creates = append(creates, models.NewApplication(server.ID, entry.ID, entry.Name, entry.Description, entry.Image))
	}

	return s.apply(server, creates, updates, unseen)
}

// apply persists the reconciliation atomically. The owning server may have
// been deleted while the fetch was in flight; in that case the result is
// discarded instead of resurrecting rows for a dead server.
func (s *Syncer) apply(server *models.ServerConfig, creates, updates []*models.Application, unseen map[int64]*models.Application) error {
	if _, err := s.db.GetServer(server.ID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			s.logger.Debug("Server deleted during registry sync, discarding result",
				zap.String("server_id", server.ID.String()))
			return nil
		}
		return err
	}

	deletes := make([]uuid.UUID, 0, len(unseen))
	for _, app := range unseen {
		deletes = append(deletes, app.ID)
	}

	if err := s.db.ApplyApplicationChanges(creates, updates, deletes); err != nil {
		return err
	}

	s.logger.Info("Registry sync complete",
		zap.String("server_id", server.ID.String()),
		zap.Int("created", len(creates)),
		zap.Int("updated", len(updates)),
		zap.Int("removed", len(deletes)))
	return nil
}

// SyncAll reconciles every currently connected server; failures are logged
// per server and do not abort the rest
func (s *Syncer) SyncAll(ctx context.Context, servers []*models.ServerConfig) {
	for _, server := range servers {
		if server.Status != models.StatusConnected {
			continue
		}
		if err := s.SyncServer(ctx, server); err != nil {
			s.logger.Warn("Registry sync failed",
				zap.String("server_id", server.ID.String()),
				zap.Error(err))
		}
	}
}
