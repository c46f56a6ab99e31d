package notify

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/beacon-notify/beacon/internal/database"
	"github.com/beacon-notify/beacon/internal/models"
)

// IconResolver resolves an application's icon reference to a local file path
type IconResolver interface {
	ResolveIcon(ctx context.Context, server *models.ServerConfig, imagePath string) (string, error)
}

// Engine decides whether an ingested message surfaces as a local notification
// and constructs its presentation. Decisions are pure; delivery is
// fire-and-forget.
type Engine struct {
	db       *database.DB
	notifier Notifier
	icons    IconResolver // May be nil when icon resolution is unavailable
	logger   *zap.Logger
}

// NewEngine creates a policy engine
func NewEngine(db *database.DB, notifier Notifier, icons IconResolver, logger *zap.Logger) *Engine {
	return &Engine{
		db:       db,
		notifier: notifier,
		icons:    icons,
		logger:   logger,
	}
}

// ShouldNotify decides eligibility for a newly ingested message. The global
// settings flag gates everything; otherwise the matching application's flag
// decides. A message whose application is not cached yet (it can arrive
// before registry sync completes) is eligible: better to deliver a first-run
// notification than to drop it silently.
func (e *Engine) ShouldNotify(msg *models.Message, server *models.ServerConfig) bool {
	settings, err := e.db.GetSettings()
	if err != nil {
		e.logger.Warn("Failed to load settings, assuming defaults", zap.Error(err))
		settings = models.DefaultSettings()
	}
	if !settings.ShowNotifications {
		return false
	}

	app, err := e.db.GetApplication(server.ID, msg.AppID)
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			e.logger.Warn("Application lookup failed", zap.Error(err))
		}
		return true
	}
	return app.NotifyEnabled
}

// Deliver builds and sends the notification for an eligible message. Icon
// resolution and delivery failures are logged and otherwise ignored; they
// never affect the already-persisted message.
func (e *Engine) Deliver(ctx context.Context, msg *models.Message, server *models.ServerConfig) {
	appName := ""
	iconRef := ""
	if app, err := e.db.GetApplication(server.ID, msg.AppID); err == nil {
		appName = app.Name
		iconRef = app.Image
	}

	n := Notification{
		ID:    fmt.Sprintf("beacon-%s", msg.ID),
		Title: BuildTitle(appName, msg.Title, server.Name),
		Body:  msg.Body,
	}

	if settings, err := e.db.GetSettings(); err == nil {
		n.Sound = settings.PlaySound
	}

	if e.icons != nil && iconRef != "" {
		path, err := e.icons.ResolveIcon(ctx, server, iconRef)
		if err != nil {
			// Never block delivery on a missing icon
			e.logger.Debug("Icon resolution failed", zap.String("image", iconRef), zap.Error(err))
		} else {
			n.IconPath = path
		}
	}

	if err := e.notifier.Notify(n); err != nil {
		e.logger.Warn("Notification delivery failed", zap.String("id", n.ID), zap.Error(err))
	}
}

// UpdateBadge reflects the unread counter on the platform badge
func (e *Engine) UpdateBadge(count int) {
	if err := e.notifier.SetBadge(count); err != nil {
		e.logger.Warn("Badge update failed", zap.Error(err))
	}
}

// BuildTitle composes the notification title. Known application names are
// bracketed; an empty message title falls back to the server name.
func BuildTitle(appName, msgTitle, serverName string) string {
	subject := msgTitle
	if subject == "" {
		subject = serverName
	}
	if appName == "" {
		return subject
	}
	return fmt.Sprintf("[%s] %s", appName, subject)
}
