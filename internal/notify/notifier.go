package notify

import (
	"context"

	"github.com/gen2brain/beeep"
	"go.uber.org/zap"
)

// Notification is one local notification ready for delivery
type Notification struct {
	ID       string // Delivery identity, "beacon-<message id>"
	Title    string
	Body     string
	IconPath string // Optional path to a cached icon file
	Sound    bool
}

// Notifier delivers local notifications and maintains the unread badge.
// Implementations are fire-and-forget: delivery failures degrade gracefully
// and never affect persistence or counters.
type Notifier interface {
	// RequestPermission asks the platform for notification permission. The
	// result is advisory; a denial only suppresses future deliveries.
	RequestPermission(ctx context.Context) error

	// Notify delivers one notification
	Notify(n Notification) error

	// SetBadge reflects the unread count on the platform badge
	SetBadge(count int) error
}

// DesktopNotifier delivers notifications through the desktop notification
// facility
type DesktopNotifier struct {
	logger  *zap.Logger
	appIcon string // Fallback icon when a message has none
}

// NewDesktopNotifier creates a desktop notifier. appIcon may be empty.
func NewDesktopNotifier(logger *zap.Logger, appIcon string) *DesktopNotifier {
	return &DesktopNotifier{logger: logger, appIcon: appIcon}
}

// RequestPermission is a no-op on desktop platforms; delivery either works or
// is silently ignored by the environment
func (d *DesktopNotifier) RequestPermission(ctx context.Context) error {
	return nil
}

// Notify delivers one desktop notification. Sound selects the alerting
// variant.
func (d *DesktopNotifier) Notify(n Notification) error {
	icon := n.IconPath
	if icon == "" {
		icon = d.appIcon
	}

	if n.Sound {
		return beeep.Alert(n.Title, n.Body, icon)
	}
	return beeep.Notify(n.Title, n.Body, icon)
}

// SetBadge records the unread count. Desktop environments without a dock
// badge get a log line instead of a platform call.
func (d *DesktopNotifier) SetBadge(count int) error {
	d.logger.Debug("Unread badge updated", zap.Int("count", count))
	return nil
}
