package models

import (
	"time"

	"github.com/google/uuid"
)

// Application represents a publisher registered on a server. The AppID is
// assigned by the server and is only unique within that server; the pair
// (ServerID, AppID) is unique in the local store.
type Application struct {
	ID            uuid.UUID `json:"id"`
	ServerID      uuid.UUID `json:"server_id"`
	AppID         int64     `json:"app_id"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	Image         string    `json:"image,omitempty"` // Icon path relative to the server base URL
	NotifyEnabled bool      `json:"notify_enabled"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NewApplication creates a local application record for a server-assigned app id.
// Notifications default to enabled for newly discovered applications.
func NewApplication(serverID uuid.UUID, appID int64, name, description, image string) *Application {
	now := time.Now()
	return &Application{
		ID:            uuid.New(),
		ServerID:      serverID,
		AppID:         appID,
		Name:          name,
		Description:   description,
		Image:         image,
		NotifyEnabled: true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}
