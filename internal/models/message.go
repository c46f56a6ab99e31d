package models

import (
	"time"

	"github.com/google/uuid"
)

// Message represents a single notification-worthy event ingested from a
// server's stream. AppID refers to the server-assigned application id and is
// resolved against Application by (ServerID, AppID) at read time, not stored
// as a direct reference.
type Message struct {
	ID         uuid.UUID `json:"id"`
	ServerID   uuid.UUID `json:"server_id"`
	MsgID      int64     `json:"msg_id"` // Server-assigned message id
	AppID      int64     `json:"app_id"` // Server-assigned application id
	Title      string    `json:"title,omitempty"`
	Body       string    `json:"body"`
	Priority   int       `json:"priority"` // 0-10
	Date       time.Time `json:"date"`     // Origination timestamp from the server clock
	Read       bool      `json:"read"`
	Extras     Extras    `json:"extras,omitempty"`
	ReceivedAt time.Time `json:"received_at"` // Local receipt timestamp
}

// NewMessage creates a message record with a generated ID and the current
// receipt timestamp
func NewMessage(serverID uuid.UUID, msgID, appID int64, title, body string, priority int, date time.Time, extras Extras) *Message {
	return &Message{
		ID:         uuid.New(),
		ServerID:   serverID,
		MsgID:      msgID,
		AppID:      appID,
		Title:      title,
		Body:       body,
		Priority:   priority,
		Date:       date,
		Extras:     extras,
		ReceivedAt: time.Now(),
	}
}

// ParseMessageDate parses an ISO-8601 timestamp with fractional seconds as
// sent by the server. Unparsable dates fall back to the current time so a
// malformed timestamp never blocks ingestion.
func ParseMessageDate(raw string) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t
	}
	return time.Now()
}
