package protocol

import (
	"github.com/beacon-notify/beacon/internal/models"
)

// StreamMessage is one inbound frame from a server's /stream endpoint
type StreamMessage struct {
	ID       int64         `json:"id"`
	AppID    int64         `json:"appid"`
	Title    string        `json:"title"`
	Message  string        `json:"message"`
	Priority int           `json:"priority"`
	Date     string        `json:"date"` // ISO-8601 with fractional seconds
	Extras   models.Extras `json:"extras,omitempty"`
}

// ApplicationEntry is one element of the authoritative application list
// returned by GET /application
type ApplicationEntry struct {
	ID              int64   `json:"id"`
	Token           string  `json:"token"`
	Name            string  `json:"name"`
	Description     string  `json:"description"`
	Internal        bool    `json:"internal"`
	Image           string  `json:"image"`
	DefaultPriority int     `json:"defaultPriority"`
	LastUsed        *string `json:"lastUsed,omitempty"`
}

// VersionInfo is the response of GET /version, used for connection tests
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	BuildDate string `json:"buildDate,omitempty"`
}
