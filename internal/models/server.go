package models

import (
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
)

// ServerConfig represents one configured push server the client streams from
type ServerConfig struct {
	ID            uuid.UUID  `json:"id"`
	Name          string     `json:"name"`
	URL           string     `json:"url"`   // Base address, e.g. https://push.example.com
	Token         string     `json:"token"` // Client credential token
	Enabled       bool       `json:"enabled"`
	LastConnected *time.Time `json:"last_connected,omitempty"` // Last successful connection
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`

	// Transient connection status, maintained by the supervisor
	Status Status `json:"-"`
}

// NewServerConfig creates a new server configuration with a generated ID
func NewServerConfig(name, rawURL, token string) *ServerConfig {
	now := time.Now()
	return &ServerConfig{
		ID:        uuid.New(),
		Name:      name,
		URL:       rawURL,
		Token:     token,
		Enabled:   true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// StreamURL derives the streaming endpoint from the configured base address.
// The scheme is upgraded to its websocket equivalent and the credential is
// passed as a query parameter.
func (s *ServerConfig) StreamURL() (string, error) {
	u, err := url.Parse(s.URL)
	if err != nil {
		return "", fmt.Errorf("invalid server address %q: %w", s.URL, err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
		// Already a websocket scheme
	default:
		return "", fmt.Errorf("invalid server address %q: unsupported scheme %q", s.URL, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid server address %q: missing host", s.URL)
	}

	u.Path = "/stream"
	q := u.Query()
	q.Set("token", s.Token)
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// BaseURL returns the HTTP base address used for REST calls
func (s *ServerConfig) BaseURL() (string, error) {
	u, err := url.Parse(s.URL)
	if err != nil {
		return "", fmt.Errorf("invalid server address %q: %w", s.URL, err)
	}

	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	case "http", "https":
	default:
		return "", fmt.Errorf("invalid server address %q: unsupported scheme %q", s.URL, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid server address %q: missing host", s.URL)
	}

	u.Path = ""
	u.RawQuery = ""
	return u.String(), nil
}

// Touch updates the modification timestamp
func (s *ServerConfig) Touch() {
	s.UpdatedAt = time.Now()
}

// String returns a human-readable string representation
func (s *ServerConfig) String() string {
	return fmt.Sprintf("%s (%s)", s.Name, s.URL)
}
