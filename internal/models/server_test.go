package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerConfigURLs(t *testing.T) {
	t.Run("upgrades https to wss for streaming", func(t *testing.T) {
		server := NewServerConfig("Home NAS", "https://push.example.com", "s3cret")

		stream, err := server.StreamURL()
		require.NoError(t, err)
		assert.Equal(t, "wss://push.example.com/stream?token=s3cret", stream)
	})

	t.Run("upgrades http to ws for streaming", func(t *testing.T) {
		server := NewServerConfig("Lab", "http://10.0.0.5:8080", "tok")

		stream, err := server.StreamURL()
		require.NoError(t, err)
		assert.Equal(t, "ws://10.0.0.5:8080/stream?token=tok", stream)
	})

	t.Run("keeps an explicit websocket scheme", func(t *testing.T) {
		server := NewServerConfig("Lab", "wss://push.example.com", "tok")

		stream, err := server.StreamURL()
		require.NoError(t, err)
		assert.Equal(t, "wss://push.example.com/stream?token=tok", stream)
	})

	t.Run("base URL maps websocket schemes back to http", func(t *testing.T) {
		server := NewServerConfig("Lab", "wss://push.example.com", "tok")

		base, err := server.BaseURL()
		require.NoError(t, err)
		assert.Equal(t, "https://push.example.com", base)
	})

	t.Run("rejects unsupported schemes", func(t *testing.T) {
		server := NewServerConfig("Bad", "ftp://push.example.com", "tok")

		_, err := server.StreamURL()
		assert.Error(t, err)
	})

	t.Run("rejects an address without a host", func(t *testing.T) {
		server := NewServerConfig("Bad", "https://", "tok")

		_, err := server.StreamURL()
		assert.Error(t, err)
	})
}

func TestParseMessageDate(t *testing.T) {
	t.Run("parses fractional seconds", func(t *testing.T) {
		parsed := ParseMessageDate("2026-08-27T10:12:13.123456Z")
		assert.Equal(t, 2026, parsed.Year())
		assert.Equal(t, 123456000, parsed.Nanosecond())
	})

	t.Run("falls back to now on garbage", func(t *testing.T) {
		parsed := ParseMessageDate("not-a-date")
		assert.WithinDuration(t, time.Now(), parsed, 5*time.Second)
	})
}
