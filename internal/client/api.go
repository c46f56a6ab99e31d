package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/beacon-notify/beacon/internal/models"
	"github.com/beacon-notify/beacon/internal/protocol"
)

// authHeader carries the client credential on every REST call
const authHeader = "X-Beacon-Key"

// APIClient handles the REST side of a push server: the application registry,
// image downloads, and connection tests
type APIClient struct {
	httpClient *http.Client
	logger     *zap.Logger
}

// NewAPIClient creates a new API client
func NewAPIClient(logger *zap.Logger) *APIClient {
	return &APIClient{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// GetApplications fetches a server's authoritative application list
func (c *APIClient) GetApplications(ctx context.Context, server *models.ServerConfig) ([]protocol.ApplicationEntry, error) {
	base, err := server.BaseURL()
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/application", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create application request: %w", err)
	}
	req.Header.Set(authHeader, server.Token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("application request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("application request failed: unexpected HTTP status %d", resp.StatusCode)
	}

	var entries []protocol.ApplicationEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("failed to parse application list: %w", err)
	}

	c.logger.Debug("Fetched application list",
		zap.String("server_id", server.ID.String()),
		zap.Int("count", len(entries)))

	return entries, nil
}

// DownloadImage fetches raw image bytes from a path relative to the server
// base URL
func (c *APIClient) DownloadImage(ctx context.Context, server *models.ServerConfig, imagePath string) ([]byte, error) {
	base, err := server.BaseURL()
	if err != nil {
		return nil, err
	}
	ref, err := url.Parse(strings.TrimPrefix(imagePath, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid image path %q: %w", imagePath, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/"+ref.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create image request: %w", err)
	}
	req.Header.Set(authHeader, server.Token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("image request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image request failed: unexpected HTTP status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	return data, nil
}

// TestConnection probes a server's version endpoint; any HTTP 200 response
// counts as reachable
func (c *APIClient) TestConnection(ctx context.Context, server *models.ServerConfig) (*protocol.VersionInfo, error) {
	base, err := server.BaseURL()
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/version", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create version request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("version request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("version request failed: unexpected HTTP status %d", resp.StatusCode)
	}

	var info protocol.VersionInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to parse version response: %w", err)
	}
	return &info, nil
}
