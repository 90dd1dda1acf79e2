// Transcodenag - Jellyfin Transcode Nag Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transcodenag

/*
jellyfin_client.go - Jellyfin REST API Client

This file implements a REST API client for Jellyfin media server.
It provides methods to fetch session data and deliver on-screen messages
to active sessions.

API Reference: https://api.jellyfin.org/
*/

package sync

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/transcodenag/internal/models"
)

// JellyfinClientInterface defines the interface for Jellyfin API operations.
// Both JellyfinClient and JellyfinCircuitBreakerClient implement this interface.
type JellyfinClientInterface interface {
	Ping(ctx context.Context) error
	GetSessions(ctx context.Context) ([]models.JellyfinSession, error)
	GetActiveSessions(ctx context.Context) ([]models.JellyfinSession, error)
	GetSystemInfo(ctx context.Context) (*JellyfinSystemInfo, error)
	SendMessage(ctx context.Context, sessionID, header, text string, timeout time.Duration) error
	GetWebSocketURL() (string, error)
}

// Ensure JellyfinClient implements JellyfinClientInterface
var _ JellyfinClientInterface = (*JellyfinClient)(nil)

// JellyfinClient provides access to Jellyfin REST API
type JellyfinClient struct {
	baseURL    string
	apiKey     string
	userID     string // Optional: for user-scoped API operations
	httpClient *http.Client
}

// JellyfinSystemInfo represents Jellyfin server system information
type JellyfinSystemInfo struct {
	ServerName         string `json:"ServerName"`
	Version            string `json:"Version"`
	ID                 string `json:"Id"`
	OperatingSystem    string `json:"OperatingSystem"`
	HasUpdateAvailable bool   `json:"HasUpdateAvailable"`
}

// jellyfinMessageCommand is the request body for POST /Sessions/{id}/Message.
type jellyfinMessageCommand struct {
	Header    string `json:"Header"`
	Text      string `json:"Text"`
	TimeoutMs int64  `json:"TimeoutMs,omitempty"`
}

// NewJellyfinClient creates a new Jellyfin API client
//
// Parameters:
//   - baseURL: Jellyfin server URL (e.g., http://localhost:8096)
//   - apiKey: Jellyfin API key from Admin Dashboard > API Keys
//   - userID: Optional user ID for user-scoped operations
func NewJellyfinClient(baseURL, apiKey, userID string) *JellyfinClient {
	// Normalize URL (remove trailing slash)
	baseURL = strings.TrimSuffix(baseURL, "/")

	return &JellyfinClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		userID:  userID,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// GetSessions retrieves all active sessions from Jellyfin
//
// Returns a list of all active playback sessions including:
//   - User information
//   - Device/client details
//   - Currently playing content (if any)
//   - Playback state and progress
//   - Transcode information (if transcoding)
func (c *JellyfinClient) GetSessions(ctx context.Context) ([]models.JellyfinSession, error) {
	endpoint := "/Sessions"

	resp, err := c.doRequest(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("jellyfin sessions request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("jellyfin sessions returned status %d (failed to read body)", resp.StatusCode)
		}
		return nil, fmt.Errorf("jellyfin sessions returned status %d: %s", resp.StatusCode, string(body))
	}

	var sessions []models.JellyfinSession
	if err := json.NewDecoder(resp.Body).Decode(&sessions); err != nil {
		return nil, fmt.Errorf("failed to decode jellyfin sessions: %w", err)
	}

	return sessions, nil
}

// GetActiveSessions retrieves only sessions with active playback
//
// Filters sessions to return only those with NowPlayingItem set,
// indicating active playback (playing or paused).
func (c *JellyfinClient) GetActiveSessions(ctx context.Context) ([]models.JellyfinSession, error) {
	sessions, err := c.GetSessions(ctx)
	if err != nil {
		return nil, err
	}

	// Filter to active sessions only
	active := make([]models.JellyfinSession, 0, len(sessions))
	for i := range sessions {
		if sessions[i].NowPlayingItem != nil {
			active = append(active, sessions[i])
		}
	}

	return active, nil
}

// GetSystemInfo retrieves Jellyfin server system information
func (c *JellyfinClient) GetSystemInfo(ctx context.Context) (*JellyfinSystemInfo, error) {
	endpoint := "/System/Info"

	resp, err := c.doRequest(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("jellyfin system info request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("jellyfin system info returned status %d (failed to read body)", resp.StatusCode)
		}
		return nil, fmt.Errorf("jellyfin system info returned status %d: %s", resp.StatusCode, string(body))
	}

	var info JellyfinSystemInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode jellyfin system info: %w", err)
	}

	return &info, nil
}

// Ping tests connectivity to the Jellyfin server
func (c *JellyfinClient) Ping(ctx context.Context) error {
	endpoint := "/System/Ping"

	resp, err := c.doRequest(ctx, endpoint)
	if err != nil {
		return fmt.Errorf("jellyfin ping failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("jellyfin ping returned status %d", resp.StatusCode)
	}

	return nil
}

// SendMessage displays an on-screen message on the specified session
//
// Parameters:
//   - sessionID: The ID of the session to message (from JellyfinSession.ID)
//   - header: Message title shown by the client
//   - text: Message body
//   - timeout: How long the client should display the message; zero lets
//     the client use its own default
//
// The session must be active; Jellyfin returns 204 No Content on success.
func (c *JellyfinClient) SendMessage(ctx context.Context, sessionID, header, text string, timeout time.Duration) error {
	endpoint := fmt.Sprintf("/Sessions/%s/Message", url.PathEscape(sessionID))

	command := jellyfinMessageCommand{
		Header: header,
		Text:   text,
	}
	if timeout > 0 {
		command.TimeoutMs = timeout.Milliseconds()
	}

	payload, err := json.Marshal(command)
	if err != nil {
		return fmt.Errorf("failed to encode message command: %w", err)
	}

	resp, err := c.doPostRequest(ctx, endpoint, payload)
	if err != nil {
		return fmt.Errorf("jellyfin send message request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	// Jellyfin returns 204 No Content on success
	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("jellyfin send message returned status %d (failed to read body: %w)", resp.StatusCode, err)
		}
		return fmt.Errorf("jellyfin send message returned status %d: %s", resp.StatusCode, string(body))
	}

	return nil
}

// GetWebSocketURL returns the WebSocket URL for real-time notifications
func (c *JellyfinClient) GetWebSocketURL() (string, error) {
	parsedURL, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}

	// Convert http(s) to ws(s)
	switch parsedURL.Scheme {
	case "http":
		parsedURL.Scheme = "ws"
	case "https":
		parsedURL.Scheme = "wss"
	default:
		parsedURL.Scheme = "ws"
	}

	// Build WebSocket URL with API key
	parsedURL.Path = "/socket"
	query := parsedURL.Query()
	query.Set("api_key", c.apiKey)
	if c.userID != "" {
		query.Set("deviceId", "transcodenag-"+c.userID)
	} else {
		query.Set("deviceId", "transcodenag")
	}
	parsedURL.RawQuery = query.Encode()

	return parsedURL.String(), nil
}

// doRequest performs an HTTP GET request to the Jellyfin API
func (c *JellyfinClient) doRequest(ctx context.Context, endpoint string) (*http.Response, error) {
	fullURL := c.baseURL + endpoint

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	c.setHeaders(req)

	return c.httpClient.Do(req)
}

// doPostRequest performs an HTTP POST request to the Jellyfin API
func (c *JellyfinClient) doPostRequest(ctx context.Context, endpoint string, body []byte) (*http.Response, error) {
	fullURL := c.baseURL + endpoint

	var reader io.Reader = http.NoBody
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fullURL, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	c.setHeaders(req)

	return c.httpClient.Do(req)
}

// setHeaders applies the authorization and identity headers to a request
func (c *JellyfinClient) setHeaders(req *http.Request) {
	req.Header.Set("X-Emby-Token", c.apiKey)
	req.Header.Set("X-Emby-Client", "Transcodenag")
	req.Header.Set("X-Emby-Device-Name", "Transcodenag")
	req.Header.Set("X-Emby-Device-Id", "transcodenag")
	req.Header.Set("X-Emby-Client-Version", "1.0.0")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
}
