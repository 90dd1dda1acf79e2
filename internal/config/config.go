// Transcodenag - Jellyfin Transcode Nag Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transcodenag

// Package config defines the Transcodenag configuration and loads it via
// Koanf v2 with layered sources: built-in defaults, an optional YAML file,
// and environment variables (highest priority).
package config

import "time"

// Config is the root configuration for the service.
type Config struct {
	Jellyfin JellyfinConfig `koanf:"jellyfin"`
	Nag      NagConfig      `koanf:"nag"`
	Store    StoreConfig    `koanf:"store"`
	Server   ServerConfig   `koanf:"server"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// JellyfinConfig holds the connection settings for the monitored Jellyfin
// server.
//
// Environment Variables:
//   - JELLYFIN_URL: Jellyfin server URL (e.g., http://localhost:8096)
//   - JELLYFIN_API_KEY: API key from Admin Dashboard > API Keys
//   - JELLYFIN_USER_ID: Optional user ID for user-scoped API keys
//   - JELLYFIN_REALTIME_ENABLED: Enable WebSocket session feed (default: true)
//   - JELLYFIN_SESSION_POLLING_INTERVAL: REST poll interval (default: 10s)
type JellyfinConfig struct {
	URL    string `koanf:"url"`
	APIKey string `koanf:"api_key"`
	UserID string `koanf:"user_id"`

	// RealtimeEnabled adds the WebSocket session feed on top of polling.
	// Polling always runs; it is what drives settling-delay re-evaluation.
	RealtimeEnabled bool `koanf:"realtime_enabled"`

	// SessionPollingInterval is how often active sessions are fetched over
	// REST.
	SessionPollingInterval time.Duration `koanf:"session_polling_interval"`
}

// NagConfig holds the notification policy knobs.
//
// The login nag body supports two placeholders: {{transcodes}} expands to the
// windowed bad-transcode count and {{timewindow}} to "week" or "month".
type NagConfig struct {
	PlaybackHeader  string `koanf:"playback_header"`
	PlaybackMessage string `koanf:"playback_message"`
	LoginHeader     string `koanf:"login_header"`
	LoginMessage    string `koanf:"login_message"`

	// MessageTimeout is how long clients keep the message on screen.
	MessageTimeout time.Duration `koanf:"message_timeout"`

	// SettleDelay is the wait after playback start before reading the
	// transcoding classification, so transcode negotiation can finish.
	SettleDelay time.Duration `koanf:"settle_delay"`

	// SessionSettleDelay is the wait after a session appears before the
	// login/open nag evaluation runs.
	SessionSettleDelay time.Duration `koanf:"session_settle_delay"`

	LoginNagEnabled   bool `koanf:"login_nag_enabled"`
	LoginNagThreshold int  `koanf:"login_nag_threshold"`

	// LoginNagTimeWindow selects the rate-limit window: "Week" or "Month".
	// Anything else falls back to the weekly behavior.
	LoginNagTimeWindow string `koanf:"login_nag_time_window"`

	// IdleOpenThreshold is the idle gap after which renewed session activity
	// counts as the user "opening" Jellyfin again.
	IdleOpenThreshold time.Duration `koanf:"idle_open_threshold"`

	// ReopenPollInterval is how often session activity timestamps are
	// scanned for idle-to-active transitions.
	ReopenPollInterval time.Duration `koanf:"reopen_poll_interval"`

	// ExcludedUserIDs lists users who never receive notifications of either
	// kind.
	ExcludedUserIDs []string `koanf:"excluded_user_ids"`

	// AlertReasons names the transcode reasons considered nag-worthy. Empty
	// means the built-in default set (format/codec incompatibilities,
	// excluding bitrate caps).
	AlertReasons []string `koanf:"alert_reasons"`

	// CreditQueueSize bounds the asynchronous improvement-credit job queue.
	CreditQueueSize int `koanf:"credit_queue_size"`

	// LogSends emits an info log for every delivered nag.
	LogSends bool `koanf:"log_sends"`
}

// StoreConfig holds event log storage settings.
type StoreConfig struct {
	// DataDir is the directory holding events.json and its lock file.
	DataDir string `koanf:"data_dir"`
}

// ServerConfig holds the ops HTTP endpoint settings (healthz, metrics).
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`  // trace, debug, info, warn, error
	Format string `koanf:"format"` // json or console
	Caller bool   `koanf:"caller"`
}

// WindowDays resolves the login-nag time window to a day count and display
// label. Unknown values default to the weekly window; a misconfigured
// selector must degrade, not fail.
func (n *NagConfig) WindowDays() (int, string) {
	if n.LoginNagTimeWindow == "Month" {
		return 30, "month"
	}
	return 7, "week"
}
