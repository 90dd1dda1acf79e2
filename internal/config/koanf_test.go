// Transcodenag - Jellyfin Transcode Nag Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transcodenag

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestDefaultConfig verifies that defaultConfig() returns proper defaults
func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	// Jellyfin defaults (empty - required fields)
	if cfg.Jellyfin.URL != "" {
		t.Errorf("Jellyfin.URL should be empty by default, got %q", cfg.Jellyfin.URL)
	}
	if cfg.Jellyfin.APIKey != "" {
		t.Errorf("Jellyfin.APIKey should be empty by default, got %q", cfg.Jellyfin.APIKey)
	}
	if cfg.Jellyfin.RealtimeEnabled != true {
		t.Errorf("Jellyfin.RealtimeEnabled should be true by default")
	}
	if cfg.Jellyfin.SessionPollingInterval != 10*time.Second {
		t.Errorf("Jellyfin.SessionPollingInterval = %v, want 10s", cfg.Jellyfin.SessionPollingInterval)
	}

	// Nag defaults
	if cfg.Nag.PlaybackHeader != "Transcoding Detected" {
		t.Errorf("Nag.PlaybackHeader = %q, want Transcoding Detected", cfg.Nag.PlaybackHeader)
	}
	if cfg.Nag.LoginHeader != "Transcoding Alert" {
		t.Errorf("Nag.LoginHeader = %q, want Transcoding Alert", cfg.Nag.LoginHeader)
	}
	if cfg.Nag.MessageTimeout != 10*time.Second {
		t.Errorf("Nag.MessageTimeout = %v, want 10s", cfg.Nag.MessageTimeout)
	}
	if cfg.Nag.SettleDelay != 5*time.Second {
		t.Errorf("Nag.SettleDelay = %v, want 5s", cfg.Nag.SettleDelay)
	}
	if cfg.Nag.SessionSettleDelay != 2*time.Second {
		t.Errorf("Nag.SessionSettleDelay = %v, want 2s", cfg.Nag.SessionSettleDelay)
	}
	if cfg.Nag.LoginNagEnabled != true {
		t.Errorf("Nag.LoginNagEnabled should be true by default")
	}
	if cfg.Nag.LoginNagThreshold != 5 {
		t.Errorf("Nag.LoginNagThreshold = %d, want 5", cfg.Nag.LoginNagThreshold)
	}
	if cfg.Nag.LoginNagTimeWindow != "Week" {
		t.Errorf("Nag.LoginNagTimeWindow = %q, want Week", cfg.Nag.LoginNagTimeWindow)
	}
	if cfg.Nag.IdleOpenThreshold != 10*time.Minute {
		t.Errorf("Nag.IdleOpenThreshold = %v, want 10m", cfg.Nag.IdleOpenThreshold)
	}
	if cfg.Nag.ReopenPollInterval != 30*time.Second {
		t.Errorf("Nag.ReopenPollInterval = %v, want 30s", cfg.Nag.ReopenPollInterval)
	}
	if cfg.Nag.AlertReasons != nil {
		t.Errorf("Nag.AlertReasons = %v, want nil (built-in default set)", cfg.Nag.AlertReasons)
	}
	if cfg.Nag.CreditQueueSize != 64 {
		t.Errorf("Nag.CreditQueueSize = %d, want 64", cfg.Nag.CreditQueueSize)
	}

	// Store defaults
	if cfg.Store.DataDir != "/data/transcodenag" {
		t.Errorf("Store.DataDir = %q, want /data/transcodenag", cfg.Store.DataDir)
	}

	// Server defaults
	if cfg.Server.Port != 9712 {
		t.Errorf("Server.Port = %d, want 9712", cfg.Server.Port)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Server.Host = %q, want 0.0.0.0", cfg.Server.Host)
	}
	if cfg.Server.Timeout != 30*time.Second {
		t.Errorf("Server.Timeout = %v, want 30s", cfg.Server.Timeout)
	}

	// Logging defaults
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want info", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want json", cfg.Logging.Format)
	}
}

// TestEnvTransformFunc verifies environment variable name transformations
func TestEnvTransformFunc(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		// Jellyfin
		{"JELLYFIN_URL", "jellyfin.url"},
		{"JELLYFIN_API_KEY", "jellyfin.api_key"},
		{"JELLYFIN_USER_ID", "jellyfin.user_id"},
		{"JELLYFIN_REALTIME_ENABLED", "jellyfin.realtime_enabled"},
		{"JELLYFIN_SESSION_POLLING_INTERVAL", "jellyfin.session_polling_interval"},

		// Nag
		{"NAG_PLAYBACK_HEADER", "nag.playback_header"},
		{"NAG_LOGIN_NAG_ENABLED", "nag.login_nag_enabled"},
		{"NAG_LOGIN_NAG_THRESHOLD", "nag.login_nag_threshold"},
		{"NAG_LOGIN_NAG_TIME_WINDOW", "nag.login_nag_time_window"},
		{"NAG_EXCLUDED_USER_IDS", "nag.excluded_user_ids"},
		{"NAG_ALERT_REASONS", "nag.alert_reasons"},
		{"NAG_SETTLE_DELAY", "nag.settle_delay"},

		// Store and server
		{"STORE_DATA_DIR", "store.data_dir"},
		{"DATA_DIR", "store.data_dir"},
		{"SERVER_PORT", "server.port"},
		{"HTTP_PORT", "server.port"},
		{"HTTP_HOST", "server.host"},

		// Logging
		{"LOG_LEVEL", "logging.level"},
		{"LOG_FORMAT", "logging.format"},
		{"LOGGING_LEVEL", "logging.level"},

		// Unknown (should return empty)
		{"RANDOM_VAR", ""},
		{"PATH", ""},
		{"HOME", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := envTransformFunc(tt.input)
			if result != tt.expected {
				t.Errorf("envTransformFunc(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

// TestFindConfigFile verifies config file discovery
func TestFindConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	t.Chdir(tmpDir)

	t.Run("no config file exists", func(t *testing.T) {
		os.Unsetenv(ConfigPathEnvVar)
		result := findConfigFile()
		if result != "" {
			t.Errorf("findConfigFile() = %q, want empty string", result)
		}
	})

	t.Run("config.yaml exists", func(t *testing.T) {
		configPath := filepath.Join(tmpDir, "config.yaml")
		if err := os.WriteFile(configPath, []byte("test: true"), 0644); err != nil {
			t.Fatalf("Failed to create config file: %v", err)
		}
		defer os.Remove(configPath)

		os.Unsetenv(ConfigPathEnvVar)
		result := findConfigFile()
		if result != "config.yaml" {
			t.Errorf("findConfigFile() = %q, want config.yaml", result)
		}
	})

	t.Run("CONFIG_PATH env var takes precedence", func(t *testing.T) {
		customPath := filepath.Join(tmpDir, "custom_config.yaml")
		if err := os.WriteFile(customPath, []byte("test: true"), 0644); err != nil {
			t.Fatalf("Failed to create custom config file: %v", err)
		}
		defer os.Remove(customPath)

		t.Setenv(ConfigPathEnvVar, customPath)

		result := findConfigFile()
		if result != customPath {
			t.Errorf("findConfigFile() = %q, want %q", result, customPath)
		}
	})

	t.Run("CONFIG_PATH env var with non-existent file", func(t *testing.T) {
		t.Setenv(ConfigPathEnvVar, "/non/existent/config.yaml")

		result := findConfigFile()
		if result != "" {
			t.Errorf("findConfigFile() = %q, want empty string", result)
		}
	})
}

// TestLoadFromEnv tests loading configuration from environment variables
func TestLoadFromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	os.Clearenv()

	// Required variables
	os.Setenv("JELLYFIN_URL", "http://jellyfin.local:8096")
	os.Setenv("JELLYFIN_API_KEY", "test_api_key_12345")

	// Overrides on top of defaults
	os.Setenv("HTTP_PORT", "9000")
	os.Setenv("LOG_LEVEL", "debug")
	os.Setenv("NAG_LOGIN_NAG_THRESHOLD", "3")
	os.Setenv("NAG_LOGIN_NAG_TIME_WINDOW", "Month")
	os.Setenv("NAG_SETTLE_DELAY", "8s")
	os.Setenv("NAG_EXCLUDED_USER_IDS", "user-a, user-b,user-c")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Jellyfin.URL != "http://jellyfin.local:8096" {
		t.Errorf("Jellyfin.URL = %q, want http://jellyfin.local:8096", cfg.Jellyfin.URL)
	}
	if cfg.Jellyfin.APIKey != "test_api_key_12345" {
		t.Errorf("Jellyfin.APIKey = %q, want test_api_key_12345", cfg.Jellyfin.APIKey)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.Nag.LoginNagThreshold != 3 {
		t.Errorf("Nag.LoginNagThreshold = %d, want 3", cfg.Nag.LoginNagThreshold)
	}
	if cfg.Nag.LoginNagTimeWindow != "Month" {
		t.Errorf("Nag.LoginNagTimeWindow = %q, want Month", cfg.Nag.LoginNagTimeWindow)
	}
	if cfg.Nag.SettleDelay != 8*time.Second {
		t.Errorf("Nag.SettleDelay = %v, want 8s", cfg.Nag.SettleDelay)
	}

	// Comma-separated env value becomes a trimmed slice
	want := []string{"user-a", "user-b", "user-c"}
	if len(cfg.Nag.ExcludedUserIDs) != len(want) {
		t.Fatalf("Nag.ExcludedUserIDs = %v, want %v", cfg.Nag.ExcludedUserIDs, want)
	}
	for i, id := range want {
		if cfg.Nag.ExcludedUserIDs[i] != id {
			t.Errorf("Nag.ExcludedUserIDs[%d] = %q, want %q", i, cfg.Nag.ExcludedUserIDs[i], id)
		}
	}

	// Defaults survive where no override was set
	if cfg.Nag.PlaybackHeader != "Transcoding Detected" {
		t.Errorf("Nag.PlaybackHeader = %q, want default", cfg.Nag.PlaybackHeader)
	}
}

// TestLoadFromFile tests the YAML layer and env-over-file priority
func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	t.Chdir(tmpDir)
	os.Clearenv()

	yamlContent := `
jellyfin:
  url: http://from-file:8096
  api_key: file_key
nag:
  login_nag_threshold: 10
  excluded_user_ids:
    - yaml-user
server:
  port: 8080
`
	if err := os.WriteFile(filepath.Join(tmpDir, "config.yaml"), []byte(yamlContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	// Env beats file
	os.Setenv("SERVER_PORT", "9999")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Jellyfin.URL != "http://from-file:8096" {
		t.Errorf("Jellyfin.URL = %q, want http://from-file:8096", cfg.Jellyfin.URL)
	}
	if cfg.Nag.LoginNagThreshold != 10 {
		t.Errorf("Nag.LoginNagThreshold = %d, want 10", cfg.Nag.LoginNagThreshold)
	}
	if len(cfg.Nag.ExcludedUserIDs) != 1 || cfg.Nag.ExcludedUserIDs[0] != "yaml-user" {
		t.Errorf("Nag.ExcludedUserIDs = %v, want [yaml-user]", cfg.Nag.ExcludedUserIDs)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("Server.Port = %d, want 9999 (env over file)", cfg.Server.Port)
	}
}

// TestLoadValidationFailure verifies Load surfaces validation errors
func TestLoadValidationFailure(t *testing.T) {
	t.Chdir(t.TempDir())
	os.Clearenv()

	// Missing JELLYFIN_URL / API key
	if _, err := Load(); err == nil {
		t.Error("Load() with no Jellyfin settings should fail validation")
	}
}
