// Transcodenag - Jellyfin Transcode Nag Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transcodenag

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order
// of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/transcodenag/config.yaml",
	"/etc/transcodenag/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with all defaults applied. The nag texts
// and timings mirror what the service has always shipped with.
func defaultConfig() *Config {
	return &Config{
		Jellyfin: JellyfinConfig{
			URL:                    "",
			APIKey:                 "",
			UserID:                 "",
			RealtimeEnabled:        true,
			SessionPollingInterval: 10 * time.Second,
		},
		Nag: NagConfig{
			PlaybackHeader: "Transcoding Detected",
			PlaybackMessage: "Your client is transcoding because it doesn't support the video format. " +
				"Consider using a client that supports direct play (like mpv, VLC, or Jellyfin Media Player) " +
				"to reduce server load and improve quality!",
			LoginHeader: "Transcoding Alert",
			LoginMessage: "You had {{transcodes}} format-related transcodes in the last {{timewindow}}. " +
				"A client that supports direct play would improve your playback quality.",
			MessageTimeout:     10 * time.Second,
			SettleDelay:        5 * time.Second,
			SessionSettleDelay: 2 * time.Second,
			LoginNagEnabled:    true,
			LoginNagThreshold:  5,
			LoginNagTimeWindow: "Week",
			IdleOpenThreshold:  10 * time.Minute,
			ReopenPollInterval: 30 * time.Second,
			ExcludedUserIDs:    nil,
			AlertReasons:       nil, // empty = built-in default reason set
			CreditQueueSize:    64,
			LogSends:           true,
		},
		Store: StoreConfig{
			DataDir: "/data/transcodenag",
		},
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    9712,
			Timeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load loads configuration with layered sources (highest priority wins):
// environment variables > config file > built-in defaults.
func Load() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: optional config file
	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: environment variables
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first existing config file path, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths defines which config paths are parsed as comma-separated
// slices when supplied through environment variables.
var sliceConfigPaths = []string{
	"nag.excluded_user_ids",
	"nag.alert_reasons",
}

// processSliceFields converts comma-separated strings to slices for known
// slice fields. Env vars arrive as plain strings; YAML values are already
// slices and pass through untouched.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		if _, ok := val.([]interface{}); ok {
			continue
		}

		str, ok := val.(string)
		if !ok {
			continue
		}

		var items []string
		for _, item := range strings.Split(str, ",") {
			if trimmed := strings.TrimSpace(item); trimmed != "" {
				items = append(items, trimmed)
			}
		}

		if err := k.Set(path, items); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envTransformFunc maps environment variable names to koanf config paths.
//
// Examples:
//   - JELLYFIN_URL -> jellyfin.url
//   - NAG_LOGIN_NAG_THRESHOLD -> nag.login_nag_threshold
//   - STORE_DATA_DIR -> store.data_dir
//   - LOG_LEVEL -> logging.level
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	// Shorthand names kept for operator convenience.
	aliases := map[string]string{
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
		"http_host":  "server.host",
		"http_port":  "server.port",
		"data_dir":   "store.data_dir",
	}
	if mapped, ok := aliases[key]; ok {
		return mapped
	}

	for _, section := range []string{"jellyfin", "nag", "store", "server", "logging"} {
		prefix := section + "_"
		if strings.HasPrefix(key, prefix) {
			return section + "." + strings.TrimPrefix(key, prefix)
		}
	}

	// Unrecognized variables are ignored rather than polluting the tree.
	return ""
}
