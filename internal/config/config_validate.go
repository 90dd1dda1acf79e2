// Transcodenag - Jellyfin Transcode Nag Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transcodenag

package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Validate checks the configuration for errors that would prevent the
// service from operating. Soft misconfiguration (unknown reason names, odd
// window labels) is deliberately not validated here: those degrade at the
// point of use instead of failing startup.
func (c *Config) Validate() error {
	validators := []func() error{
		c.validateJellyfin,
		c.validateNag,
		c.validateStore,
		c.validateServer,
	}

	for _, validate := range validators {
		if err := validate(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateJellyfin() error {
	if c.Jellyfin.URL == "" {
		return fmt.Errorf("jellyfin.url is required")
	}

	parsed, err := url.Parse(c.Jellyfin.URL)
	if err != nil {
		return fmt.Errorf("jellyfin.url is not a valid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("jellyfin.url must use http or https, got %q", parsed.Scheme)
	}

	if strings.TrimSpace(c.Jellyfin.APIKey) == "" {
		return fmt.Errorf("jellyfin.api_key is required")
	}

	if c.Jellyfin.SessionPollingInterval < time.Second {
		return fmt.Errorf("jellyfin.session_polling_interval must be at least 1s, got %s",
			c.Jellyfin.SessionPollingInterval)
	}

	return nil
}

func (c *Config) validateNag() error {
	if c.Nag.LoginNagThreshold < 1 {
		return fmt.Errorf("nag.login_nag_threshold must be at least 1, got %d", c.Nag.LoginNagThreshold)
	}
	if c.Nag.SettleDelay < 0 {
		return fmt.Errorf("nag.settle_delay must not be negative, got %s", c.Nag.SettleDelay)
	}
	if c.Nag.MessageTimeout <= 0 {
		return fmt.Errorf("nag.message_timeout must be positive, got %s", c.Nag.MessageTimeout)
	}
	if c.Nag.CreditQueueSize < 1 {
		return fmt.Errorf("nag.credit_queue_size must be at least 1, got %d", c.Nag.CreditQueueSize)
	}
	return nil
}

func (c *Config) validateStore() error {
	if c.Store.DataDir == "" {
		return fmt.Errorf("store.data_dir is required")
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	return nil
}
