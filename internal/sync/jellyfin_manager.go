// Transcodenag - Jellyfin Transcode Nag Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transcodenag

/*
jellyfin_manager.go - Jellyfin Integration Manager

This file wires the Jellyfin client, the optional WebSocket feed, and the
session monitor into one lifecycle: startup connectivity check, feed
subscription, and graceful shutdown.
*/

package sync

import (
	"context"

	"github.com/tomtom215/transcodenag/internal/config"
	"github.com/tomtom215/transcodenag/internal/logging"
	"github.com/tomtom215/transcodenag/internal/policy"
)

// JellyfinManager orchestrates Jellyfin integration services
type JellyfinManager struct {
	client   JellyfinClientInterface
	wsClient *JellyfinWebSocketClient
	monitor  *SessionMonitor
	cfg      config.JellyfinConfig
}

// NewJellyfinManager creates a new Jellyfin integration manager
//
// The client is injected rather than constructed here because the caller
// also hands it to the policy engine as the notification transport. Use
// NewJellyfinCircuitBreakerClient to shield the monitor from a flapping or
// unavailable Jellyfin API.
func NewJellyfinManager(cfg config.JellyfinConfig, nag config.NagConfig, client JellyfinClientInterface, engine *policy.Engine) *JellyfinManager {
	return &JellyfinManager{
		client:  client,
		monitor: NewSessionMonitor(client, engine, cfg, nag),
		cfg:     cfg,
	}
}

// Start initializes and starts all enabled Jellyfin services
func (m *JellyfinManager) Start(ctx context.Context) error {
	if m == nil {
		return nil
	}

	logging.Info().Msg("[jellyfin] Starting Jellyfin integration...")

	// Test connection
	if err := m.client.Ping(ctx); err != nil {
		logging.Info().Err(err).Msg("WARNING: Ping failed")
		// Don't fail startup - server may become available later
	} else {
		info, err := m.client.GetSystemInfo(ctx)
		if err != nil {
			logging.Info().Err(err).Msg("WARNING: Failed to get system info")
		} else {
			logging.Info().Str("server", info.ServerName).Str("version", info.Version).Msg("Connected")
		}
	}

	// Start WebSocket client if enabled
	if m.cfg.RealtimeEnabled {
		if err := m.startWebSocket(ctx); err != nil {
			logging.Info().Err(err).Msg("WARNING: Failed to start WebSocket")
		}
	}

	// The monitor's poll loop always runs; it drives settling re-evaluation
	// even when the WebSocket feed is active.
	if err := m.monitor.Start(ctx); err != nil {
		return err
	}

	logging.Info().Msg("[jellyfin] Jellyfin integration started")
	return nil
}

// startWebSocket initializes and starts the WebSocket client
func (m *JellyfinManager) startWebSocket(ctx context.Context) error {
	wsURL, err := m.client.GetWebSocketURL()
	if err != nil {
		return err
	}

	m.wsClient = NewJellyfinWebSocketClient(wsURL, m.cfg.APIKey)
	m.wsClient.SetCallbacks(
		m.monitor.HandleSessionsUpdate,
		m.handlePlayStateChange,
	)

	return m.wsClient.Connect(ctx)
}

// handlePlayStateChange processes playback state changes
func (m *JellyfinManager) handlePlayStateChange(sessionID, command string) {
	logging.Debug().Str("session_id", sessionID).Str("command", command).Msg("Playstate change")
}

// Stop gracefully stops all Jellyfin services
func (m *JellyfinManager) Stop() error {
	if m == nil {
		return nil
	}

	logging.Info().Msg("[jellyfin] Stopping Jellyfin integration...")

	if m.wsClient != nil {
		if err := m.wsClient.Close(); err != nil {
			logging.Info().Err(err).Msg("Error closing WebSocket")
		}
	}

	m.monitor.Stop()

	logging.Info().Msg("[jellyfin] Jellyfin integration stopped")
	return nil
}
