// Transcodenag - Jellyfin Transcode Nag Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transcodenag

// Package main is the entry point for the Transcodenag server application.
//
// Transcodenag is a self-hosted sidecar service for Jellyfin that detects
// playbacks transcoding because of format or codec incompatibility, records
// per-user history in a durable event log, and nudges offending users with
// on-screen messages: immediately during a bad playback, and at session open
// once a rate-limited threshold is crossed.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: Load settings from environment variables and config files (Koanf v2)
//  2. Event store: Open the JSON event log with an OS-level directory lock
//  3. Jellyfin client: REST client wrapped in a circuit breaker
//  4. Policy engine: Nag decisions, dedup, credits, rate limiting
//  5. Session monitor: REST polling plus optional WebSocket session feed
//  6. HTTP server: Health probes, Prometheus metrics, read-only status views
//
// All long-running components run under a suture supervisor tree.
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest priority wins):
//   - Environment variables
//   - Config file (config.yaml, or CONFIG_PATH)
//   - Built-in defaults
//
// # Signal Handling
//
// The server handles graceful shutdown on SIGINT and SIGTERM:
//   - Stops the session monitor and WebSocket feed
//   - Drains the improvement-credit queue
//   - Persists and unlocks the event log
//
// # Example Usage
//
//	export JELLYFIN_URL=http://localhost:8096
//	export JELLYFIN_API_KEY=your-jellyfin-api-key
//	export DATA_DIR=/data/transcodenag
//	./transcodenag
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/transcodenag/internal/api"
	"github.com/tomtom215/transcodenag/internal/config"
	"github.com/tomtom215/transcodenag/internal/logging"
	"github.com/tomtom215/transcodenag/internal/policy"
	"github.com/tomtom215/transcodenag/internal/store"
	"github.com/tomtom215/transcodenag/internal/supervisor"
	"github.com/tomtom215/transcodenag/internal/supervisor/services"
	"github.com/tomtom215/transcodenag/internal/sync"
)

func main() {
	// Load configuration first to get logging settings
	cfg, err := config.Load()
	if err != nil {
		// Use default logger for config errors (config not yet available)
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize zerolog with configuration
	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().Msg("Starting Transcodenag with supervisor tree")
	logging.Info().
		Str("jellyfin_url", cfg.Jellyfin.URL).
		Bool("realtime", cfg.Jellyfin.RealtimeEnabled).
		Str("data_dir", cfg.Store.DataDir).
		Bool("login_nag", cfg.Nag.LoginNagEnabled).
		Msg("Configuration loaded")

	// Open the event store. The directory lock guards against a second
	// instance corrupting the log, so failure here is fatal.
	eventStore, err := store.New(cfg.Store.DataDir)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open event store")
	}
	defer func() {
		if err := eventStore.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing event store")
		}
	}()
	logging.Info().Str("data_dir", cfg.Store.DataDir).Msg("Event store opened")

	// Jellyfin client with circuit breaker; also the notification transport.
	client := sync.NewJellyfinCircuitBreakerClient(sync.JellyfinCircuitBreakerConfig{
		BaseURL: cfg.Jellyfin.URL,
		APIKey:  cfg.Jellyfin.APIKey,
		UserID:  cfg.Jellyfin.UserID,
	})

	engine := policy.NewEngine(cfg.Nag, eventStore, client)
	manager := sync.NewJellyfinManager(cfg.Jellyfin, cfg.Nag, client, engine)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Create structured logger for supervisor using our slog adapter
	// This bridges zerolog to slog for sutureslog compatibility
	slogLogger := logging.NewSlogLogger()

	tree, err := supervisor.NewSupervisorTree(slogLogger, supervisor.DefaultTreeConfig())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	// The engine must outlive the manager that feeds it, so it joins the same
	// messaging layer; suture stops children in reverse order of addition.
	tree.AddMessagingService(services.NewEngineService(engine))
	tree.AddMessagingService(services.NewJellyfinService(manager))

	// Ops HTTP server: healthz, metrics, per-user status views.
	windowDays, _ := cfg.Nag.WindowDays()
	router := api.NewRouter(eventStore, windowDays)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router.Setup(),
		ReadHeaderTimeout: cfg.Server.Timeout,
	}
	tree.AddAPIService(services.NewHTTPServerService(httpServer, cfg.Server.Timeout))
	logging.Info().Str("addr", httpServer.Addr).Msg("Ops HTTP server configured")

	// Set up signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	// Wait for supervisor to finish (either from signal or error)
	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	// Wait for the error channel to close (supervisor finished)
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	// Report any services that failed to stop within timeout
	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	logging.Info().Msg("Application stopped gracefully")
}
