// Transcodenag - Jellyfin Transcode Nag Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transcodenag

// Package api provides the ops HTTP surface: health probes, Prometheus
// metrics, and a read-only debugging view of per-user nag state.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/transcodenag/internal/logging"
	"github.com/tomtom215/transcodenag/internal/models"
)

// StatusSource provides the projected nag state for one user.
// Satisfied by *store.EventStore.
type StatusSource interface {
	Status(userID string, windowDays int) models.UserNagStatus
	QueryUser(userID string, windowDays int) []models.NagEvent
}

// Router holds the handler dependencies for the ops endpoints.
type Router struct {
	statuses   StatusSource
	windowDays int
}

// NewRouter creates the ops router. windowDays is the configured login-nag
// window, so the status view reflects the same counts policy decisions use.
func NewRouter(statuses StatusSource, windowDays int) *Router {
	return &Router{
		statuses:   statuses,
		windowDays: windowDays,
	}
}

// Setup configures all HTTP routes.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", router.handleHealthz)
	r.Handle("/metrics", promhttp.Handler())

	// Read-only debugging view. The service holds no user secrets; the event
	// log contents are the most sensitive data exposed here.
	r.Route("/api/v1/users/{userID}", func(r chi.Router) {
		r.Get("/status", router.handleUserStatus)
		r.Get("/events", router.handleUserEvents)
	})

	return r
}

// handleHealthz reports liveness. The process is healthy as long as it can
// serve; Jellyfin reachability is visible through the circuit breaker metrics
// rather than failing the probe.
func (router *Router) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleUserStatus returns the projected nag status for a user.
func (router *Router) handleUserStatus(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing user id"})
		return
	}

	status := router.statuses.Status(userID, router.windowDays)
	writeJSON(w, http.StatusOK, status)
}

// handleUserEvents returns the user's retained events, most recent first.
func (router *Router) handleUserEvents(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing user id"})
		return
	}

	events := router.statuses.QueryUser(userID, router.windowDays)
	if events == nil {
		events = []models.NagEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error().Err(err).Msg("Failed to encode response")
	}
}
