// Transcodenag - Jellyfin Transcode Nag Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transcodenag

// Package metrics provides Prometheus instrumentation for Transcodenag:
// event log writes and failures, nag delivery, session polling, and the
// Jellyfin API circuit breaker.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Event Log Metrics
	EventsAppended = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nag_events_appended_total",
			Help: "Total number of events appended to the nag event log",
		},
		[]string{"kind"}, // "bad_transcode", "improvement_credit", "nag_sent"
	)

	EventsPruned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nag_events_pruned_total",
			Help: "Total number of events removed by retention pruning",
		},
	)

	StoreLoadErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nag_store_load_errors_total",
			Help: "Total number of event log load failures (degraded to empty log)",
		},
	)

	StoreSaveErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nag_store_save_errors_total",
			Help: "Total number of event log persistence failures (append kept in memory)",
		},
	)

	// Notification Metrics
	NagsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nags_sent_total",
			Help: "Total number of nag messages delivered to sessions",
		},
		[]string{"kind"}, // "playback", "login"
	)

	NagSendErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nag_send_errors_total",
			Help: "Total number of failed nag message deliveries",
		},
		[]string{"kind"},
	)

	NagsSuppressed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nags_suppressed_total",
			Help: "Total number of nags withheld by policy",
		},
		[]string{"kind", "cause"}, // cause: "excluded", "rate_limited", "credit", "below_threshold", "deduplicated"
	)

	CreditJobsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nag_credit_jobs_dropped_total",
			Help: "Total number of improvement-credit jobs dropped because the queue was full",
		},
	)

	// Session Monitoring Metrics
	SessionPollDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "jellyfin_session_poll_duration_seconds",
			Help:    "Duration of Jellyfin session poll cycles in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	SessionPollErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "jellyfin_session_poll_errors_total",
			Help: "Total number of failed Jellyfin session poll cycles",
		},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through the circuit breaker by result",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerConsecutiveFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_consecutive_failures",
			Help: "Current number of consecutive circuit breaker failures",
		},
		[]string{"name"},
	)
)
