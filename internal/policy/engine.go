// Transcodenag - Jellyfin Transcode Nag Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transcodenag

package policy

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/transcodenag/internal/config"
	"github.com/tomtom215/transcodenag/internal/logging"
	"github.com/tomtom215/transcodenag/internal/metrics"
	"github.com/tomtom215/transcodenag/internal/models"
)

// creditLookbackDays is the history window consulted before recording an
// improvement credit. It matches the event log retention horizon.
const creditLookbackDays = 30

// EventLog is the slice of the store the engine needs. Satisfied by
// *store.EventStore; tests substitute an in-memory fake.
type EventLog interface {
	Append(event models.NagEvent)
	Status(userID string, windowDays int) models.UserNagStatus
}

// Notifier delivers a message to a session. Fire-and-forget: delivery
// confirmation is never consumed. Satisfied by the Jellyfin client.
type Notifier interface {
	SendMessage(ctx context.Context, sessionID, header, text string, timeout time.Duration) error
}

// Playback is the engine's view of one evaluated playback: identity plus the
// transcoding classification captured from the live session.
type Playback struct {
	SessionID string
	UserID    string
	UserName  string
	ItemID    string
	ItemName  string
	Client    string

	IsTranscoding bool
	IsVideoDirect bool
	Reasons       models.TranscodeReason
}

// Key identifies the playback for dedup purposes.
func (p Playback) Key() string {
	return p.SessionID + "_" + p.ItemID
}

// SessionOpen describes a session-start or idle-reopen trigger.
type SessionOpen struct {
	SessionID string
	UserID    string
	UserName  string
	Client    string
}

// Engine applies the nag policy to playback and session-open triggers. It is
// constructed once with an explicit configuration value; nothing is reached
// for through globals.
//
// Improvement credits are recorded through a bounded asynchronous job queue
// rather than detached goroutines, so completion is observable: tests (and
// shutdown) can wait for queued jobs deterministically.
type Engine struct {
	cfg      config.NagConfig
	events   EventLog
	notifier Notifier

	playbacks *PlaybackTracker
	excluded  map[string]struct{}

	// reasonNames is the configured nag-worthy set, with the default set
	// substituted when the configuration supplies none.
	reasonNames []string

	credits   chan Playback
	creditsWG sync.WaitGroup
	stopOnce  sync.Once
	stopChan  chan struct{}
	workerWG  sync.WaitGroup

	log zerolog.Logger
	now func() time.Time
}

// NewEngine creates a policy engine. Call Start before use so credit jobs
// are consumed, and Stop on shutdown.
func NewEngine(cfg config.NagConfig, events EventLog, notifier Notifier) *Engine {
	excluded := make(map[string]struct{}, len(cfg.ExcludedUserIDs))
	for _, id := range cfg.ExcludedUserIDs {
		excluded[id] = struct{}{}
	}

	reasonNames := cfg.AlertReasons
	if len(reasonNames) == 0 {
		reasonNames = models.DefaultNagReasonNames()
	}

	queueSize := cfg.CreditQueueSize
	if queueSize < 1 {
		queueSize = 64
	}

	return &Engine{
		cfg:         cfg,
		events:      events,
		notifier:    notifier,
		playbacks:   NewPlaybackTracker(),
		excluded:    excluded,
		reasonNames: reasonNames,
		credits:     make(chan Playback, queueSize),
		stopChan:    make(chan struct{}),
		log:         logging.With().Str("component", "policy").Logger(),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Playbacks exposes the dedup tracker for the session monitor, which owns
// playback lifecycle observation (stop detection, liveness pruning).
func (e *Engine) Playbacks() *PlaybackTracker {
	return e.playbacks
}

// Start launches the credit worker.
func (e *Engine) Start(ctx context.Context) error {
	e.workerWG.Add(1)
	go e.creditWorker(ctx)
	return nil
}

// Stop shuts down the credit worker. Queued jobs that have not started are
// abandoned; credits are an optimization, not a durability promise.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stopChan) })
	e.workerWG.Wait()
}

// HandlePlayback evaluates one playback's transcoding classification. The
// caller invokes it after the settling delay with freshly fetched live state,
// and again whenever the classification changes.
func (e *Engine) HandlePlayback(ctx context.Context, pb Playback) {
	if pb.UserID == "" || pb.ItemID == "" {
		return
	}

	// Direct video or an unclassified (bitrate-only) transcode is a good
	// playback: re-arm the dedup marker and consider a credit.
	if !pb.IsTranscoding || pb.IsVideoDirect || pb.Reasons == 0 {
		e.playbacks.Clear(pb.Key())
		e.enqueueCredit(pb)
		return
	}

	if !ShouldNag(pb.Reasons, e.reasonNames) {
		return
	}

	e.events.Append(models.NagEvent{
		UserID:    pb.UserID,
		UserName:  pb.UserName,
		ItemID:    pb.ItemID,
		ItemName:  pb.ItemName,
		Client:    pb.Client,
		Timestamp: e.now(),
		Reasons:   pb.Reasons,
		Kind:      models.EventBadTranscode,
	})

	if e.playbacks.IsNagged(pb.Key()) {
		metrics.NagsSuppressed.WithLabelValues("playback", "deduplicated").Inc()
		return
	}
	e.playbacks.MarkNagged(pb.Key())

	if e.isExcluded(pb.UserID) {
		metrics.NagsSuppressed.WithLabelValues("playback", "excluded").Inc()
		e.log.Info().Str("user_id", pb.UserID).Str("user", pb.UserName).Msg("Skipping nag for excluded user")
		return
	}

	e.send(ctx, "playback", pb.SessionID, e.cfg.PlaybackHeader, e.cfg.PlaybackMessage, pb.Reasons)
}

// HandlePlaybackStopped re-arms the dedup marker when a playback ends, so an
// unrelated later playback of the same item on the same session may nag
// again.
func (e *Engine) HandlePlaybackStopped(sessionID, itemID string) {
	e.playbacks.Clear(sessionID + "_" + itemID)
}

// HandleSessionOpen evaluates the login/open nag for a session that just
// started or transitioned from idle back to active.
func (e *Engine) HandleSessionOpen(ctx context.Context, so SessionOpen) {
	if !e.cfg.LoginNagEnabled {
		return
	}
	if so.SessionID == "" || so.UserID == "" {
		return
	}

	if e.isExcluded(so.UserID) {
		metrics.NagsSuppressed.WithLabelValues("login", "excluded").Inc()
		e.log.Info().Str("user_id", so.UserID).Msg("Skipping login nag for excluded user")
		return
	}

	days, windowLabel := e.cfg.WindowDays()
	status := e.events.Status(so.UserID, days)

	// Rate limit: once per configured window.
	if status.NaggedRecently {
		metrics.NagsSuppressed.WithLabelValues("login", "rate_limited").Inc()
		return
	}

	// Demonstrated improvement since the last regression suppresses the nag
	// until the next bad transcode.
	if status.HasImprovementCredit {
		metrics.NagsSuppressed.WithLabelValues("login", "credit").Inc()
		return
	}

	if status.BadTranscodeCount < e.cfg.LoginNagThreshold {
		metrics.NagsSuppressed.WithLabelValues("login", "below_threshold").Inc()
		return
	}

	message := renderLoginMessage(e.cfg.LoginMessage, status.BadTranscodeCount, windowLabel)

	if e.cfg.LogSends {
		e.log.Info().
			Str("user_id", so.UserID).
			Int("bad_transcodes", status.BadTranscodeCount).
			Str("window", windowLabel).
			Msg("Sending login/open nag")
	}

	e.send(ctx, "login", so.SessionID, e.cfg.LoginHeader, message, 0)

	// Persist the rate-limit marker regardless of delivery outcome: the
	// decision is what is being recorded, and delivery is best effort.
	e.events.Append(models.NagEvent{
		UserID:    so.UserID,
		UserName:  so.UserName,
		Client:    so.Client,
		Timestamp: e.now(),
		Kind:      models.EventNagSent,
	})
}

// WaitCredits blocks until every queued credit job has been processed.
// Intended for tests and shutdown sequencing.
func (e *Engine) WaitCredits() {
	e.creditsWG.Wait()
}

// send delivers a nag and records the outcome. Transport failures are logged
// and swallowed; a failed send must not block future triggers.
func (e *Engine) send(ctx context.Context, kind, sessionID, header, text string, reasons models.TranscodeReason) {
	if err := e.notifier.SendMessage(ctx, sessionID, header, text, e.cfg.MessageTimeout); err != nil {
		metrics.NagSendErrors.WithLabelValues(kind).Inc()
		e.log.Error().Err(err).Str("session_id", sessionID).Str("kind", kind).Msg("Failed to send nag message")
		return
	}

	metrics.NagsSent.WithLabelValues(kind).Inc()
	if e.cfg.LogSends && kind == "playback" {
		e.log.Info().
			Str("session_id", sessionID).
			Stringer("reasons", reasons).
			Msg("Sent playback nag")
	}
}

func (e *Engine) isExcluded(userID string) bool {
	_, ok := e.excluded[userID]
	return ok
}

// enqueueCredit schedules an asynchronous improvement-credit check. The queue
// is bounded; under pressure jobs are dropped and counted rather than piling
// up goroutines.
func (e *Engine) enqueueCredit(pb Playback) {
	e.creditsWG.Add(1)
	select {
	case e.credits <- pb:
	default:
		e.creditsWG.Done()
		metrics.CreditJobsDropped.Inc()
		e.log.Debug().Str("user_id", pb.UserID).Msg("Credit queue full, dropping job")
	}
}

// creditWorker consumes credit jobs until Stop or context cancellation.
func (e *Engine) creditWorker(ctx context.Context) {
	defer e.workerWG.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopChan:
			return
		case pb := <-e.credits:
			e.recordImprovementCredit(pb)
			e.creditsWG.Done()
		}
	}
}

// recordImprovementCredit appends a credit if, and only if, the user has a
// prior bad transcode and no valid credit already. Users who always direct
// play generate no events at all, keeping the log from growing for them.
func (e *Engine) recordImprovementCredit(pb Playback) {
	status := e.events.Status(pb.UserID, creditLookbackDays)

	if status.LastBadTranscodeUTC.IsZero() {
		return
	}
	if status.HasImprovementCredit {
		return
	}

	e.events.Append(models.NagEvent{
		UserID:    pb.UserID,
		UserName:  pb.UserName,
		ItemID:    pb.ItemID,
		ItemName:  pb.ItemName,
		Client:    pb.Client,
		Timestamp: e.now(),
		Kind:      models.EventImprovementCredit,
	})
}

// renderLoginMessage substitutes the template placeholders.
func renderLoginMessage(template string, count int, windowLabel string) string {
	message := strings.ReplaceAll(template, "{{transcodes}}", strconv.Itoa(count))
	return strings.ReplaceAll(message, "{{timewindow}}", windowLabel)
}
