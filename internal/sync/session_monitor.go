// Transcodenag - Jellyfin Transcode Nag Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transcodenag

/*
session_monitor.go - Jellyfin Session Monitor

This file implements the session observation pipeline: it watches live
Jellyfin sessions (REST polling, optionally supplemented by the WebSocket
feed), waits out the transcode-negotiation settling window, and hands
settled playbacks and session-open events to the policy engine.
*/

package sync

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/transcodenag/internal/config"
	"github.com/tomtom215/transcodenag/internal/logging"
	"github.com/tomtom215/transcodenag/internal/metrics"
	"github.com/tomtom215/transcodenag/internal/models"
	"github.com/tomtom215/transcodenag/internal/policy"
)

// playbackState is the last classification evaluated for one playback key.
// Re-evaluation happens only when the classification changes, not on every
// poll, so a steady transcode produces one bad-transcode event rather than
// one per poll cycle.
type playbackState struct {
	evaluated     bool
	isTranscoding bool
	isVideoDirect bool
	reasons       models.TranscodeReason
}

func (ps playbackState) classificationEquals(pb policy.Playback) bool {
	return ps.isTranscoding == pb.IsTranscoding &&
		ps.isVideoDirect == pb.IsVideoDirect &&
		ps.reasons == pb.Reasons
}

// SessionMonitor observes Jellyfin sessions and drives the policy engine.
//
// Three observation channels feed the same evaluation path:
//   - the REST poll loop (always on, the source of truth)
//   - the WebSocket session feed (optional, lower latency)
//   - the reopen scan loop (activity timestamps, for idle-to-active opens)
type SessionMonitor struct {
	client JellyfinClientInterface
	engine *policy.Engine

	pollInterval       time.Duration
	settleDelay        time.Duration
	sessionSettle      time.Duration
	idleOpenThreshold  time.Duration
	reopenPollInterval time.Duration

	mu        sync.Mutex
	playbacks map[string]*playbackState // playback key -> last classification
	sessions  map[string]struct{}       // session IDs already greeted

	activity *policy.ActivityTracker

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	log zerolog.Logger
}

// NewSessionMonitor creates a session monitor wired to a client and engine.
func NewSessionMonitor(client JellyfinClientInterface, engine *policy.Engine, jf config.JellyfinConfig, nag config.NagConfig) *SessionMonitor {
	pollInterval := jf.SessionPollingInterval
	if pollInterval <= 0 {
		pollInterval = 10 * time.Second
	}
	reopenInterval := nag.ReopenPollInterval
	if reopenInterval <= 0 {
		reopenInterval = 30 * time.Second
	}

	return &SessionMonitor{
		client:             client,
		engine:             engine,
		pollInterval:       pollInterval,
		settleDelay:        nag.SettleDelay,
		sessionSettle:      nag.SessionSettleDelay,
		idleOpenThreshold:  nag.IdleOpenThreshold,
		reopenPollInterval: reopenInterval,
		playbacks:          make(map[string]*playbackState),
		sessions:           make(map[string]struct{}),
		activity:           policy.NewActivityTracker(),
		stopChan:           make(chan struct{}),
		log:                logging.With().Str("component", "session-monitor").Logger(),
	}
}

// Start launches the poll and reopen-scan loops.
func (m *SessionMonitor) Start(ctx context.Context) error {
	m.wg.Add(2)
	go m.pollLoop(ctx)
	go m.reopenLoop(ctx)
	return nil
}

// Stop shuts down the loops and waits for in-flight evaluations.
func (m *SessionMonitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopChan) })
	m.wg.Wait()
}

// HandleSessionsUpdate is the WebSocket feed entry point: apply the same
// evaluation pipeline to a pushed session snapshot.
func (m *SessionMonitor) HandleSessionsUpdate(sessions []models.JellyfinSession) {
	m.processSessions(context.Background(), sessions)
}

// pollLoop fetches live sessions on the configured interval.
func (m *SessionMonitor) pollLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	// Prime immediately so startup does not wait a full interval.
	m.pollOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopChan:
			return
		case <-ticker.C:
			m.pollOnce(ctx)
		}
	}
}

func (m *SessionMonitor) pollOnce(ctx context.Context) {
	start := time.Now()
	sessions, err := m.client.GetSessions(ctx)
	metrics.SessionPollDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.SessionPollErrors.Inc()
		m.log.Warn().Err(err).Msg("Session poll failed")
		return
	}

	m.processSessions(ctx, sessions)
}

// processSessions runs one evaluation pass over a session snapshot: greet new
// sessions, schedule settling for new playbacks, re-evaluate classification
// changes, and release state for sessions and playbacks that ended.
func (m *SessionMonitor) processSessions(ctx context.Context, sessions []models.JellyfinSession) {
	liveSessions := make(map[string]struct{}, len(sessions))
	livePlaybacks := make(map[string]struct{}, len(sessions))

	for i := range sessions {
		session := &sessions[i]
		if session.ID == "" || session.UserID == "" {
			continue
		}
		liveSessions[session.ID] = struct{}{}

		m.observeSession(ctx, session)

		if !session.IsActive() {
			continue
		}
		livePlaybacks[session.PlaybackKey()] = struct{}{}
		m.observePlayback(ctx, session)
	}

	m.releaseEnded(liveSessions, livePlaybacks)
}

// observeSession greets sessions seen for the first time. The settle delay
// lets the login handshake finish before the open nag fires.
func (m *SessionMonitor) observeSession(ctx context.Context, session *models.JellyfinSession) {
	m.mu.Lock()
	if _, seen := m.sessions[session.ID]; seen {
		m.mu.Unlock()
		return
	}
	m.sessions[session.ID] = struct{}{}
	m.mu.Unlock()

	open := policy.SessionOpen{
		SessionID: session.ID,
		UserID:    session.UserID,
		UserName:  session.UserName,
		Client:    session.Client,
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if !m.sleep(ctx, m.sessionSettle) {
			return
		}
		m.engine.HandleSessionOpen(ctx, open)
	}()
}

// observePlayback schedules first evaluation for new playbacks and
// re-evaluates immediately when an already-settled classification changes.
func (m *SessionMonitor) observePlayback(ctx context.Context, session *models.JellyfinSession) {
	key := session.PlaybackKey()
	pb := buildPlayback(session)

	m.mu.Lock()
	state, known := m.playbacks[key]
	if !known {
		m.playbacks[key] = &playbackState{}
		m.mu.Unlock()
		m.scheduleSettledEvaluation(ctx, key)
		return
	}
	if !state.evaluated || state.classificationEquals(pb) {
		m.mu.Unlock()
		return
	}
	state.isTranscoding = pb.IsTranscoding
	state.isVideoDirect = pb.IsVideoDirect
	state.reasons = pb.Reasons
	m.mu.Unlock()

	m.log.Debug().Str("playback", key).Stringer("reasons", pb.Reasons).Msg("Playback classification changed")
	m.engine.HandlePlayback(ctx, pb)
}

// scheduleSettledEvaluation waits out the settling window, re-fetches live
// state, and runs the first classification of a playback. The re-fetch
// matters: the snapshot that introduced the playback predates transcode
// negotiation.
func (m *SessionMonitor) scheduleSettledEvaluation(ctx context.Context, key string) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		if !m.sleep(ctx, m.settleDelay) {
			return
		}

		sessions, err := m.client.GetActiveSessions(ctx)
		if err != nil {
			m.log.Warn().Err(err).Str("playback", key).Msg("Settled re-fetch failed")
			m.forget(key)
			return
		}

		for i := range sessions {
			session := &sessions[i]
			if session.PlaybackKey() != key {
				continue
			}

			pb := buildPlayback(session)

			m.mu.Lock()
			if state, ok := m.playbacks[key]; ok {
				state.evaluated = true
				state.isTranscoding = pb.IsTranscoding
				state.isVideoDirect = pb.IsVideoDirect
				state.reasons = pb.Reasons
			}
			m.mu.Unlock()

			m.engine.HandlePlayback(ctx, pb)
			return
		}

		// Playback ended inside the settling window; nothing to evaluate.
		m.forget(key)
	}()
}

// reopenLoop scans session activity timestamps for idle-to-active
// transitions and treats them as session opens.
func (m *SessionMonitor) reopenLoop(ctx context.Context) {
	defer m.wg.Done()

	if m.idleOpenThreshold <= 0 {
		return
	}

	ticker := time.NewTicker(m.reopenPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopChan:
			return
		case <-ticker.C:
			m.scanForReopens(ctx)
		}
	}
}

func (m *SessionMonitor) scanForReopens(ctx context.Context) {
	sessions, err := m.client.GetSessions(ctx)
	if err != nil {
		metrics.SessionPollErrors.Inc()
		m.log.Warn().Err(err).Msg("Reopen scan failed")
		return
	}

	live := make(map[string]struct{}, len(sessions))
	for i := range sessions {
		session := &sessions[i]
		if session.ID == "" || session.UserID == "" {
			continue
		}
		live[session.ID] = struct{}{}

		activity, ok := session.LastActivityUTC()
		if !ok {
			continue
		}

		if m.activity.Observe(session.ID, activity, m.idleOpenThreshold) {
			m.log.Debug().Str("session_id", session.ID).Str("user", session.UserName).Msg("Idle session became active")
			m.engine.HandleSessionOpen(ctx, policy.SessionOpen{
				SessionID: session.ID,
				UserID:    session.UserID,
				UserName:  session.UserName,
				Client:    session.Client,
			})
		}
	}

	m.activity.Retain(live)
}

// releaseEnded drops state for sessions and playbacks no longer present, so
// a later replay of the same item may nag again and the maps stay bounded.
func (m *SessionMonitor) releaseEnded(liveSessions, livePlaybacks map[string]struct{}) {
	var ended []string

	m.mu.Lock()
	for id := range m.sessions {
		if _, ok := liveSessions[id]; !ok {
			delete(m.sessions, id)
		}
	}
	for key := range m.playbacks {
		if _, ok := livePlaybacks[key]; !ok {
			delete(m.playbacks, key)
			ended = append(ended, key)
		}
	}
	m.mu.Unlock()

	for _, key := range ended {
		sessionID, itemID := splitPlaybackKey(key)
		m.engine.HandlePlaybackStopped(sessionID, itemID)
	}
	m.engine.Playbacks().Retain(livePlaybacks)
}

func (m *SessionMonitor) forget(key string) {
	m.mu.Lock()
	delete(m.playbacks, key)
	m.mu.Unlock()
}

// sleep waits for d, returning false if the monitor or context stopped first.
func (m *SessionMonitor) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-m.stopChan:
		return false
	case <-timer.C:
		return true
	}
}

// buildPlayback maps a live session to the engine's playback view.
func buildPlayback(session *models.JellyfinSession) policy.Playback {
	pb := policy.Playback{
		SessionID:     session.ID,
		UserID:        session.UserID,
		UserName:      session.UserName,
		Client:        session.Client,
		IsTranscoding: session.TranscodingInfo != nil,
		IsVideoDirect: session.IsVideoDirect(),
		Reasons:       session.ReasonMask(),
	}
	if session.NowPlayingItem != nil {
		pb.ItemID = session.NowPlayingItem.ID
		pb.ItemName = session.NowPlayingItem.Name
	}
	return pb
}

// splitPlaybackKey reverses PlaybackKey's sessionID_itemID form. Session IDs
// never contain underscores; item IDs may, so split at the first one.
func splitPlaybackKey(key string) (sessionID, itemID string) {
	for i := 0; i < len(key); i++ {
		if key[i] == '_' {
			return key[:i], key[i+1:]
		}
	}
	return key, ""
}
