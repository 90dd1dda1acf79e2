// Transcodenag - Jellyfin Transcode Nag Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transcodenag

package policy

import (
	"sync"
	"time"
)

// PlaybackTracker remembers which playbacks have already been nagged, keyed
// by session+item identity. It is process-lifetime state, never persisted;
// after a restart the worst case is one extra duplicate notification per
// in-flight playback, which is acceptable.
//
// The tracker has its own lock, independent of the event log's: ephemeral
// dedup state and durable history have different consistency needs.
type PlaybackTracker struct {
	mu     sync.Mutex
	nagged map[string]struct{}
}

// NewPlaybackTracker creates an empty playback tracker.
func NewPlaybackTracker() *PlaybackTracker {
	return &PlaybackTracker{nagged: make(map[string]struct{})}
}

// MarkNagged records that this playback has triggered its nag.
func (t *PlaybackTracker) MarkNagged(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nagged[key] = struct{}{}
}

// IsNagged reports whether this playback has already triggered its nag.
func (t *PlaybackTracker) IsNagged(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.nagged[key]
	return ok
}

// Clear forgets a playback, re-arming it for a future nag. Called when the
// playback stops or turns into a direct play.
func (t *PlaybackTracker) Clear(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.nagged, key)
}

// Retain drops every tracked playback not present in live, bounding the map
// to currently active playbacks.
func (t *PlaybackTracker) Retain(live map[string]struct{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key := range t.nagged {
		if _, ok := live[key]; !ok {
			delete(t.nagged, key)
		}
	}
}

// Len returns the number of tracked playbacks.
func (t *PlaybackTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.nagged)
}

// ActivityTracker watches per-session activity timestamps to detect a
// session going idle and then active again - the closest observable signal
// to a user "reopening" a long-lived client. Like PlaybackTracker it is
// in-memory only and resets on restart.
type ActivityTracker struct {
	mu   sync.Mutex
	last map[string]time.Time
}

// NewActivityTracker creates an empty activity tracker.
func NewActivityTracker() *ActivityTracker {
	return &ActivityTracker{last: make(map[string]time.Time)}
}

// Observe records a session's latest activity timestamp and reports whether
// the jump from the previous observation meets the idle threshold, i.e.
// whether this looks like a reopen. The first observation of a session only
// seeds the map; fresh sessions are handled by the session-start path.
func (t *ActivityTracker) Observe(sessionID string, activity time.Time, idleThreshold time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev, seen := t.last[sessionID]
	t.last[sessionID] = activity

	return seen && activity.After(prev) && activity.Sub(prev) >= idleThreshold
}

// Retain drops tracking state for sessions not present in live.
func (t *ActivityTracker) Retain(live map[string]struct{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id := range t.last {
		if _, ok := live[id]; !ok {
			delete(t.last, id)
		}
	}
}
