// Transcodenag - Jellyfin Transcode Nag Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transcodenag

package models

import "time"

// EventKind classifies a NagEvent in the durable event log.
type EventKind int

const (
	// EventBadTranscode records a transcode caused by format/codec
	// incompatibility - the thing this service nags about.
	EventBadTranscode EventKind = 0

	// EventImprovementCredit records a good playback (direct play/stream)
	// after a bad transcode. A valid credit suppresses login/open nags until
	// the user regresses with another bad transcode.
	EventImprovementCredit EventKind = 1

	// EventNagSent records that a login/open nag was delivered. It enforces
	// the once-per-week/month rate limit.
	EventNagSent EventKind = 2
)

// String returns a short kind name for logging and metric labels.
func (k EventKind) String() string {
	switch k {
	case EventBadTranscode:
		return "bad_transcode"
	case EventImprovementCredit:
		return "improvement_credit"
	case EventNagSent:
		return "nag_sent"
	default:
		return "unknown"
	}
}

// NagEvent is a single immutable record in the event log. Events are never
// mutated after append; corrections are expressed as new events, and the only
// removals are retention pruning and improvement-credit supersession.
//
// UserID and Kind drive all policy decisions. The remaining descriptive
// fields exist for notification text and diagnostics only.
type NagEvent struct {
	ID        string          `json:"id"`
	UserID    string          `json:"userId"`
	UserName  string          `json:"userName"`
	ItemID    string          `json:"itemId"`
	ItemName  string          `json:"itemName"`
	Client    string          `json:"client"`
	Timestamp time.Time       `json:"timestamp"`
	Reasons   TranscodeReason `json:"reasons"`
	Kind      EventKind       `json:"kind"`
}

// UserNagStatus is the derived projection over a user's slice of the event
// log. It is computed on demand and never persisted.
type UserNagStatus struct {
	UserID string `json:"userId"`

	// BadTranscodeCount is the number of bad transcodes inside the query
	// window.
	BadTranscodeCount int `json:"badTranscodeCount"`

	// HasImprovementCredit is true if a credit postdates the user's most
	// recent bad transcode. Credit validity is relative to the last
	// regression, not the window, so this is computed over the full log.
	HasImprovementCredit bool `json:"hasImprovementCredit"`

	// NaggedRecently is true if a login/open nag was already sent inside the
	// query window.
	NaggedRecently bool `json:"naggedRecently"`

	// LastBadTranscodeUTC and LastNagUTC are unwindowed most-recent
	// timestamps; zero when the user has no event of that kind.
	LastBadTranscodeUTC time.Time `json:"lastBadTranscodeUtc"`
	LastNagUTC          time.Time `json:"lastNagUtc"`
}
