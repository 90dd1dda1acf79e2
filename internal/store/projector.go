// Transcodenag - Jellyfin Transcode Nag Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transcodenag

package store

import (
	"time"

	"github.com/tomtom215/transcodenag/internal/models"
)

// ProjectStatus derives a user's nag status from an immutable snapshot of the
// event collection. It has no side effects, so policy behavior can be unit
// tested against plain slices without a backing file.
//
// The bad-transcode count is windowed to the trailing windowDays before now.
// The credit and last-seen fields are computed over the full snapshot:
// a credit is valid relative to the user's most recent regression, wherever
// that falls.
func ProjectStatus(events []models.NagEvent, userID string, windowDays int, now time.Time) models.UserNagStatus {
	cutoff := now.AddDate(0, 0, -windowDays)
	status := models.UserNagStatus{UserID: userID}

	for i := range events {
		e := &events[i]
		if e.UserID != userID {
			continue
		}

		switch e.Kind {
		case models.EventBadTranscode:
			if e.Timestamp.After(status.LastBadTranscodeUTC) {
				status.LastBadTranscodeUTC = e.Timestamp
			}
			if !e.Timestamp.Before(cutoff) {
				status.BadTranscodeCount++
			}
		case models.EventNagSent:
			if e.Timestamp.After(status.LastNagUTC) {
				status.LastNagUTC = e.Timestamp
			}
		case models.EventImprovementCredit:
			// Resolved below, once the most recent bad transcode is known.
		}
	}

	if !status.LastBadTranscodeUTC.IsZero() {
		for i := range events {
			e := &events[i]
			if e.UserID == userID && e.Kind == models.EventImprovementCredit &&
				e.Timestamp.After(status.LastBadTranscodeUTC) {
				status.HasImprovementCredit = true
				break
			}
		}
	}

	status.NaggedRecently = !status.LastNagUTC.IsZero() && !status.LastNagUTC.Before(cutoff)

	return status
}
