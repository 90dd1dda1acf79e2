// Transcodenag - Jellyfin Transcode Nag Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transcodenag

// Package policy decides whether and when a transcode warrants nagging a
// user. It combines the classifier below, the durable event log, the derived
// nag status, and in-memory dedup state into the two notification flows:
// the in-playback nag and the login/open nag.
package policy

import "github.com/tomtom215/transcodenag/internal/models"

// ShouldNag reports whether a session's transcode reasons overlap the
// configured nag-worthy set.
//
// A zero mask never nags: no classified reason means bitrate limiting, which
// is the server doing its job. An empty or fully-unrecognizable configured
// set never nags either; the caller is responsible for substituting the
// default set before getting here if that is the intended behavior.
// Any overlap fires - full containment is not required.
func ShouldNag(reasons models.TranscodeReason, configuredReasonNames []string) bool {
	if reasons == 0 {
		return false
	}

	enabled := models.ParseReasonNames(configuredReasonNames)
	if enabled == 0 {
		return false
	}

	return reasons&enabled != 0
}
