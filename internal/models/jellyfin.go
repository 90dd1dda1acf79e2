// Transcodenag - Jellyfin Transcode Nag Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transcodenag

package models

import "time"

// ============================================================================
// Jellyfin Session Models
// ============================================================================
// These structures mirror the subset of the Jellyfin Sessions API this
// service consumes, via REST (/Sessions) and WebSocket (Sessions messages).
// Documentation: https://api.jellyfin.org/

// JellyfinSession represents an active session from Jellyfin.
type JellyfinSession struct {
	ID                 string `json:"Id"`
	Client             string `json:"Client"`
	DeviceID           string `json:"DeviceId"`
	DeviceName         string `json:"DeviceName"`
	ApplicationVersion string `json:"ApplicationVersion"`

	UserID   string `json:"UserId"`
	UserName string `json:"UserName"`

	RemoteEndPoint   string `json:"RemoteEndPoint"`
	LastActivityDate string `json:"LastActivityDate"` // ISO timestamp of last activity

	NowPlayingItem  *JellyfinNowPlayingItem  `json:"NowPlayingItem,omitempty"`
	PlayState       *JellyfinPlayState       `json:"PlayState,omitempty"`
	TranscodingInfo *JellyfinTranscodingInfo `json:"TranscodingInfo,omitempty"`
}

// JellyfinNowPlayingItem represents the currently playing content.
type JellyfinNowPlayingItem struct {
	ID           string `json:"Id"`
	Name         string `json:"Name"`
	Type         string `json:"Type"`      // "Movie", "Episode", "Audio"
	MediaType    string `json:"MediaType"` // "Video", "Audio"
	SeriesName   string `json:"SeriesName,omitempty"`
	RunTimeTicks int64  `json:"RunTimeTicks"`
	Container    string `json:"Container,omitempty"`
}

// JellyfinPlayState represents playback state details.
type JellyfinPlayState struct {
	PositionTicks int64  `json:"PositionTicks"`
	IsPaused      bool   `json:"IsPaused"`
	IsMuted       bool   `json:"IsMuted"`
	MediaSourceID string `json:"MediaSourceId,omitempty"`
	PlayMethod    string `json:"PlayMethod,omitempty"` // "DirectPlay", "DirectStream", "Transcode"
}

// JellyfinTranscodingInfo represents transcode session details. Absent while
// the server is still negotiating the play method shortly after start.
type JellyfinTranscodingInfo struct {
	AudioCodec       string   `json:"AudioCodec,omitempty"`
	VideoCodec       string   `json:"VideoCodec,omitempty"`
	Container        string   `json:"Container,omitempty"`
	IsVideoDirect    bool     `json:"IsVideoDirect"`
	IsAudioDirect    bool     `json:"IsAudioDirect"`
	Bitrate          int      `json:"Bitrate,omitempty"`
	TranscodeReasons []string `json:"TranscodeReasons,omitempty"`
}

// ============================================================================
// Helper Methods
// ============================================================================

// IsPlaying returns true if the session is actively playing content.
func (s *JellyfinSession) IsPlaying() bool {
	return s.NowPlayingItem != nil && s.PlayState != nil && !s.PlayState.IsPaused
}

// IsActive returns true if the session has content playing or paused.
func (s *JellyfinSession) IsActive() bool {
	return s.NowPlayingItem != nil
}

// PlaybackKey identifies one playback: a session playing a particular item.
// A stop-and-replay of the same item on the same session reuses the key,
// matching the dedup granularity of in-playback nags.
func (s *JellyfinSession) PlaybackKey() string {
	if s.NowPlayingItem == nil {
		return ""
	}
	return s.ID + "_" + s.NowPlayingItem.ID
}

// ReasonMask parses TranscodingInfo.TranscodeReasons into the bitmask used by
// policy decisions. Zero when not transcoding or when the server reported no
// classified reason.
func (s *JellyfinSession) ReasonMask() TranscodeReason {
	if s.TranscodingInfo == nil {
		return 0
	}
	return ParseReasonNames(s.TranscodingInfo.TranscodeReasons)
}

// IsVideoDirect reports whether video is passing through untouched. True also
// when there is no transcoding info at all (direct play).
func (s *JellyfinSession) IsVideoDirect() bool {
	return s.TranscodingInfo == nil || s.TranscodingInfo.IsVideoDirect
}

// LastActivityUTC returns the session's last-activity timestamp, if the
// server supplied one. This is the explicit capability accessor for
// idle-reopen detection: absent or unparseable values return ok=false and
// reopen detection degrades to a no-op for the session.
func (s *JellyfinSession) LastActivityUTC() (time.Time, bool) {
	if s.LastActivityDate == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, s.LastActivityDate)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}
