// Transcodenag - Jellyfin Transcode Nag Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transcodenag

package models

import "strings"

// TranscodeReason is a bitmask of the causes Jellyfin reports for a transcode
// session. The server sends reasons as an array of enum names in
// TranscodingInfo.TranscodeReasons; ParseReasonNames maps them onto this mask.
//
// A zero mask means the server reported no classified reason, which in
// practice is bitrate limiting.
type TranscodeReason uint32

const (
	ReasonContainerNotSupported TranscodeReason = 1 << iota
	ReasonVideoCodecNotSupported
	ReasonAudioCodecNotSupported
	ReasonSubtitleCodecNotSupported
	ReasonVideoProfileNotSupported
	ReasonVideoLevelNotSupported
	ReasonVideoResolutionNotSupported
	ReasonVideoBitDepthNotSupported
	ReasonVideoFramerateNotSupported
	ReasonRefFramesNotSupported
	ReasonAnamorphicVideoNotSupported
	ReasonInterlacedVideoNotSupported
	ReasonAudioChannelsNotSupported
	ReasonAudioProfileNotSupported
	ReasonAudioSampleRateNotSupported
	ReasonSecondaryAudioNotSupported
	ReasonVideoRangeTypeNotSupported
	ReasonDirectPlayError

	// Bitrate-cap reasons. Recognized so they round-trip through the mask,
	// but excluded from the default nag set: transcoding to fit bandwidth
	// is working as intended.
	ReasonContainerBitrateExceedsLimit
	ReasonVideoBitrateNotSupported
	ReasonAudioBitrateNotSupported
)

// reasonNames maps each flag to its Jellyfin enum name.
var reasonNames = map[TranscodeReason]string{
	ReasonContainerNotSupported:        "ContainerNotSupported",
	ReasonVideoCodecNotSupported:       "VideoCodecNotSupported",
	ReasonAudioCodecNotSupported:       "AudioCodecNotSupported",
	ReasonSubtitleCodecNotSupported:    "SubtitleCodecNotSupported",
	ReasonVideoProfileNotSupported:     "VideoProfileNotSupported",
	ReasonVideoLevelNotSupported:       "VideoLevelNotSupported",
	ReasonVideoResolutionNotSupported:  "VideoResolutionNotSupported",
	ReasonVideoBitDepthNotSupported:    "VideoBitDepthNotSupported",
	ReasonVideoFramerateNotSupported:   "VideoFramerateNotSupported",
	ReasonRefFramesNotSupported:        "RefFramesNotSupported",
	ReasonAnamorphicVideoNotSupported:  "AnamorphicVideoNotSupported",
	ReasonInterlacedVideoNotSupported:  "InterlacedVideoNotSupported",
	ReasonAudioChannelsNotSupported:    "AudioChannelsNotSupported",
	ReasonAudioProfileNotSupported:     "AudioProfileNotSupported",
	ReasonAudioSampleRateNotSupported:  "AudioSampleRateNotSupported",
	ReasonSecondaryAudioNotSupported:   "SecondaryAudioNotSupported",
	ReasonVideoRangeTypeNotSupported:   "VideoRangeTypeNotSupported",
	ReasonDirectPlayError:              "DirectPlayError",
	ReasonContainerBitrateExceedsLimit: "ContainerBitrateExceedsLimit",
	ReasonVideoBitrateNotSupported:     "VideoBitrateNotSupported",
	ReasonAudioBitrateNotSupported:     "AudioBitrateNotSupported",
}

// reasonsByName is the case-insensitive reverse of reasonNames.
var reasonsByName = func() map[string]TranscodeReason {
	m := make(map[string]TranscodeReason, len(reasonNames))
	for r, name := range reasonNames {
		m[strings.ToLower(name)] = r
	}
	return m
}()

// ParseReason resolves a single Jellyfin reason name, case-insensitively.
// The second return is false for blank or unknown names.
func ParseReason(name string) (TranscodeReason, bool) {
	r, ok := reasonsByName[strings.ToLower(strings.TrimSpace(name))]
	return r, ok
}

// ParseReasonNames ORs together every recognizable name in the slice.
// Blank and unknown names are skipped, never an error: Jellyfin adds reason
// enum values across releases and an older build of this service should
// still classify what it knows about.
func ParseReasonNames(names []string) TranscodeReason {
	var mask TranscodeReason
	for _, name := range names {
		if r, ok := ParseReason(name); ok {
			mask |= r
		}
	}
	return mask
}

// DefaultNagReasonNames returns the canonical set of reasons worth nagging
// about: format and codec incompatibilities the user can fix by switching
// clients. Bitrate-cap reasons are deliberately absent.
func DefaultNagReasonNames() []string {
	return []string{
		"ContainerNotSupported",
		"VideoCodecNotSupported",
		"AudioCodecNotSupported",
		"SubtitleCodecNotSupported",
		"VideoProfileNotSupported",
		"VideoLevelNotSupported",
		"VideoResolutionNotSupported",
		"VideoBitDepthNotSupported",
		"VideoFramerateNotSupported",
		"RefFramesNotSupported",
		"AnamorphicVideoNotSupported",
		"InterlacedVideoNotSupported",
		"AudioChannelsNotSupported",
		"AudioProfileNotSupported",
		"AudioSampleRateNotSupported",
		"SecondaryAudioNotSupported",
		"VideoRangeTypeNotSupported",
		"DirectPlayError",
	}
}

// Names expands the mask back into Jellyfin enum names, in bit order.
func (r TranscodeReason) Names() []string {
	if r == 0 {
		return nil
	}
	var names []string
	for bit := TranscodeReason(1); bit != 0 && bit <= r; bit <<= 1 {
		if r&bit != 0 {
			if name, ok := reasonNames[bit]; ok {
				names = append(names, name)
			}
		}
	}
	return names
}

// String renders the mask for log output, e.g. "VideoCodecNotSupported|DirectPlayError".
func (r TranscodeReason) String() string {
	if r == 0 {
		return "None"
	}
	return strings.Join(r.Names(), "|")
}
