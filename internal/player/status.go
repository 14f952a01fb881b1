package player

import (
	"time"
)

// StatusKind classifies a user-facing status message
type StatusKind string

// Status kinds
const (
	StatusSuccess StatusKind = "success"
	StatusError   StatusKind = "error"
	StatusNotice  StatusKind = "notice"
)

// Dismiss intervals for status messages
const (
	ErrorDismissAfter   = 4 * time.Second
	SuccessDismissAfter = 2500 * time.Millisecond
)

// User-facing messages
const (
	MsgEmptyInput       = "Please enter a video URL"
	MsgInvalidURL       = "Invalid URL. Please enter a valid video URL (MP4, WebM, MKV, MOV, or HLS .m3u8)"
	MsgUnrecognizedLink = "Could not find a video id in that link"
	MsgAdaptiveLoaded   = "HLS stream loaded successfully"
	MsgDirectLoaded     = "Video loaded successfully"
	MsgEmbeddedLoaded   = "Video ready"
	MsgAutoplayBlocked  = "Autoplay prevented. Click play button"
	MsgNetworkError     = "Network error. Please check your connection and URL"
	MsgMediaRecovering  = "Media format not supported. Trying to recover..."
	MsgAdaptiveFailed   = "Failed to load HLS stream"
	MsgDirectFailed     = "Cannot play this video. Check URL or format"
	MsgReset            = "Player reset"
	MsgMuted            = "Muted"
	MsgUnmuted          = "Unmuted"
)

// Status is a short, auto-dismissing message for the UI
type Status struct {
	Kind         StatusKind    `json:"kind"`
	Message      string        `json:"message"`
	DismissAfter time.Duration `json:"-"`
	DismissMs    int64         `json:"dismiss_after_ms"`
	At           time.Time     `json:"at"`
}

// StatusSink receives status messages. It is called without the controller lock held.
type StatusSink func(Status)

func newStatus(kind StatusKind, msg string, at time.Time) Status {
	dismiss := SuccessDismissAfter
	if kind == StatusError {
		dismiss = ErrorDismissAfter
	}
	return Status{
		Kind:         kind,
		Message:      msg,
		DismissAfter: dismiss,
		DismissMs:    dismiss.Milliseconds(),
		At:           at,
	}
}
