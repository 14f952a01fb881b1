package player

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrorKind classifies a backend fault
type ErrorKind int

const (
	// ErrorKindNetwork indicates the source could not be fetched
	ErrorKindNetwork ErrorKind = iota
	// ErrorKindMedia indicates the source was fetched but could not be decoded
	ErrorKindMedia
	// ErrorKindOther covers every remaining fault
	ErrorKindOther
)

// String returns the string representation of ErrorKind
func (k ErrorKind) String() string {
	switch k {
	case ErrorKindNetwork:
		return "network"
	case ErrorKindMedia:
		return "media"
	case ErrorKindOther:
		return "other"
	default:
		return "unknown"
	}
}

// ParseErrorKind maps a wire name back to an ErrorKind. Unknown names become Other.
func ParseErrorKind(s string) ErrorKind {
	switch strings.ToLower(s) {
	case "network":
		return ErrorKindNetwork
	case "media":
		return ErrorKindMedia
	default:
		return ErrorKindOther
	}
}

// Player errors
var (
	ErrInvalidQualityLevel = errors.New("invalid quality level")
	ErrNoManifest          = errors.New("no manifest loaded")
	ErrAutoplayBlocked     = errors.New("autoplay blocked")
	ErrNothingLoaded       = errors.New("nothing loaded")
	ErrStaleAttempt        = errors.New("event belongs to a superseded attempt")
	ErrUnknownStrategy     = errors.New("no backend for strategy")
)

// PlaybackError is a classified backend fault
type PlaybackError struct {
	Kind        ErrorKind
	Fatal       bool
	Message     string
	Cause       error
	Recoverable bool
}

// NewPlaybackError creates a PlaybackError. Only fatal media errors are recoverable.
func NewPlaybackError(kind ErrorKind, fatal bool, message string, cause error) *PlaybackError {
	return &PlaybackError{
		Kind:        kind,
		Fatal:       fatal,
		Message:     message,
		Cause:       cause,
		Recoverable: kind == ErrorKindMedia || !fatal,
	}
}

// Error implements the error interface
func (e *PlaybackError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Kind.String(), e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind.String(), e.Message)
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *PlaybackError) Unwrap() error {
	return e.Cause
}

// ClassifyError maps a generic fetch or decode error to an ErrorKind
func ClassifyError(err error) ErrorKind {
	if err == nil {
		return ErrorKindOther
	}

	var pe *PlaybackError
	if errors.As(err, &pe) {
		return pe.Kind
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return ErrorKindNetwork
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "no such host"),
		strings.Contains(msg, "timeout"),
		strings.Contains(msg, "unexpected status"):
		return ErrorKindNetwork
	case strings.Contains(msg, "#extm3u"),
		strings.Contains(msg, "decode"),
		strings.Contains(msg, "unsupported content type"):
		return ErrorKindMedia
	default:
		return ErrorKindOther
	}
}
