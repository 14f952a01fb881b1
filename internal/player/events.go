package player

import (
	"github.com/stwalsh4118/marquee/internal/metadata"
)

// EventType names a backend lifecycle event
type EventType string

// Backend event vocabulary
const (
	EventReady                EventType = "ready"
	EventQualityLevelsChanged EventType = "quality_levels_changed"
	EventFatalError           EventType = "fatal_error"
	EventNonFatalWarning      EventType = "non_fatal_warning"
	EventHealthy              EventType = "healthy"
	EventMetadataResolved     EventType = "metadata_resolved"
	EventDurationResolved     EventType = "duration_resolved"
)

// IsValid checks if the event type is part of the vocabulary
func (t EventType) IsValid() bool {
	switch t {
	case EventReady, EventQualityLevelsChanged, EventFatalError, EventNonFatalWarning,
		EventHealthy, EventMetadataResolved, EventDurationResolved:
		return true
	default:
		return false
	}
}

// QualityLevel is one selectable rendition of an adaptive stream
type QualityLevel struct {
	Index      int `json:"index"`
	Height     int `json:"height"`
	BitrateBps int `json:"bitrate_bps"`
}

// Event is a message from a backend to the controller. Only the fields
// relevant to Type are set.
type Event struct {
	Type            EventType         `json:"type"`
	Levels          []QualityLevel    `json:"levels,omitempty"`
	Kind            ErrorKind         `json:"-"`
	Err             error             `json:"-"`
	Metadata        *metadata.Payload `json:"metadata,omitempty"`
	DurationSeconds int64             `json:"duration_seconds,omitempty"`
	EmbedURL        string            `json:"embed_url,omitempty"`
}

// Emitter delivers backend events to the controller. Each attempt gets its
// own emitter; events sent through a superseded attempt's emitter are dropped.
type Emitter func(Event)

// ReadyEvent builds a Ready event
func ReadyEvent() Event { return Event{Type: EventReady} }

// HealthyEvent builds a Healthy event
func HealthyEvent() Event { return Event{Type: EventHealthy} }

// LevelsEvent builds a QualityLevelsChanged event
func LevelsEvent(levels []QualityLevel) Event {
	return Event{Type: EventQualityLevelsChanged, Levels: levels}
}

// FatalEvent builds a FatalError event
func FatalEvent(kind ErrorKind, err error) Event {
	return Event{Type: EventFatalError, Kind: kind, Err: err}
}

// WarningEvent builds a NonFatalWarning event
func WarningEvent(kind ErrorKind, err error) Event {
	return Event{Type: EventNonFatalWarning, Kind: kind, Err: err}
}
