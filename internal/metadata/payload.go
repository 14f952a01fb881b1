// Package metadata caches and resolves display metadata for platform videos.
package metadata

import (
	"errors"
	"fmt"
)

// Payload is the display metadata known about a content id
type Payload struct {
	Title           string `json:"title,omitempty"`
	Author          string `json:"author,omitempty"`
	ThumbnailURL    string `json:"thumbnail_url,omitempty"`
	DurationSeconds *int64 `json:"duration_seconds,omitempty"`
	ViewCount       *int64 `json:"view_count,omitempty"`
}

// Field names a single payload field for partial updates
type Field string

// Payload fields
const (
	FieldTitle     Field = "title"
	FieldAuthor    Field = "author"
	FieldThumbnail Field = "thumbnail_url"
	FieldDuration  Field = "duration_seconds"
	FieldViewCount Field = "view_count"
)

// ErrInvalidField is returned when a field name or value type is not recognised
var ErrInvalidField = errors.New("invalid metadata field")

// merge returns p with every field that update explicitly supplies replaced.
// Empty strings and nil pointers in update leave the existing value alone.
func (p Payload) merge(update Payload) Payload {
	if update.Title != "" {
		p.Title = update.Title
	}
	if update.Author != "" {
		p.Author = update.Author
	}
	if update.ThumbnailURL != "" {
		p.ThumbnailURL = update.ThumbnailURL
	}
	if update.DurationSeconds != nil {
		d := *update.DurationSeconds
		p.DurationSeconds = &d
	}
	if update.ViewCount != nil {
		v := *update.ViewCount
		p.ViewCount = &v
	}
	return p
}

// withField returns p with a single field set
func (p Payload) withField(field Field, value any) (Payload, error) {
	switch field {
	case FieldTitle, FieldAuthor, FieldThumbnail:
		s, ok := value.(string)
		if !ok {
			return p, fmt.Errorf("%w: %s expects a string, got %T", ErrInvalidField, field, value)
		}
		switch field {
		case FieldTitle:
			p.Title = s
		case FieldAuthor:
			p.Author = s
		default:
			p.ThumbnailURL = s
		}
	case FieldDuration, FieldViewCount:
		n, ok := toInt64(value)
		if !ok {
			return p, fmt.Errorf("%w: %s expects an integer, got %T", ErrInvalidField, field, value)
		}
		if field == FieldDuration {
			p.DurationSeconds = &n
		} else {
			p.ViewCount = &n
		}
	default:
		return p, fmt.Errorf("%w: %s", ErrInvalidField, field)
	}
	return p, nil
}

// clone copies pointer fields so cached payloads are never aliased by callers
func (p Payload) clone() Payload {
	return Payload{}.merge(p)
}

func toInt64(value any) (int64, bool) {
	switch n := value.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}

// Int64 returns a pointer to n, for building payloads
func Int64(n int64) *int64 {
	return &n
}
