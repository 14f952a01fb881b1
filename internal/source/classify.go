// Package source classifies user-supplied video links into a playback strategy.
package source

import (
	"errors"
	"net/url"
	"regexp"
	"strings"
)

// Strategy identifies which playback backend handles a link
type Strategy string

// Strategy constants
const (
	StrategyDirectFile       Strategy = "direct_file"
	StrategyAdaptiveStream   Strategy = "adaptive_stream"
	StrategyEmbeddedPlatform Strategy = "embedded_platform"
)

// String returns the string representation of the strategy
func (s Strategy) String() string {
	return string(s)
}

// Classification errors
var (
	ErrEmptyInput              = errors.New("empty input")
	ErrUnsupportedScheme       = errors.New("unsupported scheme")
	ErrUnrecognizedPlatformURL = errors.New("unrecognized platform url")
	ErrUnsupportedMediaType    = errors.New("unsupported media type")
)

// Resolved is the immutable result of classifying a link
type Resolved struct {
	Strategy     Strategy `json:"strategy"`
	CanonicalURL string   `json:"canonical_url"`
	PlatformID   string   `json:"platform_id,omitempty"`
}

// platform describes an embeddable video host
type platform struct {
	hosts    []string
	patterns []*regexp.Regexp
}

// youtube patterns are tried in order, first match wins
var youtube = platform{
	hosts: []string{"youtube.com", "youtu.be", "youtube-nocookie.com"},
	patterns: []*regexp.Regexp{
		regexp.MustCompile(`[?&]v=([A-Za-z0-9_-]{11})`),
		regexp.MustCompile(`youtu\.be/([A-Za-z0-9_-]{11})`),
		regexp.MustCompile(`/embed/([A-Za-z0-9_-]{11})`),
		regexp.MustCompile(`/shorts/([A-Za-z0-9_-]{11})`),
		regexp.MustCompile(`/live/([A-Za-z0-9_-]{11})`),
		regexp.MustCompile(`/v/([A-Za-z0-9_-]{11})`),
	},
}

var (
	schemePattern     = regexp.MustCompile(`(?i)^https?://`)
	directExtensions  = regexp.MustCompile(`(?i)\.(mp4|webm|mkv|mov|avi)(\?.*)?$`)
	adaptiveExtension = regexp.MustCompile(`(?i)\.(m3u8|mpd)(\?.*)?$`)
	platformIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)
)

// Classify maps a raw link to a playback strategy. It performs no network access.
func Classify(raw string) (Resolved, error) {
	link := strings.TrimSpace(raw)
	if link == "" {
		return Resolved{}, ErrEmptyInput
	}

	if !schemePattern.MatchString(link) {
		return Resolved{}, ErrUnsupportedScheme
	}

	if matchesHost(link, youtube.hosts) {
		for _, p := range youtube.patterns {
			if m := p.FindStringSubmatch(link); m != nil {
				return Resolved{
					Strategy:     StrategyEmbeddedPlatform,
					CanonicalURL: WatchURL(m[1]),
					PlatformID:   m[1],
				}, nil
			}
		}
		return Resolved{}, ErrUnrecognizedPlatformURL
	}

	if adaptiveExtension.MatchString(link) || strings.Contains(link, "m3u8") || strings.Contains(link, "mpd") {
		return Resolved{Strategy: StrategyAdaptiveStream, CanonicalURL: link}, nil
	}

	if directExtensions.MatchString(link) {
		return Resolved{Strategy: StrategyDirectFile, CanonicalURL: link}, nil
	}

	return Resolved{}, ErrUnsupportedMediaType
}

// IsPlatformID reports whether id has the shape of an embeddable platform video id
func IsPlatformID(id string) bool {
	return platformIDPattern.MatchString(id)
}

// WatchURL builds the canonical watch link for a platform id
func WatchURL(id string) string {
	return "https://www.youtube.com/watch?v=" + id
}

// EmbedURL builds the embed reference for a platform id
func EmbedURL(id string, autoplay bool) string {
	u := "https://www.youtube.com/embed/" + url.PathEscape(id)
	if autoplay {
		u += "?autoplay=1"
	}
	return u
}

// ThumbnailURL returns the default high quality thumbnail for a platform id
func ThumbnailURL(id string) string {
	return "https://img.youtube.com/vi/" + url.PathEscape(id) + "/hqdefault.jpg"
}

// matchesHost checks the host part of link against platform host substrings
func matchesHost(link string, hosts []string) bool {
	host := strings.ToLower(link)
	if u, err := url.Parse(link); err == nil && u.Host != "" {
		host = strings.ToLower(u.Host)
	}
	for _, h := range hosts {
		if strings.Contains(host, h) {
			return true
		}
	}
	return false
}
