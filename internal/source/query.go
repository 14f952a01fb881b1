package source

import (
	"net/url"
	"strings"
)

// Query parameters that carry a full link
var linkParams = []string{"url", "video", "src", "link"}

// Query parameters that carry a bare platform id
var idParams = []string{"v", "id", "yt"}

// FromQuery extracts the link a deep link refers to. Full-link parameters take
// precedence over bare platform ids. It returns "" when none is present.
func FromQuery(values url.Values) string {
	for _, key := range linkParams {
		if v := strings.TrimSpace(values.Get(key)); v != "" {
			return v
		}
	}
	for _, key := range idParams {
		v := strings.TrimSpace(values.Get(key))
		if v == "" {
			continue
		}
		if IsPlatformID(v) {
			return WatchURL(v)
		}
		return v
	}
	return ""
}
