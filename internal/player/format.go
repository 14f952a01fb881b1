package player

import (
	"fmt"
	"math"
)

// PlaybackSpeeds are the rates CycleSpeed steps through
var PlaybackSpeeds = []float64{0.5, 0.75, 1.0, 1.25, 1.5, 2.0}

const defaultSpeedIndex = 2

// FormatDuration renders seconds as m:ss, or h:mm:ss from one hour up.
// Negative, NaN and infinite values render as 0:00.
func FormatDuration(seconds float64) string {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		seconds = 0
	}
	total := int64(seconds)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// ClampSeek returns position+delta limited to [0, duration]. Without a known
// duration the position is returned unchanged.
func ClampSeek(position, delta, duration float64) float64 {
	if duration <= 0 || math.IsNaN(duration) {
		return position
	}
	return math.Max(0, math.Min(position+delta, duration))
}

// nextSpeedIndex returns the index after i, wrapping to the slowest rate
func nextSpeedIndex(i int) int {
	return (i + 1) % len(PlaybackSpeeds)
}
