// Package player drives a single playback attempt from a submitted link to a
// playing, paused or failed backend.
package player

// State represents the playback controller state
type State string

// Player state constants
const (
	StateIdle      State = "idle"      // Nothing loaded
	StateResolving State = "resolving" // Classifying the submitted link
	StateLoading   State = "loading"   // Backend attached, waiting for it to become ready
	StateReady     State = "ready"     // Source loaded, playback not started
	StatePlaying   State = "playing"
	StatePaused    State = "paused"
	StateError     State = "error"  // Recoverable fault, one recovery in flight
	StateFailed    State = "failed" // Terminal for this attempt
)

// String returns the string representation of the player state
func (s State) String() string {
	return string(s)
}

// IsValid checks if the state is a known valid value
func (s State) IsValid() bool {
	switch s {
	case StateIdle, StateResolving, StateLoading, StateReady,
		StatePlaying, StatePaused, StateError, StateFailed:
		return true
	default:
		return false
	}
}

// HasManifest reports whether a loaded source can accept quality selection
func (s State) HasManifest() bool {
	return s == StateReady || s == StatePlaying || s == StatePaused
}

// CanTransitionTo checks if a transition from current state to next is valid.
// Resolving is reachable from every state because a submit always restarts.
func (s State) CanTransitionTo(next State) bool {
	if next == StateResolving {
		return s.IsValid()
	}

	switch s {
	case StateIdle:
		return false
	case StateResolving:
		return next == StateLoading || next == StateIdle
	case StateLoading:
		return next == StateReady || next == StateError || next == StateFailed || next == StateIdle
	case StateReady:
		return next == StatePlaying || next == StatePaused || next == StateError ||
			next == StateFailed || next == StateIdle
	case StatePlaying:
		return next == StatePaused || next == StateError || next == StateFailed || next == StateIdle
	case StatePaused:
		return next == StatePlaying || next == StateError || next == StateFailed || next == StateIdle
	case StateError:
		return next == StatePlaying || next == StateFailed || next == StateIdle
	case StateFailed:
		return next == StateIdle
	default:
		return false
	}
}
