// Package playback reconciles the request queue against the external
// Spotify player and owns the mutable session state.
package playback

// State represents the playback session state.
type State int

const (
	StateIdle            State = iota // Nothing intended (no device, or degraded after a failed command)
	StatePlayingRequest               // A viewer request is playing
	StatePlayingFallback              // The streamer's own context (or an unrelated track) is playing
	StateTransitioning                // Command issued, awaiting confirmation from the player
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlayingRequest:
		return "playing_request"
	case StatePlayingFallback:
		return "playing_fallback"
	case StateTransitioning:
		return "transitioning"
	default:
		return "unknown"
	}
}
