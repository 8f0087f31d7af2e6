package playback

import (
	"github.com/xkatng/twitch-song-requests/internal/domain/song"
)

// EventType represents the type of playback event.
type EventType int

const (
	EventSongChanged     EventType = iota // The playing track changed
	EventQueueChanged                     // Queue contents or capacity changed
	EventVotesChanged                     // Vote counts changed or were reset
	EventProgress                         // Periodic progress sample from the player
	EventTrackFinished                    // A viewer request left playback
	EventSettingsChanged                  // Runtime settings were updated
	EventPlaybackError                    // A player command failed after retries
	EventSessionLost                      // The player reported no active session
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventSongChanged:
		return "song_changed"
	case EventQueueChanged:
		return "queue_changed"
	case EventVotesChanged:
		return "votes_changed"
	case EventProgress:
		return "progress"
	case EventTrackFinished:
		return "track_finished"
	case EventSettingsChanged:
		return "settings_changed"
	case EventPlaybackError:
		return "playback_error"
	case EventSessionLost:
		return "session_lost"
	default:
		return "unknown"
	}
}

// Outcome describes how a request left playback.
type Outcome string

const (
	OutcomePlayed  Outcome = "played"
	OutcomeSkipped Outcome = "skipped"
)

// Event is emitted by the controller whenever observable session state
// changes. Events are published after the owning lock is released, so a
// consumer sees them strictly after the change they describe committed.
type Event struct {
	Type EventType

	// Request is set for song changes into a viewer request and for
	// track finished events.
	Request *song.Request
	// Track is set for song changes into fallback playback, when the
	// player told us what it is playing.
	Track *song.Track

	// Outcome is set for track finished events.
	Outcome Outcome

	Likes         int
	Skips         int
	SkipThreshold int

	ProgressMS int
	DurationMS int
	IsPlaying  bool

	// Code and Message are set for playback errors.
	Code    string
	Message string
}
