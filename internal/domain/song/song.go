// Package song provides the song request domain entities.
package song

import (
	"fmt"
	"strings"
	"time"
)

// Track represents a Spotify track as resolved by catalog lookup.
// Identity is the Spotify ID; everything else is display data.
type Track struct {
	ID          string        // Spotify Track ID
	URI         string        // Spotify URI (spotify:track:...)
	Title       string        // Track name
	Artist      string        // Artist names, joined ("Artist A, Artist B")
	Album       string        // Album name
	AlbumArtURL string        // Album art URL
	Duration    time.Duration // Track duration
	URL         string        // Open Spotify URL
}

// DurationMS returns the track duration in milliseconds.
func (t *Track) DurationMS() int {
	return int(t.Duration.Milliseconds())
}

// DurationFormatted returns the duration as an M:SS display string.
func (t *Track) DurationFormatted() string {
	total := int(t.Duration.Seconds())
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

// Source identifies where a request entered the system.
type Source string

const (
	SourceRedemption Source = "channel_points"
	SourceChat       Source = "chat"
)

// Request represents an admitted song request.
// Immutable once created; owned by the queue after admission.
type Request struct {
	Track       Track     // Resolved track
	Requester   string    // Display name as given by the chat provider
	SubmittedAt time.Time // Time of admission
	Source      Source    // Redemption or chat
}

// NewRequest creates a request stamped with the current time.
func NewRequest(t Track, requester string, source Source) Request {
	return Request{
		Track:       t,
		Requester:   requester,
		SubmittedAt: time.Now(),
		Source:      source,
	}
}

// RequesterKey normalizes a requester name into the identity key used for
// votes and cooldowns. Twitch names are case-insensitive.
func RequesterKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
