// Package filter provides the admission chain for song requests.
package filter

import (
	"context"
	"time"

	"github.com/xkatng/twitch-song-requests/internal/domain/song"
)

// Reject codes returned by the built-in filters.
const (
	CodeQueueFull = "queue_full"
	CodeDuplicate = "duplicate"
	CodeBlocked   = "blocked"
	CodeCooldown  = "cooldown"
)

// Candidate represents a track request under admission.
type Candidate struct {
	Track     song.Track
	Requester string
	Source    song.Source
}

// State is the point-in-time view of session state that filters consult.
// The playback controller builds it under its lock, so one admission sees
// one consistent view.
type State struct {
	QueueLen        int
	MaxQueueSize    int
	QueuedTrackIDs  map[string]bool
	PlayedTrackIDs  map[string]bool
	CurrentTrackID  string
	BlockedArtists  []string
	BlockedTrackIDs map[string]bool
	CooldownWindow  time.Duration
	LastRequestAt   time.Time // zero if the requester has no accepted request yet
	Now             time.Time
}

// Result represents the result of a filter check.
type Result struct {
	Accepted   bool
	Code       string        // e.g. "queue_full", "cooldown"
	RetryAfter time.Duration // set for cooldown rejections
}

// Accept returns an accepted result.
func Accept() Result {
	return Result{Accepted: true}
}

// Reject returns a rejected result with the given code.
func Reject(code string) Result {
	return Result{Accepted: false, Code: code}
}

// RejectRetryAfter returns a rejected result with a retry hint.
func RejectRetryAfter(code string, after time.Duration) Result {
	return Result{Accepted: false, Code: code, RetryAfter: after}
}

// Filter is the interface for admission filters.
type Filter interface {
	// Name returns the filter name (used in config).
	Name() string
	// Description returns a human-readable description.
	Description() string
	// ReturnCodes returns the codes this filter can return.
	ReturnCodes() []string
	// ValidateConfig validates the filter configuration.
	ValidateConfig(settings map[string]any) error
	// AppliesTo returns true if this filter should be applied to the given source.
	AppliesTo(source song.Source) bool
	// Check performs the filter check.
	Check(ctx context.Context, c Candidate, s State) Result
}

// registry holds registered filter factories.
var registry = make(map[string]func() Filter)

// Register registers a filter factory.
func Register(name string, factory func() Filter) {
	registry[name] = factory
}

// GetRegistered returns all registered filter factories.
func GetRegistered() map[string]func() Filter {
	return registry
}
