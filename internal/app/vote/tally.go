// Package vote provides the like/skip tally for the playing track.
package vote

import "github.com/xkatng/twitch-song-requests/internal/domain/song"

// Kind is the vote kind.
type Kind string

const (
	KindLike Kind = "like"
	KindSkip Kind = "skip"
)

// Result reports the tally after a vote.
type Result struct {
	Added            bool // false when the voter already voted this kind
	Likes            int
	Skips            int
	ThresholdCrossed bool // true only on the vote that crosses the skip threshold
}

// Tally counts votes for the currently playing track. One vote of each kind
// per voter; repeats are no-ops. The threshold trigger latches so two votes
// crossing the line together cannot fire the auto-skip twice.
// Not internally locked; the playback controller serializes access.
type Tally struct {
	likes     map[string]bool
	skips     map[string]bool
	triggered bool
}

// New creates an empty tally.
func New() *Tally {
	return &Tally{
		likes: make(map[string]bool),
		skips: make(map[string]bool),
	}
}

// Like records a like vote. Idempotent per voter.
func (t *Tally) Like(voter string) Result {
	key := song.RequesterKey(voter)
	added := !t.likes[key]
	t.likes[key] = true
	return Result{
		Added: added,
		Likes: len(t.likes),
		Skips: len(t.skips),
	}
}

// Skip records a skip vote and checks it against the threshold.
// The threshold is passed per call because it is a live runtime setting.
func (t *Tally) Skip(voter string, threshold int) Result {
	key := song.RequesterKey(voter)
	added := !t.skips[key]
	t.skips[key] = true

	crossed := false
	if added && !t.triggered && threshold > 0 && len(t.skips) >= threshold {
		t.triggered = true
		crossed = true
	}

	return Result{
		Added:            added,
		Likes:            len(t.likes),
		Skips:            len(t.skips),
		ThresholdCrossed: crossed,
	}
}

// Counts returns the current like and skip counts.
func (t *Tally) Counts() (likes, skips int) {
	return len(t.likes), len(t.skips)
}

// Reset clears all votes and the threshold latch.
// Called on every track change, including fallback transitions.
func (t *Tally) Reset() {
	t.likes = make(map[string]bool)
	t.skips = make(map[string]bool)
	t.triggered = false
}
