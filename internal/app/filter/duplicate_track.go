package filter

import (
	"context"

	"github.com/xkatng/twitch-song-requests/internal/domain/song"
)

// DuplicateTrackFilter rejects tracks already in play this session.
// A track counts as a duplicate when it is currently playing, already
// queued, or was played earlier in the session.
type DuplicateTrackFilter struct{}

// NewDuplicateTrackFilter creates a new duplicate track filter.
func NewDuplicateTrackFilter() *DuplicateTrackFilter {
	return &DuplicateTrackFilter{}
}

func (f *DuplicateTrackFilter) Name() string {
	return "duplicate_track_filter"
}

func (f *DuplicateTrackFilter) Description() string {
	return "Rejects tracks that are playing, queued, or already played this session"
}

func (f *DuplicateTrackFilter) ReturnCodes() []string {
	return []string{CodeDuplicate}
}

func (f *DuplicateTrackFilter) ValidateConfig(settings map[string]any) error {
	return nil
}

func (f *DuplicateTrackFilter) AppliesTo(source song.Source) bool {
	return true
}

func (f *DuplicateTrackFilter) Check(ctx context.Context, c Candidate, s State) Result {
	id := c.Track.ID

	if s.CurrentTrackID != "" && s.CurrentTrackID == id {
		return Reject(CodeDuplicate)
	}
	if s.QueuedTrackIDs[id] {
		return Reject(CodeDuplicate)
	}
	if s.PlayedTrackIDs[id] {
		return Reject(CodeDuplicate)
	}
	return Accept()
}

func init() {
	Register("duplicate_track_filter", func() Filter {
		return NewDuplicateTrackFilter()
	})
}
