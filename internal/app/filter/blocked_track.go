package filter

import (
	"context"
	"strings"

	"github.com/xkatng/twitch-song-requests/internal/domain/song"
)

// BlockedTrackFilter rejects tracks on the operator's blocklist.
// Track IDs match exactly; artist entries match as case-insensitive
// substrings of the track's artist string, so blocking "nickelback"
// also catches "Nickelback feat. Someone".
type BlockedTrackFilter struct{}

// NewBlockedTrackFilter creates a new blocklist filter.
func NewBlockedTrackFilter() *BlockedTrackFilter {
	return &BlockedTrackFilter{}
}

func (f *BlockedTrackFilter) Name() string {
	return "blocked_track_filter"
}

func (f *BlockedTrackFilter) Description() string {
	return "Rejects tracks whose ID or artist is on the blocklist"
}

func (f *BlockedTrackFilter) ReturnCodes() []string {
	return []string{CodeBlocked}
}

func (f *BlockedTrackFilter) ValidateConfig(settings map[string]any) error {
	return nil
}

func (f *BlockedTrackFilter) AppliesTo(source song.Source) bool {
	return true
}

func (f *BlockedTrackFilter) Check(ctx context.Context, c Candidate, s State) Result {
	if s.BlockedTrackIDs[c.Track.ID] {
		return Reject(CodeBlocked)
	}

	artist := strings.ToLower(c.Track.Artist)
	for _, blocked := range s.BlockedArtists {
		if blocked == "" {
			continue
		}
		if strings.Contains(artist, strings.ToLower(blocked)) {
			return Reject(CodeBlocked)
		}
	}
	return Accept()
}

func init() {
	Register("blocked_track_filter", func() Filter {
		return NewBlockedTrackFilter()
	})
}
