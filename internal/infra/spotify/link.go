package spotify

import (
	"regexp"
	"strings"
)

// LinkKind classifies what a Spotify URL or URI points at.
type LinkKind string

const (
	LinkTrack    LinkKind = "track"
	LinkAlbum    LinkKind = "album"
	LinkPlaylist LinkKind = "playlist"
	LinkArtist   LinkKind = "artist"
)

var (
	urlPattern = regexp.MustCompile(`open\.spotify\.com/(?:intl-[a-zA-Z-]+/)?(track|album|playlist|artist)/([A-Za-z0-9]+)`)
	uriPattern = regexp.MustCompile(`spotify:(track|album|playlist|artist):([A-Za-z0-9]+)`)
)

// FindLink scans free text for Spotify links and URIs. A track link
// wins over any other kind in the same message; otherwise the first
// link found is reported so the caller can name the wrong kind.
func FindLink(text string) (LinkKind, string, bool) {
	matches := urlPattern.FindAllStringSubmatch(text, -1)
	matches = append(matches, uriPattern.FindAllStringSubmatch(text, -1)...)
	if len(matches) == 0 {
		return "", "", false
	}

	for _, m := range matches {
		if LinkKind(m[1]) == LinkTrack {
			return LinkTrack, m[2], true
		}
	}
	return LinkKind(matches[0][1]), matches[0][2], true
}

// HasTrackLink reports whether the text carries a Spotify track link.
func HasTrackLink(text string) bool {
	kind, _, ok := FindLink(text)
	return ok && kind == LinkTrack
}

// NormalizeTrackID extracts the bare track ID from a URL, URI, or raw ID.
func NormalizeTrackID(input string) string {
	input = strings.TrimSpace(input)
	if kind, id, ok := FindLink(input); ok && kind == LinkTrack {
		return id
	}
	return input
}
