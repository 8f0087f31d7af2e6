package notification

import (
	"github.com/xkatng/twitch-song-requests/internal/app/playback"
	"github.com/xkatng/twitch-song-requests/internal/domain/song"
)

// Wire discriminators carried in every payload's event_type field.
const (
	TypeSongChange       = "song_change"
	TypeQueueUpdate      = "queue_update"
	TypeVoteUpdate       = "vote_update"
	TypePlaybackProgress = "playback_progress"
	TypePlaybackError    = "playback_error"
	TypeSettingsUpdate   = "settings_update"
	TypeConnected        = "connected"
	TypePong             = "pong"
)

// SongChange announces the track now playing.
type SongChange struct {
	EventType   string `json:"event_type"`
	Title       string `json:"title"`
	Artist      string `json:"artist"`
	Album       string `json:"album"`
	AlbumArtURL string `json:"album_art_url"`
	Requester   string `json:"requester"`
	DurationMS  int    `json:"duration_ms"`
	ProgressMS  int    `json:"progress_ms"`
	Likes       int    `json:"likes"`
	Skips       int    `json:"skips"`
	IsRequest   bool   `json:"is_request"`
}

// NewSongChange builds a song change payload from a track and the vote
// counts at change time. requester is empty for fallback playback.
func NewSongChange(track song.Track, requester string, progressMS, likes, skips int) SongChange {
	return SongChange{
		EventType:   TypeSongChange,
		Title:       track.Title,
		Artist:      track.Artist,
		Album:       track.Album,
		AlbumArtURL: track.AlbumArtURL,
		Requester:   requester,
		DurationMS:  track.DurationMS(),
		ProgressMS:  progressMS,
		Likes:       likes,
		Skips:       skips,
		IsRequest:   requester != "",
	}
}

// QueueEntry is one queued request as shown to overlays.
type QueueEntry struct {
	Title       string `json:"title"`
	Artist      string `json:"artist"`
	Requester   string `json:"requester"`
	AlbumArtURL string `json:"album_art_url"`
	DurationMS  int    `json:"duration_ms"`
}

// NewQueueEntry builds an overlay entry from a request.
func NewQueueEntry(r song.Request) QueueEntry {
	return QueueEntry{
		Title:       r.Track.Title,
		Artist:      r.Track.Artist,
		Requester:   r.Requester,
		AlbumArtURL: r.Track.AlbumArtURL,
		DurationMS:  r.Track.DurationMS(),
	}
}

// QueueUpdate carries the whole queue after any change. NextSong is the
// upcoming track preview, nil when nothing is known.
type QueueUpdate struct {
	EventType    string       `json:"event_type"`
	Queue        []QueueEntry `json:"queue"`
	QueueLength  int          `json:"queue_length"`
	MaxQueueSize int          `json:"max_queue_size"`
	NextSong     *QueueEntry  `json:"next_song"`
}

// NewQueueUpdate builds a queue update payload.
func NewQueueUpdate(queue []song.Request, maxQueueSize int, next *QueueEntry) QueueUpdate {
	entries := make([]QueueEntry, 0, len(queue))
	for _, r := range queue {
		entries = append(entries, NewQueueEntry(r))
	}
	return QueueUpdate{
		EventType:    TypeQueueUpdate,
		Queue:        entries,
		QueueLength:  len(entries),
		MaxQueueSize: maxQueueSize,
		NextSong:     next,
	}
}

// VoteUpdate carries the live vote counts for the current track.
type VoteUpdate struct {
	EventType     string `json:"event_type"`
	Likes         int    `json:"likes"`
	Skips         int    `json:"skips"`
	SkipThreshold int    `json:"skip_threshold"`
}

// NewVoteUpdate builds a vote update payload.
func NewVoteUpdate(likes, skips, skipThreshold int) VoteUpdate {
	return VoteUpdate{
		EventType:     TypeVoteUpdate,
		Likes:         likes,
		Skips:         skips,
		SkipThreshold: skipThreshold,
	}
}

// PlaybackProgress is the periodic position sample for overlays.
type PlaybackProgress struct {
	EventType  string `json:"event_type"`
	ProgressMS int    `json:"progress_ms"`
	DurationMS int    `json:"duration_ms"`
	IsPlaying  bool   `json:"is_playing"`
}

// NewPlaybackProgress builds a progress payload.
func NewPlaybackProgress(progressMS, durationMS int, isPlaying bool) PlaybackProgress {
	return PlaybackProgress{
		EventType:  TypePlaybackProgress,
		ProgressMS: progressMS,
		DurationMS: durationMS,
		IsPlaying:  isPlaying,
	}
}

// PlaybackError reports a failed player interaction.
type PlaybackError struct {
	EventType string `json:"event_type"`
	Message   string `json:"message"`
	Code      string `json:"code"`
}

// NewPlaybackError builds an error payload.
func NewPlaybackError(code, message string) PlaybackError {
	return PlaybackError{
		EventType: TypePlaybackError,
		Message:   message,
		Code:      code,
	}
}

// SettingsUpdate carries the runtime settings after a change. The
// settings fields sit at the top level of the payload.
type SettingsUpdate struct {
	EventType string `json:"event_type"`
	playback.Settings
}

// NewSettingsUpdate builds a settings payload.
func NewSettingsUpdate(settings playback.Settings) SettingsUpdate {
	return SettingsUpdate{
		EventType: TypeSettingsUpdate,
		Settings:  settings,
	}
}

// Connected greets a new subscriber with a summary of the session.
type Connected struct {
	EventType         string `json:"event_type"`
	QueueLength       int    `json:"queue_length"`
	IsPlayingRequests bool   `json:"is_playing_requests"`
	ServerVersion     string `json:"server_version"`
}

// NewConnected builds the greeting payload.
func NewConnected(queueLength int, isPlayingRequests bool, serverVersion string) Connected {
	return Connected{
		EventType:         TypeConnected,
		QueueLength:       queueLength,
		IsPlayingRequests: isPlayingRequests,
		ServerVersion:     serverVersion,
	}
}

// Pong answers any text frame a client sends on the socket.
type Pong struct {
	EventType string `json:"event_type"`
}

// NewPong builds a pong payload.
func NewPong() Pong {
	return Pong{EventType: TypePong}
}
