// Package session provides the session manager.
package session

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/xkatng/twitch-song-requests/internal/app/notification"
	"github.com/xkatng/twitch-song-requests/internal/app/playback"
	"github.com/xkatng/twitch-song-requests/internal/app/vote"
	"github.com/xkatng/twitch-song-requests/internal/domain/song"
	"github.com/xkatng/twitch-song-requests/internal/infra/config"
	"github.com/xkatng/twitch-song-requests/internal/infra/sessionlog"
	"github.com/xkatng/twitch-song-requests/internal/infra/spotify"
)

// Version is reported to overlay clients on connect.
const Version = "1.0.0"

// Catalog resolves viewer input against the streamer's music service.
type Catalog interface {
	GetTrack(ctx context.Context, trackID string) (song.Track, error)
	SearchTrack(ctx context.Context, query string) (song.Track, error)
	NextInQueue(ctx context.Context) (*song.Track, error)
}

// Manager manages the song request session. It resolves viewer input
// into tracks, admits them into playback, and fans controller events
// out to overlay and dashboard subscribers.
type Manager struct {
	mu sync.RWMutex

	// Configuration
	config *config.Config

	// Components
	controller   *playback.Controller
	catalog      Catalog
	notification *notification.Manager
	history      *sessionlog.Logger // nil when the session log is disabled

	lastSong  *song.Request
	startedAt time.Time

	// Channels
	ctx    context.Context
	cancel context.CancelFunc
}

// NewManager creates a new session manager.
func NewManager(
	cfg *config.Config,
	controller *playback.Controller,
	catalog Catalog,
	history *sessionlog.Logger,
) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		config:       cfg,
		controller:   controller,
		catalog:      catalog,
		notification: notification.NewManager(),
		history:      history,
		startedAt:    time.Now(),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start starts the session: the playback reconciler, the event fanout
// loop and the session history log.
func (m *Manager) Start() {
	if m.history != nil {
		if _, err := m.history.Start(); err != nil {
			zlog.Warn().Msgf("Session log disabled: %v", err)
			m.history = nil
		}
	}

	go m.controller.Run(m.ctx)
	go m.playbackLoop()
}

// Close closes the session manager.
func (m *Manager) Close() {
	m.cancel()
	m.controller.Close()
	m.notification.Close()
	if m.history != nil {
		if err := m.history.Close(); err != nil {
			zlog.Warn().Msgf("Session log close failed: %v", err)
		}
	}
}

// RequestSong resolves viewer input into a track and runs it through
// admission. Input is either free text searched on the catalog or a
// Spotify link. The returned reply is ready to send to chat.
func (m *Manager) RequestSong(ctx context.Context, user, input string, source song.Source) (string, bool) {
	input = strings.TrimSpace(input)

	var (
		track song.Track
		err   error
	)
	if kind, id, ok := spotify.FindLink(input); ok {
		if kind != spotify.LinkTrack {
			return m.reply("wrong_link_kind", "{user}", user, "{kind}", string(kind)), false
		}
		track, err = m.catalog.GetTrack(ctx, id)
	} else {
		track, err = m.catalog.SearchTrack(ctx, input)
	}
	if err != nil {
		if errors.Is(err, spotify.ErrTrackNotFound) {
			zlog.Info().Msgf("Request by %s matched nothing: %q", user, input)
			return m.reply("track_not_found", "{user}", user), false
		}
		zlog.Error().Msgf("Track lookup failed for %q: %v", input, err)
		return m.reply("default_error", "{user}", user), false
	}

	res := m.controller.Admit(ctx, track, user, source)
	if !res.Result.Accepted {
		return m.reply(res.Result.Code,
			"{user}", user,
			"{title}", track.Title,
			"{artist}", track.Artist,
			"{max}", strconv.Itoa(m.controller.Settings().MaxQueueSize),
			"{wait}", formatWait(res.Result.RetryAfter),
		), false
	}

	return m.reply("accepted",
		"{user}", user,
		"{title}", track.Title,
		"{artist}", track.Artist,
		"{position}", strconv.Itoa(res.Position),
	), true
}

// reply expands a configured message template. vars alternate between
// placeholder and value.
func (m *Manager) reply(code string, vars ...string) string {
	return strings.NewReplacer(vars...).Replace(m.config.GetMessage(code))
}

func formatWait(d time.Duration) string {
	if d < time.Second {
		d = time.Second
	}
	return d.Round(time.Second).String()
}

// Vote records a like or skip vote for the current track.
func (m *Manager) Vote(user string, kind vote.Kind) (vote.Result, error) {
	return m.controller.Vote(user, kind)
}

// Like records a like from the user and returns the liked track's title.
func (m *Manager) Like(user string) (string, bool) {
	return m.voteTitle(user, vote.KindLike)
}

// PassVote records a skip vote from the user and returns the current
// track's title.
func (m *Manager) PassVote(user string) (string, bool) {
	return m.voteTitle(user, vote.KindSkip)
}

func (m *Manager) voteTitle(user string, kind vote.Kind) (string, bool) {
	res, err := m.controller.Vote(user, kind)
	if err != nil || !res.Added {
		return "", false
	}
	if st := m.controller.Status(); st.Current != nil {
		return st.Current.Track.Title, true
	}
	return "", true
}

// ForceSkip skips the current track regardless of votes.
func (m *Manager) ForceSkip() {
	m.controller.RequestSkip()
}

// ClearQueue removes every queued request.
func (m *Manager) ClearQueue() int {
	return m.controller.ClearQueue()
}

// RemoveAt removes the queue entry at the given zero-based index.
func (m *Manager) RemoveAt(index int) (song.Request, error) {
	return m.controller.RemoveAt(index)
}

// Queue returns a snapshot of the request queue.
func (m *Manager) Queue() []song.Request {
	return m.controller.Status().Queue
}

// NowPlaying returns a display string for the playing track, request
// or not.
func (m *Manager) NowPlaying() (string, bool) {
	st := m.controller.Status()
	switch {
	case st.Current != nil:
		return st.Current.Track.Title + " - " + st.Current.Track.Artist, true
	case st.External != nil:
		return st.External.Title + " - " + st.External.Artist, true
	}
	return "", false
}

// LastSong returns a display string for the last finished request.
func (m *Manager) LastSong() (string, bool) {
	m.mu.RLock()
	last := m.lastSong
	m.mu.RUnlock()

	if last == nil {
		return "", false
	}
	return last.Track.Title + " - " + last.Track.Artist, true
}

// Settings returns the current runtime settings.
func (m *Manager) Settings() playback.Settings {
	return m.controller.Settings()
}

// UpdateSettings applies a partial settings update.
func (m *Manager) UpdateSettings(update playback.SettingsUpdate) playback.Settings {
	return m.controller.UpdateSettings(update)
}

// Blocklist returns a snapshot of the blocklist.
func (m *Manager) Blocklist() playback.Blocklist {
	return m.controller.Blocklist()
}

// BlockArtist adds an artist to the blocklist.
func (m *Manager) BlockArtist(name string) bool {
	return m.controller.BlockArtist(name)
}

// BlockTrack adds a track ID to the blocklist.
func (m *Manager) BlockTrack(id string) bool {
	return m.controller.BlockTrack(id)
}

// Unblock removes an entry from the blocklist.
func (m *Manager) Unblock(item string) bool {
	return m.controller.Unblock(item)
}

// Status represents the current session status with all information.
type Status struct {
	playback.Status
	LastSong  *song.Request
	StartedAt time.Time
}

// GetStatus returns the current session status.
func (m *Manager) GetStatus() Status {
	m.mu.RLock()
	last := m.lastSong
	started := m.startedAt
	m.mu.RUnlock()

	st := Status{
		Status:    m.controller.Status(),
		StartedAt: started,
	}
	if last != nil {
		l := *last
		st.LastSong = &l
	}
	return st
}

// NextUp previews the upcoming track: the queue head when one is
// queued, otherwise whatever the player reports next in its own queue.
func (m *Manager) NextUp(ctx context.Context) *notification.QueueEntry {
	st := m.controller.Status()
	if len(st.Queue) > 0 {
		e := notification.NewQueueEntry(st.Queue[0])
		return &e
	}

	t, err := m.catalog.NextInQueue(ctx)
	if err != nil {
		zlog.Debug().Msgf("Next in queue lookup failed: %v", err)
		return nil
	}
	if t == nil {
		return nil
	}
	return &notification.QueueEntry{
		Title:       t.Title,
		Artist:      t.Artist,
		AlbumArtURL: t.AlbumArtURL,
		DurationMS:  t.DurationMS(),
	}
}

// RecentHistory returns the newest session log entries, oldest first.
func (m *Manager) RecentHistory(limit int) ([]sessionlog.Entry, error) {
	if m.history == nil {
		return []sessionlog.Entry{}, nil
	}
	return m.history.Recent(limit)
}

// Snapshot builds the initial payloads for a new subscriber: the
// greeting first, then the playing track, votes and queue.
func (m *Manager) Snapshot() []any {
	st := m.controller.Status()

	payloads := []any{notification.NewConnected(len(st.Queue), st.Current != nil, Version)}
	switch {
	case st.Current != nil:
		payloads = append(payloads,
			notification.NewSongChange(st.Current.Track, st.Current.Requester, st.ProgressMS, st.Likes, st.Skips),
			notification.NewVoteUpdate(st.Likes, st.Skips, st.SkipThreshold))
	case st.External != nil:
		payloads = append(payloads,
			notification.NewSongChange(*st.External, "", st.ProgressMS, st.Likes, st.Skips))
	}
	return append(payloads, notification.NewQueueUpdate(st.Queue, st.MaxQueueSize, m.queueHead(st)))
}

// GetNotificationManager returns the notification manager.
func (m *Manager) GetNotificationManager() *notification.Manager {
	return m.notification
}

// ConnectionCount returns the number of connected subscribers.
func (m *Manager) ConnectionCount() int {
	return m.notification.SubscriberCount()
}

// playbackLoop handles playback events.
func (m *Manager) playbackLoop() {
	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Msgf("Playback loop panicked: %v", r)
			// Restart loop to prevent a zombie session
			zlog.Info().Msg("Restarting playback loop")
			go m.playbackLoop()
		}
	}()

	for {
		select {
		case <-m.ctx.Done():
			return
		case event := <-m.controller.Events():
			m.handlePlaybackEvent(event)
		}
	}
}

// handlePlaybackEvent translates one controller event into overlay
// payloads.
func (m *Manager) handlePlaybackEvent(event playback.Event) {
	zlog.Debug().Msgf("Playback event: %s", event.Type)

	switch event.Type {
	case playback.EventSongChanged:
		m.onSongChanged(event)

	case playback.EventQueueChanged:
		st := m.controller.Status()
		m.notification.Broadcast(notification.NewQueueUpdate(st.Queue, st.MaxQueueSize, m.queueHead(st)))

	case playback.EventVotesChanged:
		m.notification.Broadcast(notification.NewVoteUpdate(event.Likes, event.Skips, event.SkipThreshold))

	case playback.EventProgress:
		m.notification.Broadcast(notification.NewPlaybackProgress(event.ProgressMS, event.DurationMS, event.IsPlaying))

	case playback.EventTrackFinished:
		m.onTrackFinished(event)

	case playback.EventSettingsChanged:
		m.notification.Broadcast(notification.NewSettingsUpdate(m.controller.Settings()))

	case playback.EventPlaybackError:
		m.notification.Broadcast(notification.NewPlaybackError(event.Code, event.Message))

	case playback.EventSessionLost:
		m.notification.Broadcast(notification.NewPlaybackError("session_lost", event.Message))
	}
}

func (m *Manager) onSongChanged(event playback.Event) {
	switch {
	case event.Request != nil:
		m.notification.Broadcast(notification.NewSongChange(
			event.Request.Track, event.Request.Requester, event.ProgressMS, event.Likes, event.Skips))
	case event.Track != nil:
		m.notification.Broadcast(notification.NewSongChange(
			*event.Track, "", event.ProgressMS, event.Likes, event.Skips))
	}
}

// onTrackFinished records the request for !lastsong and appends it to
// the session log with its final vote counts.
func (m *Manager) onTrackFinished(event playback.Event) {
	if event.Request == nil {
		return
	}

	req := *event.Request
	m.mu.Lock()
	m.lastSong = &req
	m.mu.Unlock()

	if m.history == nil {
		return
	}
	if err := m.history.Append(req, event.Likes, event.Skips); err != nil {
		zlog.Error().Msgf("Session log append failed: %v", err)
	}
}

// queueHead is the next song preview used on queue updates. The event
// loop never waits on the network, so the player's own queue is not
// consulted here; handlers that can afford that call use NextUp.
func (m *Manager) queueHead(st playback.Status) *notification.QueueEntry {
	if len(st.Queue) == 0 {
		return nil
	}
	e := notification.NewQueueEntry(st.Queue[0])
	return &e
}
