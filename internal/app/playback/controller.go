package playback

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/xkatng/twitch-song-requests/internal/app/filter"
	"github.com/xkatng/twitch-song-requests/internal/app/vote"
	"github.com/xkatng/twitch-song-requests/internal/domain/queue"
	"github.com/xkatng/twitch-song-requests/internal/domain/song"
)

// Errors
var (
	ErrNothingPlaying = errors.New("nothing is playing")
)

// PlayerState is the controller's view of what the external player
// reports on a single poll.
type PlayerState struct {
	Active      bool // A device session exists and a track is loaded
	TrackID     string
	TrackURI    string
	Title       string
	Artist      string
	Album       string
	AlbumArtURL string
	DurationMS  int
	ProgressMS  int
	IsPlaying   bool
	ContextURI  string // Album or playlist context, empty for ad hoc playback
}

// Player issues commands to the external player. The Spotify client
// implements it; tests supply a fake.
type Player interface {
	// CurrentPlayback reports the player state for the poll loop.
	CurrentPlayback(ctx context.Context) (PlayerState, error)
	// PlayTrack starts ad hoc playback of a single track URI.
	PlayTrack(ctx context.Context, uri string) error
	// ResumeContext resumes playback of an album or playlist context.
	ResumeContext(ctx context.Context, contextURI string) error
	// NextTrack advances the player to its own next track.
	NextTrack(ctx context.Context) error
}

// Config holds controller configuration.
type Config struct {
	PollInterval       time.Duration // Interval between player polls
	CommandAttempts    int           // Attempts per player command before degrading
	CommandRetryDelay  time.Duration // Base delay between command attempts (grows linearly)
	TransitionDeadline time.Duration // How long a commanded track may stay unconfirmed
	FailureBackoff     time.Duration // Pause before auto starting the head again after a failure
	Settings           Settings      // Initial runtime settings
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.CommandAttempts <= 0 {
		c.CommandAttempts = 3
	}
	if c.CommandRetryDelay <= 0 {
		c.CommandRetryDelay = time.Second
	}
	if c.TransitionDeadline <= 0 {
		c.TransitionDeadline = 10 * time.Second
	}
	if c.FailureBackoff <= 0 {
		c.FailureBackoff = 15 * time.Second
	}
	return c
}

// AdmitResult is the outcome of admitting a request.
type AdmitResult struct {
	Result   filter.Result
	Request  song.Request
	Position int // 1-based queue position, valid when accepted
}

// expectation tracks a commanded transition awaiting player confirmation.
type expectation struct {
	request  song.Request // The commanded request (zero for fallback resumes)
	trackID  string       // Track the player should report next
	skip     bool         // The transition was caused by a skip
	deadline time.Time    // Zero while the command is still in flight
}

// Controller owns all mutable session state behind a single mutex: the
// queue, votes, cooldowns, runtime settings, blocklist and the playback
// state machine. All writes go through it; the reconcile loop in Run is
// the only goroutine issuing player commands.
type Controller struct {
	mu sync.Mutex

	queue *queue.Queue
	tally *vote.Tally
	chain *filter.Chain

	player Player

	state          State
	current        *song.Request // Set iff state == StatePlayingRequest
	external       *song.Track   // Last reported non-request track
	lastReportedID string
	expected       expectation
	pendingSkip    bool

	settings        Settings
	blockedArtists  []string
	blockedTrackIDs []string
	playedIDs       map[string]bool
	cooldowns       map[string]time.Time
	fallbackContext string

	progressMS   int
	durationMS   int
	isPlaying    bool
	sessionLost  bool
	backoffUntil time.Time

	config Config

	eventCh chan Event
	nudgeCh chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	now func() time.Time
}

// NewController creates a playback controller.
func NewController(config Config, chain *filter.Chain, player Player) *Controller {
	config = config.withDefaults()
	config.Settings = config.Settings.clamped()
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		queue:     queue.New(config.Settings.MaxQueueSize),
		tally:     vote.New(),
		chain:     chain,
		player:    player,
		state:     StateIdle,
		settings:  config.Settings,
		playedIDs: make(map[string]bool),
		cooldowns: make(map[string]time.Time),
		config:    config,
		eventCh:   make(chan Event, 64),
		nudgeCh:   make(chan struct{}, 1),
		ctx:       ctx,
		cancel:    cancel,
		now:       time.Now,
	}
}

// Events returns the event channel.
func (c *Controller) Events() <-chan Event {
	return c.eventCh
}

// Close stops the controller.
func (c *Controller) Close() {
	c.cancel()
}

// Admit runs a resolved track through the admission chain and, when it
// passes, enqueues it and stamps the requester's cooldown. Evaluation
// and commit happen in one critical section so two concurrent requests
// cannot both squeeze into the last queue slot.
func (c *Controller) Admit(ctx context.Context, track song.Track, requester string, source song.Source) AdmitResult {
	cand := filter.Candidate{Track: track, Requester: requester, Source: source}

	c.mu.Lock()
	res := c.chain.Execute(ctx, cand, c.filterStateLocked(requester))
	if !res.Accepted {
		c.mu.Unlock()
		zlog.Debug().Msgf("Request rejected: %s by %s (%s)", track.Title, requester, res.Code)
		return AdmitResult{Result: res}
	}

	req := song.NewRequest(track, requester, source)
	pos, err := c.queue.Enqueue(req)
	if err != nil {
		// The chain already vetted capacity and uniqueness; a failure
		// here means the state changed between checks, which the shared
		// lock rules out. Treat it as a rejection all the same.
		c.mu.Unlock()
		zlog.Error().Msgf("Enqueue failed after admission: %v", err)
		return AdmitResult{Result: filter.Reject(filter.CodeQueueFull)}
	}
	c.playedIDs[track.ID] = true
	c.cooldowns[song.RequesterKey(requester)] = c.now()
	events := []Event{c.queueEventLocked()}
	c.mu.Unlock()

	zlog.Info().Msgf("Request accepted: %s - %s by %s (position %d)", track.Artist, track.Title, requester, pos)
	c.publish(events...)
	c.nudge()
	return AdmitResult{Result: res, Request: req, Position: pos}
}

// Vote records a like or skip vote for the current track. A skip vote
// that crosses the threshold latches a skip for the reconcile loop.
func (c *Controller) Vote(voter string, kind vote.Kind) (vote.Result, error) {
	c.mu.Lock()
	if c.current == nil {
		c.mu.Unlock()
		return vote.Result{}, ErrNothingPlaying
	}

	var res vote.Result
	switch kind {
	case vote.KindLike:
		res = c.tally.Like(voter)
	case vote.KindSkip:
		res = c.tally.Skip(voter, c.settings.SkipThreshold)
	default:
		c.mu.Unlock()
		return vote.Result{}, errors.Newf("unknown vote kind %q", kind)
	}

	events := []Event{c.votesEventLocked()}
	if res.ThresholdCrossed {
		c.pendingSkip = true
		zlog.Info().Msgf("Skip threshold reached (%d votes), skipping current track", res.Skips)
	}
	c.mu.Unlock()

	c.publish(events...)
	if res.ThresholdCrossed {
		c.nudge()
	}
	return res, nil
}

// RequestSkip latches a manual skip. The reconcile loop resolves it on
// the next pass.
func (c *Controller) RequestSkip() {
	c.mu.Lock()
	c.pendingSkip = true
	c.mu.Unlock()
	zlog.Info().Msg("Manual skip requested")
	c.nudge()
}

// RemoveAt removes the queue entry at the given zero-based index.
func (c *Controller) RemoveAt(index int) (song.Request, error) {
	c.mu.Lock()
	req, err := c.queue.RemoveAt(index)
	var events []Event
	if err == nil {
		events = append(events, c.queueEventLocked())
	}
	c.mu.Unlock()

	if err != nil {
		return song.Request{}, err
	}
	zlog.Info().Msgf("Removed from queue: %s (position %d)", req.Track.Title, index+1)
	c.publish(events...)
	return req, nil
}

// ClearQueue removes every queued entry and returns how many were removed.
func (c *Controller) ClearQueue() int {
	c.mu.Lock()
	removed := c.queue.Clear()
	var events []Event
	if removed > 0 {
		events = append(events, c.queueEventLocked())
	}
	c.mu.Unlock()

	if removed > 0 {
		zlog.Info().Msgf("Queue cleared (%d entries removed)", removed)
		c.publish(events...)
	}
	return removed
}

// Settings returns the current runtime settings.
func (c *Controller) Settings() Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

// UpdateSettings applies the non-nil fields of the update, clamping each
// value into its valid range, and returns the resulting settings.
// Shrinking the queue capacity keeps entries already queued.
func (c *Controller) UpdateSettings(update SettingsUpdate) Settings {
	c.mu.Lock()
	next := c.settings
	if update.MaxQueueSize != nil {
		next.MaxQueueSize = *update.MaxQueueSize
	}
	if update.CooldownSeconds != nil {
		next.CooldownSeconds = *update.CooldownSeconds
	}
	if update.SkipThreshold != nil {
		next.SkipThreshold = *update.SkipThreshold
	}
	next = next.clamped()
	c.settings = next
	c.queue.SetCapacity(next.MaxQueueSize)
	events := []Event{{Type: EventSettingsChanged}, c.queueEventLocked()}
	c.mu.Unlock()

	zlog.Info().Msgf("Settings updated: max_queue_size=%d cooldown=%ds skip_threshold=%d",
		next.MaxQueueSize, next.CooldownSeconds, next.SkipThreshold)
	c.publish(events...)
	return next
}

// BlockArtist adds an artist to the blocklist and drops matching queued
// entries. Matching is a case insensitive substring test against the
// request's artist field. Returns false when already blocked.
func (c *Controller) BlockArtist(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}

	c.mu.Lock()
	for _, a := range c.blockedArtists {
		if strings.EqualFold(a, name) {
			c.mu.Unlock()
			return false
		}
	}
	c.blockedArtists = append(c.blockedArtists, name)
	removed := c.purgeQueueLocked(func(r song.Request) bool {
		return strings.Contains(strings.ToLower(r.Track.Artist), strings.ToLower(name))
	})
	var events []Event
	if removed > 0 {
		events = append(events, c.queueEventLocked())
	}
	c.mu.Unlock()

	zlog.Info().Msgf("Blocked artist: %s (%d queued entries dropped)", name, removed)
	c.publish(events...)
	return true
}

// BlockTrack adds a track ID to the blocklist and drops it from the
// queue if present. Returns false when already blocked.
func (c *Controller) BlockTrack(id string) bool {
	id = strings.TrimSpace(id)
	if id == "" {
		return false
	}

	c.mu.Lock()
	for _, t := range c.blockedTrackIDs {
		if t == id {
			c.mu.Unlock()
			return false
		}
	}
	c.blockedTrackIDs = append(c.blockedTrackIDs, id)
	_, dropped := c.queue.RemoveByTrackID(id)
	var events []Event
	if dropped {
		events = append(events, c.queueEventLocked())
	}
	c.mu.Unlock()

	zlog.Info().Msgf("Blocked track: %s", id)
	c.publish(events...)
	return true
}

// Unblock removes an entry from the blocklist by value. Artist names
// compare case insensitively, track IDs exactly.
func (c *Controller) Unblock(item string) bool {
	item = strings.TrimSpace(item)

	c.mu.Lock()
	defer c.mu.Unlock()
	for i, a := range c.blockedArtists {
		if strings.EqualFold(a, item) {
			c.blockedArtists = append(c.blockedArtists[:i], c.blockedArtists[i+1:]...)
			zlog.Info().Msgf("Unblocked artist: %s", a)
			return true
		}
	}
	for i, t := range c.blockedTrackIDs {
		if t == item {
			c.blockedTrackIDs = append(c.blockedTrackIDs[:i], c.blockedTrackIDs[i+1:]...)
			zlog.Info().Msgf("Unblocked track: %s", t)
			return true
		}
	}
	return false
}

// Blocklist returns a snapshot of the blocklist.
func (c *Controller) Blocklist() Blocklist {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Blocklist{
		Artists:  append([]string(nil), c.blockedArtists...),
		TrackIDs: append([]string(nil), c.blockedTrackIDs...),
	}
}

// Status is a consistent snapshot of the session for API handlers and
// overlay payloads.
type Status struct {
	State         State
	Current       *song.Request
	External      *song.Track
	Queue         []song.Request
	MaxQueueSize  int
	Likes         int
	Skips         int
	SkipThreshold int
	ProgressMS    int
	DurationMS    int
	IsPlaying     bool
	Settings      Settings
}

// Status returns a snapshot of the session state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	likes, skips := c.tally.Counts()
	st := Status{
		State:         c.state,
		Queue:         c.queue.Snapshot(),
		MaxQueueSize:  c.settings.MaxQueueSize,
		Likes:         likes,
		Skips:         skips,
		SkipThreshold: c.settings.SkipThreshold,
		ProgressMS:    c.progressMS,
		DurationMS:    c.durationMS,
		IsPlaying:     c.isPlaying,
		Settings:      c.settings,
	}
	if c.current != nil {
		cur := *c.current
		st.Current = &cur
	}
	if c.external != nil {
		ext := *c.external
		st.External = &ext
	}
	return st
}

// filterStateLocked builds the admission view for the chain.
func (c *Controller) filterStateLocked(requester string) filter.State {
	queued := make(map[string]bool, c.queue.Len())
	for _, r := range c.queue.Snapshot() {
		queued[r.Track.ID] = true
	}
	played := make(map[string]bool, len(c.playedIDs))
	for id := range c.playedIDs {
		played[id] = true
	}
	blockedIDs := make(map[string]bool, len(c.blockedTrackIDs))
	for _, id := range c.blockedTrackIDs {
		blockedIDs[id] = true
	}

	var currentID string
	if c.current != nil {
		currentID = c.current.Track.ID
	}

	return filter.State{
		QueueLen:        c.queue.Len(),
		MaxQueueSize:    c.settings.MaxQueueSize,
		QueuedTrackIDs:  queued,
		PlayedTrackIDs:  played,
		CurrentTrackID:  currentID,
		BlockedArtists:  append([]string(nil), c.blockedArtists...),
		BlockedTrackIDs: blockedIDs,
		CooldownWindow:  time.Duration(c.settings.CooldownSeconds) * time.Second,
		LastRequestAt:   c.cooldowns[song.RequesterKey(requester)],
		Now:             c.now(),
	}
}

// purgeQueueLocked removes every queued entry matching the predicate.
func (c *Controller) purgeQueueLocked(match func(song.Request) bool) int {
	removed := 0
	snap := c.queue.Snapshot()
	for i := len(snap) - 1; i >= 0; i-- {
		if match(snap[i]) {
			if _, err := c.queue.RemoveAt(i); err == nil {
				removed++
			}
		}
	}
	return removed
}

// queueEventLocked builds a queue change event from current state.
func (c *Controller) queueEventLocked() Event {
	return Event{Type: EventQueueChanged}
}

// votesEventLocked builds a vote change event from current state.
func (c *Controller) votesEventLocked() Event {
	likes, skips := c.tally.Counts()
	return Event{
		Type:          EventVotesChanged,
		Likes:         likes,
		Skips:         skips,
		SkipThreshold: c.settings.SkipThreshold,
	}
}

// publish sends events to the consumer without ever blocking a caller.
// A full channel drops the event; consumers rebuild from Status.
func (c *Controller) publish(events ...Event) {
	for _, e := range events {
		select {
		case c.eventCh <- e:
		case <-c.ctx.Done():
			return
		default:
			zlog.Warn().Msgf("Event channel full, dropping %s", e.Type)
		}
	}
}

// nudge wakes the reconcile loop ahead of its next tick.
func (c *Controller) nudge() {
	select {
	case c.nudgeCh <- struct{}{}:
	default:
	}
}
