package playback

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/xkatng/twitch-song-requests/internal/domain/song"
)

type commandKind int

const (
	commandPlay commandKind = iota
	commandResume
	commandNext
)

func (k commandKind) String() string {
	switch k {
	case commandPlay:
		return "play"
	case commandResume:
		return "resume"
	case commandNext:
		return "next"
	default:
		return "unknown"
	}
}

// command is a player command decided under the lock and issued outside it.
type command struct {
	kind commandKind
	uri  string // Track URI for play, context URI for resume
	skip bool   // The command was caused by a skip
}

// Run drives the reconcile loop until the context is canceled. It polls
// the player on a fixed interval and additionally whenever a mutation
// nudges it, so accepted requests and skips take effect without waiting
// out the full interval.
func (c *Controller) Run(ctx context.Context) {
	zlog.Info().Msgf("Playback reconciler started (poll interval %s)", c.config.PollInterval)
	ticker := time.NewTicker(c.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			zlog.Info().Msg("Playback reconciler stopped")
			return
		case <-c.ctx.Done():
			zlog.Info().Msg("Playback reconciler stopped")
			return
		case <-ticker.C:
		case <-c.nudgeCh:
		}
		c.reconcile(ctx)
	}
}

// reconcile performs one pass: poll the player off the lock, fold the
// observation into session state, then issue at most one command.
// Passes run strictly one at a time, so a slow poll coalesces ticks
// instead of stacking them.
func (c *Controller) reconcile(ctx context.Context) {
	ps, err := c.player.CurrentPlayback(ctx)
	if err != nil {
		zlog.Warn().Msgf("Player poll failed: %v", err)
		return
	}

	events, cmd := c.observe(ps)
	c.publish(events...)
	if cmd != nil {
		c.execute(ctx, *cmd)
	}
}

// observe folds one player report into session state and decides the
// next command, all in one critical section.
func (c *Controller) observe(ps PlayerState) ([]Event, *command) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var events []Event

	if !ps.Active {
		if !c.sessionLost {
			c.sessionLost = true
			c.state = StateIdle
			c.expected = expectation{}
			c.external = nil
			c.lastReportedID = ""
			if c.current != nil {
				events = append(events, c.finishCurrentLocked(OutcomePlayed), c.votesEventLocked())
			}
			zlog.Warn().Msg("No active Spotify session, waiting for a device")
			events = append(events, Event{Type: EventSessionLost, Message: "no active Spotify session"})
		}
		c.isPlaying = false
		c.progressMS = 0
		c.durationMS = 0
		return append(events, c.progressEventLocked()), nil
	}
	if c.sessionLost {
		c.sessionLost = false
		zlog.Info().Msg("Spotify session restored")
	}

	// Remember the streamer's own context so an emptied queue can hand
	// playback back to it. Requests play ad hoc and report no context.
	if ps.ContextURI != "" {
		c.fallbackContext = ps.ContextURI
	}

	prevProgress := c.progressMS
	c.progressMS = ps.ProgressMS
	c.durationMS = ps.DurationMS
	c.isPlaying = ps.IsPlaying

	changed := ps.TrackID != "" && ps.TrackID != c.lastReportedID
	if changed {
		events = append(events, c.commitChangeLocked(ps)...)
	}

	var cmd *command
	switch {
	case c.state == StateTransitioning:
		if !c.expected.deadline.IsZero() && c.now().After(c.expected.deadline) {
			wasSkip := c.expected.skip
			zlog.Warn().Msg("Commanded transition never confirmed, going idle")
			c.state = StateIdle
			c.expected = expectation{}
			c.backoffUntil = c.now().Add(c.config.FailureBackoff)
			events = append(events, Event{
				Type:    EventPlaybackError,
				Code:    "transition_timeout",
				Message: "player never confirmed the commanded track",
			})
			if c.current != nil {
				outcome := OutcomePlayed
				if wasSkip {
					outcome = OutcomeSkipped
				}
				events = append(events, c.finishCurrentLocked(outcome), c.votesEventLocked())
			}
		}
	case c.pendingSkip:
		evs, adv := c.advanceLocked(true)
		events = append(events, evs...)
		cmd = adv
	case !changed && c.state == StatePlayingRequest && c.requestEndedLocked(ps, prevProgress):
		evs, adv := c.advanceLocked(false)
		events = append(events, evs...)
		cmd = adv
	case (c.state == StateIdle || c.state == StatePlayingFallback) && c.queue.Len() > 0 && c.now().After(c.backoffUntil):
		cmd = c.startHeadCommandLocked(false)
	}

	return append(events, c.progressEventLocked()), cmd
}

// commitChangeLocked handles the player reporting a different track than
// last poll. The departing request (if any) is finished, votes reset,
// and the new track is matched against the pending transition, then the
// queue, then treated as fallback playback.
func (c *Controller) commitChangeLocked(ps PlayerState) []Event {
	var events []Event

	if c.current != nil {
		outcome := OutcomePlayed
		if c.expected.skip {
			outcome = OutcomeSkipped
		}
		events = append(events, c.finishCurrentLocked(outcome))
	}

	c.lastReportedID = ps.TrackID
	c.tally.Reset()
	c.pendingSkip = false

	switch {
	case c.expected.trackID != "" && ps.TrackID == c.expected.trackID:
		// The commanded request was confirmed; pop it now.
		req := c.expected.request
		c.queue.RemoveByTrackID(req.Track.ID)
		c.current = &req
		c.external = nil
		c.state = StatePlayingRequest
		c.expected = expectation{}
		zlog.Info().Msgf("Now playing request: %s - %s (requested by %s)",
			req.Track.Artist, req.Track.Title, req.Requester)
		events = append(events, c.songEventLocked(), c.queueEventLocked())
	default:
		if req, ok := c.queue.RemoveByTrackID(ps.TrackID); ok {
			// The player moved onto a queued request on its own.
			c.current = &req
			c.external = nil
			c.state = StatePlayingRequest
			c.expected = expectation{}
			zlog.Info().Msgf("Player advanced to queued request: %s - %s", req.Track.Artist, req.Track.Title)
			events = append(events, c.songEventLocked(), c.queueEventLocked())
		} else {
			t := trackFromPlayer(ps)
			c.current = nil
			c.external = &t
			c.state = StatePlayingFallback
			c.expected = expectation{}
			zlog.Debug().Msgf("Fallback playback: %s - %s", t.Artist, t.Title)
			events = append(events, c.songEventLocked())
		}
	}

	return append(events, c.votesEventLocked())
}

// requestEndedLocked reports whether the current request finished on its
// own. Ad hoc playback has no context to continue into, so the player
// parks on the finished track, paused at position zero.
func (c *Controller) requestEndedLocked(ps PlayerState, prevProgress int) bool {
	if c.current == nil || ps.TrackID != c.current.Track.ID {
		return false
	}
	return !ps.IsPlaying && ps.ProgressMS == 0 && prevProgress > 0
}

// advanceLocked moves playback off the current track: onto the queue
// head when one is queued, back to the streamer's context when one was
// captured, otherwise whatever the player considers next.
func (c *Controller) advanceLocked(skip bool) ([]Event, *command) {
	c.pendingSkip = false

	if c.queue.Len() > 0 {
		return nil, c.startHeadCommandLocked(skip)
	}
	if skip && c.state == StatePlayingFallback {
		c.state = StateTransitioning
		c.expected = expectation{skip: true}
		return nil, &command{kind: commandNext, skip: true}
	}
	if c.fallbackContext != "" {
		c.state = StateTransitioning
		c.expected = expectation{skip: skip}
		zlog.Info().Msg("Queue empty, handing playback back to the streamer's context")
		return nil, &command{kind: commandResume, uri: c.fallbackContext, skip: skip}
	}
	if skip && c.state == StatePlayingRequest {
		c.state = StateTransitioning
		c.expected = expectation{skip: true}
		return nil, &command{kind: commandNext, skip: true}
	}

	// Nothing to advance to.
	var events []Event
	if c.current != nil {
		events = append(events, c.finishCurrentLocked(OutcomePlayed), c.votesEventLocked())
	}
	c.state = StateIdle
	return events, nil
}

// startHeadCommandLocked commands the queue head to play. The entry is
// popped only once the player confirms it, so a failed command leaves
// the queue intact.
func (c *Controller) startHeadCommandLocked(skip bool) *command {
	head, err := c.queue.Peek()
	if err != nil {
		return nil
	}
	c.state = StateTransitioning
	c.expected = expectation{request: head, trackID: head.Track.ID, skip: skip}
	zlog.Info().Msgf("Starting queued request: %s - %s (requested by %s)",
		head.Track.Artist, head.Track.Title, head.Requester)
	return &command{kind: commandPlay, uri: head.Track.URI, skip: skip}
}

// execute issues a command with bounded retries and linear backoff, then
// commits the outcome.
func (c *Controller) execute(ctx context.Context, cmd command) {
	var err error
	for attempt := 1; attempt <= c.config.CommandAttempts; attempt++ {
		if err = c.issue(ctx, cmd); err == nil {
			break
		}
		zlog.Warn().Msgf("Player command %s failed (attempt %d/%d): %v",
			cmd.kind, attempt, c.config.CommandAttempts, err)
		if attempt < c.config.CommandAttempts {
			select {
			case <-time.After(c.config.CommandRetryDelay * time.Duration(attempt)):
			case <-ctx.Done():
				return
			}
		}
	}
	c.commitCommand(cmd, err)
}

func (c *Controller) issue(ctx context.Context, cmd command) error {
	switch cmd.kind {
	case commandPlay:
		return c.player.PlayTrack(ctx, cmd.uri)
	case commandResume:
		return c.player.ResumeContext(ctx, cmd.uri)
	case commandNext:
		return c.player.NextTrack(ctx)
	default:
		return errors.Newf("unknown command kind %d", cmd.kind)
	}
}

// commitCommand records the command outcome. Success arms the
// confirmation deadline; failure degrades to idle with the queue left
// untouched so the head can be retried after the backoff.
func (c *Controller) commitCommand(cmd command, err error) {
	c.mu.Lock()
	if c.state != StateTransitioning {
		// A newer observation already resolved this transition.
		c.mu.Unlock()
		return
	}

	if err == nil {
		c.expected.deadline = c.now().Add(c.config.TransitionDeadline)
		c.mu.Unlock()
		return
	}

	c.state = StateIdle
	c.expected = expectation{}
	c.backoffUntil = c.now().Add(c.config.FailureBackoff)
	events := []Event{{Type: EventPlaybackError, Code: "command_failed", Message: err.Error()}}
	if c.current != nil {
		outcome := OutcomePlayed
		if cmd.skip {
			outcome = OutcomeSkipped
		}
		events = append(events, c.finishCurrentLocked(outcome), c.votesEventLocked())
	}
	c.mu.Unlock()

	zlog.Error().Msgf("Player command %s failed after %d attempts: %v", cmd.kind, c.config.CommandAttempts, err)
	c.publish(events...)
}

// finishCurrentLocked retires the current request, capturing its final
// vote counts before the tally resets.
func (c *Controller) finishCurrentLocked(outcome Outcome) Event {
	likes, skips := c.tally.Counts()
	done := *c.current
	c.current = nil
	c.tally.Reset()
	zlog.Info().Msgf("Request finished (%s): %s - %s", outcome, done.Track.Artist, done.Track.Title)
	return Event{
		Type:          EventTrackFinished,
		Request:       &done,
		Outcome:       outcome,
		Likes:         likes,
		Skips:         skips,
		SkipThreshold: c.settings.SkipThreshold,
	}
}

// songEventLocked builds a song change event from current state.
func (c *Controller) songEventLocked() Event {
	likes, skips := c.tally.Counts()
	e := Event{
		Type:          EventSongChanged,
		Likes:         likes,
		Skips:         skips,
		SkipThreshold: c.settings.SkipThreshold,
		ProgressMS:    c.progressMS,
		DurationMS:    c.durationMS,
		IsPlaying:     c.isPlaying,
	}
	if c.current != nil {
		req := *c.current
		e.Request = &req
	} else if c.external != nil {
		t := *c.external
		e.Track = &t
	}
	return e
}

// progressEventLocked builds a progress sample event.
func (c *Controller) progressEventLocked() Event {
	return Event{
		Type:       EventProgress,
		ProgressMS: c.progressMS,
		DurationMS: c.durationMS,
		IsPlaying:  c.isPlaying,
	}
}

func trackFromPlayer(ps PlayerState) song.Track {
	return song.Track{
		ID:          ps.TrackID,
		URI:         ps.TrackURI,
		Title:       ps.Title,
		Artist:      ps.Artist,
		Album:       ps.Album,
		AlbumArtURL: ps.AlbumArtURL,
		Duration:    time.Duration(ps.DurationMS) * time.Millisecond,
	}
}
