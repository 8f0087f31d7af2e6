package spotify

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/zmb3/spotify/v2"

	"github.com/xkatng/twitch-song-requests/internal/app/playback"
)

// CurrentPlayback reports the player state for the reconcile loop. A
// missing device or empty session maps to an inactive report, not an
// error.
func (c *Client) CurrentPlayback(ctx context.Context) (playback.PlayerState, error) {
	ps, err := c.client.PlayerState(ctx)
	if err != nil {
		// The player endpoint answers 204 with no body when nothing is
		// active; the JSON decoder surfaces that as EOF.
		if isNoContent(err) {
			return playback.PlayerState{}, nil
		}
		return playback.PlayerState{}, errors.Wrap(err, "failed to get player state")
	}
	if ps == nil || ps.Item == nil {
		return playback.PlayerState{}, nil
	}

	var albumArt string
	if len(ps.Item.Album.Images) > 0 {
		albumArt = ps.Item.Album.Images[0].URL
	}
	names := make([]string, len(ps.Item.Artists))
	for i, a := range ps.Item.Artists {
		names[i] = a.Name
	}

	return playback.PlayerState{
		Active:      true,
		TrackID:     string(ps.Item.ID),
		TrackURI:    string(ps.Item.URI),
		Title:       ps.Item.Name,
		Artist:      strings.Join(names, ", "),
		Album:       ps.Item.Album.Name,
		AlbumArtURL: albumArt,
		DurationMS:  int(ps.Item.Duration),
		ProgressMS:  int(ps.Progress),
		IsPlaying:   ps.Playing,
		ContextURI:  string(ps.PlaybackContext.URI),
	}, nil
}

// PlayTrack starts ad hoc playback of a single track URI.
func (c *Client) PlayTrack(ctx context.Context, uri string) error {
	opt := &spotify.PlayOptions{URIs: []spotify.URI{spotify.URI(uri)}}
	return c.playOnSomeDevice(ctx, opt)
}

// ResumeContext resumes playback of an album or playlist context.
func (c *Client) ResumeContext(ctx context.Context, contextURI string) error {
	uri := spotify.URI(contextURI)
	opt := &spotify.PlayOptions{PlaybackContext: &uri}
	return c.playOnSomeDevice(ctx, opt)
}

// NextTrack advances the player to its own next track.
func (c *Client) NextTrack(ctx context.Context) error {
	err := c.client.Next(ctx)
	if err == nil || !isNoActiveDevice(err) {
		return err
	}

	device, derr := c.pickDevice(ctx)
	if derr != nil {
		return derr
	}
	return c.client.NextOpt(ctx, &spotify.PlayOptions{DeviceID: &device.ID})
}

// playOnSomeDevice issues a play command, falling back to an explicit
// device when the account has no active one.
func (c *Client) playOnSomeDevice(ctx context.Context, opt *spotify.PlayOptions) error {
	err := c.client.PlayOpt(ctx, opt)
	if err == nil || !isNoActiveDevice(err) {
		return err
	}

	device, derr := c.pickDevice(ctx)
	if derr != nil {
		return derr
	}
	zlog.Info().Msgf("No active device, playing on %s", device.Name)
	opt.DeviceID = &device.ID
	return c.client.PlayOpt(ctx, opt)
}

// pickDevice returns the active device, or failing that the first
// usable one the account knows about.
func (c *Client) pickDevice(ctx context.Context) (spotify.PlayerDevice, error) {
	devices, err := c.client.PlayerDevices(ctx)
	if err != nil {
		return spotify.PlayerDevice{}, errors.Wrap(err, "failed to list devices")
	}

	for _, d := range devices {
		if d.Active {
			return d, nil
		}
	}
	for _, d := range devices {
		if !d.Restricted {
			return d, nil
		}
	}
	return spotify.PlayerDevice{}, errors.New("no usable playback device")
}

// isNoActiveDevice checks for the player error issued when the account
// has no device to command.
func isNoActiveDevice(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "no active device") ||
		strings.Contains(errStr, "device not found") ||
		strings.Contains(errStr, "404")
}

// isNoContent checks for the empty 204 player response.
func isNoContent(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "eof") ||
		strings.Contains(errStr, "no content") ||
		strings.Contains(errStr, "204")
}
