// Package chat routes Twitch chat traffic to the song request service.
// It understands two inputs: Channel Points redemptions carrying request
// text, and ! commands typed into chat.
package chat

import (
	"context"
	"fmt"
	"strings"

	zlog "github.com/rs/zerolog/log"

	"github.com/xkatng/twitch-song-requests/internal/domain/song"
	"github.com/xkatng/twitch-song-requests/internal/infra/twitch"
)

// Service is the song request surface the router drives.
type Service interface {
	// RequestSong resolves and admits a request, returning the chat reply.
	RequestSong(ctx context.Context, user, input string, source song.Source) (reply string, accepted bool)
	// Like registers a like vote; ok is false when nothing is playing.
	Like(user string) (nowPlaying string, ok bool)
	// PassVote registers a skip vote; ok is false when nothing is playing.
	PassVote(user string) (nowPlaying string, ok bool)
	// ForceSkip skips the current song immediately.
	ForceSkip()
	// ClearQueue empties the queue and returns the number of removed requests.
	ClearQueue() int
	// Queue returns the pending requests in play order.
	Queue() []song.Request
	// NowPlaying returns the current song as "Title - Artist".
	NowPlaying() (string, bool)
	// LastSong returns the previously played song as "Title - Artist".
	LastSong() (string, bool)
}

// Speaker sends a line to the channel's chat.
type Speaker interface {
	Say(text string)
}

// Config controls which redemptions count as song requests.
type Config struct {
	// RewardID pins matching to one reward. Empty accepts any redemption.
	RewardID string
	// RewardTitles match rewards by name when the transport knows it.
	RewardTitles []string
}

// Router dispatches chat messages to the service and replies in chat.
type Router struct {
	cfg     Config
	service Service
	speaker Speaker
}

func NewRouter(cfg Config, service Service, speaker Speaker) *Router {
	return &Router{
		cfg:     cfg,
		service: service,
		speaker: speaker,
	}
}

// Handle processes one inbound chat message. Suitable as a twitch.Handler.
func (r *Router) Handle(ctx context.Context, msg twitch.ChatMessage) {
	text := strings.TrimSpace(msg.Text)

	if msg.RewardID != "" {
		r.handleRedemption(ctx, msg, text)
		return
	}
	if strings.HasPrefix(text, "!") {
		r.handleCommand(ctx, msg, text)
	}
}

// handleRedemption treats a matching Channel Points redemption as a request.
func (r *Router) handleRedemption(ctx context.Context, msg twitch.ChatMessage, text string) {
	if !r.MatchesReward("", msg.RewardID, text) {
		zlog.Debug().Msgf("Ignoring redemption %s from %s", msg.RewardID, msg.User)
		return
	}
	if text == "" {
		return
	}

	zlog.Info().Msgf("Redemption from %s: %s", msg.User, text)
	reply, _ := r.service.RequestSong(ctx, msg.User, text, song.SourceRedemption)
	r.say(reply)
}

// MatchesReward decides whether a redemption is a song request. A pinned
// reward ID must match exactly; reward titles match by containment either
// way; request text carrying a Spotify link always matches.
func (r *Router) MatchesReward(title, rewardID, text string) bool {
	if r.cfg.RewardID != "" && rewardID == r.cfg.RewardID {
		return true
	}

	if title != "" {
		lower := strings.ToLower(strings.TrimSpace(title))
		for _, name := range r.cfg.RewardTitles {
			if strings.Contains(lower, name) || strings.Contains(name, lower) {
				return true
			}
		}
	}

	if hasSpotifyLink(text) {
		return true
	}

	// Without a pinned ID the transport cannot tell rewards apart, so any
	// redemption that reaches chat with input text counts.
	return r.cfg.RewardID == "" && title == ""
}

func hasSpotifyLink(text string) bool {
	return strings.Contains(text, "spotify.com") || strings.Contains(text, "spotify:track:")
}

func (r *Router) handleCommand(ctx context.Context, msg twitch.ChatMessage, text string) {
	cmd, args, _ := strings.Cut(text[1:], " ")
	cmd = strings.ToLower(cmd)
	args = strings.TrimSpace(args)

	zlog.Debug().Msgf("Processing command %s from %s", cmd, msg.User)

	switch cmd {
	case "request", "sr":
		r.cmdRequest(ctx, msg.User, args)
	case "like":
		r.cmdLike(msg.User)
	case "pass":
		r.cmdPass(msg.User)
	case "queue", "q":
		r.cmdQueue()
	case "song", "np", "nowplaying":
		r.cmdSong()
	case "lastsong", "last", "previous":
		r.cmdLastSong()
	case "forceskip", "fs":
		if msg.IsPrivileged() {
			r.cmdForceSkip(msg.User)
		}
	case "clearqueue", "cq":
		if msg.IsPrivileged() {
			r.cmdClearQueue(msg.User)
		}
	}
}

func (r *Router) cmdRequest(ctx context.Context, user, args string) {
	if args == "" {
		r.say(fmt.Sprintf("@%s please provide a song name or Spotify link. Usage: !request [song name]", user))
		return
	}
	reply, _ := r.service.RequestSong(ctx, user, args, song.SourceChat)
	r.say(reply)
}

func (r *Router) cmdLike(user string) {
	nowPlaying, ok := r.service.Like(user)
	if !ok {
		return
	}
	if nowPlaying != "" {
		r.say(fmt.Sprintf("@%s liked \"%s\" 👍", user, nowPlaying))
	} else {
		r.say(fmt.Sprintf("@%s liked the song! 👍", user))
	}
}

func (r *Router) cmdPass(user string) {
	nowPlaying, ok := r.service.PassVote(user)
	if !ok {
		return
	}
	if nowPlaying != "" {
		r.say(fmt.Sprintf("@%s voted to pass \"%s\"", user, nowPlaying))
	} else {
		r.say(fmt.Sprintf("@%s voted to pass!", user))
	}
}

func (r *Router) cmdQueue() {
	queue := r.service.Queue()
	if len(queue) == 0 {
		r.say("Queue is empty! Redeem Channel Points to request songs.")
		return
	}

	shown := queue
	if len(shown) > 5 {
		shown = shown[:5]
	}
	parts := make([]string, len(shown))
	for i, req := range shown {
		parts[i] = fmt.Sprintf("%d. %s - %s", i+1, req.Track.Title, req.Track.Artist)
	}

	reply := fmt.Sprintf("Queue (%d): %s", len(queue), strings.Join(parts, " | "))
	if len(queue) > 5 {
		reply += fmt.Sprintf(" ... and %d more", len(queue)-5)
	}
	r.say(reply)
}

func (r *Router) cmdSong() {
	if nowPlaying, ok := r.service.NowPlaying(); ok {
		r.say("Now playing: " + nowPlaying)
	} else {
		r.say("No song currently playing.")
	}
}

func (r *Router) cmdLastSong() {
	if last, ok := r.service.LastSong(); ok {
		r.say("Last song: " + last)
	} else {
		r.say("No previous song recorded yet.")
	}
}

func (r *Router) cmdForceSkip(user string) {
	r.service.ForceSkip()
	r.say("Song skipped by " + user)
}

func (r *Router) cmdClearQueue(user string) {
	r.service.ClearQueue()
	r.say("Queue cleared by " + user)
}

func (r *Router) say(text string) {
	if text != "" {
		r.speaker.Say(text)
	}
}
