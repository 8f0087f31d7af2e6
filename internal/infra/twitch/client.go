// Package twitch connects to Twitch chat over the IRC-over-WebSocket gateway.
// Channel Points redemptions with text input arrive as tagged PRIVMSGs, so one
// connection covers both chat commands and redemptions.
package twitch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/websocket"
	zlog "github.com/rs/zerolog/log"
)

const (
	// DefaultURL is the public Twitch chat gateway.
	DefaultURL = "wss://irc-ws.chat.twitch.tv:443"

	// Twitch pings roughly every five minutes.
	readTimeout = 6 * time.Minute

	reconnectBase = time.Second
	reconnectMax  = time.Minute
)

// ErrAuthFailed means Twitch rejected the configured token. Retrying will not
// help until the token is replaced.
var ErrAuthFailed = errors.New("twitch login authentication failed")

// Handler receives each chat message from the channel the client joined.
// It is invoked on its own goroutine and may block.
type Handler func(ctx context.Context, msg ChatMessage)

// Config holds the connection parameters.
type Config struct {
	URL     string // defaults to DefaultURL
	Channel string // channel to join, without the leading '#'
	Nick    string // login name of the account behind Token
	Token   string // OAuth token with chat scopes, "oauth:" prefixed
}

// Client maintains a chat connection and reconnects until its context ends.
type Client struct {
	cfg     Config
	handler Handler
	sendCh  chan string
}

// New creates a client. Run must be called to connect.
func New(cfg Config, handler Handler) *Client {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	return &Client{
		cfg:     cfg,
		handler: handler,
		sendCh:  make(chan string, 16),
	}
}

// Say queues a chat line to the joined channel. Lines queued while the
// connection is down are sent after the next reconnect; when the queue is
// full the line is dropped.
func (c *Client) Say(text string) {
	line := fmt.Sprintf("PRIVMSG #%s :%s", c.cfg.Channel, text)
	select {
	case c.sendCh <- line:
	default:
		zlog.Warn().Msgf("Chat send queue full, dropping message: %s", text)
	}
}

// Run connects and serves the chat session until ctx is cancelled. Transient
// failures reconnect with backoff; an authentication failure is returned.
func (c *Client) Run(ctx context.Context) error {
	delay := reconnectBase
	for {
		welcomed, err := c.runOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, ErrAuthFailed) {
			return err
		}

		if welcomed {
			delay = reconnectBase
		}
		zlog.Warn().Msgf("Twitch connection lost: %v, reconnecting in %s", err, delay)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if delay *= 2; delay > reconnectMax {
			delay = reconnectMax
		}
	}
}

// runOnce dials, logs in, and pumps messages until the connection fails.
// welcomed reports whether login completed, so Run can reset its backoff.
func (c *Client) runOnce(ctx context.Context) (welcomed bool, err error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return false, errors.Wrap(err, "failed to dial twitch chat")
	}
	defer conn.Close()

	login := []string{
		"CAP REQ :twitch.tv/tags twitch.tv/commands",
		"PASS " + c.cfg.Token,
		"NICK " + c.cfg.Nick,
		"JOIN #" + c.cfg.Channel,
	}
	for _, line := range login {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(line+"\r\n")); err != nil {
			return false, errors.Wrap(err, "failed to log in to twitch chat")
		}
	}

	readCh := make(chan ircMessage)
	errCh := make(chan error, 1)
	go func() {
		for {
			conn.SetReadDeadline(time.Now().Add(readTimeout))
			_, data, err := conn.ReadMessage()
			if err != nil {
				errCh <- err
				return
			}
			for _, line := range strings.Split(string(data), "\r\n") {
				if line == "" {
					continue
				}
				msg, err := parseLine(line)
				if err != nil {
					zlog.Debug().Msgf("Skipping unparseable IRC line: %v", err)
					continue
				}
				select {
				case readCh <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return welcomed, ctx.Err()

		case line := <-c.sendCh:
			if err := conn.WriteMessage(websocket.TextMessage, []byte(line+"\r\n")); err != nil {
				return welcomed, errors.Wrap(err, "failed to write to twitch chat")
			}

		case err := <-errCh:
			return welcomed, errors.Wrap(err, "twitch chat read failed")

		case msg := <-readCh:
			switch msg.command {
			case "PING":
				pong := "PONG :" + msg.text
				if err := conn.WriteMessage(websocket.TextMessage, []byte(pong+"\r\n")); err != nil {
					return welcomed, errors.Wrap(err, "failed to answer chat ping")
				}

			case "001":
				welcomed = true
				zlog.Info().Msgf("Connected to Twitch chat as %s, joining #%s", c.cfg.Nick, c.cfg.Channel)

			case "NOTICE":
				if isAuthFailure(msg.text) {
					return welcomed, ErrAuthFailed
				}
				zlog.Info().Msgf("Twitch notice: %s", msg.text)

			case "RECONNECT":
				return welcomed, errors.New("twitch requested reconnect")

			case "PRIVMSG":
				chat := msg.chatMessage()
				if !strings.EqualFold(chat.Channel, c.cfg.Channel) {
					continue
				}
				if c.handler != nil {
					go c.handler(ctx, chat)
				}
			}
		}
	}
}

// isAuthFailure matches the NOTICE texts Twitch sends for bad credentials.
func isAuthFailure(text string) bool {
	lower := strings.ToLower(text)
	return strings.Contains(lower, "login authentication failed") ||
		strings.Contains(lower, "improperly formatted auth") ||
		strings.Contains(lower, "login unsuccessful")
}
