package twitch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeChatServer runs a scripted IRC-over-WebSocket endpoint and returns
// its ws:// URL. The script runs on the server connection; failures must
// use assert, not require, because it is not the test goroutine.
func fakeChatServer(t *testing.T, script func(t *testing.T, conn *websocket.Conn)) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()
		script(t, conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func readClientLine(t *testing.T, conn *websocket.Conn) string {
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Errorf("server read failed: %v", err)
		return ""
	}
	return strings.TrimSuffix(string(data), "\r\n")
}

func writeServerLine(t *testing.T, conn *websocket.Conn, line string) {
	if err := conn.WriteMessage(websocket.TextMessage, []byte(line+"\r\n")); err != nil {
		t.Errorf("server write failed: %v", err)
	}
}

func TestRunOnce_ServesChatSession(t *testing.T) {
	received := make(chan ChatMessage, 1)
	scriptDone := make(chan struct{})

	url := fakeChatServer(t, func(t *testing.T, conn *websocket.Conn) {
		defer close(scriptDone)

		assert.Equal(t, "CAP REQ :twitch.tv/tags twitch.tv/commands", readClientLine(t, conn))
		assert.Equal(t, "PASS oauth:secret", readClientLine(t, conn))
		assert.Equal(t, "NICK botname", readClientLine(t, conn))
		assert.Equal(t, "JOIN #chan", readClientLine(t, conn))

		writeServerLine(t, conn, ":tmi.twitch.tv 001 botname :Welcome, GLHF!")
		writeServerLine(t, conn, "PING :tmi.twitch.tv")
		assert.Equal(t, "PONG :tmi.twitch.tv", readClientLine(t, conn))

		writeServerLine(t, conn, "@custom-reward-id=rid;display-name=Viewer :viewer!viewer@viewer.tmi.twitch.tv PRIVMSG #chan :a song")

		// The handler replies through Say on the same connection.
		assert.Equal(t, "PRIVMSG #chan :added!", readClientLine(t, conn))
	})

	var c *Client
	c = New(Config{URL: url, Channel: "chan", Nick: "botname", Token: "oauth:secret"},
		func(_ context.Context, msg ChatMessage) {
			received <- msg
			c.Say("added!")
		})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// The server script closes the connection when done, ending the session.
	welcomed, err := c.runOnce(ctx)
	assert.True(t, welcomed)
	assert.Error(t, err)

	select {
	case msg := <-received:
		assert.Equal(t, "Viewer", msg.User)
		assert.Equal(t, "a song", msg.Text)
		assert.Equal(t, "rid", msg.RewardID)
	default:
		t.Fatal("handler never received the chat message")
	}

	select {
	case <-scriptDone:
	case <-time.After(2 * time.Second):
		t.Fatal("server script did not finish")
	}
}

func TestRunOnce_IgnoresOtherChannels(t *testing.T) {
	received := make(chan ChatMessage, 2)

	url := fakeChatServer(t, func(t *testing.T, conn *websocket.Conn) {
		for i := 0; i < 4; i++ {
			readClientLine(t, conn)
		}
		writeServerLine(t, conn, ":tmi.twitch.tv 001 botname :Welcome, GLHF!")
		writeServerLine(t, conn, ":viewer!viewer@viewer.tmi.twitch.tv PRIVMSG #otherchan :wrong room")
		writeServerLine(t, conn, ":viewer!viewer@viewer.tmi.twitch.tv PRIVMSG #chan :right room")
	})

	c := New(Config{URL: url, Channel: "chan", Nick: "botname", Token: "oauth:secret"},
		func(_ context.Context, msg ChatMessage) {
			received <- msg
		})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := c.runOnce(ctx)
	require.Error(t, err)

	select {
	case msg := <-received:
		assert.Equal(t, "right room", msg.Text)
	case <-time.After(2 * time.Second):
		t.Fatal("handler never received the channel's message")
	}
	assert.Empty(t, received)
}

func TestRun_AuthFailureStopsReconnecting(t *testing.T) {
	url := fakeChatServer(t, func(t *testing.T, conn *websocket.Conn) {
		for i := 0; i < 4; i++ {
			readClientLine(t, conn)
		}
		writeServerLine(t, conn, ":tmi.twitch.tv NOTICE * :Login authentication failed")
	})

	c := New(Config{URL: url, Channel: "chan", Nick: "botname", Token: "oauth:bad"}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := c.Run(ctx)
	assert.ErrorIs(t, err, ErrAuthFailed)
}

func TestIsAuthFailure(t *testing.T) {
	assert.True(t, isAuthFailure("Login authentication failed"))
	assert.True(t, isAuthFailure("Improperly formatted auth"))
	assert.False(t, isAuthFailure("The moderators of this channel are: someone"))
}

func TestSay_DropsWhenQueueFull(t *testing.T) {
	c := New(Config{Channel: "chan"}, nil)

	for i := 0; i < cap(c.sendCh)+5; i++ {
		c.Say("line")
	}
	assert.Len(t, c.sendCh, cap(c.sendCh))
}
