package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/websocket"
	zlog "github.com/rs/zerolog/log"

	"github.com/xkatng/twitch-song-requests/internal/app/notification"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 32
)

// The overlay and dashboard are served from other local ports, so the
// socket accepts any origin. The loopback guard still applies.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// wsClient adapts one WebSocket connection to a notification stream.
// Send never blocks: payloads queue in a buffered channel drained by
// the write pump, and a full buffer drops the payload.
type wsClient struct {
	conn *websocket.Conn
	send chan any

	closeOnce sync.Once
	done      chan struct{}
}

func newWSClient(conn *websocket.Conn) *wsClient {
	return &wsClient{
		conn: conn,
		send: make(chan any, sendBuffer),
		done: make(chan struct{}),
	}
}

// Send queues a payload for the write pump.
func (c *wsClient) Send(payload any) error {
	select {
	case <-c.done:
		return errors.New("client closed")
	default:
	}

	select {
	case c.send <- payload:
		return nil
	default:
		return errors.New("send buffer full")
	}
}

func (c *wsClient) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// writePump drains the send queue onto the connection and keeps the
// client alive with periodic pings.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case payload := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// readPump consumes inbound frames until the connection drops. Any
// text a client sends is answered with a pong payload.
func (c *wsClient) readPump() {
	defer c.close()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				zlog.Debug().Msgf("WebSocket read ended: %v", err)
			}
			return
		}
		if err := c.Send(notification.NewPong()); err != nil {
			zlog.Debug().Msgf("Pong dropped: %v", err)
		}
	}
}

// handleWebSocket upgrades the connection, replays the session snapshot
// and subscribes the client to live events. The snapshot is queued
// before the subscription so no broadcast can overtake it.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		zlog.Warn().Msgf("WebSocket upgrade failed: %v", err)
		return
	}

	client := newWSClient(conn)
	for _, payload := range s.manager.Snapshot() {
		if err := client.Send(payload); err != nil {
			zlog.Warn().Msgf("Snapshot dropped: %v", err)
		}
	}

	notifier := s.manager.GetNotificationManager()
	id := notifier.Subscribe(client)
	zlog.Info().Msgf("Overlay client connected (%d active)", notifier.SubscriberCount())

	go client.writePump()
	client.readPump()

	notifier.Unsubscribe(id)
	zlog.Info().Msgf("Overlay client disconnected (%d active)", notifier.SubscriberCount())
}
