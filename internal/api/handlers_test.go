package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/creasty/defaults"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkatng/twitch-song-requests/internal/app/filter"
	"github.com/xkatng/twitch-song-requests/internal/app/playback"
	"github.com/xkatng/twitch-song-requests/internal/app/session"
	"github.com/xkatng/twitch-song-requests/internal/domain/song"
	"github.com/xkatng/twitch-song-requests/internal/infra/config"
	"github.com/xkatng/twitch-song-requests/internal/infra/spotify"
)

// fakeCatalog scripts track resolution for the session behind the server.
type fakeCatalog struct {
	mu       sync.Mutex
	tracks   map[string]song.Track // by track ID
	searches map[string]song.Track // by query
	next     *song.Track
}

func (f *fakeCatalog) GetTrack(_ context.Context, trackID string) (song.Track, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tracks[trackID]
	if !ok {
		return song.Track{}, spotify.ErrTrackNotFound
	}
	return t, nil
}

func (f *fakeCatalog) SearchTrack(_ context.Context, query string) (song.Track, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.searches[query]
	if !ok {
		return song.Track{}, spotify.ErrTrackNotFound
	}
	return t, nil
}

func (f *fakeCatalog) NextInQueue(context.Context) (*song.Track, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.next, nil
}

// scriptedPlayer confirms every commanded track on the next poll.
type scriptedPlayer struct {
	mu    sync.Mutex
	state playback.PlayerState
}

func (p *scriptedPlayer) CurrentPlayback(context.Context) (playback.PlayerState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state, nil
}

func (p *scriptedPlayer) PlayTrack(_ context.Context, uri string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = playback.PlayerState{
		Active:     true,
		TrackID:    strings.TrimPrefix(uri, "spotify:track:"),
		TrackURI:   uri,
		DurationMS: 180000,
		ProgressMS: 1000,
		IsPlaying:  true,
	}
	return nil
}

func (p *scriptedPlayer) ResumeContext(_ context.Context, contextURI string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = playback.PlayerState{Active: true, TrackID: "ctx-track", IsPlaying: true, ContextURI: contextURI}
	return nil
}

func (p *scriptedPlayer) NextTrack(context.Context) error { return nil }

type serverFixture struct {
	api     *Server
	manager *session.Manager
	catalog *fakeCatalog
	http    *httptest.Server
}

func newServerFixture(t *testing.T, opts ...func(*config.Config)) *serverFixture {
	t.Helper()
	cfg := &config.Config{}
	assert.NoError(t, defaults.Set(cfg))
	for _, opt := range opts {
		opt(cfg)
	}

	chain, err := filter.DefaultChain(map[string]any{})
	assert.NoError(t, err)

	player := &scriptedPlayer{state: playback.PlayerState{Active: true}}
	controller := playback.NewController(playback.Config{
		PollInterval:      5 * time.Millisecond,
		CommandRetryDelay: time.Millisecond,
		Settings:          playback.Settings{MaxQueueSize: 10, CooldownSeconds: 0, SkipThreshold: 2},
	}, chain, player)

	catalog := &fakeCatalog{tracks: map[string]song.Track{}, searches: map[string]song.Track{}}
	manager := session.NewManager(cfg, controller, catalog, nil)
	t.Cleanup(manager.Close)

	srv := NewServer(cfg.Server, manager)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &serverFixture{api: srv, manager: manager, catalog: catalog, http: ts}
}

func (f *serverFixture) request(t *testing.T, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, f.http.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := f.http.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp.StatusCode, decoded
}

func (f *serverFixture) get(t *testing.T, path string) map[string]any {
	t.Helper()
	code, body := f.request(t, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusOK, code)
	return body
}

// seed makes a query resolvable and submits it through the test endpoint.
func (f *serverFixture) seed(t *testing.T, query, id, title, artist string) {
	t.Helper()
	f.catalog.mu.Lock()
	f.catalog.searches[query] = song.Track{
		ID:       id,
		URI:      "spotify:track:" + id,
		Title:    title,
		Artist:   artist,
		Album:    "Test Album",
		Duration: 3 * time.Minute,
	}
	f.catalog.mu.Unlock()

	code, body := f.request(t, http.MethodPost, "/api/test/request?song_query="+query, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["success"])
}

func TestServer_Health(t *testing.T) {
	f := newServerFixture(t)

	body := f.get(t, "/api/health")

	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 0, body["connections"])
	assert.Equal(t, session.Version, body["version"])
}

func TestServer_QueueEmpty(t *testing.T) {
	f := newServerFixture(t)

	body := f.get(t, "/api/queue")

	assert.Nil(t, body["current_request"])
	assert.Equal(t, []any{}, body["queue"])
	assert.EqualValues(t, 0, body["queue_length"])
	assert.EqualValues(t, 10, body["max_queue_size"])
	assert.Equal(t, false, body["is_playing_requests"])
	assert.Nil(t, body["next_song"])

	_, err := time.Parse(time.RFC3339, body["session_start"].(string))
	assert.NoError(t, err)
}

func TestServer_QueueWithRequests(t *testing.T) {
	f := newServerFixture(t)
	f.seed(t, "first", "id1", "First Song", "Artist A")
	f.seed(t, "second", "id2", "Second Song", "Artist B")

	body := f.get(t, "/api/queue")

	assert.EqualValues(t, 2, body["queue_length"])
	queue := body["queue"].([]any)
	require.Len(t, queue, 2)

	head := queue[0].(map[string]any)
	assert.EqualValues(t, 1, head["position"])
	assert.Equal(t, "id1", head["spotify_id"])
	assert.Equal(t, "First Song", head["title"])
	assert.Equal(t, "Artist A", head["artist"])
	assert.Equal(t, "TestUser", head["requester"])
	assert.Equal(t, "3:00", head["duration_formatted"])

	next := body["next_song"].(map[string]any)
	assert.Equal(t, "First Song", next["title"])
}

func TestServer_CurrentNotPlaying(t *testing.T) {
	f := newServerFixture(t)

	body := f.get(t, "/api/current")

	assert.Equal(t, map[string]any{"playing": false}, body)
}

func TestServer_CurrentWithRequest(t *testing.T) {
	f := newServerFixture(t)
	f.manager.Start()
	f.seed(t, "first", "id1", "First Song", "Artist A")

	assert.Eventually(t, func() bool {
		resp, err := f.http.Client().Get(f.http.URL + "/api/current")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var body map[string]any
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return false
		}
		_, ok := body["song"]
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	body := f.get(t, "/api/current")
	assert.Equal(t, "TestUser", body["requester"])
	assert.Equal(t, "chat", body["source"])
	assert.EqualValues(t, 0, body["likes"])

	track := body["song"].(map[string]any)
	assert.Equal(t, "id1", track["spotify_id"])
	assert.Equal(t, "First Song", track["title"])
	assert.EqualValues(t, 180000, track["duration_ms"])
	assert.Equal(t, "spotify:track:id1", track["spotify_uri"])
}

func TestServer_Skip(t *testing.T) {
	f := newServerFixture(t)

	code, body := f.request(t, http.MethodPost, "/api/skip", nil)

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["success"])
}

func TestServer_RemoveFromQueue(t *testing.T) {
	f := newServerFixture(t)
	f.seed(t, "first", "id1", "First Song", "Artist A")
	f.seed(t, "second", "id2", "Second Song", "Artist B")

	code, body := f.request(t, http.MethodDelete, "/api/queue/1", nil)

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Second Song", body["removed"])
	assert.EqualValues(t, 1, f.get(t, "/api/queue")["queue_length"])
}

func TestServer_RemoveFromQueueOutOfRange(t *testing.T) {
	f := newServerFixture(t)

	code, body := f.request(t, http.MethodDelete, "/api/queue/5", nil)

	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Song not found at index", body["detail"])
}

func TestServer_ClearQueue(t *testing.T) {
	f := newServerFixture(t)
	f.seed(t, "first", "id1", "First Song", "Artist A")
	f.seed(t, "second", "id2", "Second Song", "Artist B")

	code, body := f.request(t, http.MethodDelete, "/api/queue", nil)

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["success"])
	assert.EqualValues(t, 2, body["removed_count"])
	assert.EqualValues(t, 0, f.get(t, "/api/queue")["queue_length"])
}

func TestServer_Settings(t *testing.T) {
	f := newServerFixture(t)

	body := f.get(t, "/api/settings")

	assert.EqualValues(t, 10, body["max_queue_size"])
	assert.EqualValues(t, 0, body["cooldown_seconds"])
	assert.EqualValues(t, 2, body["skip_threshold"])
	assert.Equal(t, []any{}, body["blocklist_artists"])
	assert.Equal(t, []any{}, body["blocklist_song_ids"])
}

func TestServer_PatchSettings(t *testing.T) {
	f := newServerFixture(t)

	code, body := f.request(t, http.MethodPatch, "/api/settings",
		map[string]any{"max_queue_size": 5, "skip_threshold": 3})

	assert.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 5, body["max_queue_size"])
	assert.EqualValues(t, 3, body["skip_threshold"])
	assert.EqualValues(t, 0, body["cooldown_seconds"])
}

func TestServer_PatchSettingsClamps(t *testing.T) {
	f := newServerFixture(t)

	code, body := f.request(t, http.MethodPatch, "/api/settings",
		map[string]any{"max_queue_size": 500})

	assert.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 100, body["max_queue_size"])
}

func TestServer_PatchSettingsInvalidBody(t *testing.T) {
	f := newServerFixture(t)

	req, err := http.NewRequest(http.MethodPatch, f.http.URL+"/api/settings", strings.NewReader("{"))
	require.NoError(t, err)
	resp, err := f.http.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_Blocklist(t *testing.T) {
	f := newServerFixture(t)

	code, body := f.request(t, http.MethodPost, "/api/blocklist",
		map[string]any{"item": "Nickelback", "is_artist": true})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Nickelback", body["item"])

	// Track links are reduced to bare IDs before they are stored.
	code, body = f.request(t, http.MethodPost, "/api/blocklist",
		map[string]any{"item": "https://open.spotify.com/track/abc123", "is_artist": false})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["success"])

	listed := f.get(t, "/api/blocklist")
	assert.Equal(t, []any{"Nickelback"}, listed["blocklist_artists"])
	assert.Equal(t, []any{"abc123"}, listed["blocklist_song_ids"])

	code, body = f.request(t, http.MethodDelete, "/api/blocklist/Nickelback", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, []any{}, f.get(t, "/api/blocklist")["blocklist_artists"])
}

func TestServer_SessionLogsEmpty(t *testing.T) {
	f := newServerFixture(t)

	body := f.get(t, "/api/session/logs")

	assert.Equal(t, []any{}, body["entries"])
}

func TestServer_TestVotesWithNothingPlaying(t *testing.T) {
	f := newServerFixture(t)

	code, body := f.request(t, http.MethodPost, "/api/test/like", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "testuser", body["username"])
	assert.Equal(t, "like", body["action"])

	code, body = f.request(t, http.MethodPost, "/api/test/skip-vote",
		map[string]any{"username": "alice"})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "alice", body["username"])
	assert.Equal(t, "skip_vote", body["action"])
	assert.Equal(t, false, body["triggered_skip"])
}

func TestServer_TestRequestUnknownSong(t *testing.T) {
	f := newServerFixture(t)

	code, body := f.request(t, http.MethodPost, "/api/test/request", nil)

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Never Gonna Give You Up", body["query"])
}

func TestServer_LoopbackGuard(t *testing.T) {
	f := newServerFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.RemoteAddr = "203.0.113.5:1234"
	rec := httptest.NewRecorder()
	f.api.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	var body map[string]any
	assert.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "Dashboard only accessible from localhost", body["detail"])
}

func TestServer_LoopbackGuardAllowRemote(t *testing.T) {
	f := newServerFixture(t, func(cfg *config.Config) {
		cfg.Server.AllowRemote = true
	})

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.RemoteAddr = "203.0.113.5:1234"
	rec := httptest.NewRecorder()
	f.api.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_WebSocket(t *testing.T) {
	f := newServerFixture(t)
	f.seed(t, "first", "id1", "First Song", "Artist A")

	wsURL := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var connected map[string]any
	require.NoError(t, conn.ReadJSON(&connected))
	assert.Equal(t, "connected", connected["event_type"])
	assert.Equal(t, session.Version, connected["server_version"])
	assert.EqualValues(t, 1, connected["queue_length"])

	var queueUpdate map[string]any
	require.NoError(t, conn.ReadJSON(&queueUpdate))
	assert.Equal(t, "queue_update", queueUpdate["event_type"])
	assert.EqualValues(t, 1, queueUpdate["queue_length"])

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("ping")))
	var pong map[string]any
	require.NoError(t, conn.ReadJSON(&pong))
	assert.Equal(t, "pong", pong["event_type"])
}
