package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	zlog "github.com/rs/zerolog/log"

	"github.com/xkatng/twitch-song-requests/internal/app/notification"
	"github.com/xkatng/twitch-song-requests/internal/app/playback"
	"github.com/xkatng/twitch-song-requests/internal/app/session"
	"github.com/xkatng/twitch-song-requests/internal/app/vote"
	"github.com/xkatng/twitch-song-requests/internal/domain/song"
	"github.com/xkatng/twitch-song-requests/internal/infra/sessionlog"
	"github.com/xkatng/twitch-song-requests/internal/infra/spotify"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zlog.Warn().Msgf("Failed to encode response: %v", err)
	}
}

type detailResponse struct {
	Detail string `json:"detail"`
}

type successResponse struct {
	Success bool `json:"success"`
}

type songDTO struct {
	SpotifyID         string `json:"spotify_id"`
	Title             string `json:"title"`
	Artist            string `json:"artist"`
	Album             string `json:"album"`
	DurationMS        int    `json:"duration_ms"`
	AlbumArtURL       string `json:"album_art_url"`
	SpotifyURI        string `json:"spotify_uri"`
	DurationFormatted string `json:"duration_formatted"`
}

func newSongDTO(t song.Track) songDTO {
	return songDTO{
		SpotifyID:         t.ID,
		Title:             t.Title,
		Artist:            t.Artist,
		Album:             t.Album,
		DurationMS:        t.DurationMS(),
		AlbumArtURL:       t.AlbumArtURL,
		SpotifyURI:        t.URI,
		DurationFormatted: t.DurationFormatted(),
	}
}

type requestDTO struct {
	Song        songDTO `json:"song"`
	Requester   string  `json:"requester"`
	RequestedAt string  `json:"requested_at"`
	Source      string  `json:"source"`
	Likes       int     `json:"likes"`
	Skips       int     `json:"skips"`
}

func newRequestDTO(r song.Request, likes, skips int) requestDTO {
	return requestDTO{
		Song:        newSongDTO(r.Track),
		Requester:   r.Requester,
		RequestedAt: r.SubmittedAt.Format(time.RFC3339),
		Source:      string(r.Source),
		Likes:       likes,
		Skips:       skips,
	}
}

type queueItemDTO struct {
	Position          int    `json:"position"`
	SpotifyID         string `json:"spotify_id"`
	Title             string `json:"title"`
	Artist            string `json:"artist"`
	AlbumArtURL       string `json:"album_art_url"`
	Requester         string `json:"requester"`
	DurationFormatted string `json:"duration_formatted"`
}

type queueStateResponse struct {
	CurrentRequest    *requestDTO              `json:"current_request"`
	Queue             []queueItemDTO           `json:"queue"`
	QueueLength       int                      `json:"queue_length"`
	MaxQueueSize      int                      `json:"max_queue_size"`
	IsPlayingRequests bool                     `json:"is_playing_requests"`
	SessionStart      string                   `json:"session_start"`
	NextSong          *notification.QueueEntry `json:"next_song"`
}

type settingsResponse struct {
	MaxQueueSize     int      `json:"max_queue_size"`
	CooldownSeconds  int      `json:"cooldown_seconds"`
	SkipThreshold    int      `json:"skip_threshold"`
	BlocklistArtists []string `json:"blocklist_artists"`
	BlocklistSongIDs []string `json:"blocklist_song_ids"`
}

func newSettingsResponse(settings playback.Settings, bl playback.Blocklist) settingsResponse {
	return settingsResponse{
		MaxQueueSize:     settings.MaxQueueSize,
		CooldownSeconds:  settings.CooldownSeconds,
		SkipThreshold:    settings.SkipThreshold,
		BlocklistArtists: orEmpty(bl.Artists),
		BlocklistSongIDs: orEmpty(bl.TrackIDs),
	}
}

// orEmpty keeps empty lists encoding as [] instead of null.
func orEmpty(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		Status      string `json:"status"`
		Connections int    `json:"connections"`
		Version     string `json:"version"`
	}{
		Status:      "ok",
		Connections: s.manager.ConnectionCount(),
		Version:     session.Version,
	})
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	st := s.manager.GetStatus()
	resp := queueStateResponse{
		Queue:             make([]queueItemDTO, 0, len(st.Queue)),
		QueueLength:       len(st.Queue),
		MaxQueueSize:      st.MaxQueueSize,
		IsPlayingRequests: st.Current != nil,
		SessionStart:      st.StartedAt.Format(time.RFC3339),
		NextSong:          s.manager.NextUp(r.Context()),
	}
	if st.Current != nil {
		current := newRequestDTO(*st.Current, st.Likes, st.Skips)
		resp.CurrentRequest = &current
	}
	for i, req := range st.Queue {
		resp.Queue = append(resp.Queue, queueItemDTO{
			Position:          i + 1,
			SpotifyID:         req.Track.ID,
			Title:             req.Track.Title,
			Artist:            req.Track.Artist,
			AlbumArtURL:       req.Track.AlbumArtURL,
			Requester:         req.Requester,
			DurationFormatted: req.Track.DurationFormatted(),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCurrent(w http.ResponseWriter, r *http.Request) {
	st := s.manager.GetStatus()
	switch {
	case st.Current != nil:
		writeJSON(w, http.StatusOK, newRequestDTO(*st.Current, st.Likes, st.Skips))
	case st.External != nil:
		writeJSON(w, http.StatusOK, struct {
			Playing     bool   `json:"playing"`
			IsRequest   bool   `json:"is_request"`
			Title       string `json:"title"`
			Artist      string `json:"artist"`
			AlbumArtURL string `json:"album_art_url"`
		}{
			Playing:     true,
			IsRequest:   false,
			Title:       st.External.Title,
			Artist:      st.External.Artist,
			AlbumArtURL: st.External.AlbumArtURL,
		})
	default:
		writeJSON(w, http.StatusOK, struct {
			Playing bool `json:"playing"`
		}{Playing: false})
	}
}

func (s *Server) handleSkip(w http.ResponseWriter, r *http.Request) {
	s.manager.ForceSkip()
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (s *Server) handleRemoveFromQueue(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil {
		writeJSON(w, http.StatusBadRequest, detailResponse{Detail: "Invalid queue index"})
		return
	}
	removed, err := s.manager.RemoveAt(index)
	if err != nil {
		writeJSON(w, http.StatusNotFound, detailResponse{Detail: "Song not found at index"})
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Success bool   `json:"success"`
		Removed string `json:"removed"`
	}{Success: true, Removed: removed.Track.Title})
}

func (s *Server) handleClearQueue(w http.ResponseWriter, r *http.Request) {
	count := s.manager.ClearQueue()
	writeJSON(w, http.StatusOK, struct {
		Success      bool `json:"success"`
		RemovedCount int  `json:"removed_count"`
	}{Success: true, RemovedCount: count})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newSettingsResponse(s.manager.Settings(), s.manager.Blocklist()))
}

func (s *Server) handlePatchSettings(w http.ResponseWriter, r *http.Request) {
	var update playback.SettingsUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeJSON(w, http.StatusBadRequest, detailResponse{Detail: "Invalid request body"})
		return
	}
	updated := s.manager.UpdateSettings(update)
	writeJSON(w, http.StatusOK, newSettingsResponse(updated, s.manager.Blocklist()))
}

func (s *Server) handleGetBlocklist(w http.ResponseWriter, r *http.Request) {
	bl := s.manager.Blocklist()
	writeJSON(w, http.StatusOK, struct {
		BlocklistArtists []string `json:"blocklist_artists"`
		BlocklistSongIDs []string `json:"blocklist_song_ids"`
	}{
		BlocklistArtists: orEmpty(bl.Artists),
		BlocklistSongIDs: orEmpty(bl.TrackIDs),
	})
}

func (s *Server) handleAddToBlocklist(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Item     string `json:"item"`
		IsArtist bool   `json:"is_artist"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || strings.TrimSpace(body.Item) == "" {
		writeJSON(w, http.StatusBadRequest, detailResponse{Detail: "Invalid request body"})
		return
	}
	var added bool
	if body.IsArtist {
		added = s.manager.BlockArtist(body.Item)
	} else {
		added = s.manager.BlockTrack(spotify.NormalizeTrackID(body.Item))
	}
	writeJSON(w, http.StatusOK, struct {
		Success bool   `json:"success"`
		Item    string `json:"item"`
	}{Success: added, Item: body.Item})
}

func (s *Server) handleRemoveFromBlocklist(w http.ResponseWriter, r *http.Request) {
	item := mux.Vars(r)["item"]
	removed := s.manager.Unblock(item)
	writeJSON(w, http.StatusOK, struct {
		Success bool   `json:"success"`
		Item    string `json:"item"`
	}{Success: removed, Item: item})
}

func (s *Server) handleSessionLogs(w http.ResponseWriter, r *http.Request) {
	entries, err := s.manager.RecentHistory(20)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, detailResponse{Detail: "Failed to read session log"})
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Entries []sessionlog.Entry `json:"entries"`
	}{Entries: entries})
}

// Test endpoints drive the session without Twitch. They run the same
// admission and vote paths as chat does.

func (s *Server) handleTestLike(w http.ResponseWriter, r *http.Request) {
	username := testUsername(r)
	res, err := s.manager.Vote(username, vote.KindLike)
	writeJSON(w, http.StatusOK, struct {
		Success  bool   `json:"success"`
		Username string `json:"username"`
		Action   string `json:"action"`
	}{
		Success:  err == nil && res.Added,
		Username: username,
		Action:   "like",
	})
}

func (s *Server) handleTestSkipVote(w http.ResponseWriter, r *http.Request) {
	username := testUsername(r)
	res, err := s.manager.Vote(username, vote.KindSkip)
	writeJSON(w, http.StatusOK, struct {
		Success       bool   `json:"success"`
		Username      string `json:"username"`
		Action        string `json:"action"`
		TriggeredSkip bool   `json:"triggered_skip"`
	}{
		Success:       err == nil && res.Added,
		Username:      username,
		Action:        "skip_vote",
		TriggeredSkip: res.ThresholdCrossed,
	})
}

func (s *Server) handleTestRequest(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("song_query")
	if query == "" {
		query = "Never Gonna Give You Up"
	}
	_, accepted := s.manager.RequestSong(r.Context(), "TestUser", query, song.SourceChat)
	writeJSON(w, http.StatusOK, struct {
		Success bool   `json:"success"`
		Query   string `json:"query"`
	}{Success: accepted, Query: query})
}

func testUsername(r *http.Request) string {
	var body struct {
		Username string `json:"username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err == nil && body.Username != "" {
		return body.Username
	}
	return "testuser"
}
