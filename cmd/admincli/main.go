// Package main provides the admin CLI entry point.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
)

var (
	app    = kingpin.New("songrequest-admincli", "Song request server admin client")
	server = app.Flag("server", "Server address").Default("http://127.0.0.1:5174").String()

	// status command
	statusCmd = app.Command("status", "Show session status")

	// queue command
	queueCmd = app.Command("queue", "List the request queue")

	// skip command
	skipCmd = app.Command("skip", "Skip the current song")

	// remove command
	removeCmd   = app.Command("remove", "Remove a queued request by index")
	removeIndex = removeCmd.Arg("index", "Queue index (0-based)").Required().Int()

	// clear command
	clearCmd = app.Command("clear", "Clear the request queue")

	// settings command
	settingsCmd      = app.Command("settings", "Show or change runtime settings")
	settingsMaxQueue = settingsCmd.Flag("max-queue-size", "Maximum queue size").Default("-1").Int()
	settingsCooldown = settingsCmd.Flag("cooldown", "Per-viewer cooldown in seconds").Default("-1").Int()
	settingsSkip     = settingsCmd.Flag("skip-threshold", "Skip votes needed for auto-skip").Default("-1").Int()

	// blocklist commands
	blocklistCmd = app.Command("blocklist", "Show the blocklist")
	blockCmd     = app.Command("block", "Add an item to the blocklist")
	blockItem    = blockCmd.Arg("item", "Track link, track ID, or artist name").Required().String()
	blockArtist  = blockCmd.Flag("artist", "Treat the item as an artist name").Bool()
	unblockCmd   = app.Command("unblock", "Remove an item from the blocklist")
	unblockItem  = unblockCmd.Arg("item", "Blocklist entry").Required().String()

	// logs command
	logsCmd = app.Command("logs", "Show recent session log entries")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	// Parse command
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	// Execute command
	switch command {
	case statusCmd.FullCommand():
		status()
	case queueCmd.FullCommand():
		queue()
	case skipCmd.FullCommand():
		skip()
	case removeCmd.FullCommand():
		remove(*removeIndex)
	case clearCmd.FullCommand():
		clear()
	case settingsCmd.FullCommand():
		settings()
	case blocklistCmd.FullCommand():
		blocklist()
	case blockCmd.FullCommand():
		block(*blockItem, *blockArtist)
	case unblockCmd.FullCommand():
		unblock(*unblockItem)
	case logsCmd.FullCommand():
		logs()
	}
}

type queueState struct {
	Queue []struct {
		Position          int    `json:"position"`
		Title             string `json:"title"`
		Artist            string `json:"artist"`
		Requester         string `json:"requester"`
		DurationFormatted string `json:"duration_formatted"`
	} `json:"queue"`
	QueueLength       int    `json:"queue_length"`
	MaxQueueSize      int    `json:"max_queue_size"`
	IsPlayingRequests bool   `json:"is_playing_requests"`
	SessionStart      string `json:"session_start"`
}

type settingsState struct {
	MaxQueueSize     int      `json:"max_queue_size"`
	CooldownSeconds  int      `json:"cooldown_seconds"`
	SkipThreshold    int      `json:"skip_threshold"`
	BlocklistArtists []string `json:"blocklist_artists"`
	BlocklistSongIDs []string `json:"blocklist_song_ids"`
}

func status() {
	var health struct {
		Status      string `json:"status"`
		Connections int    `json:"connections"`
		Version     string `json:"version"`
	}
	call(http.MethodGet, "/api/health", nil, &health)

	var current struct {
		Playing   *bool  `json:"playing"`
		Title     string `json:"title"`
		Artist    string `json:"artist"`
		Requester string `json:"requester"`
		Likes     int    `json:"likes"`
		Skips     int    `json:"skips"`
		Song      *struct {
			Title  string `json:"title"`
			Artist string `json:"artist"`
		} `json:"song"`
	}
	call(http.MethodGet, "/api/current", nil, &current)

	var state queueState
	call(http.MethodGet, "/api/queue", nil, &state)

	fmt.Println("\n=== SESSION STATUS ===")
	fmt.Printf("Server: %s (version %s)\n", health.Status, health.Version)
	fmt.Printf("Overlay Connections: %d\n", health.Connections)
	fmt.Printf("Session Start: %s\n", state.SessionStart)
	fmt.Printf("Queue: %d/%d\n", state.QueueLength, state.MaxQueueSize)

	switch {
	case current.Song != nil:
		fmt.Printf("\nNow Playing: %s by %s\n", current.Song.Title, current.Song.Artist)
		fmt.Printf("  Requested by: %s\n", current.Requester)
		fmt.Printf("  Votes: %d likes, %d skip votes\n", current.Likes, current.Skips)
	case current.Playing != nil && *current.Playing:
		fmt.Printf("\nNow Playing (not a request): %s by %s\n", current.Title, current.Artist)
	default:
		fmt.Println("\nNothing playing")
	}
	fmt.Println()
}

func queue() {
	var state queueState
	call(http.MethodGet, "/api/queue", nil, &state)

	fmt.Printf("Queue (%d/%d):\n", state.QueueLength, state.MaxQueueSize)
	for _, item := range state.Queue {
		fmt.Printf("  %2d. %s by %s [%s] (requested by %s)\n",
			item.Position, item.Title, item.Artist, item.DurationFormatted, item.Requester)
	}
	if state.QueueLength == 0 {
		fmt.Println("  (empty)")
	}
}

func skip() {
	var resp struct {
		Success bool `json:"success"`
	}
	call(http.MethodPost, "/api/skip", nil, &resp)

	if resp.Success {
		fmt.Println("Song skipped")
	} else {
		fmt.Println("Failed to skip")
	}
}

func remove(index int) {
	var resp struct {
		Success bool   `json:"success"`
		Removed string `json:"removed"`
	}
	call(http.MethodDelete, "/api/queue/"+strconv.Itoa(index), nil, &resp)

	if resp.Success {
		fmt.Printf("Removed: %s\n", resp.Removed)
	}
}

func clear() {
	var resp struct {
		Success      bool `json:"success"`
		RemovedCount int  `json:"removed_count"`
	}
	call(http.MethodDelete, "/api/queue", nil, &resp)

	fmt.Printf("Queue cleared (%d removed)\n", resp.RemovedCount)
}

func settings() {
	update := map[string]any{}
	if *settingsMaxQueue >= 0 {
		update["max_queue_size"] = *settingsMaxQueue
	}
	if *settingsCooldown >= 0 {
		update["cooldown_seconds"] = *settingsCooldown
	}
	if *settingsSkip >= 0 {
		update["skip_threshold"] = *settingsSkip
	}

	var state settingsState
	if len(update) == 0 {
		call(http.MethodGet, "/api/settings", nil, &state)
	} else {
		call(http.MethodPatch, "/api/settings", update, &state)
	}

	fmt.Println("Settings:")
	fmt.Printf("  Max Queue Size: %d\n", state.MaxQueueSize)
	fmt.Printf("  Cooldown: %d seconds\n", state.CooldownSeconds)
	fmt.Printf("  Skip Threshold: %d votes\n", state.SkipThreshold)
}

func blocklist() {
	var resp struct {
		Artists  []string `json:"blocklist_artists"`
		TrackIDs []string `json:"blocklist_song_ids"`
	}
	call(http.MethodGet, "/api/blocklist", nil, &resp)

	fmt.Printf("Blocked Artists (%d):\n", len(resp.Artists))
	for _, artist := range resp.Artists {
		fmt.Printf("  %s\n", artist)
	}
	fmt.Printf("Blocked Tracks (%d):\n", len(resp.TrackIDs))
	for _, id := range resp.TrackIDs {
		fmt.Printf("  %s\n", id)
	}
}

func block(item string, isArtist bool) {
	var resp struct {
		Success bool   `json:"success"`
		Item    string `json:"item"`
	}
	call(http.MethodPost, "/api/blocklist", map[string]any{
		"item":      item,
		"is_artist": isArtist,
	}, &resp)

	if resp.Success {
		fmt.Printf("Blocked: %s\n", resp.Item)
	} else {
		fmt.Printf("Already blocked: %s\n", resp.Item)
	}
}

func unblock(item string) {
	var resp struct {
		Success bool   `json:"success"`
		Item    string `json:"item"`
	}
	call(http.MethodDelete, "/api/blocklist/"+item, nil, &resp)

	if resp.Success {
		fmt.Printf("Unblocked: %s\n", resp.Item)
	} else {
		fmt.Printf("Not on the blocklist: %s\n", resp.Item)
	}
}

func logs() {
	var resp struct {
		Entries []struct {
			Timestamp string `json:"timestamp"`
			Title     string `json:"song_title"`
			Artist    string `json:"artist"`
			Requester string `json:"requester"`
			Likes     string `json:"likes"`
			Skips     string `json:"skips"`
		} `json:"entries"`
	}
	call(http.MethodGet, "/api/session/logs", nil, &resp)

	fmt.Printf("Recent songs (%d):\n", len(resp.Entries))
	for _, e := range resp.Entries {
		fmt.Printf("  %s  %s by %s (requested by %s, %s likes, %s skip votes)\n",
			e.Timestamp, e.Title, e.Artist, e.Requester, e.Likes, e.Skips)
	}
}

// call performs one API request and decodes the response into out.
// Errors and non-2xx responses terminate the program.
func call(method, path string, body, out any) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, *server+path, reader)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var detail struct {
			Detail string `json:"detail"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&detail)
		if detail.Detail == "" {
			detail.Detail = resp.Status
		}
		fmt.Printf("Error: %s\n", detail.Detail)
		os.Exit(1)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
	}
}
