// Package main provides the user CLI entry point for testing.
// It simulates viewer traffic against a running server without Twitch.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
)

var (
	app    = kingpin.New("songrequest-usercli", "Song request user client for testing")
	server = app.Flag("server", "Server address").Default("http://127.0.0.1:5174").String()

	// request command
	requestCmd   = app.Command("request", "Request a song")
	requestQuery = requestCmd.Arg("query", "Search text or Spotify track link").Required().String()

	// like command
	likeCmd  = app.Command("like", "Vote a like for the current song")
	likeUser = likeCmd.Flag("user", "Voter name").Default("testuser").String()

	// skip-vote command
	skipVoteCmd  = app.Command("skip-vote", "Vote to skip the current song")
	skipVoteUser = skipVoteCmd.Flag("user", "Voter name").Default("testuser").String()

	// subscribe command
	subscribeCmd = app.Command("subscribe", "Stream overlay events")
	subscribeAll = subscribeCmd.Flag("all", "Include playback progress ticks").Bool()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	// Parse command
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	// Execute command
	switch command {
	case requestCmd.FullCommand():
		request(*requestQuery)
	case likeCmd.FullCommand():
		like(*likeUser)
	case skipVoteCmd.FullCommand():
		skipVote(*skipVoteUser)
	case subscribeCmd.FullCommand():
		subscribe(*subscribeAll)
	}
}

func request(query string) {
	path := "/api/test/request?song_query=" + url.QueryEscape(query)
	var resp struct {
		Success bool   `json:"success"`
		Query   string `json:"query"`
	}
	post(path, nil, &resp)

	if resp.Success {
		fmt.Printf("Requested: %s\n", resp.Query)
	} else {
		fmt.Printf("Rejected: %s\n", resp.Query)
	}
}

func like(user string) {
	var resp struct {
		Success  bool   `json:"success"`
		Username string `json:"username"`
	}
	post("/api/test/like", map[string]any{"username": user}, &resp)

	if resp.Success {
		fmt.Printf("%s liked the current song\n", resp.Username)
	} else {
		fmt.Println("Vote not counted (nothing playing or already voted)")
	}
}

func skipVote(user string) {
	var resp struct {
		Success       bool   `json:"success"`
		Username      string `json:"username"`
		TriggeredSkip bool   `json:"triggered_skip"`
	}
	post("/api/test/skip-vote", map[string]any{"username": user}, &resp)

	switch {
	case resp.TriggeredSkip:
		fmt.Printf("%s voted to skip - threshold reached, skipping\n", resp.Username)
	case resp.Success:
		fmt.Printf("%s voted to skip\n", resp.Username)
	default:
		fmt.Println("Vote not counted (nothing playing or already voted)")
	}
}

func subscribe(includeProgress bool) {
	wsURL := "ws" + strings.TrimPrefix(*server, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	fmt.Printf("Subscribed to %s (Ctrl-C to stop)\n", wsURL)

	// Ctrl-C unblocks the read loop by closing the connection
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		conn.Close()
	}()

	for {
		var event map[string]any
		if err := conn.ReadJSON(&event); err != nil {
			return
		}
		printEvent(event, includeProgress)
	}
}

func printEvent(event map[string]any, includeProgress bool) {
	eventType, _ := event["event_type"].(string)
	switch eventType {
	case "connected":
		fmt.Printf("[connected] server %v, %v songs queued\n",
			event["server_version"], event["queue_length"])
	case "song_change":
		if event["is_request"] == true {
			fmt.Printf("[song_change] %v by %v (requested by %v)\n",
				event["title"], event["artist"], event["requester"])
		} else {
			fmt.Printf("[song_change] %v by %v\n", event["title"], event["artist"])
		}
	case "queue_update":
		fmt.Printf("[queue_update] %v/%v songs queued\n",
			event["queue_length"], event["max_queue_size"])
	case "vote_update":
		fmt.Printf("[vote_update] %v likes, %v/%v skip votes\n",
			event["likes"], event["skips"], event["skip_threshold"])
	case "playback_progress":
		if !includeProgress {
			return
		}
		fmt.Printf("[progress] %v/%v ms (playing: %v)\n",
			event["progress_ms"], event["duration_ms"], event["is_playing"])
	case "playback_error":
		fmt.Printf("[error] %v: %v\n", event["code"], event["message"])
	default:
		raw, _ := json.Marshal(event)
		fmt.Println(string(raw))
	}
}

// post performs one test API call and decodes the response into out.
func post(path string, body, out any) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
	}

	resp, err := http.Post(*server+path, "application/json", bytes.NewReader(payload))
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

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}
