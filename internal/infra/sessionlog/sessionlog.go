// Package sessionlog appends finished song requests to a per-session CSV file.
package sessionlog

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/xkatng/twitch-song-requests/internal/domain/song"
)

// headers are the CSV columns, in row order.
var headers = []string{
	"timestamp",
	"song_title",
	"artist",
	"album",
	"spotify_id",
	"requester",
	"likes",
	"skips",
	"duration_formatted",
}

// Entry is one logged row. Fields are kept as written so a row read back
// from disk serializes identically over the API.
type Entry struct {
	Timestamp string `json:"timestamp"`
	Title     string `json:"song_title"`
	Artist    string `json:"artist"`
	Album     string `json:"album"`
	TrackID   string `json:"spotify_id"`
	Requester string `json:"requester"`
	Likes     string `json:"likes"`
	Skips     string `json:"skips"`
	Duration  string `json:"duration_formatted"`
}

// Logger writes one CSV file per process run, named after the session start
// time. The file carries a UTF-8 BOM so spreadsheet tools open it cleanly.
type Logger struct {
	mu     sync.Mutex
	dir    string
	path   string
	file   *os.File
	writer *csv.Writer

	now func() time.Time
}

// New creates a logger writing under dir. The session file is created on the
// first append, or eagerly via Start.
func New(dir string) *Logger {
	return &Logger{
		dir: dir,
		now: time.Now,
	}
}

// Start creates the session file with headers and returns its path.
func (l *Logger) Start() (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.startLocked(); err != nil {
		return "", err
	}
	return l.path, nil
}

func (l *Logger) startLocked() error {
	if l.file != nil {
		return nil
	}

	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return errors.Wrap(err, "failed to create session log directory")
	}

	name := fmt.Sprintf("session_%s.csv", l.now().Format("20060102_150405"))
	path := filepath.Join(l.dir, name)

	file, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "failed to create session log file")
	}

	// BOM for Excel compatibility
	if _, err := file.WriteString("\ufeff"); err != nil {
		file.Close()
		return errors.Wrap(err, "failed to write session log preamble")
	}

	writer := csv.NewWriter(file)
	if err := writer.Write(headers); err != nil {
		file.Close()
		return errors.Wrap(err, "failed to write session log headers")
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		file.Close()
		return errors.Wrap(err, "failed to flush session log headers")
	}

	l.path = path
	l.file = file
	l.writer = writer

	zlog.Info().Msgf("Started session log: %s", path)
	return nil
}

// Append records a finished request with its final vote counts.
func (l *Logger) Append(req song.Request, likes, skips int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.startLocked(); err != nil {
		return err
	}

	row := []string{
		l.now().Format(time.RFC3339),
		req.Track.Title,
		req.Track.Artist,
		req.Track.Album,
		req.Track.ID,
		req.Requester,
		strconv.Itoa(likes),
		strconv.Itoa(skips),
		req.Track.DurationFormatted(),
	}

	if err := l.writer.Write(row); err != nil {
		return errors.Wrap(err, "failed to write session log row")
	}
	l.writer.Flush()
	if err := l.writer.Error(); err != nil {
		return errors.Wrap(err, "failed to flush session log row")
	}

	zlog.Debug().Msgf("Logged session entry: %s by %s", req.Track.Title, req.Requester)
	return nil
}

// Recent returns up to limit entries from the end of the current session file.
func (l *Logger) Recent(limit int) ([]Entry, error) {
	l.mu.Lock()
	path := l.path
	l.mu.Unlock()

	entries := []Entry{}
	if path == "" {
		return entries, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open session log")
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read session log")
	}

	// Skip the header row
	if len(records) > 0 {
		records = records[1:]
	}
	if limit > 0 && len(records) > limit {
		records = records[len(records)-limit:]
	}

	for _, rec := range records {
		if len(rec) < len(headers) {
			continue
		}
		entries = append(entries, Entry{
			Timestamp: rec[0],
			Title:     rec[1],
			Artist:    rec[2],
			Album:     rec[3],
			TrackID:   rec[4],
			Requester: rec[5],
			Likes:     rec[6],
			Skips:     rec[7],
			Duration:  rec[8],
		})
	}
	return entries, nil
}

// Path returns the current session file path, or empty before the first write.
func (l *Logger) Path() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.path
}

// Close flushes and closes the session file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	l.writer.Flush()
	err := l.file.Close()
	l.file = nil
	l.writer = nil
	return err
}
