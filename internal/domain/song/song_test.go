package song

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRequesterKey(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "lowercases mixed case",
			input:    "StreamViewer42",
			expected: "streamviewer42",
		},
		{
			name:     "trims surrounding whitespace",
			input:    "  viewer  ",
			expected: "viewer",
		},
		{
			name:     "already normalized",
			input:    "viewer",
			expected: "viewer",
		},
		{
			name:     "empty string",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, RequesterKey(tt.input))
		})
	}
}

func TestTrack_DurationMS(t *testing.T) {
	track := Track{Duration: 3*time.Minute + 21*time.Second}
	assert.Equal(t, 201000, track.DurationMS())
}

func TestTrack_DurationFormatted(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		expected string
	}{
		{name: "minutes and seconds", duration: 3*time.Minute + 21*time.Second, expected: "3:21"},
		{name: "pads seconds", duration: 2*time.Minute + 5*time.Second, expected: "2:05"},
		{name: "over an hour stays in minutes", duration: 61 * time.Minute, expected: "61:00"},
		{name: "zero", duration: 0, expected: "0:00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			track := Track{Duration: tt.duration}
			assert.Equal(t, tt.expected, track.DurationFormatted())
		})
	}
}

func TestNewRequest(t *testing.T) {
	track := Track{ID: "abc123", Title: "Test Song", Artist: "Test Artist"}

	before := time.Now()
	req := NewRequest(track, "Viewer", SourceRedemption)
	after := time.Now()

	assert.Equal(t, track, req.Track)
	assert.Equal(t, "Viewer", req.Requester)
	assert.Equal(t, SourceRedemption, req.Source)
	assert.False(t, req.SubmittedAt.Before(before))
	assert.False(t, req.SubmittedAt.After(after))
}
