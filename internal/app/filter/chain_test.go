package filter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/xkatng/twitch-song-requests/internal/domain/song"
)

func defaultTestChain(t *testing.T) *Chain {
	t.Helper()
	chain, err := DefaultChain(map[string]any{})
	assert.NoError(t, err)
	return chain
}

func TestChain_FirstFailureWins(t *testing.T) {
	// A track that is simultaneously a duplicate and blocked must be
	// rejected as duplicate: the chain order is fixed.
	chain := defaultTestChain(t)

	s := baseState()
	s.QueuedTrackIDs["contested"] = true
	s.BlockedTrackIDs["contested"] = true

	cand := Candidate{
		Track:     song.Track{ID: "contested", Artist: "Somebody"},
		Requester: "viewer",
		Source:    song.SourceChat,
	}

	result := chain.Execute(context.Background(), cand, s)
	assert.False(t, result.Accepted)
	assert.Equal(t, CodeDuplicate, result.Code)
}

func TestChain_CapacityBeatsEverything(t *testing.T) {
	chain := defaultTestChain(t)

	s := baseState()
	s.QueueLen = 10
	s.MaxQueueSize = 10
	s.QueuedTrackIDs["contested"] = true
	s.BlockedTrackIDs["contested"] = true

	cand := Candidate{
		Track:     song.Track{ID: "contested", Artist: "Somebody"},
		Requester: "viewer",
		Source:    song.SourceChat,
	}

	result := chain.Execute(context.Background(), cand, s)
	assert.False(t, result.Accepted)
	assert.Equal(t, CodeQueueFull, result.Code)
}

func TestChain_AcceptsCleanRequest(t *testing.T) {
	chain := defaultTestChain(t)

	cand := Candidate{
		Track:     song.Track{ID: "clean", Artist: "Somebody"},
		Requester: "viewer",
		Source:    song.SourceChat,
	}

	result := chain.Execute(context.Background(), cand, baseState())
	assert.True(t, result.Accepted)
	assert.Empty(t, result.Code)
}

func TestChain_RedemptionBypassSkipsCooldownOnly(t *testing.T) {
	chain, err := DefaultChain(map[string]any{"redemptions_bypass_cooldown": true})
	assert.NoError(t, err)

	s := baseState()
	s.LastRequestAt = s.Now.Add(-time.Second)

	cand := Candidate{
		Track:     song.Track{ID: "clean", Artist: "Somebody"},
		Requester: "viewer",
	}

	// Chat request inside the window is rejected.
	cand.Source = song.SourceChat
	result := chain.Execute(context.Background(), cand, s)
	assert.False(t, result.Accepted)
	assert.Equal(t, CodeCooldown, result.Code)

	// The same request as a redemption sails through.
	cand.Source = song.SourceRedemption
	result = chain.Execute(context.Background(), cand, s)
	assert.True(t, result.Accepted)

	// But a redemption still cannot bypass the other filters.
	s.BlockedTrackIDs["clean"] = true
	result = chain.Execute(context.Background(), cand, s)
	assert.False(t, result.Accepted)
	assert.Equal(t, CodeBlocked, result.Code)
}

func TestChain_Filters(t *testing.T) {
	chain := defaultTestChain(t)

	names := make([]string, 0, len(chain.Filters()))
	for _, f := range chain.Filters() {
		names = append(names, f.Name())
	}

	assert.Equal(t, []string{
		"queue_capacity_filter",
		"duplicate_track_filter",
		"blocked_track_filter",
		"request_cooldown_filter",
	}, names)
}
