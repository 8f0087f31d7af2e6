package queue

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xkatng/twitch-song-requests/internal/domain/song"
)

func newRequest(trackID, requester string) song.Request {
	return song.NewRequest(song.Track{ID: trackID, Title: "Track " + trackID}, requester, song.SourceChat)
}

func TestQueue_EnqueueCapacity(t *testing.T) {
	q := New(2)

	pos, err := q.Enqueue(newRequest("a", "viewer1"))
	assert.NoError(t, err)
	assert.Equal(t, 1, pos)

	pos, err = q.Enqueue(newRequest("b", "viewer2"))
	assert.NoError(t, err)
	assert.Equal(t, 2, pos)

	_, err = q.Enqueue(newRequest("c", "viewer3"))
	assert.ErrorIs(t, err, ErrFull)
	assert.Equal(t, 2, q.Len())
}

func TestQueue_EnqueueDuplicate(t *testing.T) {
	q := New(5)

	_, err := q.Enqueue(newRequest("a", "viewer1"))
	assert.NoError(t, err)

	_, err = q.Enqueue(newRequest("a", "viewer2"))
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.Equal(t, 1, q.Len())
}

func TestQueue_FIFORoundTrip(t *testing.T) {
	q := New(10)

	for i := 0; i < 10; i++ {
		_, err := q.Enqueue(newRequest(fmt.Sprintf("track-%d", i), "viewer"))
		assert.NoError(t, err)
	}

	for i := 0; i < 10; i++ {
		head, err := q.Pop()
		assert.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("track-%d", i), head.Track.ID)
	}

	_, err := q.Pop()
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestQueue_PeekDoesNotRemove(t *testing.T) {
	q := New(5)
	_, err := q.Enqueue(newRequest("a", "viewer"))
	assert.NoError(t, err)

	head, err := q.Peek()
	assert.NoError(t, err)
	assert.Equal(t, "a", head.Track.ID)
	assert.Equal(t, 1, q.Len())
}

func TestQueue_PeekEmpty(t *testing.T) {
	q := New(5)
	_, err := q.Peek()
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestQueue_RemoveAt(t *testing.T) {
	tests := []struct {
		name      string
		index     int
		wantErr   error
		wantID    string
		remaining []string
	}{
		{
			name:      "remove middle",
			index:     1,
			wantID:    "b",
			remaining: []string{"a", "c"},
		},
		{
			name:      "remove head",
			index:     0,
			wantID:    "a",
			remaining: []string{"b", "c"},
		},
		{
			name:    "negative index",
			index:   -1,
			wantErr: ErrOutOfRange,
		},
		{
			name:    "index past end",
			index:   3,
			wantErr: ErrOutOfRange,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := New(5)
			for _, id := range []string{"a", "b", "c"} {
				_, err := q.Enqueue(newRequest(id, "viewer"))
				assert.NoError(t, err)
			}

			removed, err := q.RemoveAt(tt.index)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, 3, q.Len())
				return
			}

			assert.NoError(t, err)
			assert.Equal(t, tt.wantID, removed.Track.ID)

			ids := make([]string, 0, q.Len())
			for _, r := range q.Snapshot() {
				ids = append(ids, r.Track.ID)
			}
			assert.Equal(t, tt.remaining, ids)
		})
	}
}

func TestQueue_RemoveByTrackID(t *testing.T) {
	q := New(5)
	for _, id := range []string{"a", "b", "c"} {
		_, err := q.Enqueue(newRequest(id, "viewer"))
		assert.NoError(t, err)
	}

	removed, ok := q.RemoveByTrackID("b")
	assert.True(t, ok)
	assert.Equal(t, "b", removed.Track.ID)
	assert.Equal(t, 2, q.Len())
	assert.False(t, q.ContainsTrack("b"))

	_, ok = q.RemoveByTrackID("missing")
	assert.False(t, ok)
}

func TestQueue_Clear(t *testing.T) {
	q := New(5)
	for _, id := range []string{"a", "b", "c"} {
		_, err := q.Enqueue(newRequest(id, "viewer"))
		assert.NoError(t, err)
	}

	assert.Equal(t, 3, q.Clear())
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, 0, q.Clear())
}

func TestQueue_ShrinkCapacityKeepsEntries(t *testing.T) {
	q := New(3)
	for _, id := range []string{"a", "b", "c"} {
		_, err := q.Enqueue(newRequest(id, "viewer"))
		assert.NoError(t, err)
	}

	q.SetCapacity(1)
	assert.Equal(t, 3, q.Len())
	assert.True(t, q.IsFull())

	_, err := q.Enqueue(newRequest("d", "viewer"))
	assert.ErrorIs(t, err, ErrFull)

	// Draining below the new capacity reopens the queue.
	_, err = q.Pop()
	assert.NoError(t, err)
	_, err = q.Pop()
	assert.NoError(t, err)
	_, err = q.Pop()
	assert.NoError(t, err)

	_, err = q.Enqueue(newRequest("d", "viewer"))
	assert.NoError(t, err)
}

func TestQueue_SnapshotIsCopy(t *testing.T) {
	q := New(5)
	_, err := q.Enqueue(newRequest("a", "viewer"))
	assert.NoError(t, err)

	snap := q.Snapshot()
	snap[0].Track.ID = "mutated"

	head, err := q.Peek()
	assert.NoError(t, err)
	assert.Equal(t, "a", head.Track.ID)
}
