// Package queue provides the bounded FIFO of admitted song requests.
package queue

import (
	"github.com/cockroachdb/errors"

	"github.com/xkatng/twitch-song-requests/internal/domain/song"
)

var (
	ErrFull       = errors.New("queue is full")
	ErrEmpty      = errors.New("queue is empty")
	ErrOutOfRange = errors.New("queue index out of range")
	ErrDuplicate  = errors.New("track already queued")
)

// Queue is an ordered collection of requests. Insertion order is play order.
// It is not internally locked; the playback controller serializes all access.
type Queue struct {
	items    []song.Request
	capacity int
}

// New creates an empty queue with the given capacity.
func New(capacity int) *Queue {
	return &Queue{
		items:    make([]song.Request, 0, capacity),
		capacity: capacity,
	}
}

// Capacity returns the current capacity.
func (q *Queue) Capacity() int {
	return q.capacity
}

// SetCapacity updates the capacity. Shrinking below the current length keeps
// existing entries; new enqueues fail until the queue drains below capacity.
func (q *Queue) SetCapacity(n int) {
	q.capacity = n
}

// Len returns the number of queued requests.
func (q *Queue) Len() int {
	return len(q.items)
}

// IsFull reports whether the queue is at or over capacity.
func (q *Queue) IsFull() bool {
	return len(q.items) >= q.capacity
}

// ContainsTrack reports whether a request for the given track ID is queued.
func (q *Queue) ContainsTrack(trackID string) bool {
	for _, r := range q.items {
		if r.Track.ID == trackID {
			return true
		}
	}
	return false
}

// Enqueue appends a request and returns its 1-based position.
// Capacity and uniqueness are re-validated here even though admission
// already checked them.
func (q *Queue) Enqueue(r song.Request) (int, error) {
	if q.IsFull() {
		return 0, ErrFull
	}
	if q.ContainsTrack(r.Track.ID) {
		return 0, ErrDuplicate
	}
	q.items = append(q.items, r)
	return len(q.items), nil
}

// Peek returns the head request without removing it.
func (q *Queue) Peek() (song.Request, error) {
	if len(q.items) == 0 {
		return song.Request{}, ErrEmpty
	}
	return q.items[0], nil
}

// Pop removes and returns the head request.
func (q *Queue) Pop() (song.Request, error) {
	if len(q.items) == 0 {
		return song.Request{}, ErrEmpty
	}
	head := q.items[0]
	q.items = q.items[1:]
	return head, nil
}

// RemoveAt removes and returns the request at the given 0-based position.
func (q *Queue) RemoveAt(i int) (song.Request, error) {
	if i < 0 || i >= len(q.items) {
		return song.Request{}, ErrOutOfRange
	}
	removed := q.items[i]
	q.items = append(q.items[:i], q.items[i+1:]...)
	return removed, nil
}

// RemoveByTrackID removes and returns the first request matching the track ID.
// Used when the external player reports a queued track that is not the head
// (e.g. the operator jumped the order in the Spotify app).
func (q *Queue) RemoveByTrackID(trackID string) (song.Request, bool) {
	for i, r := range q.items {
		if r.Track.ID == trackID {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return r, true
		}
	}
	return song.Request{}, false
}

// Clear removes all requests and returns how many were removed.
func (q *Queue) Clear() int {
	n := len(q.items)
	q.items = q.items[:0]
	return n
}

// Snapshot returns a copy of the queued requests in play order.
func (q *Queue) Snapshot() []song.Request {
	out := make([]song.Request, len(q.items))
	copy(out, q.items)
	return out
}
