package filter

import (
	"context"

	"github.com/xkatng/twitch-song-requests/internal/domain/song"
)

// QueueCapacityFilter rejects requests when the queue is at capacity.
// Runs first so a full queue short-circuits the rest of the chain.
type QueueCapacityFilter struct{}

// NewQueueCapacityFilter creates a new queue capacity filter.
func NewQueueCapacityFilter() *QueueCapacityFilter {
	return &QueueCapacityFilter{}
}

func (f *QueueCapacityFilter) Name() string {
	return "queue_capacity_filter"
}

func (f *QueueCapacityFilter) Description() string {
	return "Rejects requests while the queue is at max_queue_size"
}

func (f *QueueCapacityFilter) ReturnCodes() []string {
	return []string{CodeQueueFull}
}

func (f *QueueCapacityFilter) ValidateConfig(settings map[string]any) error {
	// Capacity is a runtime setting read from session state, not filter config.
	return nil
}

func (f *QueueCapacityFilter) AppliesTo(source song.Source) bool {
	return true
}

func (f *QueueCapacityFilter) Check(ctx context.Context, c Candidate, s State) Result {
	if s.QueueLen >= s.MaxQueueSize {
		return Reject(CodeQueueFull)
	}
	return Accept()
}

func init() {
	Register("queue_capacity_filter", func() Filter {
		return NewQueueCapacityFilter()
	})
}
