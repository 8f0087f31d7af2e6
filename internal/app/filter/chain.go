package filter

import "context"

// Chain executes filters in sequence.
// The order is fixed at construction so rejections are deterministic: the
// first failing filter supplies the reject code.
type Chain struct {
	filters []Filter
}

// NewChain creates a new filter chain.
func NewChain() *Chain {
	return &Chain{
		filters: make([]Filter, 0),
	}
}

// Add adds a filter to the chain.
func (c *Chain) Add(f Filter) {
	c.filters = append(c.filters, f)
}

// Execute runs all filters in sequence.
// Returns immediately on the first rejection. Filters are only applied if
// they declare they apply to the candidate's source.
func (c *Chain) Execute(ctx context.Context, cand Candidate, s State) Result {
	for _, f := range c.filters {
		if !f.AppliesTo(cand.Source) {
			continue
		}

		result := f.Check(ctx, cand, s)
		if !result.Accepted {
			return result
		}
	}
	return Accept()
}

// Filters returns all filters in the chain.
func (c *Chain) Filters() []Filter {
	return c.filters
}

// DefaultChain builds the standard admission chain in its fixed order:
// capacity, duplicate, blocklist, cooldown.
func DefaultChain(cooldownSettings map[string]any) (*Chain, error) {
	cooldown := NewRequestCooldownFilter()
	if err := cooldown.ValidateConfig(cooldownSettings); err != nil {
		return nil, err
	}

	chain := NewChain()
	chain.Add(NewQueueCapacityFilter())
	chain.Add(NewDuplicateTrackFilter())
	chain.Add(NewBlockedTrackFilter())
	chain.Add(cooldown)
	return chain, nil
}
