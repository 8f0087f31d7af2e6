package vote

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTally_LikeIdempotent(t *testing.T) {
	tally := New()

	result := tally.Like("Viewer")
	assert.True(t, result.Added)
	assert.Equal(t, 1, result.Likes)

	// Same voter again, different casing.
	result = tally.Like("viewer")
	assert.False(t, result.Added)
	assert.Equal(t, 1, result.Likes)

	result = tally.Like("other")
	assert.True(t, result.Added)
	assert.Equal(t, 2, result.Likes)
}

func TestTally_SkipIdempotent(t *testing.T) {
	tally := New()

	result := tally.Skip("viewer", 5)
	assert.True(t, result.Added)
	assert.Equal(t, 1, result.Skips)
	assert.False(t, result.ThresholdCrossed)

	result = tally.Skip("VIEWER", 5)
	assert.False(t, result.Added)
	assert.Equal(t, 1, result.Skips)
	assert.False(t, result.ThresholdCrossed)
}

func TestTally_LikeAndSkipAreIndependent(t *testing.T) {
	tally := New()

	tally.Like("viewer")
	result := tally.Skip("viewer", 5)
	assert.True(t, result.Added)
	assert.Equal(t, 1, result.Likes)
	assert.Equal(t, 1, result.Skips)
}

func TestTally_ThresholdCrossesExactlyOnce(t *testing.T) {
	tally := New()

	for i := 0; i < 4; i++ {
		result := tally.Skip(fmt.Sprintf("viewer%d", i), 5)
		assert.True(t, result.Added)
		assert.False(t, result.ThresholdCrossed, "vote %d should not cross", i)
	}

	result := tally.Skip("viewer4", 5)
	assert.True(t, result.Added)
	assert.True(t, result.ThresholdCrossed)

	// Votes past the threshold never re-trigger.
	result = tally.Skip("viewer5", 5)
	assert.True(t, result.Added)
	assert.Equal(t, 6, result.Skips)
	assert.False(t, result.ThresholdCrossed)
}

func TestTally_RepeatVoteCannotCross(t *testing.T) {
	tally := New()

	tally.Skip("a", 2)
	// A repeat from the same voter stays at one skip: no crossing.
	result := tally.Skip("a", 2)
	assert.False(t, result.Added)
	assert.False(t, result.ThresholdCrossed)

	result = tally.Skip("b", 2)
	assert.True(t, result.ThresholdCrossed)
}

func TestTally_ThresholdLoweredMidTrack(t *testing.T) {
	tally := New()

	tally.Skip("a", 10)
	tally.Skip("b", 10)

	// Operator lowers the threshold; the next vote crosses.
	result := tally.Skip("c", 3)
	assert.True(t, result.ThresholdCrossed)
}

func TestTally_Reset(t *testing.T) {
	tally := New()

	tally.Like("a")
	for i := 0; i < 5; i++ {
		tally.Skip(fmt.Sprintf("viewer%d", i), 5)
	}

	tally.Reset()

	likes, skips := tally.Counts()
	assert.Equal(t, 0, likes)
	assert.Equal(t, 0, skips)

	// The latch resets too: a fresh track can trigger again.
	for i := 0; i < 4; i++ {
		tally.Skip(fmt.Sprintf("viewer%d", i), 5)
	}
	result := tally.Skip("viewer4", 5)
	assert.True(t, result.ThresholdCrossed)
}

func TestTally_ZeroThresholdNeverTriggers(t *testing.T) {
	tally := New()

	result := tally.Skip("viewer", 0)
	assert.True(t, result.Added)
	assert.False(t, result.ThresholdCrossed)
}
