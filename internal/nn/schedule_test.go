package nn

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestLearnRateSchedule_MilestonesFireOnce tests that each threshold decays
// the rate exactly once, even when accuracy regresses and recovers.
func TestLearnRateSchedule_MilestonesFireOnce(t *testing.T) {
	s := NewLearnRateSchedule()
	lr := float32(1.0)

	lr = s.Adjust(lr, 0.50)
	assert.Equal(t, float32(1.0), lr)
	assert.Equal(t, 0, s.Phase())

	lr = s.Adjust(lr, 0.81)
	assert.InDelta(t, 0.9, float64(lr), 1e-6)
	assert.Equal(t, 1, s.Phase())

	// Regression below the fired milestone must not decay again.
	lr = s.Adjust(lr, 0.70)
	assert.InDelta(t, 0.9, float64(lr), 1e-6)
	lr = s.Adjust(lr, 0.82)
	assert.InDelta(t, 0.9, float64(lr), 1e-6)
	assert.Equal(t, 1, s.Phase())
}

// TestLearnRateSchedule_CrossingSeveralAtOnce tests that a jump across
// several milestones applies every decay in one call.
func TestLearnRateSchedule_CrossingSeveralAtOnce(t *testing.T) {
	s := NewLearnRateSchedule()
	lr := s.Adjust(1.0, 0.91)
	// 0.80, 0.85 and 0.90 all fire: 0.9^3.
	assert.InDelta(t, 0.729, float64(lr), 1e-6)
	assert.Equal(t, 3, s.Phase())
}

// TestLearnRateSchedule_Monotonic tests the rate never increases across an
// arbitrary accuracy trajectory and all milestones exhaust at perfect
// accuracy.
func TestLearnRateSchedule_Monotonic(t *testing.T) {
	s := NewLearnRateSchedule()
	lr := float32(0.5)
	prev := lr
	for _, acc := range []float32{0.1, 0.83, 0.79, 0.86, 0.93, 0.91, 0.96, 1.0} {
		lr = s.Adjust(lr, acc)
		assert.LessOrEqual(t, lr, prev)
		prev = lr
	}
	assert.Equal(t, 6, s.Phase())
	lr2 := s.Adjust(lr, 1.0)
	assert.Equal(t, lr, lr2)
}
