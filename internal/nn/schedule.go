package nn

// LearnRateSchedule decays the learning rate as validation accuracy crosses
// fixed milestones. Each crossed threshold multiplies the rate by the decay
// factor exactly once; the phase index remembers which milestones have
// already fired, so accuracy regressions never re-trigger a decay.
type LearnRateSchedule struct {
	thresholds []float32
	decay      float32
	phase      int
}

// NewLearnRateSchedule returns the standard schedule: decay by 0.9 at
// accuracies 0.80, 0.85, 0.90, 0.92, 0.95 and 0.97.
func NewLearnRateSchedule() *LearnRateSchedule {
	return &LearnRateSchedule{
		thresholds: []float32{0.80, 0.85, 0.90, 0.92, 0.95, 0.97},
		decay:      0.9,
	}
}

// Adjust returns the learning rate after applying every milestone the given
// accuracy has newly crossed.
func (s *LearnRateSchedule) Adjust(learningRate, accuracy float32) float32 {
	for s.phase < len(s.thresholds) && accuracy >= s.thresholds[s.phase] {
		learningRate *= s.decay
		s.phase++
	}
	return learningRate
}

// Phase reports how many milestones have fired.
func (s *LearnRateSchedule) Phase() int { return s.phase }
