package training

// PlateauScheduler reduces the learning rate after the monitored metric
// stops improving. It is a pure function of the metric history: it holds no
// reference to the model or optimizer, it only maps (metric, lr) to a new
// lr. The rate never increases within a run.
type PlateauScheduler struct {
	Patience int     // consecutive non-improvements tolerated before reducing
	Factor   float64 // multiplicative reduction

	best        float64
	badEpochs   int
	initialized bool
}

// NewPlateauScheduler creates a plateau scheduler. Out-of-range arguments
// fall back to the defaults (patience 3, factor 0.1).
func NewPlateauScheduler(patience int, factor float64) *PlateauScheduler {
	if patience <= 0 {
		patience = 3
	}
	if factor <= 0 || factor >= 1 {
		factor = 0.1
	}
	return &PlateauScheduler{Patience: patience, Factor: factor}
}

// Step reports one metric observation and returns the learning rate to use
// from now on. A strict improvement over the best observed value resets the
// patience counter; once the counter exceeds Patience the rate is reduced
// by Factor and the counter resets.
func (s *PlateauScheduler) Step(metric, lr float64) float64 {
	if !s.initialized {
		s.best = metric
		s.initialized = true
		return lr
	}

	if metric < s.best {
		s.best = metric
		s.badEpochs = 0
		return lr
	}

	s.badEpochs++
	if s.badEpochs > s.Patience {
		s.badEpochs = 0
		return lr * s.Factor
	}
	return lr
}
