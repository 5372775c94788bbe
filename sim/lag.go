package sim

import "time"

// LagDetector tracks cycle durations over a rolling window and reports once
// when too many of them overran the budget.
type LagDetector struct {
	budget  time.Duration
	factor  float64
	samples []bool
	next    int
	count   int
	slow    int
	warned  bool
}

// NewLagDetector creates a detector. A cycle is slow when it takes longer
// than factor*budget; lag is reported when more than half the window is slow.
func NewLagDetector(budget time.Duration, window int, factor float64) *LagDetector {
	if window < 1 {
		window = 60
	}
	if factor <= 0 {
		factor = 2
	}
	return &LagDetector{
		budget:  budget,
		factor:  factor,
		samples: make([]bool, window),
	}
}

// Observe records one cycle. Returns true exactly once, on the first
// observation that crosses the threshold.
func (l *LagDetector) Observe(d time.Duration) bool {
	slow := float64(d) > l.factor*float64(l.budget)
	if l.count == len(l.samples) {
		if l.samples[l.next] {
			l.slow--
		}
	} else {
		l.count++
	}
	l.samples[l.next] = slow
	if slow {
		l.slow++
	}
	l.next = (l.next + 1) % len(l.samples)

	if l.warned || l.count < len(l.samples) {
		return false
	}
	if l.slow*2 > len(l.samples) {
		l.warned = true
		return true
	}
	return false
}

// Warned reports whether lag has been reported.
func (l *LagDetector) Warned() bool {
	return l.warned
}
