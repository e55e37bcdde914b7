// Package stats keeps running summaries of search measurements: per-depth
// aspiration retries inside the solver, and timings across bench runs.
package stats

import "math"

const (
	Epsilon = 1e-6
)

func FuzzyEqual(a, b float64) bool {
	return math.Abs(a-b) < Epsilon
}

// Statistic is a running mean and variance (Welford's algorithm) plus the
// observed range.
type Statistic struct {
	n    int
	last float64
	min  float64
	max  float64

	mean float64
	m2   float64
}

func (s *Statistic) Push(val float64) {
	s.last = val
	s.n++
	if s.n == 1 {
		s.mean = val
		s.m2 = 0
		s.min, s.max = val, val
		return
	}
	d := val - s.mean
	s.mean += d / float64(s.n)
	s.m2 += d * (val - s.mean)
	s.min = math.Min(s.min, val)
	s.max = math.Max(s.max, val)
}

func (s *Statistic) Mean() float64 {
	return s.mean
}

func (s *Statistic) Variance() float64 {
	if s.n <= 1 {
		return 0.0
	}
	return s.m2 / float64(s.n-1)
}

func (s *Statistic) Stdev() float64 {
	return math.Sqrt(s.Variance())
}

func (s *Statistic) Last() float64 {
	return s.last
}

func (s *Statistic) Min() float64 {
	return s.min
}

func (s *Statistic) Max() float64 {
	return s.max
}

// StandardError returns the standard error of the mean.
func (s *Statistic) StandardError() float64 {
	if s.n == 0 {
		return 0.0
	}
	return math.Sqrt(s.Variance() / float64(s.n))
}

// ConfidenceInterval returns the half-width of the two-tailed interval
// around the mean at the given confidence, in percent.
func (s *Statistic) ConfidenceInterval(pct float64) float64 {
	return ZVal(pct) * s.StandardError()
}

func (s *Statistic) Iterations() int {
	return s.n
}

func (s *Statistic) Reset() {
	*s = Statistic{}
}

// Window is the mean of the most recent values pushed, up to its capacity.
type Window struct {
	vals []float64
	next int
	full bool
	sum  float64
}

func NewWindow(size int) *Window {
	return &Window{vals: make([]float64, size)}
}

func (w *Window) Push(val float64) {
	if len(w.vals) == 0 {
		return
	}
	w.sum += val - w.vals[w.next]
	w.vals[w.next] = val
	w.next++
	if w.next == len(w.vals) {
		w.next = 0
		w.full = true
	}
}

func (w *Window) Len() int {
	if w.full {
		return len(w.vals)
	}
	return w.next
}

func (w *Window) Mean() float64 {
	n := w.Len()
	if n == 0 {
		return 0
	}
	return w.sum / float64(n)
}

func (w *Window) Reset() {
	clear(w.vals)
	w.next, w.full, w.sum = 0, false, 0
}
