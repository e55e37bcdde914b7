package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunningStat(t *testing.T) {
	type tc struct {
		scores []int
		mean   float64
		stdev  float64
	}
	cases := []tc{
		{[]int{10, 12, 23, 23, 16, 23, 21, 16}, 18, 5.2372293656638},
		{[]int{14, 35, 71, 124, 10, 24, 55, 33, 87, 19}, 47.2, 36.937785531891},
		{[]int{1}, 1, 0},
		{[]int{}, 0, 0},
		{[]int{1, 1}, 1, 0},
	}
	for _, c := range cases {
		s := &Statistic{}
		for _, score := range c.scores {
			s.Push(float64(score))
		}
		assert.InDelta(t, c.mean, s.Mean(), Epsilon)
		assert.InDelta(t, c.stdev, s.Stdev(), Epsilon)
		assert.Equal(t, len(c.scores), s.Iterations())
	}
}

func TestRange(t *testing.T) {
	s := &Statistic{}
	for _, v := range []float64{4, -2, 9, 3} {
		s.Push(v)
	}
	assert.Equal(t, -2.0, s.Min())
	assert.Equal(t, 9.0, s.Max())
	assert.Equal(t, 3.0, s.Last())
	s.Reset()
	assert.Equal(t, 0, s.Iterations())
}

func TestZVal(t *testing.T) {
	assert.InDelta(t, 1.959964, ZVal(95), 1e-5)
	assert.InDelta(t, 2.575829, ZVal(99), 1e-5)
	s := &Statistic{}
	for _, v := range []float64{1, 2, 3, 4} {
		s.Push(v)
	}
	assert.InDelta(t, ZVal(95)*s.StandardError(), s.ConfidenceInterval(95), Epsilon)
}

func TestWindow(t *testing.T) {
	w := NewWindow(3)
	assert.Equal(t, 0.0, w.Mean())
	w.Push(3)
	w.Push(6)
	assert.Equal(t, 2, w.Len())
	assert.InDelta(t, 4.5, w.Mean(), Epsilon)
	w.Push(0)
	w.Push(9)
	// 3 has rolled out.
	assert.Equal(t, 3, w.Len())
	assert.InDelta(t, 5.0, w.Mean(), Epsilon)
	w.Reset()
	assert.Equal(t, 0, w.Len())
}
