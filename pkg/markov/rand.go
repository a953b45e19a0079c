package markov

import (
	"math/rand/v2"
)

// Source picks an index from a list of non-negative weights, with probability
// proportional to each weight. Every random decision in this package goes
// through a Source.
type Source interface {
	Pick(weights []float64) int
}

type randSource struct {
	float func() float64
}

// NewSource returns a Source backed by a PCG generator with the given seed.
// Two sources created with the same seed produce the same picks.
func NewSource(seed uint64) Source {
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	return &randSource{float: r.Float64}
}

// DefaultSource returns a Source backed by the process-wide generator. It is
// not reproducible.
func DefaultSource() Source {
	return &randSource{float: rand.Float64}
}

// Pick walks the weights, subtracting each from a uniform draw over their sum.
// It returns -1 when no weight is positive.
func (s *randSource) Pick(weights []float64) int {
	var total float64
	last := -1
	for i, w := range weights {
		if w > 0 {
			total += w
			last = i
		}
	}
	if last < 0 {
		return -1
	}
	r := s.float() * total
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		r -= w
		if r < 0 {
			return i
		}
	}
	// Float rounding can leave r at exactly zero.
	return last
}

// uniform returns n equal weights.
func uniform(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1
	}
	return w
}
