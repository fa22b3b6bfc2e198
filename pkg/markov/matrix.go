package markov

import (
	"fmt"
	"math"
)

// distributionEpsilon is the numeric tolerance used when checking that a
// probability vector sums to 1.
const distributionEpsilon = 1e-9

// matrix is the transition frequency matrix of a model: counts[from*n+to]
// holds how often the symbol at index `from` was observed to be followed by
// the symbol at index `to`. Row sums are cached and maintained on every
// write, so converting a row to a conditional distribution never rescans
// the matrix. Rows that have never been observed keep a normalizer of 1,
// which makes them divide to an all-zero probability row instead of
// dividing by zero.
type matrix struct {
	n       int
	counts  []int64
	rowSums []int64
	total   int64
}

func newMatrix(n int) *matrix {
	return &matrix{
		n:       n,
		counts:  make([]int64, n*n),
		rowSums: make([]int64, n),
	}
}

// increment adds delta observations of the transition from -> to. The cell
// and the cached row sum are updated together; on any validation failure
// neither changes.
func (m *matrix) increment(from, to int, delta int64) error {
	if from < 0 || from >= m.n {
		return fmt.Errorf("%w: from index %d (alphabet size %d)", ErrIndexOutOfBounds, from, m.n)
	}
	if to < 0 || to >= m.n {
		return fmt.Errorf("%w: to index %d (alphabet size %d)", ErrIndexOutOfBounds, to, m.n)
	}
	if delta <= 0 {
		return fmt.Errorf("%w: delta must be positive, got %d", ErrInvalidCount, delta)
	}

	m.counts[from*m.n+to] += delta
	m.rowSums[from] += delta
	m.total += delta
	return nil
}

func (m *matrix) count(from, to int) int64 {
	return m.counts[from*m.n+to]
}

// normalizer returns the divisor for a row: its sum of counts, pinned to 1
// for rows with no observations.
func (m *matrix) normalizer(row int) float64 {
	if m.rowSums[row] == 0 {
		return 1
	}
	return float64(m.rowSums[row])
}

// step advances a probability vector by one Markov step, computing
// current x (counts / rowSums) without validating the input. The result
// sums to less than 1 whenever `current` carries mass on a dead-end row;
// that loss is intentional and left for the sampler's policy to resolve.
func (m *matrix) step(current []float64) []float64 {
	next := make([]float64, m.n)
	for i, p := range current {
		if p == 0 || m.rowSums[i] == 0 {
			continue
		}
		norm := float64(m.rowSums[i])
		row := m.counts[i*m.n : (i+1)*m.n]
		for j, c := range row {
			if c != 0 {
				next[j] += p * float64(c) / norm
			}
		}
	}
	return next
}

// uniformVector returns the distribution assigning 1/n to each symbol.
func uniformVector(n int) []float64 {
	v := make([]float64, n)
	p := 1 / float64(n)
	for i := range v {
		v[i] = p
	}
	return v
}

// oneHotVector returns the distribution with all mass at index i.
func oneHotVector(n, i int) []float64 {
	v := make([]float64, n)
	v[i] = 1
	return v
}

// validateDistribution checks that p is a well-formed probability vector of
// length n: every entry within [0,1] and the total within
// distributionEpsilon of 1.
func validateDistribution(p []float64, n int) error {
	if len(p) != n {
		return fmt.Errorf("%w: length %d, want %d", ErrInvalidDistribution, len(p), n)
	}
	var sum float64
	for i, v := range p {
		if v < 0 || v > 1 || math.IsNaN(v) {
			return fmt.Errorf("%w: entry %d is %v", ErrInvalidDistribution, i, v)
		}
		sum += v
	}
	if math.Abs(sum-1) > distributionEpsilon {
		return fmt.Errorf("%w: sums to %v", ErrInvalidDistribution, sum)
	}
	return nil
}
