package markov

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
)

// Rand is the source of randomness for weighted sampling. It is the only
// nondeterminism in the package; injecting a fixed implementation makes
// generation fully deterministic. *rand.Rand from math/rand/v2 satisfies it.
type Rand interface {
	Float64() float64
}

// globalRand adapts the shared math/rand/v2 generator to the Rand interface.
type globalRand struct{}

func (globalRand) Float64() float64 { return rand.Float64() }

// DeadEndPolicy selects how generation handles a step whose distribution
// sums to less than 1 because mass reached a dead-end symbol (one never
// observed as a transition source).
type DeadEndPolicy int

const (
	// DeadEndRenormalize rescales the partial distribution to sum to 1
	// before sampling, dropping the lost mass. This is the default.
	DeadEndRenormalize DeadEndPolicy = iota
	// DeadEndStop truncates the sequence at the step where mass was lost,
	// treating the missing mass as a stop probability.
	DeadEndStop
	// DeadEndError fails the generation with ErrDeadEnd.
	DeadEndError
)

// generateOptions is used by the generate functions to configure default options.
type generateOptions struct {
	rng    Rand
	policy DeadEndPolicy
}

// GenerateOption is a function that configures generation parameters. It's
// used as a variadic argument in Generate, GenerateFrom and GenerateStream.
type GenerateOption func(*generateOptions)

// WithRand sets the randomness source used for the weighted draws. The
// default is the shared math/rand/v2 generator.
func WithRand(r Rand) GenerateOption {
	return func(o *generateOptions) {
		if r != nil {
			o.rng = r
		}
	}
}

// WithDeadEndPolicy sets how a partial (sum < 1) step distribution is
// handled. The default is DeadEndRenormalize.
func WithDeadEndPolicy(p DeadEndPolicy) GenerateOption {
	return func(o *generateOptions) { o.policy = p }
}

func newGenerateOptions(opts []GenerateOption) *generateOptions {
	options := &generateOptions{
		rng:    globalRand{},
		policy: DeadEndRenormalize,
	}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// Generate produces a sequence of `length` symbols, starting from the
// uniform distribution over the alphabet. It fails with ErrEmptyModel if no
// transition has ever been recorded and ErrInvalidLength for a negative
// length; length 0 yields an empty sequence.
func (m *Model[S]) Generate(length int, opts ...GenerateOption) ([]S, error) {
	if err := m.checkGenerate(length); err != nil {
		return nil, err
	}
	return m.generate(uniformVector(m.mat.n), length, newGenerateOptions(opts))
}

// GenerateFrom produces a sequence of `length` symbols whose first element
// is always `start`, beginning from the one-hot distribution at that symbol.
// It fails with ErrUnknownSymbol if `start` is not in the alphabet, and
// otherwise validates like Generate.
func (m *Model[S]) GenerateFrom(start S, length int, opts ...GenerateOption) ([]S, error) {
	startIdx, err := m.alphabet.IndexOf(start)
	if err != nil {
		return nil, fmt.Errorf("generation start: %w", err)
	}
	if err := m.checkGenerate(length); err != nil {
		return nil, err
	}
	return m.generate(oneHotVector(m.mat.n, startIdx), length, newGenerateOptions(opts))
}

// checkGenerate holds the shared entry validation for the generate functions.
func (m *Model[S]) checkGenerate(length int) error {
	if length < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidLength, length)
	}
	if m.mat.total == 0 {
		return ErrEmptyModel
	}
	return nil
}

// generate is the main sampling loop: draw a symbol from the current
// distribution, append it, and advance the distribution one Markov step.
func (m *Model[S]) generate(current []float64, length int, options *generateOptions) ([]S, error) {
	sequence := make([]S, 0, length)

	for step := 0; step < length; step++ {
		idx, err := samplePolicy(current, options)
		if err != nil {
			if options.policy == DeadEndStop {
				m.logger.Debug("Generation truncated at dead end",
					slog.Int("generated_length", len(sequence)),
					slog.Int("requested_length", length),
				)
				break
			}
			return nil, err
		}

		sequence = append(sequence, m.alphabet.symbols[idx])

		if step+1 < length {
			current = m.mat.step(current)
		}
	}

	return sequence, nil
}

// samplePolicy applies the dead-end policy to a step distribution and draws
// one index from it. An error means the step could not produce a symbol.
func samplePolicy(current []float64, options *generateOptions) (int, error) {
	var mass float64
	for _, p := range current {
		mass += p
	}

	switch {
	case mass <= 0:
		// No mass at all: every policy is out of symbols to draw.
		return 0, fmt.Errorf("%w: distribution has no remaining mass", ErrDeadEnd)
	case mass < 1-distributionEpsilon:
		switch options.policy {
		case DeadEndRenormalize:
			// The draw below rescales implicitly, since it samples over the
			// raw weights against their actual total.
		case DeadEndStop:
			// The missing mass becomes the stop probability: a draw landing
			// inside it ends the sequence, anything else selects a symbol.
			r := options.rng.Float64()
			if r >= mass {
				return 0, fmt.Errorf("%w: stopped with partial mass %v", ErrDeadEnd, mass)
			}
			return indexAtCumulative(current, r), nil
		case DeadEndError:
			return 0, fmt.Errorf("%w: partial mass %v", ErrDeadEnd, mass)
		}
	}

	return indexAtCumulative(current, options.rng.Float64()*mass), nil
}

// indexAtCumulative walks the cumulative distribution of weights and returns
// the index whose bucket contains r (0 <= r < sum of weights).
func indexAtCumulative(weights []float64, r float64) int {
	for i, w := range weights {
		r -= w
		if r < 0 {
			return i
		}
	}
	// Floating point underflow can leave r at a hair above zero; fall back
	// to the last non-zero weight.
	for i := len(weights) - 1; i >= 0; i-- {
		if weights[i] > 0 {
			return i
		}
	}
	return len(weights) - 1
}
