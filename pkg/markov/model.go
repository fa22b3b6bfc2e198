package markov

import (
	"fmt"
	"io"
	"log/slog"
)

// Transition is a single observed edge in training data: From was
// immediately followed by To.
type Transition[S comparable] struct {
	From S
	To   S
}

// TransitionCount is an observed transition together with how often it was
// recorded. Used when enumerating a model's matrix, e.g. for persistence.
type TransitionCount[S comparable] struct {
	From  S
	To    S
	Count int64
}

// Model is a first-order Markov chain: an immutable alphabet plus a mutable
// transition frequency matrix.
//
// Writes (RecordTransition and friends) are not safe for unsynchronized
// concurrent use; callers that ingest concurrently must serialize writes
// themselves. Reads, including generation, may run concurrently with each
// other but never with a write.
type Model[S comparable] struct {
	alphabet *Alphabet[S]
	mat      *matrix
	logger   *slog.Logger
}

// New creates a Model over the given ordered, distinct symbols, optionally
// pre-trained with an initial edge list. It returns ErrInvalidAlphabet for
// an empty or duplicate-containing symbol list and ErrUnknownSymbol if an
// initial edge references a foreign symbol.
func New[S comparable](symbols []S, edges ...Transition[S]) (*Model[S], error) {
	alphabet, err := NewAlphabet(symbols)
	if err != nil {
		return nil, err
	}

	m := &Model[S]{
		alphabet: alphabet,
		mat:      newMatrix(alphabet.Len()),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	if len(edges) > 0 {
		if err := m.RecordTransitions(edges); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// SetLogger sets the logger for the model. By default, all logs are discarded.
func (m *Model[S]) SetLogger(logger *slog.Logger) {
	if logger != nil {
		m.logger = logger
	}
}

// Alphabet returns the model's alphabet.
func (m *Model[S]) Alphabet() *Alphabet[S] {
	return m.alphabet
}

// RecordTransition records one observation of `from` being followed by `to`.
// Both symbols must be part of the alphabet; on failure nothing is mutated.
func (m *Model[S]) RecordTransition(from, to S) error {
	return m.AddTransition(from, to, 1)
}

// AddTransition records `count` observations of `from` being followed by
// `to` in a single write. Counts only ever grow; a non-positive count is
// rejected. This is the path the store package uses to rebuild a model from
// its persisted matrix.
func (m *Model[S]) AddTransition(from, to S, count int64) error {
	fromIdx, err := m.alphabet.IndexOf(from)
	if err != nil {
		return fmt.Errorf("transition source: %w", err)
	}
	toIdx, err := m.alphabet.IndexOf(to)
	if err != nil {
		return fmt.Errorf("transition target: %w", err)
	}
	return m.mat.increment(fromIdx, toIdx, count)
}

// RecordTransitions records a batch of edges. Every edge is validated
// against the alphabet before any count is touched, so a bad edge anywhere
// in the batch leaves the model unchanged.
func (m *Model[S]) RecordTransitions(edges []Transition[S]) error {
	indexed := make([][2]int, len(edges))
	for i, e := range edges {
		fromIdx, err := m.alphabet.IndexOf(e.From)
		if err != nil {
			return fmt.Errorf("edge %d source: %w", i, err)
		}
		toIdx, err := m.alphabet.IndexOf(e.To)
		if err != nil {
			return fmt.Errorf("edge %d target: %w", i, err)
		}
		indexed[i] = [2]int{fromIdx, toIdx}
	}

	for _, idx := range indexed {
		if err := m.mat.increment(idx[0], idx[1], 1); err != nil {
			return err
		}
	}

	m.logger.Debug("Recorded transition batch", slog.Int("edges", len(edges)))
	return nil
}

// Count returns how often `from` has been observed transitioning to `to`.
func (m *Model[S]) Count(from, to S) (int64, error) {
	fromIdx, err := m.alphabet.IndexOf(from)
	if err != nil {
		return 0, err
	}
	toIdx, err := m.alphabet.IndexOf(to)
	if err != nil {
		return 0, err
	}
	return m.mat.count(fromIdx, toIdx), nil
}

// TotalTransitions returns the total number of recorded observations across
// the whole matrix. A model with zero total cannot generate.
func (m *Model[S]) TotalTransitions() int64 {
	return m.mat.total
}

// TransitionCounts enumerates every non-zero cell of the frequency matrix in
// row-major order. The slice is freshly allocated on each call.
func (m *Model[S]) TransitionCounts() []TransitionCount[S] {
	var out []TransitionCount[S]
	for i := 0; i < m.mat.n; i++ {
		for j := 0; j < m.mat.n; j++ {
			c := m.mat.count(i, j)
			if c == 0 {
				continue
			}
			out = append(out, TransitionCount[S]{
				From:  m.alphabet.symbols[i],
				To:    m.alphabet.symbols[j],
				Count: c,
			})
		}
	}
	return out
}

// NextDistribution advances a probability vector by one Markov step against
// the normalized transition matrix. The input must have exactly one entry
// per alphabet symbol, all within [0,1], summing to 1 within tolerance;
// otherwise ErrInvalidDistribution is returned. An untrained model is
// rejected with ErrEmptyModel.
//
// The result is not guaranteed to sum to 1: mass placed on a symbol that
// was never observed as a transition source is dropped, since that symbol
// has no successor distribution.
func (m *Model[S]) NextDistribution(current []float64) ([]float64, error) {
	if m.mat.total == 0 {
		return nil, ErrEmptyModel
	}
	if err := validateDistribution(current, m.mat.n); err != nil {
		return nil, err
	}
	return m.mat.step(current), nil
}
