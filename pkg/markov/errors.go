package markov

import "errors"

// Sentinel errors returned by the markov package. All of them describe
// caller input or precondition violations; none are transient, so there is
// nothing to retry. Callers should match them with errors.Is, as returned
// errors may carry additional context via wrapping.
var (
	// ErrInvalidAlphabet is returned when an alphabet is constructed from an
	// empty symbol list or a list containing duplicates.
	ErrInvalidAlphabet = errors.New("markov: invalid alphabet")

	// ErrUnknownSymbol is returned when a symbol is not part of the model's
	// alphabet, either while recording a transition or as a generation start.
	ErrUnknownSymbol = errors.New("markov: unknown symbol")

	// ErrInvalidDistribution is returned when a probability vector has the
	// wrong length, an entry outside [0,1], or does not sum to 1.
	ErrInvalidDistribution = errors.New("markov: invalid probability distribution")

	// ErrEmptyModel is returned when generation or a distribution step is
	// attempted before any transition has been recorded.
	ErrEmptyModel = errors.New("markov: model has no recorded transitions")

	// ErrInvalidLength is returned when a negative sequence length is requested.
	ErrInvalidLength = errors.New("markov: invalid sequence length")

	// ErrInvalidCount is returned when a transition is recorded with a
	// non-positive count. Counts only ever grow; there is no decrement path.
	ErrInvalidCount = errors.New("markov: invalid transition count")

	// ErrIndexOutOfBounds is returned for a matrix index outside [0, N).
	// Hitting it through the public API indicates a programming error.
	ErrIndexOutOfBounds = errors.New("markov: index out of bounds")

	// ErrDeadEnd is returned when a generation step lands on a distribution
	// with no remaining probability mass, or with partial mass under the
	// DeadEndError policy.
	ErrDeadEnd = errors.New("markov: dead end in chain")
)
