package markov

import "fmt"

// Alphabet is the immutable, ordered set of distinct symbols a model can
// emit. It owns the symbol <-> matrix index mapping used everywhere else in
// the package. An Alphabet is safe for concurrent reads once constructed.
type Alphabet[S comparable] struct {
	symbols []S
	index   map[S]int
}

// NewAlphabet builds an Alphabet from an ordered list of symbols. It returns
// ErrInvalidAlphabet if the list is empty or contains a duplicate.
func NewAlphabet[S comparable](symbols []S) (*Alphabet[S], error) {
	if len(symbols) == 0 {
		return nil, fmt.Errorf("%w: no symbols", ErrInvalidAlphabet)
	}

	index := make(map[S]int, len(symbols))
	for i, s := range symbols {
		if _, seen := index[s]; seen {
			return nil, fmt.Errorf("%w: duplicate symbol %v at position %d", ErrInvalidAlphabet, s, i)
		}
		index[s] = i
	}

	owned := make([]S, len(symbols))
	copy(owned, symbols)

	return &Alphabet[S]{symbols: owned, index: index}, nil
}

// Len returns the number of symbols in the alphabet.
func (a *Alphabet[S]) Len() int {
	return len(a.symbols)
}

// IndexOf returns the 0-based matrix index of a symbol, or ErrUnknownSymbol
// if the symbol is not part of the alphabet.
func (a *Alphabet[S]) IndexOf(symbol S) (int, error) {
	i, ok := a.index[symbol]
	if !ok {
		return 0, fmt.Errorf("%w: %v", ErrUnknownSymbol, symbol)
	}
	return i, nil
}

// SymbolAt returns the symbol at a matrix index. It returns
// ErrIndexOutOfBounds if the index is outside [0, Len()).
func (a *Alphabet[S]) SymbolAt(index int) (S, error) {
	if index < 0 || index >= len(a.symbols) {
		var zero S
		return zero, fmt.Errorf("%w: %d (alphabet size %d)", ErrIndexOutOfBounds, index, len(a.symbols))
	}
	return a.symbols[index], nil
}

// Symbols returns a copy of the alphabet in construction order.
func (a *Alphabet[S]) Symbols() []S {
	out := make([]S, len(a.symbols))
	copy(out, a.symbols)
	return out
}
