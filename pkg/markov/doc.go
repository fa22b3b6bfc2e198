/*
Package markov implements a first-order Markov chain over a fixed, caller
supplied alphabet of symbols. Observed transitions (symbol A followed by
symbol B) accumulate in an N x N frequency matrix, rows are normalized into
conditional probability distributions using cached row sums, and new
sequences are generated by repeated weighted sampling against those
distributions.

The package is generic over any comparable symbol type, keeps the whole
model in memory, and performs no I/O of its own. Persistence of trained
models is handled by the store package.
*/
package markov
