package markov

// ModelStats holds aggregated statistics for a single model.
type ModelStats struct {
	AlphabetSize      int   // The number of symbols in the alphabet.
	UniqueTransitions int   // The number of distinct (from, to) pairs observed.
	TotalTransitions  int64 // The sum of all counts; the total number of recorded observations.
	TrainedRows       int   // The number of symbols observed as a transition source at least once.
	DeadEnds          int   // The number of symbols never observed as a transition source.
}

// Stats returns a snapshot of the model's matrix: how much of the alphabet
// has outgoing observations and how many distinct transitions exist.
func (m *Model[S]) Stats() ModelStats {
	stats := ModelStats{
		AlphabetSize:     m.mat.n,
		TotalTransitions: m.mat.total,
	}

	for _, sum := range m.mat.rowSums {
		if sum > 0 {
			stats.TrainedRows++
		} else {
			stats.DeadEnds++
		}
	}

	for _, c := range m.mat.counts {
		if c != 0 {
			stats.UniqueTransitions++
		}
	}

	return stats
}
