package store

import (
	"context"
)

// DBStats holds aggregated statistics for the entire database, including a
// list of all models and their individual stats.
type DBStats struct {
	Models      []ModelInfo        // A list of models in the database
	Stats       map[int]ModelStats // A mapping of model ids to their stats
	SymbolCount int                // Total number of symbol rows across all models
}

// ModelStats holds aggregated statistics for a single persisted model.
type ModelStats struct {
	UniqueTransitions int   // The number of distinct (from, to) cells stored.
	TotalTransitions  int64 // The sum of counts over all stored cells.
}

// GetStats returns a snapshot of statistics for the entire database,
// including global counts and per-model stats.
func (s *Store) GetStats(ctx context.Context) (*DBStats, error) {
	modelInfos, err := s.GetModelInfos(ctx)
	if err != nil {
		return nil, err
	}

	var symbolCount int
	if err = s.stmtGetSymbolsCount.QueryRowContext(ctx).Scan(&symbolCount); err != nil {
		return nil, err
	}

	models := make([]ModelInfo, 0, len(modelInfos))
	modelStats := make(map[int]ModelStats)
	for _, v := range modelInfos {
		models = append(models, v)

		var unique int
		var total int64
		if err = s.stmtModelChains.QueryRowContext(ctx, v.Id).Scan(&unique); err != nil {
			return nil, err
		}
		if err = s.stmtModelFreq.QueryRowContext(ctx, v.Id).Scan(&total); err != nil {
			return nil, err
		}
		modelStats[v.Id] = ModelStats{
			UniqueTransitions: unique,
			TotalTransitions:  total,
		}
	}

	return &DBStats{
		Models:      models,
		Stats:       modelStats,
		SymbolCount: symbolCount,
	}, nil
}
