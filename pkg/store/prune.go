package store

import (
	"context"
	"fmt"
	"log/slog"
)

// PruneModel removes all persisted transitions of a specific model whose
// count is less than or equal to minCount. This is housekeeping of the
// stored snapshot only; an in-memory model is append-only and is not
// affected until it is reloaded from the pruned snapshot.
func (s *Store) PruneModel(ctx context.Context, model ModelInfo, minCount int64) error {
	res, err := s.stmtPruneModel.ExecContext(ctx, model.Id, minCount)
	if err != nil {
		return fmt.Errorf("could not prune model %d: %w", model.Id, err)
	}
	rowsAffected, _ := res.RowsAffected()

	s.logger.InfoContext(ctx, "Model pruned",
		slog.String("model_name", model.Name),
		slog.Int("model_id", model.Id),
		slog.Int64("min_count", minCount),
		slog.Int64("transitions_removed", rowsAffected),
	)
	return nil
}
