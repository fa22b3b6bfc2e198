package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/kereru-dev/markovgen/pkg/markov"
)

// MergeTransitions records a batch of observed edges directly into a model's
// persisted matrix. Every edge is validated against the stored alphabet
// before anything is written; the counts are then accumulated with upserts
// inside a single transaction. Because the database adds counts in place,
// concurrent merges into the same model compose instead of overwriting each
// other the way a load-modify-save cycle would.
func (s *Store) MergeTransitions(ctx context.Context, model ModelInfo, edges []markov.Transition[string]) error {
	if len(edges) == 0 {
		return nil
	}

	rows, err := s.stmtGetSymbols.QueryContext(ctx, model.Id)
	if err != nil {
		return fmt.Errorf("could not query symbols for model '%s': %w", model.Name, err)
	}
	index := make(map[string]int)
	for rows.Next() {
		var text string
		if err = rows.Scan(&text); err != nil {
			_ = rows.Close()
			return err
		}
		index[text] = len(index)
	}
	_ = rows.Close()
	if err = rows.Err(); err != nil {
		return err
	}

	// Aggregate duplicates so each matrix cell is upserted once.
	type cell struct{ from, to int }
	deltas := make(map[cell]int64, len(edges))
	for i, e := range edges {
		fromIdx, ok := index[e.From]
		if !ok {
			return fmt.Errorf("edge %d source: %w: %v", i, markov.ErrUnknownSymbol, e.From)
		}
		toIdx, ok := index[e.To]
		if !ok {
			return fmt.Errorf("edge %d target: %w: %v", i, markov.ErrUnknownSymbol, e.To)
		}
		deltas[cell{from: fromIdx, to: toIdx}]++
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction for merge: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	stmtUpsertChain := tx.StmtContext(ctx, s.stmtUpsertChain)
	for c, delta := range deltas {
		if _, err = stmtUpsertChain.ExecContext(ctx, model.Id, c.from, c.to, delta); err != nil {
			return fmt.Errorf("failed to merge transition (%d -> %d): %w", c.from, c.to, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("could not commit merge: %w", err)
	}

	s.logger.InfoContext(ctx, "Transitions merged",
		slog.String("model_name", model.Name),
		slog.Int("model_id", model.Id),
		slog.Int("edges_merged", len(edges)),
	)

	return nil
}
