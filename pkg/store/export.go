package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// ExportedModel is the serializable representation of a persisted model,
// used for JSON-based import and export.
type ExportedModel struct {
	Name        string               `json:"name"`
	Symbols     []string             `json:"symbols"` // alphabet in index order
	Transitions []ExportedTransition `json:"transitions"`
}

// ExportedTransition is the serializable representation of a single matrix
// cell, used within an ExportedModel. Indices refer to the Symbols slice.
type ExportedTransition struct {
	From  int   `json:"from"`
	To    int   `json:"to"`
	Count int64 `json:"count"`
}

// ExportModel serializes a persisted model into a JSON format and writes it
// to the provided io.Writer. This is useful for backups or for transferring
// models between databases.
func (s *Store) ExportModel(ctx context.Context, model ModelInfo, w io.Writer) error {
	rows, err := s.stmtGetSymbols.QueryContext(ctx, model.Id)
	if err != nil {
		return fmt.Errorf("could not query symbols for export: %w", err)
	}
	var symbols []string
	for rows.Next() {
		var text string
		if err = rows.Scan(&text); err != nil {
			_ = rows.Close()
			return err
		}
		symbols = append(symbols, text)
	}
	_ = rows.Close()
	if err = rows.Err(); err != nil {
		return err
	}

	tRows, err := s.stmtGetTransitions.QueryContext(ctx, model.Id)
	if err != nil {
		return fmt.Errorf("could not query transitions for export: %w", err)
	}
	defer func(tRows *sql.Rows) {
		_ = tRows.Close()
	}(tRows)

	var transitions []ExportedTransition
	for tRows.Next() {
		var t ExportedTransition
		if err = tRows.Scan(&t.From, &t.To, &t.Count); err != nil {
			return err
		}
		transitions = append(transitions, t)
	}
	if err = tRows.Err(); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Model exported",
		slog.String("model_name", model.Name),
		slog.Int("model_id", model.Id),
		slog.Int("symbols_exported", len(symbols)),
		slog.Int("transitions_exported", len(transitions)),
	)

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(ExportedModel{
		Name:        model.Name,
		Symbols:     symbols,
		Transitions: transitions,
	})
}

// ImportModel reads a JSON representation of a model from an io.Reader and
// merges its data into the database. If the model name already exists, the
// imported counts are added to the existing ones, with symbol indices
// re-mapped through the symbol text (the alphabets must agree on their
// symbols). If the model does not exist, it is created. The entire operation
// is transactional.
func (s *Store) ImportModel(ctx context.Context, r io.Reader) error {
	var imported ExportedModel
	if err := json.NewDecoder(r).Decode(&imported); err != nil {
		return fmt.Errorf("failed to decode json model: %w", err)
	}
	if imported.Name == "" || len(imported.Symbols) == 0 {
		return fmt.Errorf("imported model needs a name and a non-empty symbol list")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction for import: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	// indexMap translates the imported file's symbol indices into the
	// target model's indices.
	indexMap := make(map[int]int, len(imported.Symbols))

	var modelID int
	err = tx.QueryRowContext(ctx, "SELECT model_id FROM markov_models WHERE model_name = ?", imported.Name).Scan(&modelID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		res, err := tx.StmtContext(ctx, s.stmtAddModel).ExecContext(ctx, imported.Name, len(imported.Symbols))
		if err != nil {
			return fmt.Errorf("failed to insert new model '%s': %w", imported.Name, err)
		}
		newID, _ := res.LastInsertId()
		modelID = int(newID)

		stmtInsertSymbol := tx.StmtContext(ctx, s.stmtInsertSymbol)
		for i, text := range imported.Symbols {
			if _, err = stmtInsertSymbol.ExecContext(ctx, modelID, i, text); err != nil {
				return fmt.Errorf("failed to insert imported symbol '%s': %w", text, err)
			}
			indexMap[i] = i
		}
	case err != nil:
		return fmt.Errorf("failed to query for model '%s': %w", imported.Name, err)
	default:
		// Merging into an existing model: map the imported indices onto the
		// stored alphabet through the symbol text.
		sRows, err := tx.QueryContext(ctx, "SELECT symbol_index, symbol_text FROM markov_symbols WHERE model_id = ?", modelID)
		if err != nil {
			return fmt.Errorf("could not query existing symbols: %w", err)
		}
		existing := make(map[string]int)
		for sRows.Next() {
			var idx int
			var text string
			if err = sRows.Scan(&idx, &text); err != nil {
				_ = sRows.Close()
				return err
			}
			existing[text] = idx
		}
		_ = sRows.Close()
		if err = sRows.Err(); err != nil {
			return err
		}

		for i, text := range imported.Symbols {
			idx, ok := existing[text]
			if !ok {
				return fmt.Errorf("imported symbol '%s' not present in existing model '%s'", text, imported.Name)
			}
			indexMap[i] = idx
		}
	}

	stmtUpsertChain := tx.StmtContext(ctx, s.stmtUpsertChain)
	for _, t := range imported.Transitions {
		fromIdx, ok := indexMap[t.From]
		if !ok {
			return fmt.Errorf("import consistency error: from index %d not in symbol list", t.From)
		}
		toIdx, ok := indexMap[t.To]
		if !ok {
			return fmt.Errorf("import consistency error: to index %d not in symbol list", t.To)
		}
		if t.Count <= 0 {
			return fmt.Errorf("import consistency error: non-positive count %d for (%d -> %d)", t.Count, t.From, t.To)
		}
		if _, err = stmtUpsertChain.ExecContext(ctx, modelID, fromIdx, toIdx, t.Count); err != nil {
			return fmt.Errorf("failed to merge transition (%d -> %d): %w", fromIdx, toIdx, err)
		}
	}

	s.logger.InfoContext(ctx, "Model imported successfully",
		slog.String("model_name", imported.Name),
		slog.Int("target_model_id", modelID),
		slog.Int("symbols_merged", len(imported.Symbols)),
		slog.Int("transitions_merged", len(imported.Transitions)),
	)

	return tx.Commit()
}
