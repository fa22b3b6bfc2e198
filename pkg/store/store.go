package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/kereru-dev/markovgen/pkg/markov"
)

// ModelInfo holds the essential metadata for a persisted model: its unique
// ID, name, and the size of its alphabet.
type ModelInfo struct {
	Id           int
	Name         string
	AlphabetSize int
}

// SetupSchema initializes the necessary tables in the provided database.
// This function should be called once on a new database before any other
// operations are performed. It is idempotent and safe to call on an
// already-initialized database.
func SetupSchema(db *sql.DB) error {

	const (
		schemaModels = `
CREATE TABLE IF NOT EXISTS markov_models (
    model_id INTEGER PRIMARY KEY,
    model_name TEXT NOT NULL UNIQUE,
    alphabet_size INTEGER NOT NULL
);
`
		schemaSymbols = `
CREATE TABLE IF NOT EXISTS markov_symbols (
    model_id INTEGER NOT NULL,
    symbol_index INTEGER NOT NULL,
    symbol_text TEXT NOT NULL,
    PRIMARY KEY (model_id, symbol_index),
    UNIQUE (model_id, symbol_text)
);
`
		schemaTransitions = `
CREATE TABLE IF NOT EXISTS markov_transitions (
    model_id INTEGER NOT NULL,
    from_index INTEGER NOT NULL,
    to_index INTEGER NOT NULL,
    count INTEGER NOT NULL DEFAULT 1,
    PRIMARY KEY (model_id, from_index, to_index)
);
`
	)

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if _, err = tx.Exec(schemaModels); err != nil {
		return fmt.Errorf("could not create models schema: %w", err)
	}
	if _, err = tx.Exec(schemaSymbols); err != nil {
		return fmt.Errorf("could not create symbols schema: %w", err)
	}
	if _, err = tx.Exec(schemaTransitions); err != nil {
		return fmt.Errorf("could not create transitions schema: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}

	return nil
}

// Store is the main entry point for persisting and restoring markov models.
// It holds the database connection and prepared SQL statements for efficient
// database interaction.
type Store struct {
	db                  *sql.DB
	stmtGetModelInfo    *sql.Stmt
	stmtGetModels       *sql.Stmt
	stmtAddModel        *sql.Stmt
	stmtDeleteModel     *sql.Stmt
	stmtDeleteSymbols   *sql.Stmt
	stmtDeleteChains    *sql.Stmt
	stmtInsertSymbol    *sql.Stmt
	stmtGetSymbols      *sql.Stmt
	stmtGetTransitions  *sql.Stmt
	stmtUpsertChain     *sql.Stmt
	stmtPruneModel      *sql.Stmt
	stmtModelChains     *sql.Stmt
	stmtModelFreq       *sql.Stmt
	stmtGetSymbolsCount *sql.Stmt
	logger              *slog.Logger
}

// NewStore creates and returns a new Store on top of an initialized
// database. It pre-compiles all necessary SQL statements, returning an error
// if any preparation fails.
func NewStore(db *sql.DB) (*Store, error) {
	stmtGetModelInfo, err := db.Prepare(`SELECT model_id, alphabet_size FROM markov_models WHERE model_name = ?;`)
	if err != nil {
		return nil, err
	}

	stmtGetModels, err := db.Prepare(`SELECT model_id, model_name, alphabet_size FROM markov_models;`)
	if err != nil {
		return nil, err
	}

	stmtAddModel, err := db.Prepare(`INSERT INTO markov_models (model_name, alphabet_size) VALUES (?, ?);`)
	if err != nil {
		return nil, err
	}

	stmtDeleteModel, err := db.Prepare(`DELETE FROM markov_models WHERE model_id = ?;`)
	if err != nil {
		return nil, err
	}

	stmtDeleteSymbols, err := db.Prepare(`DELETE FROM markov_symbols WHERE model_id = ?;`)
	if err != nil {
		return nil, err
	}

	stmtDeleteChains, err := db.Prepare(`DELETE FROM markov_transitions WHERE model_id = ?;`)
	if err != nil {
		return nil, err
	}

	stmtInsertSymbol, err := db.Prepare(`INSERT INTO markov_symbols (model_id, symbol_index, symbol_text) VALUES (?, ?, ?);`)
	if err != nil {
		return nil, err
	}

	stmtGetSymbols, err := db.Prepare(`SELECT symbol_text FROM markov_symbols WHERE model_id = ? ORDER BY symbol_index;`)
	if err != nil {
		return nil, err
	}

	stmtGetTransitions, err := db.Prepare(`SELECT from_index, to_index, count FROM markov_transitions WHERE model_id = ? ORDER BY from_index, to_index;`)
	if err != nil {
		return nil, err
	}

	stmtUpsertChain, err := db.Prepare(`INSERT INTO markov_transitions (model_id, from_index, to_index, count) VALUES (?, ?, ?, ?) ON CONFLICT(model_id, from_index, to_index) DO UPDATE SET count = count + excluded.count;`)
	if err != nil {
		return nil, err
	}

	stmtPruneModel, err := db.Prepare(`DELETE FROM markov_transitions WHERE model_id = ? AND count <= ?;`)
	if err != nil {
		return nil, err
	}

	stmtModelChains, err := db.Prepare(`SELECT COUNT(*) FROM markov_transitions WHERE model_id = ?;`)
	if err != nil {
		return nil, err
	}

	stmtModelFreq, err := db.Prepare(`SELECT coalesce(SUM(count), 0) FROM markov_transitions WHERE model_id = ?;`)
	if err != nil {
		return nil, err
	}

	stmtGetSymbolsCount, err := db.Prepare(`SELECT COUNT(*) FROM markov_symbols;`)
	if err != nil {
		return nil, err
	}

	return &Store{
		db:                  db,
		stmtGetModelInfo:    stmtGetModelInfo,
		stmtGetModels:       stmtGetModels,
		stmtAddModel:        stmtAddModel,
		stmtDeleteModel:     stmtDeleteModel,
		stmtDeleteSymbols:   stmtDeleteSymbols,
		stmtDeleteChains:    stmtDeleteChains,
		stmtInsertSymbol:    stmtInsertSymbol,
		stmtGetSymbols:      stmtGetSymbols,
		stmtGetTransitions:  stmtGetTransitions,
		stmtUpsertChain:     stmtUpsertChain,
		stmtPruneModel:      stmtPruneModel,
		stmtModelChains:     stmtModelChains,
		stmtModelFreq:       stmtModelFreq,
		stmtGetSymbolsCount: stmtGetSymbolsCount,
		logger:              slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, nil
}

// Close releases all prepared SQL statements held by the Store. It should be
// called when the Store is no longer needed to free up database resources.
func (s *Store) Close() {
	_ = s.stmtGetModelInfo.Close()
	_ = s.stmtGetModels.Close()
	_ = s.stmtAddModel.Close()
	_ = s.stmtDeleteModel.Close()
	_ = s.stmtDeleteSymbols.Close()
	_ = s.stmtDeleteChains.Close()
	_ = s.stmtInsertSymbol.Close()
	_ = s.stmtGetSymbols.Close()
	_ = s.stmtGetTransitions.Close()
	_ = s.stmtUpsertChain.Close()
	_ = s.stmtPruneModel.Close()
	_ = s.stmtModelChains.Close()
	_ = s.stmtModelFreq.Close()
	_ = s.stmtGetSymbolsCount.Close()
}

// SetLogger sets the logger for the Store. By default, all logs are discarded.
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// GetModelInfo retrieves the metadata for a single persisted model by name.
// A missing model surfaces as sql.ErrNoRows.
func (s *Store) GetModelInfo(ctx context.Context, modelName string) (ModelInfo, error) {
	var modelId, alphabetSize int
	err := s.stmtGetModelInfo.QueryRowContext(ctx, modelName).Scan(&modelId, &alphabetSize)
	if err != nil {
		return ModelInfo{}, err
	}
	return ModelInfo{
		Id:           modelId,
		Name:         modelName,
		AlphabetSize: alphabetSize,
	}, nil
}

// GetModelInfos retrieves metadata for all models currently in the database,
// returning them in a map keyed by model name.
func (s *Store) GetModelInfos(ctx context.Context) (map[string]ModelInfo, error) {
	rows, err := s.stmtGetModels.QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	models := make(map[string]ModelInfo)
	for rows.Next() {
		var model ModelInfo
		if err = rows.Scan(&model.Id, &model.Name, &model.AlphabetSize); err != nil {
			return nil, err
		}
		models[model.Name] = model
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return models, nil
}

// SaveModel writes a full snapshot of a trained model under the given name,
// replacing any previous snapshot stored under that name. The operation is
// performed within a transaction.
func (s *Store) SaveModel(ctx context.Context, name string, model *markov.Model[string]) (ModelInfo, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ModelInfo{}, fmt.Errorf("could not begin transaction for save: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	symbols := model.Alphabet().Symbols()

	var modelID int
	err = tx.QueryRowContext(ctx, "SELECT model_id FROM markov_models WHERE model_name = ?", name).Scan(&modelID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		res, err := tx.StmtContext(ctx, s.stmtAddModel).ExecContext(ctx, name, len(symbols))
		if err != nil {
			return ModelInfo{}, fmt.Errorf("failed to insert model '%s': %w", name, err)
		}
		newID, _ := res.LastInsertId()
		modelID = int(newID)
	case err != nil:
		return ModelInfo{}, fmt.Errorf("failed to query for model '%s': %w", name, err)
	default:
		// Replacing an existing snapshot: clear its old data first.
		if _, err = tx.StmtContext(ctx, s.stmtDeleteChains).ExecContext(ctx, modelID); err != nil {
			return ModelInfo{}, fmt.Errorf("failed to clear transitions for model %d: %w", modelID, err)
		}
		if _, err = tx.StmtContext(ctx, s.stmtDeleteSymbols).ExecContext(ctx, modelID); err != nil {
			return ModelInfo{}, fmt.Errorf("failed to clear symbols for model %d: %w", modelID, err)
		}
		if _, err = tx.ExecContext(ctx, "UPDATE markov_models SET alphabet_size = ? WHERE model_id = ?", len(symbols), modelID); err != nil {
			return ModelInfo{}, fmt.Errorf("failed to update alphabet size for model %d: %w", modelID, err)
		}
	}

	stmtInsertSymbol := tx.StmtContext(ctx, s.stmtInsertSymbol)
	for i, text := range symbols {
		if _, err = stmtInsertSymbol.ExecContext(ctx, modelID, i, text); err != nil {
			return ModelInfo{}, fmt.Errorf("failed to insert symbol %d ('%s'): %w", i, text, err)
		}
	}

	alphabet := model.Alphabet()
	stmtUpsertChain := tx.StmtContext(ctx, s.stmtUpsertChain)
	counts := model.TransitionCounts()
	for _, tc := range counts {
		fromIdx, err := alphabet.IndexOf(tc.From)
		if err != nil {
			return ModelInfo{}, fmt.Errorf("consistency error resolving symbol '%s': %w", tc.From, err)
		}
		toIdx, err := alphabet.IndexOf(tc.To)
		if err != nil {
			return ModelInfo{}, fmt.Errorf("consistency error resolving symbol '%s': %w", tc.To, err)
		}
		if _, err = stmtUpsertChain.ExecContext(ctx, modelID, fromIdx, toIdx, tc.Count); err != nil {
			return ModelInfo{}, fmt.Errorf("failed to insert transition (%d -> %d): %w", fromIdx, toIdx, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return ModelInfo{}, fmt.Errorf("could not commit save: %w", err)
	}

	s.logger.InfoContext(ctx, "Model saved",
		slog.String("model_name", name),
		slog.Int("model_id", modelID),
		slog.Int("alphabet_size", len(symbols)),
		slog.Int("transitions_saved", len(counts)),
	)

	return ModelInfo{Id: modelID, Name: name, AlphabetSize: len(symbols)}, nil
}

// LoadModel rebuilds an in-memory model from its persisted snapshot. The
// alphabet is restored in its original order and every transition count is
// replayed through the engine's weighted accumulation path.
func (s *Store) LoadModel(ctx context.Context, name string) (*markov.Model[string], error) {
	info, err := s.GetModelInfo(ctx, name)
	if err != nil {
		return nil, err
	}

	rows, err := s.stmtGetSymbols.QueryContext(ctx, info.Id)
	if err != nil {
		return nil, fmt.Errorf("could not query symbols for model '%s': %w", name, err)
	}
	var symbols []string
	for rows.Next() {
		var text string
		if err = rows.Scan(&text); err != nil {
			_ = rows.Close()
			return nil, err
		}
		symbols = append(symbols, text)
	}
	_ = rows.Close()
	if err = rows.Err(); err != nil {
		return nil, err
	}

	model, err := markov.New(symbols)
	if err != nil {
		return nil, fmt.Errorf("persisted alphabet for model '%s' is invalid: %w", name, err)
	}

	tRows, err := s.stmtGetTransitions.QueryContext(ctx, info.Id)
	if err != nil {
		return nil, fmt.Errorf("could not query transitions for model '%s': %w", name, err)
	}
	defer func(tRows *sql.Rows) {
		_ = tRows.Close()
	}(tRows)

	var loaded int
	for tRows.Next() {
		var fromIdx, toIdx int
		var count int64
		if err = tRows.Scan(&fromIdx, &toIdx, &count); err != nil {
			return nil, err
		}
		from, err := model.Alphabet().SymbolAt(fromIdx)
		if err != nil {
			return nil, fmt.Errorf("persisted transition references bad index: %w", err)
		}
		to, err := model.Alphabet().SymbolAt(toIdx)
		if err != nil {
			return nil, fmt.Errorf("persisted transition references bad index: %w", err)
		}
		if err = model.AddTransition(from, to, count); err != nil {
			return nil, fmt.Errorf("failed to replay transition (%d -> %d): %w", fromIdx, toIdx, err)
		}
		loaded++
	}
	if err = tRows.Err(); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Model loaded",
		slog.String("model_name", name),
		slog.Int("model_id", info.Id),
		slog.Int("transitions_loaded", loaded),
	)

	return model, nil
}

// RemoveModel deletes a model and all of its associated symbol and
// transition data from the database. The operation is performed within a
// transaction.
func (s *Store) RemoveModel(ctx context.Context, model ModelInfo) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if _, err = tx.StmtContext(ctx, s.stmtDeleteChains).ExecContext(ctx, model.Id); err != nil {
		return fmt.Errorf("failed to remove transitions for model %d: %w", model.Id, err)
	}
	if _, err = tx.StmtContext(ctx, s.stmtDeleteSymbols).ExecContext(ctx, model.Id); err != nil {
		return fmt.Errorf("failed to remove symbols for model %d: %w", model.Id, err)
	}
	if _, err = tx.StmtContext(ctx, s.stmtDeleteModel).ExecContext(ctx, model.Id); err != nil {
		return fmt.Errorf("failed to remove model %d: %w", model.Id, err)
	}

	s.logger.InfoContext(ctx, "Model removed successfully",
		slog.String("model_name", model.Name),
		slog.Int("model_id", model.Id),
	)

	return tx.Commit()
}
