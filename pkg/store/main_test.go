package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/kereru-dev/markovgen/pkg/markov"

	_ "github.com/mattn/go-sqlite3"
)

// setupTestDB creates a new temp-file SQLite database and a Store for
// testing. It uses t.Cleanup to ensure resources are released.
func setupTestDB(t *testing.T) (*sql.DB, *Store) {
	dbFile := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite3", dbFile+"?_journal_mode=WAL&_synchronous=NORMAL")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := SetupSchema(db); err != nil {
		t.Fatalf("failed to set up schema: %v", err)
	}

	s, err := NewStore(db)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	t.Cleanup(s.Close)

	return db, s
}

// newTrainedModel builds the reference model used across the store tests:
// alphabet {a, b} with the count matrix [[1,1],[1,0]].
func newTrainedModel(t *testing.T) *markov.Model[string] {
	t.Helper()
	m, err := markov.New([]string{"a", "b"},
		markov.Transition[string]{From: "a", To: "a"},
		markov.Transition[string]{From: "a", To: "b"},
		markov.Transition[string]{From: "b", To: "a"},
	)
	if err != nil {
		t.Fatalf("markov.New() failed: %v", err)
	}
	return m
}

// setupTestDBWithModel is a convenience helper that also saves the reference
// model under the name "test_model".
func setupTestDBWithModel(t *testing.T) (context.Context, *Store, ModelInfo) {
	_, s := setupTestDB(t)
	ctx := context.Background()

	info, err := s.SaveModel(ctx, "test_model", newTrainedModel(t))
	if err != nil {
		t.Fatalf("setup: SaveModel() failed: %v", err)
	}
	return ctx, s, info
}
