package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/kereru-dev/markovgen/pkg/markov"
)

func TestSaveAndGetModelInfo(t *testing.T) {
	ctx, s, info := setupTestDBWithModel(t)

	if info.Name != "test_model" || info.AlphabetSize != 2 {
		t.Errorf("SaveModel() returned unexpected info: %+v", info)
	}

	m, err := s.GetModelInfo(ctx, "test_model")
	if err != nil {
		t.Fatalf("GetModelInfo() failed: %v", err)
	}
	if m.Id != info.Id || m.AlphabetSize != 2 {
		t.Errorf("got unexpected model info: %+v", m)
	}

	_, err = s.GetModelInfo(ctx, "nonexistent_model")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("expected sql.ErrNoRows for nonexistent model, got %v", err)
	}
}

func TestGetModelInfos(t *testing.T) {
	_, s := setupTestDB(t)
	ctx := context.Background()

	if _, err := s.SaveModel(ctx, "first", newTrainedModel(t)); err != nil {
		t.Fatalf("SaveModel() failed: %v", err)
	}
	if _, err := s.SaveModel(ctx, "second", newTrainedModel(t)); err != nil {
		t.Fatalf("SaveModel() failed: %v", err)
	}

	models, err := s.GetModelInfos(ctx)
	if err != nil {
		t.Fatalf("GetModelInfos() failed: %v", err)
	}
	if len(models) != 2 {
		t.Errorf("expected 2 models, got %d", len(models))
	}
	if _, ok := models["first"]; !ok {
		t.Error("expected to find 'first'")
	}
	if _, ok := models["second"]; !ok {
		t.Error("expected to find 'second'")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx, s, _ := setupTestDBWithModel(t)

	loaded, err := s.LoadModel(ctx, "test_model")
	if err != nil {
		t.Fatalf("LoadModel() failed: %v", err)
	}

	symbols := loaded.Alphabet().Symbols()
	if len(symbols) != 2 || symbols[0] != "a" || symbols[1] != "b" {
		t.Errorf("loaded alphabet = %v, want [a b]", symbols)
	}

	want := map[[2]string]int64{
		{"a", "a"}: 1, {"a", "b"}: 1,
		{"b", "a"}: 1, {"b", "b"}: 0,
	}
	for cell, wantCount := range want {
		got, err := loaded.Count(cell[0], cell[1])
		if err != nil {
			t.Fatalf("Count(%v) failed: %v", cell, err)
		}
		if got != wantCount {
			t.Errorf("Count(%q, %q) = %d, want %d", cell[0], cell[1], got, wantCount)
		}
	}

	// A loaded model is immediately usable for generation.
	seq, err := loaded.GenerateFrom("b", 2)
	if err != nil {
		t.Fatalf("GenerateFrom() on loaded model failed: %v", err)
	}
	if seq[0] != "b" || seq[1] != "a" {
		t.Errorf("loaded model generated %v, want [b a]", seq)
	}
}

func TestSaveReplacesSnapshot(t *testing.T) {
	ctx, s, _ := setupTestDBWithModel(t)

	// Save a retrained model with a different matrix under the same name.
	retrained, err := markov.New([]string{"a", "b"},
		markov.Transition[string]{From: "b", To: "b"},
	)
	if err != nil {
		t.Fatalf("markov.New() failed: %v", err)
	}
	if _, err := s.SaveModel(ctx, "test_model", retrained); err != nil {
		t.Fatalf("SaveModel() failed: %v", err)
	}

	loaded, err := s.LoadModel(ctx, "test_model")
	if err != nil {
		t.Fatalf("LoadModel() failed: %v", err)
	}
	if loaded.TotalTransitions() != 1 {
		t.Errorf("TotalTransitions() = %d, want 1 (old snapshot not replaced)", loaded.TotalTransitions())
	}
	if c, _ := loaded.Count("b", "b"); c != 1 {
		t.Errorf("Count(b, b) = %d, want 1", c)
	}
}

func TestRemoveModel(t *testing.T) {
	db, s := setupTestDB(t)
	ctx := context.Background()

	m1, err := s.SaveModel(ctx, "to_delete", newTrainedModel(t))
	if err != nil {
		t.Fatalf("SaveModel() failed: %v", err)
	}
	m2, err := s.SaveModel(ctx, "to_keep", newTrainedModel(t))
	if err != nil {
		t.Fatalf("SaveModel() failed: %v", err)
	}

	if err := s.RemoveModel(ctx, m1); err != nil {
		t.Fatalf("RemoveModel() failed: %v", err)
	}

	if _, err := s.GetModelInfo(ctx, m1.Name); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("expected ErrNoRows for deleted model, got %v", err)
	}

	var count int
	_ = db.QueryRowContext(ctx, "SELECT COUNT(*) FROM markov_transitions WHERE model_id = ?", m1.Id).Scan(&count)
	if count != 0 {
		t.Errorf("expected 0 transitions for deleted model, found %d", count)
	}

	_ = db.QueryRowContext(ctx, "SELECT COUNT(*) FROM markov_transitions WHERE model_id = ?", m2.Id).Scan(&count)
	if count == 0 {
		t.Error("expected transitions for kept model to exist, but found 0")
	}
}

func TestPruneModel(t *testing.T) {
	_, s := setupTestDB(t)
	ctx := context.Background()

	m, err := markov.New([]string{"a", "b"})
	if err != nil {
		t.Fatalf("markov.New() failed: %v", err)
	}
	_ = m.AddTransition("a", "a", 10)
	_ = m.AddTransition("a", "b", 1) // rare, should be pruned
	_ = m.AddTransition("b", "a", 2)

	info, err := s.SaveModel(ctx, "prunable", m)
	if err != nil {
		t.Fatalf("SaveModel() failed: %v", err)
	}

	if err := s.PruneModel(ctx, info, 1); err != nil {
		t.Fatalf("PruneModel() failed: %v", err)
	}

	loaded, err := s.LoadModel(ctx, "prunable")
	if err != nil {
		t.Fatalf("LoadModel() failed: %v", err)
	}
	if c, _ := loaded.Count("a", "b"); c != 0 {
		t.Errorf("Count(a, b) = %d, want 0 after pruning", c)
	}
	if c, _ := loaded.Count("a", "a"); c != 10 {
		t.Errorf("Count(a, a) = %d, want 10 (pruning removed too much)", c)
	}
	if loaded.TotalTransitions() != 12 {
		t.Errorf("TotalTransitions() = %d, want 12", loaded.TotalTransitions())
	}
}

func TestGetStats(t *testing.T) {
	ctx, s, info := setupTestDBWithModel(t)

	stats, err := s.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats() failed: %v", err)
	}
	if len(stats.Models) != 1 {
		t.Fatalf("expected 1 model in stats, got %d", len(stats.Models))
	}
	if stats.SymbolCount != 2 {
		t.Errorf("SymbolCount = %d, want 2", stats.SymbolCount)
	}
	ms, ok := stats.Stats[info.Id]
	if !ok {
		t.Fatalf("no stats entry for model %d", info.Id)
	}
	if ms.UniqueTransitions != 3 {
		t.Errorf("UniqueTransitions = %d, want 3", ms.UniqueTransitions)
	}
	if ms.TotalTransitions != 3 {
		t.Errorf("TotalTransitions = %d, want 3", ms.TotalTransitions)
	}
}
