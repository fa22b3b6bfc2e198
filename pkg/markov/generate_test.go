package markov

import (
	"errors"
	"math/rand/v2"
	"testing"
)

// stubRand replays a fixed list of values, making every draw predictable.
type stubRand struct {
	values []float64
	next   int
}

func (r *stubRand) Float64() float64 {
	v := r.values[r.next%len(r.values)]
	r.next++
	return v
}

func TestGenerateLengthValidation(t *testing.T) {
	m := newTestModel(t)

	seq, err := m.Generate(0)
	if err != nil {
		t.Fatalf("Generate(0) failed: %v", err)
	}
	if len(seq) != 0 {
		t.Errorf("Generate(0) returned %d symbols, want empty sequence", len(seq))
	}

	if _, err := m.Generate(-1); !errors.Is(err, ErrInvalidLength) {
		t.Errorf("Generate(-1) error = %v, want ErrInvalidLength", err)
	}

	seq, err = m.GenerateFrom("a", 0)
	if err != nil {
		t.Fatalf("GenerateFrom(a, 0) failed: %v", err)
	}
	if len(seq) != 0 {
		t.Errorf("GenerateFrom(a, 0) returned %d symbols, want empty sequence", len(seq))
	}
}

func TestGenerateEmptyModel(t *testing.T) {
	m, err := New([]string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	if _, err := m.Generate(5); !errors.Is(err, ErrEmptyModel) {
		t.Errorf("Generate() on untrained model error = %v, want ErrEmptyModel", err)
	}
	if _, err := m.GenerateFrom("a", 5); !errors.Is(err, ErrEmptyModel) {
		t.Errorf("GenerateFrom() on untrained model error = %v, want ErrEmptyModel", err)
	}
}

func TestGenerateFromUnknownStart(t *testing.T) {
	m := newTestModel(t)

	if _, err := m.GenerateFrom("z", 3); !errors.Is(err, ErrUnknownSymbol) {
		t.Errorf("GenerateFrom(z) error = %v, want ErrUnknownSymbol", err)
	}
}

func TestGenerateFromStartsWithStart(t *testing.T) {
	m := newTestModel(t)

	for i := 0; i < 25; i++ {
		seq, err := m.GenerateFrom("b", 4)
		if err != nil {
			t.Fatalf("GenerateFrom(b, 4) failed: %v", err)
		}
		if len(seq) != 4 {
			t.Fatalf("GenerateFrom(b, 4) returned %d symbols", len(seq))
		}
		if seq[0] != "b" {
			t.Fatalf("sequence %v does not start with the requested symbol", seq)
		}
		// With the [[1,1],[1,0]] matrix, b transitions to a with certainty.
		if seq[1] != "a" {
			t.Fatalf("sequence %v: second symbol = %q, want deterministic %q", seq, seq[1], "a")
		}
	}
}

func TestGenerateSingleSymbolAlphabet(t *testing.T) {
	m, err := New([]string{"x"}, Transition[string]{From: "x", To: "x"})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	seq, err := m.Generate(6)
	if err != nil {
		t.Fatalf("Generate() failed: %v", err)
	}
	if len(seq) != 6 {
		t.Fatalf("Generate(6) returned %d symbols", len(seq))
	}
	for i, s := range seq {
		if s != "x" {
			t.Errorf("seq[%d] = %q, want %q", i, s, "x")
		}
	}
}

// TestGenerateDeterministicWithStubRand pins the full sampling walk: from a
// one-hot start at "b", the chain is forced through b -> a, after which the
// stub decides between the equally likely successors of "a".
func TestGenerateDeterministicWithStubRand(t *testing.T) {
	m := newTestModel(t)

	// Draw values: anything for the certain steps, then < 0.5 picks "a" and
	// >= 0.5 picks "b" from the [0.5, 0.5] row.
	rng := &stubRand{values: []float64{0.1, 0.1, 0.9}}

	seq, err := m.GenerateFrom("b", 3, WithRand(rng))
	if err != nil {
		t.Fatalf("GenerateFrom() failed: %v", err)
	}
	want := []string{"b", "a", "b"}
	if len(seq) != len(want) {
		t.Fatalf("sequence %v, want %v", seq, want)
	}
	for i := range want {
		if seq[i] != want[i] {
			t.Fatalf("sequence %v, want %v", seq, want)
		}
	}
}

func TestGenerateAcceptsRandV2(t *testing.T) {
	m := newTestModel(t)

	rng := rand.New(rand.NewPCG(1, 2))
	first, err := m.Generate(8, WithRand(rng))
	if err != nil {
		t.Fatalf("Generate() failed: %v", err)
	}

	rng = rand.New(rand.NewPCG(1, 2))
	second, err := m.Generate(8, WithRand(rng))
	if err != nil {
		t.Fatalf("Generate() failed: %v", err)
	}

	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("same seed produced different sequences: %v vs %v", first, second)
		}
	}
}

// newDeadEndModel returns a model whose only trained row leads into a
// dead-end symbol: alphabet {a, b}, single edge (a,b).
func newDeadEndModel(t *testing.T) *Model[string] {
	t.Helper()
	m, err := New([]string{"a", "b"}, Transition[string]{From: "a", To: "b"})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return m
}

func TestGenerateDeadEndPolicies(t *testing.T) {
	t.Run("renormalize fails only once mass is gone", func(t *testing.T) {
		m := newDeadEndModel(t)

		// a -> b is certain, then b has no successors at all.
		seq, err := m.GenerateFrom("a", 2, WithDeadEndPolicy(DeadEndRenormalize))
		if err != nil {
			t.Fatalf("GenerateFrom(a, 2) failed: %v", err)
		}
		if seq[0] != "a" || seq[1] != "b" {
			t.Fatalf("sequence %v, want [a b]", seq)
		}

		if _, err := m.GenerateFrom("a", 3, WithDeadEndPolicy(DeadEndRenormalize)); !errors.Is(err, ErrDeadEnd) {
			t.Errorf("expected ErrDeadEnd once all mass is gone, got %v", err)
		}
	})

	t.Run("stop truncates the sequence", func(t *testing.T) {
		m := newDeadEndModel(t)

		seq, err := m.GenerateFrom("a", 10, WithDeadEndPolicy(DeadEndStop))
		if err != nil {
			t.Fatalf("GenerateFrom() failed: %v", err)
		}
		want := []string{"a", "b"}
		if len(seq) != len(want) || seq[0] != "a" || seq[1] != "b" {
			t.Fatalf("sequence %v, want truncated %v", seq, want)
		}
	})

	t.Run("stop treats lost mass as stop probability", func(t *testing.T) {
		// After a uniform first step over {a, b, c} the distribution is
		// [1/3, 0, 1/3]: a third of the mass has vanished into the dead end
		// c, so a draw of 0.9 lands in the lost third and truncates, while a
		// draw of 0.3 falls inside a's bucket and the walk continues.
		newPartial := func() *Model[string] {
			m, err := New([]string{"a", "b", "c"},
				Transition[string]{From: "a", To: "a"},
				Transition[string]{From: "b", To: "c"},
			)
			if err != nil {
				t.Fatalf("New() failed: %v", err)
			}
			return m
		}

		m := newPartial()
		seq, err := m.Generate(2, WithDeadEndPolicy(DeadEndStop), WithRand(&stubRand{values: []float64{0.5, 0.9}}))
		if err != nil {
			t.Fatalf("Generate() failed: %v", err)
		}
		if len(seq) != 1 || seq[0] != "b" {
			t.Fatalf("sequence %v, want truncated [b]", seq)
		}

		m = newPartial()
		seq, err = m.Generate(2, WithDeadEndPolicy(DeadEndStop), WithRand(&stubRand{values: []float64{0.5, 0.3}}))
		if err != nil {
			t.Fatalf("Generate() failed: %v", err)
		}
		if len(seq) != 2 || seq[0] != "b" || seq[1] != "a" {
			t.Fatalf("sequence %v, want [b a]", seq)
		}
	})

	t.Run("error fails on partial mass", func(t *testing.T) {
		// Uniform start over {a, b, c} where c is a dead end: the second
		// step's distribution has already lost c's share of the mass.
		m, err := New([]string{"a", "b", "c"},
			Transition[string]{From: "a", To: "a"},
			Transition[string]{From: "b", To: "c"},
		)
		if err != nil {
			t.Fatalf("New() failed: %v", err)
		}

		if _, err := m.Generate(2, WithDeadEndPolicy(DeadEndError)); !errors.Is(err, ErrDeadEnd) {
			t.Errorf("expected ErrDeadEnd under DeadEndError policy, got %v", err)
		}
	})

	t.Run("renormalize rescales partial mass", func(t *testing.T) {
		m, err := New([]string{"a", "b", "c"},
			Transition[string]{From: "a", To: "a"},
			Transition[string]{From: "b", To: "c"},
		)
		if err != nil {
			t.Fatalf("New() failed: %v", err)
		}

		// After a uniform first step the distribution is partial; the
		// renormalizing draw must still land on a valid symbol.
		seq, err := m.Generate(2, WithRand(&stubRand{values: []float64{0.0, 0.99}}))
		if err != nil {
			t.Fatalf("Generate() failed: %v", err)
		}
		if len(seq) != 2 {
			t.Fatalf("Generate(2) returned %d symbols", len(seq))
		}
	})
}

func BenchmarkGenerate(b *testing.B) {
	symbols := make([]int, 64)
	for i := range symbols {
		symbols[i] = i
	}
	m, err := New(symbols)
	if err != nil {
		b.Fatalf("New() failed: %v", err)
	}
	rng := rand.New(rand.NewPCG(7, 11))
	for i := 0; i < 4096; i++ {
		_ = m.RecordTransition(rng.IntN(64), rng.IntN(64))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := m.Generate(100, WithRand(rng)); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkRecordTransition(b *testing.B) {
	symbols := make([]int, 64)
	for i := range symbols {
		symbols[i] = i
	}
	m, err := New(symbols)
	if err != nil {
		b.Fatalf("New() failed: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := m.RecordTransition(i%64, (i*31)%64); err != nil {
			b.Fatal(err)
		}
	}
}
