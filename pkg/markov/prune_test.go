package markov

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestTablePrune(t *testing.T) {
	g := NewGenerator(nil, nil)
	table, err := g.Train(strings.NewReader("a b c. a b d."), 1, nil)
	if err != nil {
		t.Fatalf("Train() failed: %v", err)
	}
	// Chain "a" -> "b" has freq 2, every other link has freq 1.

	if removed := table.Prune(1); removed != 4 {
		t.Errorf("expected 4 transitions removed, got %d", removed)
	}
	if got := table.Count("a", "b"); got != 2 {
		t.Errorf("expected 'a' -> 'b' to survive with count 2, got %d", got)
	}
	if got := table.Count("b", "c"); got != 0 {
		t.Errorf("expected 'b' -> 'c' to be pruned, got %d", got)
	}
	if table.Len() != 5 {
		t.Errorf("expected all 5 states to be kept, got %d", table.Len())
	}

	// The index must follow the compacted successor list.
	if err = table.Observe("b", "e", 3); err != nil {
		t.Fatal(err)
	}
	next, _ := table.Successors("b")
	if len(next) != 1 || next[0] != (Transition{Token: "e", Count: 3}) {
		t.Errorf("unexpected successors after prune and observe: %v", next)
	}
}

func TestPruneModel(t *testing.T) {
	db, s := setupTestDB(t)
	ctx := context.Background()

	g := NewGenerator(nil, nil)
	table, err := g.Train(strings.NewReader("a b c. a b d."), 1, nil)
	if err != nil {
		t.Fatalf("Train() failed: %v", err)
	}
	if err = s.Save(ctx, "prune_test", table); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	pruneModel, err := s.ModelInfo(ctx, "prune_test")
	if err != nil {
		t.Fatalf("ModelInfo() failed: %v", err)
	}

	removed, err := s.PruneModel(ctx, pruneModel, 1)
	if err != nil {
		t.Fatalf("PruneModel failed: %v", err)
	}
	if removed != 4 {
		t.Errorf("expected 4 chains removed, got %d", removed)
	}

	var count int
	err = db.QueryRowContext(ctx, "SELECT COUNT(*) FROM markov_chains WHERE model_id = ? AND frequency <= 1", pruneModel.Id).Scan(&count)
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("expected 0 chains with frequency 1 after pruning, got %d", count)
	}

	loaded, err := s.Load(ctx, "prune_test")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if loaded.Len() != 5 || loaded.Count("a", "b") != 2 {
		t.Errorf("unexpected table after prune: %+v", loaded.Stats())
	}
}

func TestCompact(t *testing.T) {
	db, s := setupTestDB(t)
	ctx := context.Background()

	g := NewGenerator(nil, nil)
	first, err := g.Train(strings.NewReader("a b c. a b d e."), 1, nil)
	if err != nil {
		t.Fatalf("Train() failed: %v", err)
	}
	if err = s.Save(ctx, "compact_test", first); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	// Replacing the model leaves "c", "d", "e" and the final "." behind.
	second, err := g.Train(strings.NewReader("a b a b."), 1, nil)
	if err != nil {
		t.Fatalf("Train() failed: %v", err)
	}
	if err = s.Save(ctx, "compact_test", second); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	if err = s.Compact(ctx); err != nil {
		t.Fatalf("Compact failed: %v", err)
	}

	for _, word := range []string{"c", "d", "e", "."} {
		if _, err := s.VocabID(ctx, word); err == nil {
			t.Errorf("token '%s' should have been compacted but was found", word)
		}
	}
	for _, word := range []string{"a", "b"} {
		if _, err := s.VocabID(ctx, word); err != nil {
			t.Errorf("token '%s' should not have been compacted but was: %v", word, err)
		}
	}

	var prefixes int
	if err = db.QueryRowContext(ctx, "SELECT COUNT(*) FROM markov_prefixes").Scan(&prefixes); err != nil {
		t.Fatal(err)
	}
	if prefixes != second.Len() {
		t.Errorf("expected %d prefixes after compaction, got %d", second.Len(), prefixes)
	}

	loaded, err := s.Load(ctx, "compact_test")
	if err != nil {
		t.Fatalf("Load() after Compact failed: %v", err)
	}
	if loaded.Count("a", "b") != 2 {
		t.Errorf("expected 'a' -> 'b' count 2 after compaction, got %d", loaded.Count("a", "b"))
	}
}

func TestCompactRejectsMalformedPrefix(t *testing.T) {
	db, s := setupTestDB(t)
	ctx := context.Background()

	if err := s.Save(ctx, "fish", fishTable(t)); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	m, err := s.ModelInfo(ctx, "fish")
	if err != nil {
		t.Fatalf("ModelInfo() failed: %v", err)
	}

	res, err := db.ExecContext(ctx, "INSERT INTO markov_prefixes (prefix_text) VALUES ('not ids')")
	if err != nil {
		t.Fatal(err)
	}
	prefixID, _ := res.LastInsertId()
	if _, err = db.ExecContext(ctx, "INSERT INTO markov_states (model_id, prefix_id, position) VALUES (?, ?, 99)", m.Id, prefixID); err != nil {
		t.Fatal(err)
	}

	if err = s.Compact(ctx); !errors.Is(err, ErrInvalidTable) {
		t.Fatalf("expected ErrInvalidTable, got %v", err)
	}
	// The failed compaction must not have removed anything.
	if _, err = s.VocabID(ctx, "blue"); err != nil {
		t.Errorf("expected vocabulary to be untouched, got %v", err)
	}
}

func BenchmarkCompact(b *testing.B) {
	ctx := context.Background()

	var dirtyCorpus strings.Builder
	dirtyCorpus.WriteString("common word common word common word. ")
	for i := 0; i < 500; i++ {
		dirtyCorpus.WriteString(fmt.Sprintf("unique_%d ", i))
	}
	dirtyCorpus.WriteString(".")

	g := NewGenerator(nil, NewSource(1))
	dirty, err := g.Train(strings.NewReader(dirtyCorpus.String()), 1, nil)
	if err != nil {
		b.Fatalf("Train() setup failed: %v", err)
	}
	clean, err := g.Train(strings.NewReader("common word common word."), 1, nil)
	if err != nil {
		b.Fatalf("Train() setup failed: %v", err)
	}

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		b.StopTimer()
		_, s := setupTestDB(b)
		if err := s.Save(ctx, "bench_compact", dirty); err != nil {
			b.Fatalf("Save() failed: %v", err)
		}
		if err := s.Save(ctx, "bench_compact", clean); err != nil {
			b.Fatalf("Save() failed: %v", err)
		}
		b.StartTimer()

		if err := s.Compact(ctx); err != nil {
			b.Fatalf("Compact() failed: %v", err)
		}
	}
}
