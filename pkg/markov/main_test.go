package markov

import (
	"context"
	"database/sql"
	"go/build"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

const fishText = "one fish two fish. red fish blue fish."

// fixedSource always picks the same index, clamped to the weights given.
type fixedSource struct {
	index int
}

func (f fixedSource) Pick(weights []float64) int {
	if f.index >= len(weights) {
		return len(weights) - 1
	}
	return f.index
}

// setupTestDB creates a new SQLite database file and a SQLStore for testing.
// It uses t.Cleanup to ensure resources are released.
func setupTestDB(t testing.TB) (*sql.DB, *SQLStore) {
	dbFile := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite3", dbFile+"?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=-4000")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := SetupSchema(db); err != nil {
		t.Fatalf("failed to set up schema: %v", err)
	}

	s, err := NewSQLStore(db)
	if err != nil {
		t.Fatalf("NewSQLStore() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	return db, s
}

// fishTable builds the order-2 table for fishText.
func fishTable(t testing.TB) *Table {
	g := NewGenerator(nil, fixedSource{})
	table, err := g.Train(strings.NewReader(fishText), 2, nil)
	if err != nil {
		t.Fatalf("setup: Train() failed: %v", err)
	}
	return table
}

// setupTestDBWithTraining is a convenience helper that also stores a default model.
func setupTestDBWithTraining(t *testing.T) (context.Context, *SQLStore, ModelInfo) {
	_, s := setupTestDB(t)
	ctx := context.Background()

	if err := s.Save(ctx, "test_model", fishTable(t)); err != nil {
		t.Fatalf("setup: Save() failed: %v", err)
	}
	modelInfo, err := s.ModelInfo(ctx, "test_model")
	if err != nil {
		t.Fatalf("setup: ModelInfo() failed: %v", err)
	}
	return ctx, s, modelInfo
}

// snapshot flattens a table into comparable values.
type snapshot struct {
	Order  int
	Keys   []string
	States map[string][]Transition
}

func takeSnapshot(table *Table) snapshot {
	snap := snapshot{
		Order:  table.Order(),
		Keys:   table.Keys(),
		States: make(map[string][]Transition),
	}
	for _, key := range table.Keys() {
		next, _ := table.Successors(key)
		snap.States[key] = next
	}
	return snap
}

var (
	benchmarkCorpus string
	corpusOnce      sync.Once
)

// createBenchmarkCorpus reads Go source files to create a corpus for benchmarking.
func createBenchmarkCorpus() string {
	corpusOnce.Do(func() {
		var sb strings.Builder
		goRoot := build.Default.GOROOT
		filesToRead := []string{
			filepath.Join(goRoot, "src/net/http/server.go"),
			filepath.Join(goRoot, "src/go/parser/parser.go"),
			filepath.Join(goRoot, "src/encoding/json/encode.go"),
		}

		for _, file := range filesToRead {
			content, err := os.ReadFile(file)
			if err != nil {
				benchmarkCorpus = "this is a fallback corpus for benchmarking. it is not very long but will prevent a crash. "
				return
			}
			sb.Write(content)
			sb.WriteString("\n")
		}
		benchmarkCorpus = sb.String()
	})
	return benchmarkCorpus
}
