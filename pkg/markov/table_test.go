package markov

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestZeroValueTable(t *testing.T) {
	t.Run("Build", func(t *testing.T) {
		table, err := Build(strings.Fields("a b c"), 1, &Table{})
		if err != nil {
			t.Fatalf("Build failed: %v", err)
		}
		if table.Order() != 1 || table.Count("a", "b") != 1 {
			t.Errorf("unexpected table: %+v", table.Stats())
		}
	})

	t.Run("Observe", func(t *testing.T) {
		var table Table
		if err := table.Observe("x y", "z", 2); err != nil {
			t.Fatalf("Observe failed: %v", err)
		}
		if table.Order() != 2 || table.Count("x y", "z") != 2 {
			t.Errorf("unexpected table: %+v", table.Stats())
		}
	})

	t.Run("Merge", func(t *testing.T) {
		var table Table
		if err := table.Merge(fishTable(t)); err != nil {
			t.Fatalf("Merge failed: %v", err)
		}
		if diff := cmp.Diff(takeSnapshot(fishTable(t)), takeSnapshot(&table)); diff != "" {
			t.Errorf("merged table mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("Read-only use", func(t *testing.T) {
		var table Table
		if table.Has("a") || table.Len() != 0 || table.Prune(1) != 0 {
			t.Error("expected an empty table")
		}
		if _, ok := table.Successors("a"); ok {
			t.Error("expected no successors")
		}
		g := NewGenerator(nil, fixedSource{})
		if _, err := g.Generate(&table); !errors.Is(err, ErrEmptyTable) {
			t.Errorf("expected ErrEmptyTable, got %v", err)
		}
	})
}

func TestMergeOrderMismatch(t *testing.T) {
	other := NewTable(1)
	if err := other.Observe("a", "b", 1); err != nil {
		t.Fatal(err)
	}
	table := fishTable(t)
	if err := table.Merge(other); !errors.Is(err, ErrOrderMismatch) {
		t.Errorf("expected ErrOrderMismatch, got %v", err)
	}
}
