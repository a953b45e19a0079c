package markov

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// Prune removes every transition observed minFreq times or fewer and returns
// how many were removed. States are kept even when they lose all successors,
// so a pruned table may contain new dead ends.
func (t *Table) Prune(minFreq int) int {
	removed := 0
	for _, key := range t.keys {
		e := t.states[key]
		kept := e.next[:0]
		for _, tr := range e.next {
			if tr.Count > minFreq {
				kept = append(kept, tr)
			} else {
				removed++
			}
		}
		e.next = kept
		clear(e.index)
		for i, tr := range e.next {
			e.index[tr.Token] = i
		}
	}
	return removed
}

// PruneModel removes all chain links from a specific model that have a frequency
// less than or equal to `minFreq`. This is useful for reducing the size of a model
// by removing rare, and often noisy, transitions. States are kept.
func (s *SQLStore) PruneModel(ctx context.Context, model ModelInfo, minFreq int) (int64, error) {
	res, err := s.stmtPruneModel.ExecContext(ctx, model.Id, minFreq)
	if err != nil {
		return 0, fmt.Errorf("could not prune model %d: %w", model.Id, err)
	}
	rowsAffected, _ := res.RowsAffected()

	s.logger.InfoContext(ctx, "Model pruned",
		slog.String("model_name", model.Name),
		slog.Int("model_id", model.Id),
		slog.Int("min_frequency", minFreq),
		slog.Int64("chains_removed", rowsAffected),
	)
	return rowsAffected, nil
}

// Compact performs a database-wide cleanup, removing prefixes no state refers
// to and tokens that appear in neither a remaining prefix nor a chain link.
func (s *SQLStore) Compact(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction for compaction: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	res, err := tx.ExecContext(ctx, `DELETE FROM markov_prefixes WHERE prefix_id NOT IN (SELECT prefix_id FROM markov_states)`)
	if err != nil {
		return fmt.Errorf("failed to prune unused prefixes: %w", err)
	}
	prefixesRemoved, _ := res.RowsAffected()

	used := make(map[int]struct{})
	rows, err := tx.QueryContext(ctx, `SELECT DISTINCT next_token_id FROM markov_chains`)
	if err != nil {
		return fmt.Errorf("failed to query used tokens: %w", err)
	}
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return fmt.Errorf("failed to scan token id: %w", err)
		}
		used[id] = struct{}{}
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error after iterating token rows: %w", err)
	}

	// Prefix texts are space-separated token IDs, so they are checked in Go
	// rather than with non-SARGable LIKE queries.
	pRows, err := tx.QueryContext(ctx, `SELECT prefix_text FROM markov_prefixes`)
	if err != nil {
		return fmt.Errorf("failed to query prefixes: %w", err)
	}
	for pRows.Next() {
		var prefixText string
		if err := pRows.Scan(&prefixText); err != nil {
			_ = pRows.Close()
			return fmt.Errorf("failed to scan prefix row: %w", err)
		}
		for _, idStr := range strings.Split(prefixText, " ") {
			id, err := strconv.Atoi(idStr)
			if err != nil {
				_ = pRows.Close()
				return fmt.Errorf("%w: prefix %q", ErrInvalidTable, prefixText)
			}
			used[id] = struct{}{}
		}
	}
	_ = pRows.Close()
	if err := pRows.Err(); err != nil {
		return fmt.Errorf("error after iterating prefix rows: %w", err)
	}

	vRows, err := tx.QueryContext(ctx, `SELECT token_id FROM markov_vocabulary`)
	if err != nil {
		return fmt.Errorf("failed to query vocabulary: %w", err)
	}
	var unused []int
	for vRows.Next() {
		var id int
		if err := vRows.Scan(&id); err != nil {
			_ = vRows.Close()
			return fmt.Errorf("failed to scan token id: %w", err)
		}
		if _, ok := used[id]; !ok {
			unused = append(unused, id)
		}
	}
	_ = vRows.Close()
	if err := vRows.Err(); err != nil {
		return fmt.Errorf("error after iterating vocabulary rows: %w", err)
	}

	if err := batchDelete(ctx, tx, "markov_vocabulary", "token_id", intSliceToInterface(unused)); err != nil {
		return fmt.Errorf("failed to prune unused tokens: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	// Deleted IDs can be handed out again by SQLite.
	s.vocab.Purge()

	s.logger.InfoContext(ctx, "Database compacted",
		slog.Int64("prefixes_removed", prefixesRemoved),
		slog.Int("tokens_removed", len(unused)),
	)
	return nil
}

// batchDelete is a private helper to robustly delete from a table. It handles empty lists and splits large lists into smaller batches to avoid SQL limits.
func batchDelete(ctx context.Context, tx *sql.Tx, table, column string, ids []interface{}) error {
	if len(ids) == 0 {
		return nil
	}

	// SQLite's default variable limit is 999, so around half that is good
	const batchSize = 500

	for i := 0; i < len(ids); i += batchSize {
		end := min(i+batchSize, len(ids))
		batch := ids[i:end]

		query := fmt.Sprintf("DELETE FROM %s WHERE %s IN (?%s)", table, column, strings.Repeat(",?", len(batch)-1))

		if _, err := tx.ExecContext(ctx, query, batch...); err != nil {
			return err
		}
	}
	return nil
}

// intSliceToInterface is a helper to convert []int to []interface{} for SQL args.
func intSliceToInterface(s []int) []interface{} {
	if s == nil {
		return nil
	}
	i := make([]interface{}, len(s))
	for j, v := range s {
		i[j] = v
	}
	return i
}
