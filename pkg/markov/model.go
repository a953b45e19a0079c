package markov

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// ModelInfo holds the essential metadata for a stored model, including its
// unique ID, name, and the order of the chain (the number of tokens per state).
type ModelInfo struct {
	Id    int
	Name  string
	Order int
}

// Models retrieves metadata for all models currently in the database,
// returning them in a map keyed by model name.
func (s *SQLStore) Models(ctx context.Context) (map[string]ModelInfo, error) {
	rows, err := s.stmtGetModels.QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	models := make(map[string]ModelInfo)
	for rows.Next() {
		var model ModelInfo
		if err = rows.Scan(&model.Id, &model.Name, &model.Order); err != nil {
			return nil, err
		}
		models[model.Name] = model
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return models, nil
}

// ModelInfo retrieves the metadata for a single model specified by name.
// It returns an error wrapping ErrModelNotFound if there is no such model.
func (s *SQLStore) ModelInfo(ctx context.Context, modelName string) (ModelInfo, error) {
	var modelId, modelOrder int
	err := s.stmtGetModelInfo.QueryRowContext(ctx, modelName).Scan(&modelId, &modelOrder)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ModelInfo{}, fmt.Errorf("%w: %q", ErrModelNotFound, modelName)
		}
		return ModelInfo{}, err
	}
	return ModelInfo{
		Id:    modelId,
		Name:  modelName,
		Order: modelOrder,
	}, nil
}

// RemoveModel deletes a model and all of its associated state and chain data
// from the database, then drops vocabulary and prefixes nothing refers to.
func (s *SQLStore) RemoveModel(ctx context.Context, model ModelInfo) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if _, err = tx.ExecContext(ctx, "DELETE FROM markov_chains WHERE model_id = ?", model.Id); err != nil {
		return fmt.Errorf("failed to remove chains for model %d: %w", model.Id, err)
	}

	if _, err = tx.ExecContext(ctx, "DELETE FROM markov_states WHERE model_id = ?", model.Id); err != nil {
		return fmt.Errorf("failed to remove states for model %d: %w", model.Id, err)
	}

	if _, err = tx.ExecContext(ctx, "DELETE FROM markov_models WHERE model_id = ?", model.Id); err != nil {
		return fmt.Errorf("failed to remove model %d: %w", model.Id, err)
	}

	if err = tx.Commit(); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Model removed successfully",
		slog.String("model_name", model.Name),
		slog.Int("model_id", model.Id),
	)

	return s.Compact(ctx)
}

// ExportModel writes the named model to w in the versioned JSON table format,
// the same format FileStore uses. This is useful for backups or for moving a
// model out of the database.
func (s *SQLStore) ExportModel(ctx context.Context, name string, w io.Writer) error {
	table, err := s.Load(ctx, name)
	if err != nil {
		return err
	}
	data, err := table.MarshalJSON()
	if err != nil {
		return fmt.Errorf("could not encode model '%s': %w", name, err)
	}
	if _, err = w.Write(data); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Model exported",
		slog.String("model_name", name),
		slog.Int("states_exported", table.Len()),
	)
	return nil
}

// ImportModel reads a JSON table (versioned or legacy) from r and merges it
// into the named model. If the model already exists, frequencies are added
// to the stored ones; otherwise the model is created.
func (s *SQLStore) ImportModel(ctx context.Context, name string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read model: %w", err)
	}
	imported := NewTable(0)
	if err = imported.UnmarshalJSON(data); err != nil {
		return fmt.Errorf("failed to decode json model: %w", err)
	}

	table, err := s.Load(ctx, name)
	if errors.Is(err, ErrModelNotFound) {
		table = NewTable(imported.Order())
	} else if err != nil {
		return err
	}

	if err = table.Merge(imported); err != nil {
		return fmt.Errorf("failed to merge into model '%s': %w", name, err)
	}
	if err = s.Save(ctx, name, table); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Model imported successfully",
		slog.String("model_name", name),
		slog.Int("states_merged", imported.Len()),
	)
	return nil
}
