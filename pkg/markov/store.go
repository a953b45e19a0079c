package markov

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/natefinch/atomic"
)

// ChainStore persists frequency tables under a name.
type ChainStore interface {
	// Load returns the table stored under name.
	Load(ctx context.Context, name string) (*Table, error)
	// Save stores table under name, replacing whatever was there.
	Save(ctx context.Context, name string, table *Table) error
}

// FileStore is a ChainStore that keeps each table in its own JSON file. The
// name passed to Load and Save is the file path.
type FileStore struct {
	// Legacy makes Save write the bare state mapping without the order.
	Legacy bool
	logger *slog.Logger
}

// NewFileStore creates a FileStore that writes the versioned format.
func NewFileStore() *FileStore {
	return &FileStore{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// SetLogger sets the logger for the FileStore. By default, all logs are discarded.
func (f *FileStore) SetLogger(logger *slog.Logger) {
	if logger != nil {
		f.logger = logger
	}
}

// Load reads and decodes the table at path. A missing file yields an error
// matching fs.ErrNotExist.
func (f *FileStore) Load(ctx context.Context, path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read table: %w", err)
	}
	table := NewTable(0)
	if err = table.UnmarshalJSON(data); err != nil {
		return nil, fmt.Errorf("could not decode table %s: %w", path, err)
	}
	f.logger.DebugContext(ctx, "Table loaded",
		slog.String("path", path),
		slog.Int("order", table.Order()),
		slog.Int("states", table.Len()),
	)
	return table, nil
}

// Save encodes table and atomically replaces the file at path.
func (f *FileStore) Save(ctx context.Context, path string, table *Table) error {
	var data []byte
	var err error
	if f.Legacy {
		data, err = table.MarshalLegacyJSON()
	} else {
		data, err = table.MarshalJSON()
	}
	if err != nil {
		return fmt.Errorf("could not encode table: %w", err)
	}
	if err = atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("could not write table: %w", err)
	}
	f.logger.InfoContext(ctx, "Table saved",
		slog.String("path", path),
		slog.Bool("legacy", f.Legacy),
		slog.Int("states", table.Len()),
	)
	return nil
}
