package markov

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/multierr"
)

// vocabCacheSize bounds the number of token texts kept in memory by a SQLStore.
const vocabCacheSize = 8192

// SetupSchema initializes the necessary tables in the provided database. This
// function should be called once on a new database before any other
// operations are performed. It is idempotent and safe to call on an
// already-initialized database.
func SetupSchema(db *sql.DB) error {

	const (
		schemaVocab = `
CREATE TABLE IF NOT EXISTS markov_vocabulary (
    token_id INTEGER PRIMARY KEY,
    token_text TEXT NOT NULL UNIQUE
);
`
		schemaPrefixes = `
CREATE TABLE IF NOT EXISTS markov_prefixes (
	prefix_id INTEGER PRIMARY KEY,
	prefix_text TEXT NOT NULL UNIQUE
);
`
		schemaModels = `
CREATE TABLE IF NOT EXISTS markov_models (
    model_id INTEGER PRIMARY KEY,
    model_name TEXT NOT NULL UNIQUE,
    model_order INTEGER NOT NULL
);
`
		schemaStates = `
CREATE TABLE IF NOT EXISTS markov_states (
    model_id INTEGER NOT NULL,
    prefix_id INTEGER NOT NULL,
    position INTEGER NOT NULL,
    PRIMARY KEY (model_id, prefix_id)
);
`
		schemaChains = `
CREATE TABLE IF NOT EXISTS markov_chains (
    model_id INTEGER NOT NULL,
    prefix_id INTEGER NOT NULL,
    next_token_id INTEGER NOT NULL,
    frequency  INTEGER NOT NULL DEFAULT 1,
    position INTEGER NOT NULL,
    PRIMARY KEY (model_id, prefix_id, next_token_id)
);
`
	)

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}

	// If the transaction succeeds, tx.Commit() will be called first, and the rollback will do nothing. If it fails, this will clean up.
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	for _, schema := range []string{schemaVocab, schemaPrefixes, schemaModels, schemaStates, schemaChains} {
		if _, err = tx.Exec(schema); err != nil {
			return fmt.Errorf("could not create schema: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}

	return nil
}

// SQLStore is a ChainStore backed by a SQLite database. Many named models
// share one vocabulary; the name passed to Load and Save is the model name.
// It holds prepared SQL statements for efficient database interaction.
type SQLStore struct {
	db                    *sql.DB
	vocab                 *lru.Cache[int, string]
	stmtGetModelInfo      *sql.Stmt
	stmtGetModels         *sql.Stmt
	stmtAddModel          *sql.Stmt
	stmtPruneModel        *sql.Stmt
	stmtModelStates       *sql.Stmt
	stmtModelChains       *sql.Stmt
	stmtModelFreq         *sql.Stmt
	stmtGetTokenID        *sql.Stmt
	stmtGetTokenText      *sql.Stmt
	stmtGetVocabLen       *sql.Stmt
	stmtGetPrefixLen      *sql.Stmt
	stmtInsertVocab       *sql.Stmt
	stmtGetOrInsertPrefix *sql.Stmt
	logger                *slog.Logger
}

// NewSQLStore creates and returns a new SQLStore. The schema must already
// exist (see SetupSchema). It pre-compiles all necessary SQL statements,
// returning an error if any preparation fails.
func NewSQLStore(db *sql.DB) (*SQLStore, error) {
	vocab, err := lru.New[int, string](vocabCacheSize)
	if err != nil {
		return nil, err
	}
	s := &SQLStore{
		db:     db,
		vocab:  vocab,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	statements := []struct {
		stmt  **sql.Stmt
		query string
	}{
		{&s.stmtGetModelInfo, `SELECT model_id, model_order FROM markov_models WHERE model_name = ?;`},
		{&s.stmtGetModels, `SELECT model_id, model_name, model_order FROM markov_models;`},
		{&s.stmtAddModel, `INSERT INTO markov_models (model_name, model_order) VALUES (?, ?);`},
		{&s.stmtPruneModel, `DELETE FROM markov_chains WHERE model_id = ? AND frequency <= ?;`},
		{&s.stmtModelStates, `SELECT COUNT(*) FROM markov_states WHERE model_id = ?;`},
		{&s.stmtModelChains, `SELECT COUNT(*) FROM markov_chains WHERE model_id = ?;`},
		{&s.stmtModelFreq, `SELECT coalesce(SUM(frequency), 0) FROM markov_chains WHERE model_id = ?;`},
		{&s.stmtGetTokenID, `SELECT token_id FROM markov_vocabulary WHERE token_text = ?;`},
		{&s.stmtGetTokenText, `SELECT token_text FROM markov_vocabulary WHERE token_id = ?;`},
		{&s.stmtGetVocabLen, `SELECT COUNT(*) FROM markov_vocabulary;`},
		{&s.stmtGetPrefixLen, `SELECT COUNT(*) FROM markov_prefixes;`},
		{&s.stmtInsertVocab, `INSERT INTO markov_vocabulary (token_text) VALUES (?) ON CONFLICT(token_text) DO UPDATE SET token_text=excluded.token_text RETURNING token_id;`},
		{&s.stmtGetOrInsertPrefix, `INSERT INTO markov_prefixes (prefix_text) VALUES (?) ON CONFLICT(prefix_text) DO UPDATE SET prefix_text=excluded.prefix_text RETURNING prefix_id;`},
	}
	for _, st := range statements {
		if *st.stmt, err = db.Prepare(st.query); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("could not prepare statement: %w", err)
		}
	}

	return s, nil
}

// Close releases all prepared SQL statements held by the SQLStore. It does
// not close the database.
func (s *SQLStore) Close() error {
	var err error
	for _, stmt := range []*sql.Stmt{
		s.stmtGetModelInfo,
		s.stmtGetModels,
		s.stmtAddModel,
		s.stmtPruneModel,
		s.stmtModelStates,
		s.stmtModelChains,
		s.stmtModelFreq,
		s.stmtGetTokenID,
		s.stmtGetTokenText,
		s.stmtGetVocabLen,
		s.stmtGetPrefixLen,
		s.stmtInsertVocab,
		s.stmtGetOrInsertPrefix,
	} {
		if stmt != nil {
			err = multierr.Append(err, stmt.Close())
		}
	}
	return err
}

// SetLogger sets the logger for the SQLStore. By default, all logs are discarded.
func (s *SQLStore) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Save replaces the stored contents of the named model with table, creating
// the model when needed. The operation is performed within a transaction.
func (s *SQLStore) Save(ctx context.Context, name string, table *Table) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	// All transaction-specific statements will also be closed with this or the .Commit()
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	var modelID int
	var modelOrder int
	err = tx.StmtContext(ctx, s.stmtGetModelInfo).QueryRowContext(ctx, name).Scan(&modelID, &modelOrder)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		res, err := tx.StmtContext(ctx, s.stmtAddModel).ExecContext(ctx, name, table.Order())
		if err != nil {
			return fmt.Errorf("failed to insert new model '%s': %w", name, err)
		}
		newID, _ := res.LastInsertId()
		modelID = int(newID)
	case err != nil:
		return fmt.Errorf("failed to query for model '%s': %w", name, err)
	default:
		if _, err = tx.ExecContext(ctx, "UPDATE markov_models SET model_order = ? WHERE model_id = ?", table.Order(), modelID); err != nil {
			return fmt.Errorf("failed to update model '%s': %w", name, err)
		}
	}

	if _, err = tx.ExecContext(ctx, "DELETE FROM markov_chains WHERE model_id = ?", modelID); err != nil {
		return fmt.Errorf("failed to clear chains for model %d: %w", modelID, err)
	}
	if _, err = tx.ExecContext(ctx, "DELETE FROM markov_states WHERE model_id = ?", modelID); err != nil {
		return fmt.Errorf("failed to clear states for model %d: %w", modelID, err)
	}

	stmtInsertVocab := tx.StmtContext(ctx, s.stmtInsertVocab)
	stmtGetOrInsertPrefix := tx.StmtContext(ctx, s.stmtGetOrInsertPrefix)
	stmtInsertState, err := tx.PrepareContext(ctx, `INSERT INTO markov_states (model_id, prefix_id, position) VALUES (?, ?, ?);`)
	if err != nil {
		return fmt.Errorf("failed to prepare state insert statement: %w", err)
	}
	defer func(stmt *sql.Stmt) {
		_ = stmt.Close()
	}(stmtInsertState)
	stmtInsertChain, err := tx.PrepareContext(ctx, `INSERT INTO markov_chains (model_id, prefix_id, next_token_id, frequency, position) VALUES (?, ?, ?, ?, ?);`)
	if err != nil {
		return fmt.Errorf("failed to prepare chain insert statement: %w", err)
	}
	defer func(stmt *sql.Stmt) {
		_ = stmt.Close()
	}(stmtInsertChain)

	vocabCache := make(map[string]int)
	tokenID := func(text string) (int, error) {
		if id, ok := vocabCache[text]; ok {
			return id, nil
		}
		var id int
		if err := stmtInsertVocab.QueryRowContext(ctx, text).Scan(&id); err != nil {
			return 0, fmt.Errorf("sql insert vocabulary error for token '%s': %w", text, err)
		}
		vocabCache[text] = id
		return id, nil
	}

	var keyBuf []byte
	var chainCount int
	for position, key := range table.keys {
		keyBuf = keyBuf[:0]
		for j, word := range strings.Split(key, " ") {
			id, err := tokenID(word)
			if err != nil {
				return err
			}
			if j > 0 {
				keyBuf = append(keyBuf, ' ')
			}
			keyBuf = strconv.AppendInt(keyBuf, int64(id), 10)
		}
		prefixKey := string(keyBuf)

		var prefixID int
		if err := stmtGetOrInsertPrefix.QueryRowContext(ctx, prefixKey).Scan(&prefixID); err != nil {
			return fmt.Errorf("failed to get or insert prefix '%s': %w", prefixKey, err)
		}
		if _, err := stmtInsertState.ExecContext(ctx, modelID, prefixID, position); err != nil {
			return fmt.Errorf("failed to insert state %q: %w", key, err)
		}

		for j, tr := range table.states[key].next {
			nextID, err := tokenID(tr.Token)
			if err != nil {
				return err
			}
			if _, err := stmtInsertChain.ExecContext(ctx, modelID, prefixID, nextID, tr.Count, j); err != nil {
				return fmt.Errorf("failed to insert chain link (%d -> %d): %w", prefixID, nextID, err)
			}
			chainCount++
		}
	}

	if err = tx.Commit(); err != nil {
		return err
	}

	// Only committed IDs may enter the shared cache.
	for text, id := range vocabCache {
		s.vocab.Add(id, text)
	}

	s.logger.InfoContext(ctx, "Model saved",
		slog.String("model_name", name),
		slog.Int("model_id", modelID),
		slog.Int("order", table.Order()),
		slog.Int("states", table.Len()),
		slog.Int("chains", chainCount),
	)
	return nil
}

// Load reads the named model back into a Table, preserving the order of its
// states and successors. It returns an error wrapping ErrModelNotFound when
// no such model exists.
func (s *SQLStore) Load(ctx context.Context, name string) (*Table, error) {
	model, err := s.ModelInfo(ctx, name)
	if err != nil {
		return nil, err
	}

	type stateRow struct {
		prefixID   int
		prefixText string
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.prefix_id, p.prefix_text FROM markov_states s
		JOIN markov_prefixes p ON p.prefix_id = s.prefix_id
		WHERE s.model_id = ? ORDER BY s.position`, model.Id)
	if err != nil {
		return nil, fmt.Errorf("could not query states for model %d: %w", model.Id, err)
	}
	var stateRows []stateRow
	for rows.Next() {
		var r stateRow
		if err = rows.Scan(&r.prefixID, &r.prefixText); err != nil {
			_ = rows.Close()
			return nil, err
		}
		stateRows = append(stateRows, r)
	}
	_ = rows.Close()
	if err = rows.Err(); err != nil {
		return nil, err
	}

	type chainRow struct {
		prefixID, nextTokenID, frequency int
	}
	rows, err = s.db.QueryContext(ctx, `
		SELECT prefix_id, next_token_id, frequency FROM markov_chains
		WHERE model_id = ? ORDER BY prefix_id, position`, model.Id)
	if err != nil {
		return nil, fmt.Errorf("could not query chains for model %d: %w", model.Id, err)
	}
	var chainRows []chainRow
	for rows.Next() {
		var r chainRow
		if err = rows.Scan(&r.prefixID, &r.nextTokenID, &r.frequency); err != nil {
			_ = rows.Close()
			return nil, err
		}
		chainRows = append(chainRows, r)
	}
	_ = rows.Close()
	if err = rows.Err(); err != nil {
		return nil, err
	}

	table := NewTable(model.Order)
	prefixToState := make(map[int]string, len(stateRows))
	words := make([]string, 0, model.Order)
	for _, r := range stateRows {
		words = words[:0]
		for _, idStr := range strings.Split(r.prefixText, " ") {
			id, err := strconv.Atoi(idStr)
			if err != nil {
				return nil, fmt.Errorf("%w: prefix %q", ErrInvalidTable, r.prefixText)
			}
			word, err := s.VocabText(ctx, id)
			if err != nil {
				return nil, fmt.Errorf("failed to get text for token %d: %w", id, err)
			}
			words = append(words, word)
		}
		state := stateKey(words)
		if err := table.AddState(state); err != nil {
			return nil, err
		}
		prefixToState[r.prefixID] = state
	}

	for _, r := range chainRows {
		state, ok := prefixToState[r.prefixID]
		if !ok {
			return nil, fmt.Errorf("%w: chain for unknown prefix %d", ErrInvalidTable, r.prefixID)
		}
		next, err := s.VocabText(ctx, r.nextTokenID)
		if err != nil {
			return nil, fmt.Errorf("failed to get text for token %d: %w", r.nextTokenID, err)
		}
		if err := table.Observe(state, next, r.frequency); err != nil {
			return nil, err
		}
	}

	s.logger.DebugContext(ctx, "Model loaded",
		slog.String("model_name", model.Name),
		slog.Int("model_id", model.Id),
		slog.Int("states", table.Len()),
		slog.Int("chains", len(chainRows)),
	)
	return table, nil
}

// VocabID looks up a token string in the vocabulary and returns its corresponding ID.
// It returns an error if the token is not found.
func (s *SQLStore) VocabID(ctx context.Context, token string) (int, error) {
	var tokenID int
	if err := s.stmtGetTokenID.QueryRowContext(ctx, token).Scan(&tokenID); err != nil {
		return 0, err
	}
	return tokenID, nil
}

// VocabText looks up a token ID in the vocabulary and returns its corresponding
// text, consulting the in-memory cache first. It returns an error if the ID is
// not found.
func (s *SQLStore) VocabText(ctx context.Context, id int) (string, error) {
	if text, ok := s.vocab.Get(id); ok {
		return text, nil
	}
	var tokenText string
	if err := s.stmtGetTokenText.QueryRowContext(ctx, id).Scan(&tokenText); err != nil {
		return "", err
	}
	s.vocab.Add(id, tokenText)
	return tokenText, nil
}
