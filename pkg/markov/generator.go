package markov

import (
	"fmt"
	"io"
	"log/slog"
)

// Generator is the main entry point for training and sampling chains. It
// holds a tokenizer, the random source used for every draw, and a logger.
type Generator struct {
	tokenizer Tokenizer
	source    Source
	logger    *slog.Logger
}

// NewGenerator creates a Generator. A nil tokenizer falls back to
// NewDefaultTokenizer sharing src, and a nil src to DefaultSource.
func NewGenerator(tokenizer Tokenizer, src Source) *Generator {
	if src == nil {
		src = DefaultSource()
	}
	if tokenizer == nil {
		tokenizer = NewDefaultTokenizer(WithSource(src))
	}
	return &Generator{
		tokenizer: tokenizer,
		source:    src,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// SetLogger sets the logger for the Generator. By default, all logs are discarded.
func (g *Generator) SetLogger(logger *slog.Logger) {
	if logger != nil {
		g.logger = logger
	}
}

// Tokenizer returns the tokenizer used for training and rendering.
func (g *Generator) Tokenizer() Tokenizer {
	return g.tokenizer
}

// Train tokenizes the text in r and folds it into existing (or a new table
// when existing is nil) with states of k tokens.
func (g *Generator) Train(r io.Reader, k int, existing *Table) (*Table, error) {
	tokens, err := ReadTokens(g.tokenizer, r)
	if err != nil {
		return nil, err
	}

	statesBefore := 0
	if existing != nil {
		statesBefore = existing.Len()
	}

	table, err := Build(tokens, k, existing)
	if err != nil {
		return nil, err
	}

	g.logger.Info("Training completed",
		slog.Int("order", k),
		slog.Int("tokens_processed", len(tokens)),
		slog.Int("states_added", table.Len()-statesBefore),
		slog.Int("states_total", table.Len()),
	)
	return table, nil
}

// Render turns generated tokens into a sentence with the Generator's tokenizer.
func (g *Generator) Render(tokens []string) (string, error) {
	text, err := g.tokenizer.Render(tokens)
	if err != nil {
		return "", fmt.Errorf("render failed: %w", err)
	}
	return text, nil
}
