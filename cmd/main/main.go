package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/CTAG07/markov-chains/pkg/markov"
	"github.com/alecthomas/kong"
	"go.uber.org/multierr"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

const (
	msgFileMissing  = "File does not exist. Aborting."
	msgInvalidOrder = "Invalid state length. Aborting."
	msgSeedMissing  = "Seed does not exist in Markov chain. Aborting."
)

// CLI is the command line of the tool. Exactly one of Gen, Append and Input
// selects the mode.
type CLI struct {
	Gen    string `short:"g" placeholder:"input_filename" xor:"mode" help:"Build a Markov table from a text file and store it at --output."`
	Append string `short:"a" placeholder:"input_filename" xor:"mode" help:"Add a text file to the existing table at --output."`
	Input  string `short:"i" placeholder:"table" xor:"mode" help:"Generate a sentence from the table at this path."`

	Order  int    `short:"k" name:"order" placeholder:"state_length" help:"Number of words per state (default 2)."`
	Output string `short:"o" placeholder:"output_file" default:"markov_system.json" help:"Where the table is stored. Paths ending in .db, .sqlite or .sqlite3 use SQLite."`
	Seed   string `short:"s" help:"Initial state of the chain."`
	Length int    `short:"l" placeholder:"chain_length" help:"Number of words generated after the initial state (default 15)."`

	Config           string  `placeholder:"file" help:"JSON configuration file, created with defaults when missing."`
	LogLevel         string  `help:"Log level (debug, info, warn, error)."`
	Model            string  `help:"Model name inside a SQLite table."`
	Encoding         string  `help:"Text encoding of input files (utf8, cp437, cp850, iso-8859-1, windows-1252)."`
	Legacy           bool    `help:"Write the table without its order, as older versions did."`
	Temperature      float64 `help:"Sampling temperature; 1 follows the counts, 0 always takes the most frequent word."`
	TopK             int     `name:"top-k" help:"Only sample among the K most frequent successors."`
	EarlyTermination bool    `negatable:"" help:"Stop quietly when the chain reaches a state with no successors."`
	RandomSeed       uint64  `help:"Seed the random generator for reproducible output."`
	Prune            int     `placeholder:"N" help:"Drop transitions seen N times or fewer before saving."`
	Stats            bool    `help:"Print table statistics."`
	Version          bool    `help:"Print version information and exit."`
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// exitCode carries kong's requested exit status out of Parse.
type exitCode int

// run executes one invocation and returns the process exit status.
func run(args []string, stdout, stderr io.Writer) (code int) {
	var cli CLI
	parser, err := kong.New(&cli,
		kong.Name("markov-chains"),
		kong.Description("A command for generating Markov chains of texts and producing sentences based on the texts."),
		kong.UsageOnError(),
		kong.Writers(stdout, stderr),
		kong.Exit(func(code int) { panic(exitCode(code)) }),
	)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}

	defer func() {
		if r := recover(); r != nil {
			c, ok := r.(exitCode)
			if !ok {
				panic(r)
			}
			code = int(c)
		}
	}()

	kctx, err := parser.Parse(args)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "markov-chains: error: %v\n", err)
		return 2
	}

	if cli.Version {
		_, _ = fmt.Fprintf(stdout, "markov-chains %s (commit %s, built %s)\n", Version, Commit, BuildDate)
		return 0
	}
	if cli.Gen == "" && cli.Append == "" && cli.Input == "" {
		_ = kctx.PrintUsage(false)
		return 2
	}

	config := DefaultConfig()
	if cli.Config != "" {
		if config, err = LoadConfig(cli.Config); err != nil {
			_, _ = fmt.Fprintf(stderr, "failed to load configuration: %v\n", err)
			return 1
		}
	}
	set := explicitFlags(kctx)
	config.applyFlags(&cli, set)

	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: config.logLevel()}))

	a, err := newApp(config, logger, stdout)
	if err != nil {
		return a.fail(err)
	}

	ctx := context.Background()
	switch {
	case cli.Gen != "":
		err = a.build(ctx, cli.Gen, cli.Output, nil)
	case cli.Append != "":
		err = a.appendText(ctx, cli.Append, cli.Output, set["order"])
	default:
		err = a.generate(ctx, cli.Input, cli.Seed, cli.Stats)
	}
	if err != nil {
		return a.fail(err)
	}
	if cli.Stats && cli.Input == "" {
		return a.fail(a.printStats(ctx, cli.Output))
	}
	return 0
}

// explicitFlags returns the names of the flags given on the command line.
func explicitFlags(kctx *kong.Context) map[string]bool {
	set := make(map[string]bool)
	for _, p := range kctx.Path {
		if p.Flag != nil {
			set[p.Flag.Name] = true
		}
	}
	return set
}

// app holds what the modes share for one invocation.
type app struct {
	config *Config
	logger *slog.Logger
	stdout io.Writer
	gen    *markov.Generator
	texts  markov.TextSource
}

func newApp(config *Config, logger *slog.Logger, stdout io.Writer) (*app, error) {
	a := &app{config: config, logger: logger, stdout: stdout}

	texts, err := markov.NewFileSource(config.Encoding)
	if err != nil {
		return a, err
	}
	a.texts = texts

	src := markov.DefaultSource()
	if config.RandomSeed != nil {
		src = markov.NewSource(*config.RandomSeed)
	}
	a.gen = markov.NewGenerator(nil, src)
	a.gen.SetLogger(logger)
	return a, nil
}

// fail reports err at the command line boundary and returns the exit status.
// Missing files and bad state lengths get the classic one-line messages on
// stdout; a missing seed is not a failure.
func (a *app) fail(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, markov.ErrSeedNotFound):
		_, _ = fmt.Fprintln(a.stdout, msgSeedMissing)
		return 0
	case errors.Is(err, fs.ErrNotExist):
		a.logger.Debug("Input missing", "error", err)
		_, _ = fmt.Fprintln(a.stdout, msgFileMissing)
		return 1
	case errors.Is(err, markov.ErrInvalidOrder), errors.Is(err, markov.ErrOrderMismatch):
		a.logger.Debug("Invalid state length", "error", err)
		_, _ = fmt.Fprintln(a.stdout, msgInvalidOrder)
		return 1
	default:
		a.logger.Error("Aborting", "error", err)
		return 1
	}
}

// isDatabase reports whether path names a SQLite table rather than a JSON file.
func isDatabase(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		return true
	}
	return false
}

// store is an opened ChainStore together with the name tables are kept
// under and a way to release it.
type store struct {
	markov.ChainStore
	name  string
	sql   *markov.SQLStore
	close func() error
}

// openStore opens the store behind path. When mustExist is set, a missing
// path is reported as fs.ErrNotExist instead of creating an empty database.
func (a *app) openStore(path string, mustExist bool) (*store, error) {
	if !isDatabase(path) {
		fileStore := markov.NewFileStore()
		fileStore.Legacy = a.config.Legacy
		fileStore.SetLogger(a.logger)
		return &store{ChainStore: fileStore, name: path, close: func() error { return nil }}, nil
	}

	if mustExist {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("could not open table: %w", err)
		}
	}
	db, err := initDB(path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err = markov.SetupSchema(db); err != nil {
		return nil, multierr.Append(fmt.Errorf("failed to setup markov schema: %w", err), db.Close())
	}
	sqlStore, err := markov.NewSQLStore(db)
	if err != nil {
		return nil, multierr.Append(err, db.Close())
	}
	sqlStore.SetLogger(a.logger)
	return &store{
		ChainStore: sqlStore,
		name:       a.config.Model,
		sql:        sqlStore,
		close: func() error {
			return multierr.Combine(sqlStore.Close(), db.Close())
		},
	}, nil
}

// train folds the text file at textPath into table.
func (a *app) train(textPath string, k int, table *markov.Table) (*markov.Table, error) {
	r, err := a.texts.Open(textPath)
	if err != nil {
		return nil, err
	}
	defer func(r io.ReadCloser) {
		_ = r.Close()
	}(r)
	return a.gen.Train(r, k, table)
}

// build trains a new table (or extends existing) and stores it at tablePath.
func (a *app) build(ctx context.Context, textPath, tablePath string, existing *markov.Table) (err error) {
	k := a.config.Order
	if existing != nil && existing.Order() != 0 {
		k = existing.Order()
	}
	table, err := a.train(textPath, k, existing)
	if err != nil {
		return err
	}
	if a.config.PruneBelow > 0 {
		removed := table.Prune(a.config.PruneBelow)
		a.logger.Info("Table pruned", "min_frequency", a.config.PruneBelow, "transitions_removed", removed)
	}

	st, err := a.openStore(tablePath, false)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, st.close()) }()

	if err = st.Save(ctx, st.name, table); err != nil {
		return err
	}
	if st.sql != nil {
		return st.sql.Compact(ctx)
	}
	return nil
}

// appendText adds the text file to the table stored at tablePath. The state
// length comes from the stored table; an explicit -k must agree with it.
func (a *app) appendText(ctx context.Context, textPath, tablePath string, orderGiven bool) error {
	st, err := a.openStore(tablePath, true)
	if err != nil {
		return err
	}
	table, err := st.Load(ctx, st.name)
	if closeErr := st.close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		return err
	}

	if orderGiven && a.config.Order != table.Order() {
		return fmt.Errorf("%w: table has order %d, got %d", markov.ErrOrderMismatch, table.Order(), a.config.Order)
	}
	return a.build(ctx, textPath, tablePath, table)
}

// generate loads the table at tablePath and prints one rendered sentence, or
// its statistics when statsOnly is set.
func (a *app) generate(ctx context.Context, tablePath, seed string, statsOnly bool) error {
	if statsOnly {
		return a.printStats(ctx, tablePath)
	}

	st, err := a.openStore(tablePath, true)
	if err != nil {
		return err
	}
	table, err := st.Load(ctx, st.name)
	if closeErr := st.close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		return err
	}

	opts := []markov.GenerateOption{
		markov.WithLength(a.config.Length),
		markov.WithTemperature(a.config.Temperature),
		markov.WithTopK(a.config.TopK),
		markov.WithEarlyTermination(a.config.EarlyTermination),
	}
	if seed != "" {
		opts = append(opts, markov.WithSeed(seed))
	}
	chain, err := a.gen.Generate(table, opts...)
	if err != nil {
		return err
	}
	text, err := a.gen.Render(chain)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(a.stdout, text)
	return err
}

// printStats writes statistics for the table at tablePath. SQLite tables
// report on every model in the database.
func (a *app) printStats(ctx context.Context, tablePath string) error {
	st, err := a.openStore(tablePath, true)
	if err != nil {
		return err
	}
	defer func() { _ = st.close() }()

	if st.sql != nil {
		stats, err := st.sql.Stats(ctx)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(a.stdout, "vocabulary: %d\nprefixes: %d\n", stats.VocabSize, stats.PrefixSize)
		for _, m := range stats.Models {
			ms := stats.Stats[m.Id]
			_, _ = fmt.Fprintf(a.stdout, "model %s: order %d, states %d, transitions %d, frequency %d\n",
				m.Name, m.Order, ms.States, ms.TotalChains, ms.TotalFrequency)
		}
		return nil
	}

	table, err := st.Load(ctx, st.name)
	if err != nil {
		return err
	}
	stats := table.Stats()
	_, err = fmt.Fprintf(a.stdout, "order: %d\nstates: %d\ntransitions: %d\nfrequency: %d\ndead ends: %d\n",
		stats.Order, stats.States, stats.Transitions, stats.TotalFrequency, stats.DeadEnds)
	return err
}
