package markov

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
)

// generateOptions Is used by the generate functions to configure default options.
type generateOptions struct {
	seed        string
	length      int
	canEndEarly bool
	temperature float64
	topK        int
}

func defaultGenerateOptions() *generateOptions {
	return &generateOptions{
		length:      15,
		canEndEarly: false,
		temperature: 1.0,
		topK:        0,
	}
}

// GenerateOption is a function that configures generation parameters. It's used
// as a variadic argument in Next and Generate.
type GenerateOption func(*generateOptions)

// WithSeed sets the state the chain starts from. Runs of whitespace in seed
// are collapsed to single spaces. An empty seed picks a random state.
func WithSeed(seed string) GenerateOption {
	return func(o *generateOptions) { o.seed = strings.Join(strings.Fields(seed), " ") }
}

// WithLength sets how many tokens are appended after the starting state.
func WithLength(n int) GenerateOption {
	return func(o *generateOptions) { o.length = n }
}

// WithEarlyTermination specifies whether reaching a state with no successors
// ends the chain quietly. When false, Generate returns the partial chain
// together with an error wrapping ErrDeadEnd.
func WithEarlyTermination(canEnd bool) GenerateOption {
	return func(o *generateOptions) { o.canEndEarly = canEnd }
}

// WithTemperature adjusts the randomness of the token selection.
// A value of 1.0 is standard weighted random selection.
// Values > 1.0 increase randomness (making less frequent tokens more likely).
// Values < 1.0 decrease randomness (making more frequent tokens even more likely).
// A value of 0 or less results in deterministic selection (always choosing the most frequent token).
func WithTemperature(t float64) GenerateOption {
	return func(o *generateOptions) { o.temperature = t }
}

// WithTopK restricts the token selection pool to the top `k` most frequent tokens
// at each step. A value of 0 disables Top-K sampling.
func WithTopK(k int) GenerateOption {
	return func(o *generateOptions) { o.topK = k }
}

// Next draws the token that follows state, with probability proportional to
// its count. It returns ErrUnknownState when state is not in the table and
// ErrDeadEnd when the state has no successors.
func (g *Generator) Next(table *Table, state string, opts ...GenerateOption) (string, error) {
	options := defaultGenerateOptions()
	for _, opt := range opts {
		opt(options)
	}
	return g.next(table, state, options)
}

func (g *Generator) next(table *Table, state string, options *generateOptions) (string, error) {
	e, ok := table.states[state]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownState, state)
	}
	if len(e.next) == 0 {
		return "", fmt.Errorf("%w: %q", ErrDeadEnd, state)
	}
	return chooseNextToken(e.next, g.source, options), nil
}

// Generate walks the table and returns the starting state's tokens followed
// by up to the configured length of sampled tokens. At each step the state is
// the last k tokens of the chain built so far.
//
// A seed that is not a key of the table yields ErrSeedNotFound. A seed that
// is a key with no successors is a dead end like any other: an error wrapping
// ErrDeadEnd, or the seed alone with early termination. Without a seed, the
// starting state is picked uniformly from the table's keys.
func (g *Generator) Generate(table *Table, opts ...GenerateOption) ([]string, error) {
	options := defaultGenerateOptions()
	for _, opt := range opts {
		opt(options)
	}

	start := options.seed
	if start != "" {
		if !table.Has(start) {
			return nil, fmt.Errorf("%w: %q", ErrSeedNotFound, start)
		}
	} else {
		if table.Len() == 0 {
			return nil, ErrEmptyTable
		}
		start = table.keys[g.source.Pick(uniform(table.Len()))]
	}

	k := table.Order()
	chain := strings.Split(start, " ")
	for i := 0; i < options.length; i++ {
		state := stateKey(chain[i : i+k])
		token, err := g.next(table, state, options)
		if err != nil {
			if errors.Is(err, ErrDeadEnd) && options.canEndEarly {
				g.logger.Warn("Generation stopped at a dead end",
					slog.String("last_state", state),
					slog.Int("generated_length", i),
					slog.Int("requested_length", options.length),
				)
				break
			}
			return chain, fmt.Errorf("generation stopped after %d tokens: %w", i, err)
		}
		chain = append(chain, token)
	}

	g.logger.Debug("Generation finished",
		slog.String("start", start),
		slog.Int("tokens", len(chain)),
	)
	return chain, nil
}

// chooseNextToken abstracts the token selection logic from the generation loop.
func chooseNextToken(choices []Transition, src Source, options *generateOptions) string {
	// topK filtering
	if options.topK > 0 && options.topK < len(choices) {
		sorted := make([]Transition, len(choices))
		copy(sorted, choices)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].Count > sorted[j].Count
		})
		choices = sorted[:options.topK]
	}

	// temperature selection
	if options.temperature <= 0 { // Deterministic
		best := choices[0]
		for _, choice := range choices[1:] {
			if choice.Count > best.Count {
				best = choice
			}
		}
		return best.Token
	}

	weights := make([]float64, len(choices))
	if options.temperature == 1.0 { // Standard weighted random
		for i, choice := range choices {
			weights[i] = float64(choice.Count)
		}
	} else { // Temperature-based sampling
		maxLog := math.Inf(-1)
		for i, choice := range choices {
			weights[i] = math.Log(float64(choice.Count)) / options.temperature
			if weights[i] > maxLog {
				maxLog = weights[i]
			}
		}
		for i := range weights {
			weights[i] = math.Exp(weights[i] - maxLog)
		}
	}

	i := src.Pick(weights)
	if i < 0 || i >= len(choices) {
		i = len(choices) - 1
	}
	return choices[i].Token
}
