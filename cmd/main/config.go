package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/natefinch/atomic"
)

// Config holds the settings of one invocation. Values come from DefaultConfig,
// then the optional JSON file given with --config, then explicit flags.
type Config struct {
	LogLevel         string  `json:"log_level"`
	Order            int     `json:"order"`
	Length           int     `json:"length"`
	Model            string  `json:"model"`
	Encoding         string  `json:"encoding"`
	Legacy           bool    `json:"legacy"`
	Temperature      float64 `json:"temperature"`
	TopK             int     `json:"top_k"`
	EarlyTermination bool    `json:"early_termination"`
	RandomSeed       *uint64 `json:"random_seed,omitempty"`
	PruneBelow       int     `json:"prune_below"`
}

// DefaultConfig creates a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:         "info",
		Order:            2,
		Length:           15,
		Model:            "markov_system",
		Encoding:         "utf8",
		Legacy:           false,
		Temperature:      1.0,
		TopK:             0,
		EarlyTermination: true,
		PruneBelow:       0,
	}
}

// LoadConfig reads the configuration from a JSON file at the given path.
// If the file doesn't exist, it creates one with default values.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	file, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			var data []byte
			data, err = json.MarshalIndent(config, "", "  ")
			if err != nil {
				return nil, fmt.Errorf("failed to marshal default config: %w", err)
			}
			if err = atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
				return nil, fmt.Errorf("failed to write default config file: %w", err)
			}
			return config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err = json.Unmarshal(file, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return config, nil
}

// applyFlags copies the flags given on the command line over the config.
func (c *Config) applyFlags(cli *CLI, set map[string]bool) {
	if set["log-level"] {
		c.LogLevel = cli.LogLevel
	}
	if set["order"] {
		c.Order = cli.Order
	}
	if set["length"] {
		c.Length = cli.Length
	}
	if set["model"] {
		c.Model = cli.Model
	}
	if set["encoding"] {
		c.Encoding = cli.Encoding
	}
	if set["legacy"] {
		c.Legacy = cli.Legacy
	}
	if set["temperature"] {
		c.Temperature = cli.Temperature
	}
	if set["top-k"] {
		c.TopK = cli.TopK
	}
	if set["early-termination"] {
		c.EarlyTermination = cli.EarlyTermination
	}
	if set["random-seed"] {
		seed := cli.RandomSeed
		c.RandomSeed = &seed
	}
	if set["prune"] {
		c.PruneBelow = cli.Prune
	}
}

// logLevel maps the configured level name to a slog level, defaulting to info.
func (c *Config) logLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
