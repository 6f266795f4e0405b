package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/aristath/backtester/internal/config"
	"github.com/aristath/backtester/internal/di"
	"github.com/aristath/backtester/pkg/logger"
)

// stdout and stderr are swapped in tests
var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

func newLogger() zerolog.Logger {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = "warn"
	}
	return logger.NewWithWriter(logger.Config{Level: level, Pretty: true}, stderr)
}

// openContainer loads configuration and wires the databases for commands that
// work on stored state.
func openContainer(ctx context.Context) (*config.Config, *di.Container, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, zerolog.Nop(), err
	}

	log := logger.NewWithWriter(logger.Config{Level: cfg.LogLevel, Pretty: true}, stderr)
	container, err := di.Wire(ctx, cfg, log)
	if err != nil {
		return nil, nil, log, err
	}
	return cfg, container, log, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func fail(err error) {
	fmt.Fprintf(stderr, "Error: %v\n", err)
}
