package main

import (
	"context"
	"flag"

	"github.com/google/subcommands"

	"github.com/aristath/backtester/internal/config"
	"github.com/aristath/backtester/internal/server"
	"github.com/aristath/backtester/pkg/logger"
)

type serveCmd struct {
	port int
}

func (*serveCmd) Name() string     { return "serve" }
func (*serveCmd) Synopsis() string { return "serve the HTTP API and run scheduled jobs" }
func (*serveCmd) Usage() string {
	return `backtest serve [-port n]
`
}

func (c *serveCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.port, "port", 0, "listen port (default GO_PORT)")
}

func (c *serveCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	cfg, err := config.Load()
	if err != nil {
		fail(err)
		return subcommands.ExitFailure
	}
	if c.port != 0 {
		cfg.Port = c.port
		if err := cfg.Validate(); err != nil {
			fail(err)
			return subcommands.ExitUsageError
		}
	}

	log := logger.NewWithWriter(logger.Config{Level: cfg.LogLevel, Pretty: cfg.DevMode}, stderr)
	if err := server.Run(ctx, cfg, log); err != nil {
		fail(err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
