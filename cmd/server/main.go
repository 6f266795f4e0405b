// Package main is the entry point for the backtester HTTP server.
//
// The server exposes the history import, backtest run and run archive API,
// Prometheus metrics, and runs scheduled backups and database maintenance.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/aristath/backtester/internal/config"
	"github.com/aristath/backtester/internal/server"
	"github.com/aristath/backtester/pkg/logger"
)

func main() {
	// Load configuration first to get log level
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().
		Str("data_dir", cfg.DataDir).
		Str("signal_mode", string(cfg.SignalMode)).
		Msg("Starting backtester")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Run(ctx, cfg, log); err != nil {
		log.Error().Err(err).Msg("Server exited with error")
		os.Exit(1)
	}
}
