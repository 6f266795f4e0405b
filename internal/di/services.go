package di

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/backtester/internal/config"
	"github.com/aristath/backtester/internal/modules/backtest"
	backtesthandlers "github.com/aristath/backtester/internal/modules/backtest/handlers"
	"github.com/aristath/backtester/internal/modules/history"
	"github.com/aristath/backtester/internal/modules/runs"
	"github.com/aristath/backtester/internal/observability"
	"github.com/aristath/backtester/internal/reliability"
)

// InitializeRepositories creates repositories on top of the open databases
func InitializeRepositories(container *Container, log zerolog.Logger) error {
	if container.HistoryDB == nil || container.BacktestsDB == nil {
		return fmt.Errorf("databases must be initialized before repositories")
	}

	container.HistoryRepo = history.NewRepository(container.HistoryDB.Conn(), log)
	container.RunRepo = runs.NewRepository(container.BacktestsDB.Conn(), log)

	return nil
}

// InitializeServices creates services and HTTP handlers
func InitializeServices(ctx context.Context, container *Container, cfg *config.Config, log zerolog.Logger) error {
	container.Metrics = observability.NewMetrics()

	container.BacktestService = backtest.NewService(
		container.HistoryRepo,
		container.RunRepo,
		container.Metrics,
		cfg.SignalMode,
		log,
	)

	if cfg.Storage.Enabled() {
		store, err := reliability.NewS3Store(ctx, cfg.Storage)
		if err != nil {
			return fmt.Errorf("failed to initialize object storage: %w", err)
		}
		container.ObjectStore = store
	}

	snapshots := make([]reliability.Snapshotter, 0, 2)
	for _, db := range container.Databases() {
		snapshots = append(snapshots, db)
	}
	prefix := ""
	if cfg.Storage != nil {
		prefix = cfg.Storage.Prefix
	}
	container.BackupService = reliability.NewBackupService(
		snapshots,
		container.ObjectStore,
		prefix,
		cfg.DataDir,
		container.Metrics,
		log,
	)

	container.BacktestHandler = backtesthandlers.NewHandler(
		container.BacktestService,
		container.HistoryRepo,
		cfg.DevMode,
		log,
	)

	return nil
}
