package di

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/backtester/internal/config"
	"github.com/aristath/backtester/internal/modules/backtest"
	"github.com/aristath/backtester/internal/reliability"
)

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		DataDir:             t.TempDir(),
		Port:                8001,
		SignalMode:          backtest.SignalLagged20,
		MaintenanceSchedule: "@daily",
		Storage:             &config.StorageConfig{Prefix: "backtester"},
	}
}

func TestWire(t *testing.T) {
	container, err := Wire(context.Background(), testConfig(t), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { container.Close() })

	assert.NotNil(t, container.HistoryDB)
	assert.NotNil(t, container.BacktestsDB)
	assert.NotNil(t, container.HistoryRepo)
	assert.NotNil(t, container.RunRepo)
	assert.NotNil(t, container.Metrics)
	assert.NotNil(t, container.BacktestService)
	assert.NotNil(t, container.BacktestHandler)
	assert.NotNil(t, container.BackupService)
	assert.Nil(t, container.ObjectStore)
	assert.Len(t, container.Databases(), 2)

	require.NotNil(t, container.Scheduler)
	assert.Equal(t, 1, container.Scheduler.Jobs())

	assert.Equal(t, backtest.SignalLagged20, container.BacktestService.DefaultSignalMode())

	// Backups without storage fail cleanly
	_, err = container.BackupService.CreateAndUploadBackup(context.Background())
	assert.ErrorIs(t, err, reliability.ErrNoObjectStore)
}

func TestWire_WithStorage(t *testing.T) {
	cfg := testConfig(t)
	cfg.BackupSchedule = "0 2 * * *"
	cfg.Storage = &config.StorageConfig{
		Endpoint:        "http://127.0.0.1:9000",
		Region:          "auto",
		Bucket:          "backups",
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
		Prefix:          "backtester",
	}

	container, err := Wire(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { container.Close() })

	assert.NotNil(t, container.ObjectStore)
	assert.Equal(t, 2, container.Scheduler.Jobs())
}

func TestInitializeRepositories_RequiresDatabases(t *testing.T) {
	err := InitializeRepositories(&Container{}, zerolog.Nop())
	assert.Error(t, err)
}

func TestContainer_Close(t *testing.T) {
	container, err := InitializeDatabases(testConfig(t), zerolog.Nop())
	require.NoError(t, err)

	assert.NoError(t, container.Close())
	assert.NoError(t, (&Container{}).Close())
}
