package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/backtester/internal/modules/backtest"
)

func setEnv(t *testing.T, vars map[string]string) {
	t.Helper()
	for _, key := range []string{
		"BACKTEST_DATA_DIR", "LOG_LEVEL", "GO_PORT", "DEV_MODE", "SIGNAL_MODE", "BACKUP_SCHEDULE",
		"BACKUP_RETENTION_DAYS", "MAINTENANCE_SCHEDULE",
		"S3_ENDPOINT", "S3_REGION", "S3_BUCKET", "S3_ACCESS_KEY_ID", "S3_SECRET_ACCESS_KEY", "S3_PREFIX",
	} {
		t.Setenv(key, "")
	}
	for k, v := range vars {
		t.Setenv(k, v)
	}
}

func TestLoad_Defaults(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	setEnv(t, map[string]string{"BACKTEST_DATA_DIR": dir})

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.DataDir)
	assert.DirExists(t, dir)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 8001, cfg.Port)
	assert.False(t, cfg.DevMode)
	assert.Equal(t, backtest.SignalLagged20, cfg.SignalMode)
	assert.Empty(t, cfg.BackupSchedule)
	assert.Equal(t, 30, cfg.BackupRetentionDays)
	assert.Equal(t, "0 3 * * *", cfg.MaintenanceSchedule)
	assert.False(t, cfg.Storage.Enabled())
}

func TestLoad_Overrides(t *testing.T) {
	setEnv(t, map[string]string{
		"BACKTEST_DATA_DIR":    t.TempDir(),
		"LOG_LEVEL":            "debug",
		"GO_PORT":              "9100",
		"DEV_MODE":             "true",
		"SIGNAL_MODE":          "reference",
		"BACKUP_SCHEDULE":      "0 3 * * *",
		"S3_BUCKET":            "backups",
		"S3_ACCESS_KEY_ID":     "key",
		"S3_SECRET_ACCESS_KEY": "secret",
	})

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 9100, cfg.Port)
	assert.True(t, cfg.DevMode)
	assert.Equal(t, backtest.SignalReference, cfg.SignalMode)
	assert.Equal(t, "0 3 * * *", cfg.BackupSchedule)
	assert.True(t, cfg.Storage.Enabled())
	assert.Equal(t, "backtester", cfg.Storage.Prefix)
}

func TestValidate(t *testing.T) {
	full := func() *StorageConfig {
		return &StorageConfig{Bucket: "b", AccessKeyID: "k", SecretAccessKey: "s"}
	}

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"defaults", Config{Port: 8001, Storage: &StorageConfig{}}, false},
		{"unknown signal mode", Config{Port: 8001, SignalMode: "fast", Storage: &StorageConfig{}}, true},
		{"bad port", Config{Port: 0, Storage: &StorageConfig{}}, true},
		{"partial storage", Config{Port: 8001, Storage: &StorageConfig{Bucket: "b"}}, true},
		{"schedule without storage", Config{Port: 8001, BackupSchedule: "@daily", Storage: &StorageConfig{}}, true},
		{"bad schedule", Config{Port: 8001, BackupSchedule: "every day", Storage: full()}, true},
		{"schedule with storage", Config{Port: 8001, BackupSchedule: "@daily", Storage: full()}, false},
		{"negative retention", Config{Port: 8001, BackupRetentionDays: -1, Storage: &StorageConfig{}}, true},
		{"bad maintenance schedule", Config{Port: 8001, MaintenanceSchedule: "nightly", Storage: &StorageConfig{}}, true},
		{"maintenance schedule", Config{Port: 8001, MaintenanceSchedule: "@weekly", Storage: &StorageConfig{}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
				return
			}
			assert.NoError(t, err)
		})
	}
}
