// Package config provides configuration management functionality.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/aristath/backtester/internal/modules/backtest"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds application configuration
type Config struct {
	DataDir        string // Base directory for all databases (defaults to "./data", always absolute)
	LogLevel       string
	Port           int
	DevMode        bool
	SignalMode     backtest.SignalMode
	BackupSchedule string // Cron spec; empty disables scheduled backups
	// BackupRetentionDays bounds remote backup age; 0 keeps all
	BackupRetentionDays int
	MaintenanceSchedule string // Cron spec for integrity check and WAL checkpoint; empty disables
	Storage             *StorageConfig
}

// StorageConfig holds S3-compatible object storage settings for backups.
type StorageConfig struct {
	Endpoint        string // Custom endpoint (R2, MinIO); empty uses AWS
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string // Key prefix for uploaded archives
}

// Enabled reports whether any storage setting was provided.
func (s *StorageConfig) Enabled() bool {
	return s != nil && (s.Bucket != "" || s.AccessKeyID != "" || s.SecretAccessKey != "")
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("BACKTEST_DATA_DIR", "./data")

	// Always resolve to absolute path
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:             absDataDir,
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		Port:                getEnvAsInt("GO_PORT", 8001),
		DevMode:             getEnvAsBool("DEV_MODE", false),
		SignalMode:          backtest.SignalMode(getEnv("SIGNAL_MODE", string(backtest.SignalLagged20))),
		BackupSchedule:      getEnv("BACKUP_SCHEDULE", ""),
		BackupRetentionDays: getEnvAsInt("BACKUP_RETENTION_DAYS", 30),
		MaintenanceSchedule: getEnv("MAINTENANCE_SCHEDULE", "0 3 * * *"),
		Storage: &StorageConfig{
			Endpoint:        getEnv("S3_ENDPOINT", ""),
			Region:          getEnv("S3_REGION", "auto"),
			Bucket:          getEnv("S3_BUCKET", ""),
			AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
			Prefix:          getEnv("S3_PREFIX", "backtester"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	mode, err := backtest.ParseSignalMode(string(c.SignalMode))
	if err != nil {
		return fmt.Errorf("%w: SIGNAL_MODE: %v", ErrInvalidConfig, err)
	}
	c.SignalMode = mode

	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: GO_PORT %d out of range", ErrInvalidConfig, c.Port)
	}

	if c.BackupSchedule != "" {
		if _, err := cron.ParseStandard(c.BackupSchedule); err != nil {
			return fmt.Errorf("%w: BACKUP_SCHEDULE: %v", ErrInvalidConfig, err)
		}
		if !c.Storage.Enabled() {
			return fmt.Errorf("%w: BACKUP_SCHEDULE requires S3 storage settings", ErrInvalidConfig)
		}
	}

	if c.BackupRetentionDays < 0 {
		return fmt.Errorf("%w: BACKUP_RETENTION_DAYS must not be negative", ErrInvalidConfig)
	}

	if c.MaintenanceSchedule != "" {
		if _, err := cron.ParseStandard(c.MaintenanceSchedule); err != nil {
			return fmt.Errorf("%w: MAINTENANCE_SCHEDULE: %v", ErrInvalidConfig, err)
		}
	}

	// Partial credentials are almost always a typo in .env
	if c.Storage.Enabled() {
		if c.Storage.Bucket == "" || c.Storage.AccessKeyID == "" || c.Storage.SecretAccessKey == "" {
			return fmt.Errorf("%w: S3_BUCKET, S3_ACCESS_KEY_ID and S3_SECRET_ACCESS_KEY must be set together", ErrInvalidConfig)
		}
	}

	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
