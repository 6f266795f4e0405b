package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/backtester/internal/database"
	"github.com/aristath/backtester/internal/reliability"
)

const (
	backupTimeout      = 30 * time.Minute
	maintenanceTimeout = 10 * time.Minute

	// vacuumFreelistRatio is the share of free pages above which a database is vacuumed
	vacuumFreelistRatio = 0.2
)

// Backuper is the subset of reliability.BackupService used by BackupJob
type Backuper interface {
	CreateAndUploadBackup(ctx context.Context) (*reliability.BackupResult, error)
	RotateOldBackups(ctx context.Context, retentionDays int) (int, error)
}

// BackupJob uploads a snapshot of every database and rotates old archives
type BackupJob struct {
	backups       Backuper
	retentionDays int
	log           zerolog.Logger
}

// NewBackupJob creates a new BackupJob
func NewBackupJob(backups Backuper, retentionDays int, log zerolog.Logger) *BackupJob {
	return &BackupJob{
		backups:       backups,
		retentionDays: retentionDays,
		log:           log.With().Str("job", "backup").Logger(),
	}
}

// Name returns the job name
func (j *BackupJob) Name() string {
	return "backup"
}

// Run executes the backup job. Rotation failures are logged, not returned.
func (j *BackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), backupTimeout)
	defer cancel()

	result, err := j.backups.CreateAndUploadBackup(ctx)
	if err != nil {
		return fmt.Errorf("backup failed: %w", err)
	}
	j.log.Info().Str("key", result.Key).Int64("size_bytes", result.SizeBytes).Msg("Backup uploaded")

	if _, err := j.backups.RotateOldBackups(ctx, j.retentionDays); err != nil {
		j.log.Warn().Err(err).Msg("Backup rotation failed")
	}
	return nil
}

// MaintainedDB is a database the maintenance job can check and compact
type MaintainedDB interface {
	Name() string
	HealthCheck(ctx context.Context) error
	WALCheckpoint(mode string) error
	GetStats() (*database.Stats, error)
	Vacuum() error
}

// MaintenanceJob checks integrity, truncates the WAL and vacuums fragmented databases
type MaintenanceJob struct {
	databases []MaintainedDB
	log       zerolog.Logger
}

// NewMaintenanceJob creates a new MaintenanceJob
func NewMaintenanceJob(databases []MaintainedDB, log zerolog.Logger) *MaintenanceJob {
	return &MaintenanceJob{
		databases: databases,
		log:       log.With().Str("job", "maintenance").Logger(),
	}
}

// Name returns the job name
func (j *MaintenanceJob) Name() string {
	return "maintenance"
}

// Run executes the maintenance job. Integrity failures are returned after every
// database has been visited; checkpoint and vacuum failures are only logged.
func (j *MaintenanceJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), maintenanceTimeout)
	defer cancel()

	start := time.Now()
	var errs []error

	for _, db := range j.databases {
		if err := db.HealthCheck(ctx); err != nil {
			j.log.Error().Err(err).Str("database", db.Name()).Msg("Integrity check failed")
			errs = append(errs, err)
			continue
		}

		if err := db.WALCheckpoint("TRUNCATE"); err != nil {
			j.log.Warn().Err(err).Str("database", db.Name()).Msg("WAL checkpoint failed")
		}

		stats, err := db.GetStats()
		if err != nil {
			j.log.Warn().Err(err).Str("database", db.Name()).Msg("Failed to read database stats")
			continue
		}
		if stats.PageCount == 0 || float64(stats.FreelistCount)/float64(stats.PageCount) < vacuumFreelistRatio {
			continue
		}

		sizeBefore := stats.PageCount * stats.PageSize
		if err := db.Vacuum(); err != nil {
			j.log.Warn().Err(err).Str("database", db.Name()).Msg("VACUUM failed")
			continue
		}
		j.log.Info().
			Str("database", db.Name()).
			Int64("size_before_bytes", sizeBefore).
			Msg("VACUUM completed")
	}

	j.log.Info().Dur("duration_ms", time.Since(start)).Msg("Maintenance completed")
	return errors.Join(errs...)
}
