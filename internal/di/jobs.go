package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/backtester/internal/config"
	"github.com/aristath/backtester/internal/scheduler"
)

// RegisterJobs creates the scheduler and registers the configured jobs.
// The scheduler is not started.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) error {
	sched := scheduler.New(log)

	if cfg.BackupSchedule != "" {
		job := scheduler.NewBackupJob(container.BackupService, cfg.BackupRetentionDays, log)
		if err := sched.AddJob(cfg.BackupSchedule, job); err != nil {
			return fmt.Errorf("failed to register backup job: %w", err)
		}
	}

	if cfg.MaintenanceSchedule != "" {
		dbs := make([]scheduler.MaintainedDB, 0, 2)
		for _, db := range container.Databases() {
			dbs = append(dbs, db)
		}
		job := scheduler.NewMaintenanceJob(dbs, log)
		if err := sched.AddJob(cfg.MaintenanceSchedule, job); err != nil {
			return fmt.Errorf("failed to register maintenance job: %w", err)
		}
	}

	container.Scheduler = sched
	return nil
}
