// Package di provides dependency injection wiring and initialization.
//
// The Container holds every long-lived dependency of the application and is
// the single source of truth for handlers, jobs and entry points.
package di

import (
	"errors"

	"github.com/aristath/backtester/internal/database"
	"github.com/aristath/backtester/internal/modules/backtest"
	backtesthandlers "github.com/aristath/backtester/internal/modules/backtest/handlers"
	"github.com/aristath/backtester/internal/modules/history"
	"github.com/aristath/backtester/internal/modules/runs"
	"github.com/aristath/backtester/internal/observability"
	"github.com/aristath/backtester/internal/reliability"
	"github.com/aristath/backtester/internal/scheduler"
)

// Container holds all application dependencies
type Container struct {
	// Databases
	HistoryDB   *database.DB // price and market cap panels
	BacktestsDB *database.DB // archived runs

	// Repositories
	HistoryRepo *history.Repository
	RunRepo     *runs.Repository

	// Services
	Metrics         *observability.Metrics
	BacktestService *backtest.Service
	ObjectStore     reliability.ObjectStore // nil when storage is not configured
	BackupService   *reliability.BackupService

	// HTTP
	BacktestHandler *backtesthandlers.Handler

	// Jobs
	Scheduler *scheduler.Scheduler
}

// Databases returns the open databases in a stable order
func (c *Container) Databases() []*database.DB {
	var dbs []*database.DB
	for _, db := range []*database.DB{c.HistoryDB, c.BacktestsDB} {
		if db != nil {
			dbs = append(dbs, db)
		}
	}
	return dbs
}

// Close closes every open database
func (c *Container) Close() error {
	var errs []error
	for _, db := range c.Databases() {
		if err := db.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
