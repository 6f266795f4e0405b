package di

import (
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/aristath/backtester/internal/config"
	"github.com/aristath/backtester/internal/database"
)

// InitializeDatabases opens both databases and applies their schemas
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	// history.db - dated observation panels, rewritten on every import
	historyDB, err := openDatabase(cfg.DataDir, database.NameHistory, database.ProfileStandard)
	if err != nil {
		return nil, err
	}
	container.HistoryDB = historyDB

	// backtests.db - archived runs, append-mostly
	backtestsDB, err := openDatabase(cfg.DataDir, database.NameBacktests, database.ProfileLedger)
	if err != nil {
		historyDB.Close()
		return nil, err
	}
	container.BacktestsDB = backtestsDB

	log.Info().Str("data_dir", cfg.DataDir).Msg("Databases initialized")
	return container, nil
}

func openDatabase(dataDir, name string, profile database.DatabaseProfile) (*database.DB, error) {
	db, err := database.New(database.Config{
		Path:    filepath.Join(dataDir, name+".db"),
		Profile: profile,
		Name:    name,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s database: %w", name, err)
	}

	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate %s database: %w", name, err)
	}

	return db, nil
}
