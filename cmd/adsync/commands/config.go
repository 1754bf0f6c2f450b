package commands

import (
	"database/sql"

	"github.com/spf13/cobra"

	"github.com/arcline/adsync/config"
	"github.com/arcline/adsync/db"
	"github.com/arcline/adsync/errors"
	"github.com/arcline/adsync/logger"
)

// loadConfig loads configuration, honoring the global --config flag when
// set.
func loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	configPath, _ := cmd.Flags().GetString("config")
	if configPath != "" {
		cfg, err := config.LoadFromFile(configPath)
		return cfg, configPath, err
	}
	cfg, err := config.Load()
	return cfg, "", err
}

// openDatabase opens the configured database with migrations applied
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	database, err := db.OpenWithMigrations(cfg.GetDatabasePath(), logger.Logger)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database %s", cfg.GetDatabasePath())
	}
	return database, nil
}
