package commands

import (
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arcline/adsync/errors"
)

// DbCmd represents the db (database) command
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage adsync database",
	Long: `db - Manage adsync database operations

Examples:
  adsync db migrate           # Apply pending schema migrations
  adsync db stats             # Show table counts and engine breakdown`,
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE:  runDbMigrate,
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show database statistics",
	RunE:  runDbStats,
}

func init() {
	DbCmd.AddCommand(dbMigrateCmd)
	DbCmd.AddCommand(dbStatsCmd)
}

func runDbMigrate(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}

	// OpenWithMigrations applies anything pending
	database, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	fmt.Printf("Database %s is up to date\n", cfg.GetDatabasePath())
	return nil
}

func runDbStats(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}

	database, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	fmt.Println("Database Statistics")
	fmt.Printf("Database Path: %s\n\n", cfg.GetDatabasePath())

	tables := []struct {
		label string
		query string
	}{
		{"Credentials", "SELECT COUNT(*) FROM credentials"},
		{"Sync states", "SELECT COUNT(*) FROM sync_state"},
		{"Pipeline connections", "SELECT COUNT(*) FROM pipeline_connections"},
		{"Report rows", "SELECT COUNT(*) FROM report_rows"},
		{"Sync jobs", "SELECT COUNT(*) FROM sync_jobs"},
	}
	for _, tbl := range tables {
		var count int
		if err := database.QueryRow(tbl.query).Scan(&count); err != nil && err != sql.ErrNoRows {
			return errors.Wrapf(err, "failed to count %s", tbl.label)
		}
		fmt.Printf("%-22s %d\n", tbl.label+":", count)
	}

	// Engine breakdown of stored report rows
	rows, err := database.Query(`
		SELECT engine, COUNT(*) FROM report_rows GROUP BY engine ORDER BY engine
	`)
	if err != nil {
		return errors.Wrap(err, "failed to query engine breakdown")
	}
	defer rows.Close()

	fmt.Println("\nReport rows by engine:")
	any := false
	for rows.Next() {
		var engine string
		var count int
		if err := rows.Scan(&engine, &count); err != nil {
			return errors.Wrap(err, "failed to scan engine breakdown")
		}
		fmt.Printf("  %-10s %d\n", engine, count)
		any = true
	}
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, "failed to iterate engine breakdown")
	}
	if !any {
		fmt.Println("  (no report rows)")
	}

	return nil
}
