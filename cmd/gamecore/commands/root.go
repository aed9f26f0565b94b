// Package commands implements the gamecore operator CLI: small
// inspection commands against a gamecored state database.
package commands

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roasbeef/gamecore/internal/db"
)

var (
	// dbPath is the database file the commands operate on.
	dbPath string
)

// rootCmd is the base command for the gamecore CLI.
var rootCmd = &cobra.Command{
	Use:   "gamecore",
	Short: "Operator CLI for the gamecore daemon",
	Long: `gamecore inspects the persisted state of a gamecored server:
listing state blobs, showing single entries, and reporting version
information.`,
	SilenceUsage: true,
}

func init() {
	defaultPath, err := db.DefaultDBPath()
	if err != nil {
		defaultPath = "gamecore.db"
	}

	rootCmd.PersistentFlags().StringVar(
		&dbPath, "db", defaultPath, "Path to the SQLite database",
	)
}

// openStore opens the state store read-side without running migrations:
// inspection must never mutate a live daemon's schema.
func openStore() (*db.SqliteStateStore, error) {
	return db.NewSqliteStateStore(&db.SqliteConfig{
		DatabaseFileName: dbPath,
		SkipMigrations:   true,
	}, slog.Default())
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
