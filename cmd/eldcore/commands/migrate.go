package commands

import (
	"context"
	"fmt"

	"github.com/fleetyard/eldcore/internal/logger"
	"github.com/fleetyard/eldcore/pkg/config"
	"github.com/fleetyard/eldcore/pkg/store"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	Long: `Run database migrations for the event store.

This command applies pending schema migrations to the configured event
store (SQLite or PostgreSQL). It is required after upgrading eldcore when
schema changes have been made.

Examples:
  # Run migrations with default config
  eldcore migrate

  # Run migrations with custom config
  eldcore migrate --config /etc/eldcore/config.yaml`,
	RunE: runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	// Initialize the structured logger
	if err := InitLogger(cfg); err != nil {
		return err
	}

	logger.Info("Running database migrations", "type", cfg.Database.Type)

	// Opening the store triggers auto-migration
	ctx := context.Background()
	st, err := store.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	defer func() { _ = st.Close() }()

	// Verify the migration worked by querying the dead letter table
	if _, err := st.DLQStats(ctx, 0); err != nil {
		return fmt.Errorf("migration verification failed: %w", err)
	}

	fmt.Printf("Migrations completed successfully (database type: %s)\n", cfg.Database.Type)
	return nil
}
