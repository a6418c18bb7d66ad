package config

import (
	"fmt"

	"github.com/fleetyard/eldcore/pkg/config"
	"github.com/fleetyard/eldcore/pkg/idempotency"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the eldcore configuration file.

Checks for syntax errors, missing required fields, and invalid values.

Examples:
  # Validate default config
  eldcore config validate

  # Validate specific config file
  eldcore config validate --config /etc/eldcore/config.yaml`,
	RunE: runConfigValidate,
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	// Get config path from parent's persistent flag
	configPath, _ := cmd.Flags().GetString("config")

	// Load and validate configuration
	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return err
	}

	// Determine path for display
	displayPath := configPath
	if displayPath == "" {
		displayPath = config.GetDefaultConfigPath()
	}

	// Additional validation checks
	var warnings []string

	// Check JWT secret is configured
	if !cfg.API.HasJWTSecret() {
		warnings = append(warnings, "JWT secret not configured - the server will refuse to start")
	}

	// In-memory replay protection resets on restart
	if cfg.Idempotency.Backend == "" || cfg.Idempotency.Backend == "memory" {
		warnings = append(warnings, fmt.Sprintf("idempotency backend is in-memory - duplicate suppression does not survive restarts (completed keys are kept %s)", idempotency.DefaultCompletedTTL))
	}

	// Print results
	fmt.Printf("Configuration file: %s\n", displayPath)
	fmt.Println("Validation: OK")

	if len(warnings) > 0 {
		fmt.Println("\nWarnings:")
		for _, w := range warnings {
			fmt.Printf("  - %s\n", w)
		}
	}

	fmt.Printf("\nConfiguration summary:\n")
	fmt.Printf("  Database type:       %s\n", cfg.Database.Type)
	fmt.Printf("  API port:            %d\n", cfg.API.Port)
	fmt.Printf("  Idempotency backend: %s\n", cfg.Idempotency.Backend)
	fmt.Printf("  Log level:           %s\n", cfg.Logging.Level)

	return nil
}
