// Package config implements the config subcommands for inspecting and
// validating eldcore configuration.
package config

import (
	"github.com/spf13/cobra"
)

// Cmd is the parent command for configuration management.
var Cmd = &cobra.Command{
	Use:   "config",
	Short: "Manage eldcore configuration",
	Long:  `Inspect, validate, and generate schema for the eldcore configuration file.`,
}

func init() {
	Cmd.AddCommand(showCmd)
	Cmd.AddCommand(validateCmd)
	Cmd.AddCommand(schemaCmd)
}
