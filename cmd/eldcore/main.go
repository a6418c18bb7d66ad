package main

import (
	"fmt"
	"os"

	"github.com/fleetyard/eldcore/cmd/eldcore/commands"

	// Embed tzdata so home-terminal timezone resolution works on
	// scratch images without a zoneinfo database.
	_ "time/tzdata"
)

// Build-time variables injected via ldflags
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// Set version info for commands package
	commands.Version = version
	commands.Commit = commit
	commands.Date = date

	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
