// Package dlq implements the dead letter queue subcommands for operator
// triage: listing parked events, replaying them through the pipeline,
// and discarding malformed ones.
package dlq

import (
	"fmt"

	"github.com/fleetyard/eldcore/pkg/config"
	"github.com/fleetyard/eldcore/pkg/dlq"
	"github.com/fleetyard/eldcore/pkg/eld/validation"
	"github.com/fleetyard/eldcore/pkg/fleet"
	"github.com/fleetyard/eldcore/pkg/ingest"
	"github.com/fleetyard/eldcore/pkg/retry"
	"github.com/fleetyard/eldcore/pkg/sequence"
	"github.com/fleetyard/eldcore/pkg/store"
	"github.com/spf13/cobra"
)

// Cmd is the parent command for dead letter queue management.
var Cmd = &cobra.Command{
	Use:   "dlq",
	Short: "Manage the dead letter queue",
	Long: `Inspect and work the dead letter queue.

Events that fail validation on the batch or sync endpoints are parked
here with their original payload. Operators can list parked entries,
replay them through the full ingestion pipeline after fixing the upstream
cause, or discard entries that can never be admitted.`,
}

func init() {
	Cmd.AddCommand(listCmd)
	Cmd.AddCommand(showCmd)
	Cmd.AddCommand(retryCmd)
	Cmd.AddCommand(discardCmd)
	Cmd.AddCommand(statsCmd)
}

// buildService loads configuration and assembles the dead letter service
// over a freshly opened store. Retry replays entries through the full
// pipeline, so the whole ingestion graph is wired even for read-only
// subcommands. The returned cleanup closes the store.
func buildService(cmd *cobra.Command) (*dlq.Service, func(), error) {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return nil, nil, err
	}

	st, err := store.New(&cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open event store: %w", err)
	}

	directory := fleet.NewDirectory(st)
	pipeline := ingest.New(st, validation.New(directory), sequence.New(st), directory, retry.Policy{
		MaxAttempts: cfg.Ingest.Retry.MaxAttempts,
		BaseDelay:   cfg.Ingest.Retry.BaseDelay,
		MaxDelay:    cfg.Ingest.Retry.MaxDelay,
	})
	svc := dlq.New(st, pipeline, cfg.Ingest.DLQAlertThreshold)

	return svc, func() { _ = st.Close() }, nil
}

// truncate shortens long failure reasons for table cells.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
