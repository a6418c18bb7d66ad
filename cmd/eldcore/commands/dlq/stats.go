package dlq

import (
	"fmt"
	"os"
	"strconv"

	"github.com/fleetyard/eldcore/internal/cli/output"
	"github.com/spf13/cobra"
)

var statsOutput string

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show dead letter queue depth",
	Long: `Show dead letter queue depth broken down by status.

Examples:
  # Show queue depth
  eldcore dlq stats

  # As JSON (for scripting)
  eldcore dlq stats -o json`,
	RunE: runStats,
}

func init() {
	statsCmd.Flags().StringVarP(&statsOutput, "output", "o", "table", "Output format (table|json|yaml)")
}

func runStats(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(statsOutput)
	if err != nil {
		return err
	}

	svc, cleanup, err := buildService(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	stats, err := svc.Stats(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to read dead letter stats: %w", err)
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, stats)
	case output.FormatYAML:
		return output.PrintYAML(os.Stdout, stats)
	default:
		table := output.NewTableData("STATUS", "COUNT")
		table.AddRow("pending", strconv.Itoa(stats.Pending))
		table.AddRow("retrying", strconv.Itoa(stats.Retrying))
		table.AddRow("resolved", strconv.Itoa(stats.Resolved))
		table.AddRow("discarded", strconv.Itoa(stats.Discarded))
		table.AddRow("total", strconv.Itoa(stats.Total))
		if err := output.PrintTable(os.Stdout, table); err != nil {
			return err
		}
		if stats.AlertThresholdExceeded {
			output.DefaultPrinter().Warning("\nPending backlog exceeds the configured alert threshold.")
		}
		return nil
	}
}
