package dlq

import (
	"fmt"
	"os"
	"strconv"

	"github.com/fleetyard/eldcore/internal/cli/output"
	"github.com/fleetyard/eldcore/pkg/eld"
	"github.com/spf13/cobra"
)

var (
	listStatus string
	listLimit  int
	listOffset int
	listOutput string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List dead letter entries",
	Long: `List entries in the dead letter queue.

Examples:
  # List pending entries as a table
  eldcore dlq list

  # List discarded entries
  eldcore dlq list --status discarded

  # Page through a large backlog
  eldcore dlq list --limit 20 --offset 40

  # List as JSON
  eldcore dlq list -o json`,
	RunE: runList,
}

func init() {
	listCmd.Flags().StringVar(&listStatus, "status", string(eld.DLQPending), "Filter by status (pending|retrying|resolved|discarded)")
	listCmd.Flags().IntVar(&listLimit, "limit", 50, "Maximum entries to list")
	listCmd.Flags().IntVar(&listOffset, "offset", 0, "Entries to skip")
	listCmd.Flags().StringVarP(&listOutput, "output", "o", "table", "Output format (table|json|yaml)")
}

// EntryList is a list of dead letter entries for table rendering.
type EntryList []*eld.DLQEntry

// Headers implements TableRenderer.
func (el EntryList) Headers() []string {
	return []string{"ID", "STATUS", "DEVICE", "ENDPOINT", "CODE", "RETRIES", "LAST FAILURE", "REASON"}
}

// Rows implements TableRenderer.
func (el EntryList) Rows() [][]string {
	rows := make([][]string, 0, len(el))
	for _, e := range el {
		code := e.ErrorCode
		if code == "" {
			code = "-"
		}
		rows = append(rows, []string{
			e.ID,
			string(e.Status),
			e.SourceDeviceID,
			e.SourceEndpoint,
			code,
			strconv.Itoa(e.RetryCount),
			e.LastFailureAt.Local().Format("2006-01-02 15:04:05"),
			truncate(e.FailureReason, 40),
		})
	}
	return rows
}

func runList(cmd *cobra.Command, args []string) error {
	status := eld.DLQStatus(listStatus)
	if !status.IsValid() {
		return fmt.Errorf("invalid status %q (valid: pending, retrying, resolved, discarded)", listStatus)
	}

	format, err := output.ParseFormat(listOutput)
	if err != nil {
		return err
	}

	svc, cleanup, err := buildService(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	entries, err := svc.List(cmd.Context(), status, listLimit, listOffset)
	if err != nil {
		return fmt.Errorf("failed to list dead letter entries: %w", err)
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, entries)
	case output.FormatYAML:
		return output.PrintYAML(os.Stdout, entries)
	default:
		if len(entries) == 0 {
			fmt.Printf("No %s entries in the dead letter queue.\n", status)
			return nil
		}
		return output.PrintTable(os.Stdout, EntryList(entries))
	}
}
