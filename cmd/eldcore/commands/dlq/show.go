package dlq

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/fleetyard/eldcore/internal/cli/output"
	"github.com/fleetyard/eldcore/pkg/eld"
	"github.com/spf13/cobra"
)

var showOutput string

var showCmd = &cobra.Command{
	Use:   "show <entry-id>",
	Short: "Show a dead letter entry with its payload",
	Long: `Show one dead letter entry in full, including the original payload
as the device submitted it.

Examples:
  # Inspect an entry before retrying it
  eldcore dlq show 4f7c...

  # As JSON (for scripting)
  eldcore dlq show 4f7c... -o json`,
	Args: cobra.ExactArgs(1),
	RunE: runShow,
}

func init() {
	showCmd.Flags().StringVarP(&showOutput, "output", "o", "table", "Output format (table|json|yaml)")
}

func runShow(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(showOutput)
	if err != nil {
		return err
	}

	svc, cleanup, err := buildService(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	entry, err := svc.Get(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, entry)
	case output.FormatYAML:
		return output.PrintYAML(os.Stdout, entry)
	default:
		if err := output.SimpleTable(os.Stdout, entryPairs(entry)); err != nil {
			return err
		}
		fmt.Println("\nOriginal payload:")
		fmt.Println(indentPayload(entry.OriginalPayload))
		return nil
	}
}

// entryPairs flattens an entry into key-value rows, skipping fields
// that are empty for its status.
func entryPairs(e *eld.DLQEntry) [][2]string {
	pairs := [][2]string{
		{"ID", e.ID},
		{"Status", string(e.Status)},
		{"Device", e.SourceDeviceID},
		{"Endpoint", e.SourceEndpoint},
		{"Carrier", e.CarrierID},
	}
	if e.BatchIndex != nil {
		pairs = append(pairs, [2]string{"Batch index", strconv.Itoa(*e.BatchIndex)})
	}
	pairs = append(pairs,
		[2]string{"Error code", e.ErrorCode},
		[2]string{"Failure reason", e.FailureReason},
		[2]string{"Retries", strconv.Itoa(e.RetryCount)},
		[2]string{"First failure", e.FirstFailureAt.Local().Format("2006-01-02 15:04:05")},
		[2]string{"Last failure", e.LastFailureAt.Local().Format("2006-01-02 15:04:05")},
	)
	if e.ResolvedBy != "" {
		pairs = append(pairs, [2]string{"Resolved by", e.ResolvedBy})
	}
	if e.ResolvedEventID != nil {
		pairs = append(pairs, [2]string{"Resolved event", *e.ResolvedEventID})
	}
	if e.ResolutionNotes != "" {
		pairs = append(pairs, [2]string{"Notes", e.ResolutionNotes})
	}
	return pairs
}

// indentPayload pretty-prints the stored payload, falling back to the
// raw bytes if they no longer parse.
func indentPayload(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}
