package dlq

import (
	"errors"
	"fmt"

	"github.com/fleetyard/eldcore/internal/cli/output"
	"github.com/fleetyard/eldcore/pkg/eld"
	"github.com/spf13/cobra"
)

var (
	retryOperator string
	retryAll      bool
	retryLimit    int
)

var retryCmd = &cobra.Command{
	Use:   "retry [entry-id]",
	Short: "Replay dead letter entries through the pipeline",
	Long: `Replay a dead letter entry through the full ingestion pipeline.

The entry's original payload is re-validated, re-sequenced, and
re-chained exactly as if the device had just submitted it. Entries that
fail again return to pending with the new failure reason.

Examples:
  # Retry a single entry
  eldcore dlq retry 4f7c... --operator ops-jane

  # Redrive the whole pending backlog (up to --limit entries)
  eldcore dlq retry --all --operator ops-jane --limit 200`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRetry,
}

func init() {
	retryCmd.Flags().StringVar(&retryOperator, "operator", "", "Operator ID recorded on resolved entries (required)")
	retryCmd.Flags().BoolVar(&retryAll, "all", false, "Redrive all pending entries")
	retryCmd.Flags().IntVar(&retryLimit, "limit", 100, "Maximum entries to redrive with --all")
	_ = retryCmd.MarkFlagRequired("operator")
}

func runRetry(cmd *cobra.Command, args []string) error {
	if retryAll == (len(args) == 1) {
		return errors.New("specify either an entry ID or --all")
	}

	svc, cleanup, err := buildService(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	printer := output.DefaultPrinter()

	if retryAll {
		report, err := svc.RetryPending(cmd.Context(), retryOperator, retryLimit)
		if err != nil {
			return fmt.Errorf("redrive failed: %w", err)
		}
		printer.Printf("Redrive complete: %d attempted, %d resolved, %d failed\n",
			report.Attempted, report.Resolved, report.Failed)
		if report.Failed > 0 {
			printer.Warning("Failed entries returned to pending with updated failure reasons.")
		}
		return nil
	}

	res, err := svc.Retry(cmd.Context(), args[0], retryOperator)
	if err != nil {
		if errors.Is(err, eld.ErrDLQIllegalTransition) {
			return fmt.Errorf("entry %s is not pending; only pending entries can be retried", args[0])
		}
		if eld.AsError(err).Code == eld.CodeNotFound {
			return err
		}
		printer.Error(fmt.Sprintf("Entry failed again: %v", err))
		printer.Println("The entry returned to pending with the updated failure reason.")
		return nil
	}

	printer.Success(fmt.Sprintf("Entry resolved: event %s admitted with sequence ID %d on log date %s",
		res.EventID, res.SequenceID, res.LogDate))
	return nil
}
