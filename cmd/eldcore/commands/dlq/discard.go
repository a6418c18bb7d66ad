package dlq

import (
	"errors"
	"fmt"

	"github.com/fleetyard/eldcore/internal/cli/output"
	"github.com/fleetyard/eldcore/internal/cli/prompt"
	"github.com/fleetyard/eldcore/pkg/eld"
	"github.com/spf13/cobra"
)

var (
	discardOperator string
	discardNotes    string
	discardYes      bool
)

var discardCmd = &cobra.Command{
	Use:   "discard <entry-id>",
	Short: "Discard a dead letter entry",
	Long: `Discard a dead letter entry that can never be admitted.

Discarding is terminal: the entry keeps its payload for audit but will
never be replayed. Use this for events from decommissioned devices or
payloads that are malformed beyond repair.

Examples:
  # Discard with a reason
  eldcore dlq discard 4f7c... --operator ops-jane --notes "device decommissioned 2026-08"

  # Skip the confirmation prompt
  eldcore dlq discard 4f7c... --operator ops-jane --notes "corrupt payload" --yes`,
	Args: cobra.ExactArgs(1),
	RunE: runDiscard,
}

func init() {
	discardCmd.Flags().StringVar(&discardOperator, "operator", "", "Operator ID recorded on the discarded entry (required)")
	discardCmd.Flags().StringVar(&discardNotes, "notes", "", "Reason for discarding (required)")
	discardCmd.Flags().BoolVarP(&discardYes, "yes", "y", false, "Skip confirmation prompt")
	_ = discardCmd.MarkFlagRequired("operator")
	_ = discardCmd.MarkFlagRequired("notes")
}

func runDiscard(cmd *cobra.Command, args []string) error {
	id := args[0]

	confirmed, err := prompt.ConfirmWithForce(fmt.Sprintf("Discard dead letter entry %s? This cannot be undone", id), discardYes)
	if err != nil {
		if prompt.IsAborted(err) {
			return nil
		}
		return err
	}
	if !confirmed {
		fmt.Println("Discard cancelled.")
		return nil
	}

	svc, cleanup, err := buildService(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := svc.Discard(cmd.Context(), id, discardOperator, discardNotes); err != nil {
		if errors.Is(err, eld.ErrDLQIllegalTransition) {
			return fmt.Errorf("entry %s is not pending; resolved or discarded entries cannot be discarded again", id)
		}
		return fmt.Errorf("failed to discard entry: %w", err)
	}

	output.DefaultPrinter().Success(fmt.Sprintf("Entry %s discarded.", id))
	return nil
}
