package context

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/triplexrpc/triplex/internal/cli/credentials"
	"github.com/triplexrpc/triplex/internal/cli/prompt"
)

var deleteForce bool

var deleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a context",
	Long: `Delete a server context.

If the deleted context was current, no context is current afterwards.

Examples:
  # Delete with confirmation
  triplexctl context delete old-server

  # Delete without confirmation
  triplexctl context delete old-server --force`,
	Args: cobra.ExactArgs(1),
	RunE: runContextDelete,
}

func init() {
	deleteCmd.Flags().BoolVarP(&deleteForce, "force", "f", false, "Delete without confirmation")
}

func runContextDelete(cmd *cobra.Command, args []string) error {
	contextName := args[0]

	store, err := credentials.NewStore()
	if err != nil {
		return fmt.Errorf("failed to initialize context store: %w", err)
	}

	confirmed, err := prompt.ConfirmWithForce(fmt.Sprintf("Delete context '%s'?", contextName), deleteForce)
	if err != nil {
		if prompt.IsAborted(err) {
			fmt.Println("\nAborted.")
			return nil
		}
		return err
	}
	if !confirmed {
		fmt.Println("Aborted.")
		return nil
	}

	if err := store.DeleteContext(contextName); err != nil {
		if errors.Is(err, credentials.ErrContextNotFound) {
			return fmt.Errorf("context '%s' not found", contextName)
		}
		return fmt.Errorf("failed to delete context: %w", err)
	}

	fmt.Printf("Context '%s' deleted\n", contextName)
	return nil
}
