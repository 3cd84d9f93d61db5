package context

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/triplexrpc/triplex/internal/cli/credentials"
)

var renameCmd = &cobra.Command{
	Use:   "rename <old> <new>",
	Short: "Rename a context",
	Long: `Rename a stored context. The current-context marker follows the rename.

Examples:
  # Rename staging to stage
  triplexctl context rename staging stage`,
	Args: cobra.ExactArgs(2),
	RunE: runContextRename,
}

func runContextRename(cmd *cobra.Command, args []string) error {
	oldName, newName := args[0], args[1]

	store, err := credentials.NewStore()
	if err != nil {
		return fmt.Errorf("failed to initialize context store: %w", err)
	}

	if _, err := store.GetContext(newName); err == nil {
		return fmt.Errorf("context '%s' already exists", newName)
	}

	if err := store.RenameContext(oldName, newName); err != nil {
		if errors.Is(err, credentials.ErrContextNotFound) {
			return fmt.Errorf("context '%s' not found", oldName)
		}
		return fmt.Errorf("failed to rename context: %w", err)
	}

	fmt.Printf("Context '%s' renamed to '%s'\n", oldName, newName)
	return nil
}
