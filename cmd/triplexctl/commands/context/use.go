package context

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/triplexrpc/triplex/internal/cli/credentials"
)

var useCmd = &cobra.Command{
	Use:   "use <name>",
	Short: "Switch the current context",
	Long: `Make the named context current. Subsequent commands connect to its
endpoint unless overridden with --endpoint or --context.

Examples:
  triplexctl context use prod`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]

		store, err := credentials.NewStore()
		if err != nil {
			return fmt.Errorf("failed to initialize context store: %w", err)
		}

		switch err := store.UseContext(name); {
		case errors.Is(err, credentials.ErrContextNotFound):
			return fmt.Errorf("context '%s' not found; 'triplexctl context list' shows what is configured", name)
		case err != nil:
			return fmt.Errorf("failed to switch context: %w", err)
		}

		fmt.Printf("Switched to context: %s\n", name)
		return nil
	},
}
