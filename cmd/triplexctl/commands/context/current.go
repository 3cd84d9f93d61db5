package context

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/triplexrpc/triplex/cmd/triplexctl/cmdutil"
	"github.com/triplexrpc/triplex/internal/cli/credentials"
	"github.com/triplexrpc/triplex/internal/cli/output"
)

var currentCmd = &cobra.Command{
	Use:   "current",
	Short: "Show the current context",
	Long: `Show the context subsequent commands will use.

Examples:
  triplexctl context current
  triplexctl context current --output json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := credentials.NewStore()
		if err != nil {
			return fmt.Errorf("failed to initialize context store: %w", err)
		}

		name := store.GetCurrentContextName()
		if name == "" {
			return fmt.Errorf("no current context set\n\n" +
				"Create one first:\n" +
				"  triplexctl context set dev --endpoint ws://localhost:5000/ws")
		}
		ctx, err := store.GetContext(name)
		if err != nil {
			return fmt.Errorf("failed to get context: %w", err)
		}
		info := describeContext(name, true, ctx)

		format, err := cmdutil.GetOutputFormatParsed()
		if err != nil {
			return err
		}
		switch format {
		case output.FormatJSON:
			return output.PrintJSON(os.Stdout, info)
		case output.FormatYAML:
			return output.PrintYAML(os.Stdout, info)
		default:
			fmt.Printf("Current context: %s\n", info.Name)
			fmt.Printf("  Endpoint: %s\n", info.Endpoint)
			fmt.Printf("  Token:    %s\n", cmdutil.BoolToYesNo(info.HasToken))
			fmt.Printf("  KCP key:  %s\n", cmdutil.BoolToYesNo(info.HasKey))
			return nil
		}
	},
}
