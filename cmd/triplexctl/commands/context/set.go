package context

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/triplexrpc/triplex/internal/cli/credentials"
	"github.com/triplexrpc/triplex/internal/cli/prompt"
)

var (
	setEndpoint string
	setToken    string
	setKCPKey   string
)

var setCmd = &cobra.Command{
	Use:   "set <name>",
	Short: "Create or update a context",
	Long: `Create or update a named server context.

The first context created becomes the current context automatically.
When --endpoint is omitted the command prompts for the connection
details interactively.

Examples:
  # Store a local development server
  triplexctl context set dev --endpoint ws://localhost:5000/ws

  # Store a production server with credentials
  triplexctl context set prod --endpoint wss://rpc.example.com/ws --token $TOKEN

  # Store a KCP endpoint with its pre-shared key
  triplexctl context set edge --endpoint kcp://10.0.0.5:5004 --kcp-key secret

  # Prompt for endpoint and credentials
  triplexctl context set staging`,
	Args: cobra.ExactArgs(1),
	RunE: runContextSet,
}

func init() {
	setCmd.Flags().StringVar(&setEndpoint, "endpoint", "", "Server endpoint (ws://, tcp:// or kcp:// URL)")
	setCmd.Flags().StringVar(&setToken, "token", "", "Bearer token for WebSocket endpoints")
	setCmd.Flags().StringVar(&setKCPKey, "kcp-key", "", "Pre-shared encryption key for kcp:// endpoints")
}

func runContextSet(cmd *cobra.Command, args []string) error {
	name := args[0]

	store, err := credentials.NewStore()
	if err != nil {
		return fmt.Errorf("failed to initialize context store: %w", err)
	}

	ctx, err := contextFromFlags()
	if err != nil {
		if prompt.IsAborted(err) {
			fmt.Println("\nAborted.")
			return nil
		}
		return err
	}

	if err := store.SetContext(name, ctx); err != nil {
		return fmt.Errorf("failed to save context: %w", err)
	}

	fmt.Printf("Context '%s' saved (%s)\n", name, ctx.Endpoint)
	if store.GetCurrentContextName() == name {
		fmt.Printf("Current context: %s\n", name)
	}
	return nil
}

// contextFromFlags builds the context from flags, prompting for anything
// the flags leave out when --endpoint was not given.
func contextFromFlags() (*credentials.Context, error) {
	ctx := &credentials.Context{
		Endpoint: setEndpoint,
		Token:    setToken,
		KCPKey:   setKCPKey,
	}
	if ctx.Endpoint != "" {
		return ctx, nil
	}

	endpoint, err := prompt.InputRequired("Endpoint (ws://, tcp:// or kcp:// URL)")
	if err != nil {
		return nil, err
	}
	ctx.Endpoint = endpoint

	if strings.HasPrefix(endpoint, "kcp://") {
		if ctx.KCPKey == "" {
			if ctx.KCPKey, err = prompt.Secret("KCP pre-shared key (Enter to skip)"); err != nil {
				return nil, err
			}
		}
		return ctx, nil
	}

	if ctx.Token == "" {
		if ctx.Token, err = prompt.Secret("Bearer token (Enter to skip)"); err != nil {
			return nil, err
		}
	}
	return ctx, nil
}
