package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/triplexrpc/triplex/cmd/triplexctl/cmdutil"
	"github.com/triplexrpc/triplex/pkg/client"
)

var watchReconnect bool

var watchCmd = &cobra.Command{
	Use:   "watch <command-id>",
	Short: "Watch server push messages for a command",
	Long: `Register a push handler for a command id and print every envelope the
server pushes for it until interrupted.

With --reconnect the client re-establishes dropped connections with
exponential backoff; the handler registration survives reconnects.

Examples:
  # Watch the built-in broadcast feed
  triplexctl watch message.test

  # Keep watching across server restarts
  triplexctl watch message.test --reconnect`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().BoolVar(&watchReconnect, "reconnect", false, "Reconnect with backoff when the connection drops")
}

func runWatch(cmd *cobra.Command, args []string) error {
	commandID := args[0]

	target, err := cmdutil.ResolveTarget(cmdutil.DefaultWSEndpoint)
	if err != nil {
		return err
	}

	var opts []client.Option
	if watchReconnect {
		opts = append(opts,
			client.WithAutoReconnect(0),
			client.OnConnect(func() {
				fmt.Fprintf(os.Stderr, "connected to %s\n", target.Endpoint)
			}),
			client.OnDisconnect(func() {
				fmt.Fprintln(os.Stderr, "connection lost")
			}),
		)
	}

	cl, err := cmdutil.NewClient(target, opts...)
	if err != nil {
		return err
	}
	defer func() { _ = cl.Close() }()

	cl.Register(commandID, nil,
		func(msg any) {
			body, _ := msg.([]byte)
			printPush(commandID, body)
		},
		func(err error) {
			fmt.Fprintf(os.Stderr, "%s error: %v\n", commandID, err)
		},
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cl.Connect(ctx); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Watching %q on %s (Ctrl+C to stop)...\n", commandID, target.Endpoint)
	<-ctx.Done()
	return nil
}

// printPush prints one pushed envelope body with a receive timestamp,
// compacting JSON payloads onto a single line.
func printPush(commandID string, body []byte) {
	ts := time.Now().Format(time.RFC3339)
	if json.Valid(body) {
		fmt.Printf("%s %s %s\n", ts, commandID, compactJSON(body))
		return
	}
	fmt.Printf("%s %s %s\n", ts, commandID, string(body))
}

func compactJSON(data []byte) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		return string(data)
	}
	return buf.String()
}
