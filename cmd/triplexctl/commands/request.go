package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/triplexrpc/triplex/cmd/triplexctl/cmdutil"
	"github.com/triplexrpc/triplex/pkg/client"
)

var (
	requestCommand string
	requestData    string
)

var requestCmd = &cobra.Command{
	Use:   "request",
	Short: "Send one correlated request",
	Long: `Send a single request and print the reply body.

The payload given with --data is sent as JSON when it parses as JSON,
verbatim otherwise. Remote handler errors are reported with their reason
and a non-zero exit code.

Examples:
  # Call the built-in echo command
  triplexctl request --command echo --data '{"hello":"world"}'

  # Call ping directly
  triplexctl request --command ping --data '{"message":"hi"}'

  # Against a raw TCP endpoint
  triplexctl request --endpoint tcp://localhost:5003 --command ping --data '{}'`,
	RunE: runRequest,
}

func init() {
	requestCmd.Flags().StringVarP(&requestCommand, "command", "c", "", "Command id to invoke (required)")
	requestCmd.Flags().StringVarP(&requestData, "data", "d", "", "Request payload (JSON or raw text)")
	_ = requestCmd.MarkFlagRequired("command")
}

func runRequest(cmd *cobra.Command, args []string) error {
	target, err := cmdutil.ResolveTarget(cmdutil.DefaultWSEndpoint)
	if err != nil {
		return err
	}

	cl, err := cmdutil.NewClient(target)
	if err != nil {
		return err
	}
	defer func() { _ = cl.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cl.Connect(ctx); err != nil {
		return err
	}

	var body any
	if requestData != "" {
		if json.Valid([]byte(requestData)) {
			body = json.RawMessage(requestData)
		} else {
			body = requestData
		}
	}

	reply, err := cl.SendRequest(ctx, requestCommand, body)
	if err != nil {
		var remote *client.RemoteError
		if errors.As(err, &remote) {
			return fmt.Errorf("remote error: %s", remote.Reason)
		}
		return err
	}

	printBody(reply.Data)
	return nil
}

// printBody pretty-prints JSON payloads and passes everything else through.
func printBody(data []byte) {
	if len(data) == 0 {
		fmt.Println("(empty reply)")
		return
	}
	if json.Valid(data) {
		var buf bytes.Buffer
		if err := json.Indent(&buf, data, "", "  "); err == nil {
			fmt.Println(buf.String())
			return
		}
	}
	fmt.Println(string(data))
}
