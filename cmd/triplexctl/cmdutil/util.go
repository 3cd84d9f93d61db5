// Package cmdutil provides shared utilities for triplexctl commands.
package cmdutil

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/triplexrpc/triplex/internal/cli/credentials"
	"github.com/triplexrpc/triplex/internal/cli/output"
	"github.com/triplexrpc/triplex/pkg/client"
)

// Flags stores global flag values accessible by subcommands.
var Flags = &GlobalFlags{}

// GlobalFlags holds the global flag values.
type GlobalFlags struct {
	Endpoint string
	Token    string
	KCPKey   string
	Context  string
	Output   string
	Timeout  time.Duration
}

// Default endpoints per transport, matching the server scaffold ports.
const (
	DefaultWSEndpoint  = "ws://localhost:5000/ws"
	DefaultTCPEndpoint = "tcp://localhost:5003"
	DefaultKCPEndpoint = "kcp://localhost:5004"
)

// DefaultEndpointFor returns the default endpoint for a transport name.
func DefaultEndpointFor(transport string) (string, error) {
	switch transport {
	case "ws", "websocket":
		return DefaultWSEndpoint, nil
	case "tcp":
		return DefaultTCPEndpoint, nil
	case "kcp":
		return DefaultKCPEndpoint, nil
	default:
		return "", fmt.Errorf("unknown transport %q (expected ws, tcp or kcp)", transport)
	}
}

// ResolveTarget returns the endpoint, token and KCP key for this invocation.
// Explicit flags win, then the selected (or current) stored context, then
// the fallback endpoint. An empty fallback means an endpoint is required.
func ResolveTarget(fallback string) (credentials.Context, error) {
	target := credentials.Context{
		Endpoint: Flags.Endpoint,
		Token:    Flags.Token,
		KCPKey:   Flags.KCPKey,
	}

	stored, err := storedContext()
	if err != nil {
		return target, err
	}
	if stored != nil {
		if target.Endpoint == "" {
			target.Endpoint = stored.Endpoint
		}
		if target.Token == "" {
			target.Token = stored.Token
		}
		if target.KCPKey == "" {
			target.KCPKey = stored.KCPKey
		}
	}

	if target.Endpoint == "" {
		target.Endpoint = fallback
	}
	if target.Endpoint == "" {
		return target, errors.New("no endpoint configured; use --endpoint or 'triplexctl context set'")
	}
	return target, nil
}

// storedContext loads the named or current context. A missing current
// context is not an error (flags and fallbacks may still apply); a missing
// named one is.
func storedContext() (*credentials.Context, error) {
	store, err := credentials.NewStore()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize context store: %w", err)
	}

	if Flags.Context != "" {
		ctx, err := store.GetContext(Flags.Context)
		if err != nil {
			return nil, fmt.Errorf("context '%s' not found\n\nList available contexts:\n  triplexctl context list", Flags.Context)
		}
		return ctx, nil
	}

	ctx, err := store.GetCurrentContext()
	if err != nil {
		return nil, nil
	}
	return ctx, nil
}

// NewClient builds a client for the resolved target, applying the global
// timeout and credentials plus any command-specific options.
func NewClient(target credentials.Context, extra ...client.Option) (*client.Client, error) {
	var opts []client.Option
	if Flags.Timeout > 0 {
		opts = append(opts, client.WithRequestTimeout(Flags.Timeout))
	}
	if target.Token != "" {
		opts = append(opts, client.WithToken(target.Token))
	}
	if target.KCPKey != "" {
		opts = append(opts, client.WithKCPKey(target.KCPKey))
	}
	opts = append(opts, extra...)
	return client.New(target.Endpoint, opts...)
}

// GetOutputFormatParsed resolves the output format: the --output flag when
// given, the stored default_output preference otherwise, table as the
// final fallback.
func GetOutputFormatParsed() (output.Format, error) {
	raw := Flags.Output
	if raw == "" {
		if store, err := credentials.NewStore(); err == nil {
			raw = store.GetPreferences().DefaultOutput
		}
	}
	return output.ParseFormat(raw)
}

// PrintOutput prints data in the specified format (JSON, YAML, or table).
// For table format, it displays emptyMsg if data is empty, otherwise uses
// the tableRenderer.
func PrintOutput(w io.Writer, data any, isEmpty bool, emptyMsg string, tableRenderer output.TableRenderer) error {
	format, err := GetOutputFormatParsed()
	if err != nil {
		return err
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(w, data)
	case output.FormatYAML:
		return output.PrintYAML(w, data)
	default:
		if isEmpty {
			_, _ = fmt.Fprintln(w, emptyMsg)
			return nil
		}
		return output.PrintTable(w, tableRenderer)
	}
}

// BoolToYesNo converts a boolean to "yes" or "no" string.
func BoolToYesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// EmptyOr returns the value if not empty, otherwise returns the fallback.
// Useful for table display where empty fields should show "-".
func EmptyOr(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
