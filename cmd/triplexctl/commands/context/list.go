package context

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/triplexrpc/triplex/cmd/triplexctl/cmdutil"
	"github.com/triplexrpc/triplex/internal/cli/credentials"
)

// ContextInfo is the output row for a stored context. Credentials are
// reported as booleans; the secrets themselves never leave the store.
type ContextInfo struct {
	Name     string `json:"name" yaml:"name"`
	Current  bool   `json:"current" yaml:"current"`
	Endpoint string `json:"endpoint" yaml:"endpoint"`
	HasToken bool   `json:"has_token" yaml:"has_token"`
	HasKey   bool   `json:"has_kcp_key" yaml:"has_kcp_key"`
}

func describeContext(name string, current bool, ctx *credentials.Context) ContextInfo {
	return ContextInfo{
		Name:     name,
		Current:  current,
		Endpoint: ctx.Endpoint,
		HasToken: ctx.Token != "",
		HasKey:   ctx.KCPKey != "",
	}
}

// ContextList renders stored contexts as a table.
type ContextList []ContextInfo

func (cl ContextList) Headers() []string {
	return []string{"", "NAME", "ENDPOINT", "TOKEN", "KCP KEY"}
}

func (cl ContextList) Rows() [][]string {
	rows := make([][]string, 0, len(cl))
	for _, c := range cl {
		marker := ""
		if c.Current {
			marker = "*"
		}
		rows = append(rows, []string{marker, c.Name, c.Endpoint, cmdutil.BoolToYesNo(c.HasToken), cmdutil.BoolToYesNo(c.HasKey)})
	}
	return rows
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured contexts",
	Long: `List every stored context with its endpoint and which credentials it
carries. The current context is marked with an asterisk.

Examples:
  triplexctl context list
  triplexctl context list -o json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := credentials.NewStore()
		if err != nil {
			return fmt.Errorf("failed to initialize context store: %w", err)
		}

		names := store.ListContexts()
		sort.Strings(names)
		current := store.GetCurrentContextName()

		contexts := make(ContextList, 0, len(names))
		for _, name := range names {
			ctx, err := store.GetContext(name)
			if err != nil {
				continue
			}
			contexts = append(contexts, describeContext(name, name == current, ctx))
		}

		return cmdutil.PrintOutput(os.Stdout, contexts, len(contexts) == 0,
			"No contexts configured. Use 'triplexctl context set <name> --endpoint <url>' to create one.", contexts)
	},
}
