package commands

import (
	"io"
	"os"

	"github.com/spf13/cobra"
)

var completionGenerators = map[string]func(*cobra.Command, io.Writer) error{
	"bash": func(c *cobra.Command, w io.Writer) error { return c.GenBashCompletion(w) },
	"zsh":  func(c *cobra.Command, w io.Writer) error { return c.GenZshCompletion(w) },
	"fish": func(c *cobra.Command, w io.Writer) error { return c.GenFishCompletion(w, true) },
	"powershell": func(c *cobra.Command, w io.Writer) error {
		return c.GenPowerShellCompletionWithDesc(w)
	},
}

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion script",
	Long: `Write a completion script for the given shell to stdout.

Typical installation:

  # bash (Linux)
  triplex completion bash > /etc/bash_completion.d/triplex

  # zsh
  triplex completion zsh > "${fpath[1]}/_triplex"

  # fish
  triplex completion fish > ~/.config/fish/completions/triplex.fish

  # powershell
  triplex completion powershell | Out-String | Invoke-Expression

Restart the shell (or re-source its profile) afterwards.`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		return completionGenerators[args[0]](cmd.Root(), os.Stdout)
	},
}
