// Package commands implements the lifekit-demo CLI.
package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "lifekit-demo",
		Short: "Component-scoped task lifecycle demo",
		Long: `lifekit-demo mounts a product page whose price component ticks while it is
visible. The price component is mounted and unmounted on a schedule; every unmount
tears down its scope, so no tick survives it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "config file (yaml, toml or json)")
	root.AddCommand(newRunCmd(), newVersionCmd())
	root.CompletionOptions.DisableDefaultCmd = true
	return root
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
