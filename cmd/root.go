// Package cmd holds the CLI entry points for scrinshotd.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scrinshotd",
		Short: "Recurring screenshot automation service.",
		Long: `scrinshotd captures scheduled screenshots of user-registered pages.
It keeps a per-job artifact history, pauses jobs whose pages stop
resolving, and notifies owners when fresh captures land.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is built-in defaults plus SCRINSHOT_* env)")

	cmd.AddCommand(newServeCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
