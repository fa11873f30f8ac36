// Command julia-daemon is the jdaemon conductor: it accepts client
// connections over a Unix socket, keeps a pool of warm worker processes
// keyed by project path, and dispatches each client to the worker that
// will serve it. See SPEC_FULL.md §4.4.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"jdaemon/internal/core"
)

func newRootCommand() *cobra.Command {
	var verbose int

	rootCmd := &cobra.Command{
		Use:   "julia-daemon",
		Short: "jdaemon conductor",
		Long:  "jdaemon conductor: manages warm worker processes for juliaclient.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			core.SetupLogging(verbose)
			return nil
		},
	}
	rootCmd.PersistentFlags().CountVarP(&verbose, "verbose", "v", "more output, repeat for even more")

	rootCmd.AddCommand(
		newServeCommand(),
		newVersionCommand(),
		newWorkerShimCommand(),
	)
	return rootCmd
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
