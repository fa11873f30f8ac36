package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"jdaemon/internal/core"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the conductor version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(core.FormatVersion(core.Version))
		},
	}
}
