package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStepsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "steps",
		Short: "List the available step types",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			for _, t := range a.registry.Types() {
				fmt.Fprintln(cmd.OutOrStdout(), t)
			}
		},
	}
}
