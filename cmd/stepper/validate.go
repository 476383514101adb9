package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newValidateCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <flow.yaml>",
		Short: "Check a flow file without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flow, err := a.loader().LoadAndValidate(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "✓ %s is valid (%d steps, %d enabled)\n", flow.Name, len(flow.Steps), len(flow.EnabledSteps()))
			for _, sc := range flow.Steps {
				rc, err := flow.StepRetry(sc, a.settings.Retry.RetryConfig())
				if err != nil {
					return err
				}
				rc = rc.Normalized()
				state := ""
				if !sc.IsEnabled() {
					state = " (disabled)"
				}
				fmt.Fprintf(out, "  %s [%s] times=%d timeout=%s%s\n", sc.Key, sc.Type, rc.Times, rc.Timeout, state)
			}
			return nil
		},
	}
}
