// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func freshCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "fresh",
		Short: "Drop every table in the configured schema and reapply all migrations from scratch",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			e, err := NewEngine(ctx)
			if err != nil {
				return err
			}
			defer e.Close()

			report, err := e.Fresh(ctx, yes)
			if err != nil {
				return err
			}

			for _, m := range report.Applied {
				fmt.Printf("applied %s (%s, %dms)\n", m.Script, m.Type, m.ExecutionTimeMs)
			}
			fmt.Printf("%d applied\n", len(report.Applied))
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm the destructive drop-all-tables reset")
	return cmd
}
