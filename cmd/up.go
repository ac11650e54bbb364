// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func upCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply every outstanding migration, holding the advisory lock for the run",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			e, err := NewEngine(ctx)
			if err != nil {
				return err
			}
			defer e.Close()

			report, err := e.Up(ctx)
			if err != nil {
				return err
			}

			for _, m := range report.Applied {
				fmt.Printf("applied %s (%s, %dms)\n", m.Script, m.Type, m.ExecutionTimeMs)
			}
			fmt.Printf("%d applied, %d already up to date\n", len(report.Applied), report.Skipped)
			return nil
		},
	}
}
