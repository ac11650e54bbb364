// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/schemalane/schemalane/pkg/drift"
	"github.com/schemalane/schemalane/pkg/engine"
)

func statusCmd() *cobra.Command {
	var failOnPending bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report the state of every discovered migration against recorded history",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			e, err := NewEngine(ctx)
			if err != nil {
				return err
			}
			defer e.Close()

			report, err := e.Status(ctx)
			if err != nil {
				return err
			}

			fmt.Print(drift.FormatStatusTable(report))

			if failOnPending {
				return engine.FailOnPending(report)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&failOnPending, "fail-on-pending", false, "Exit non-zero if any migration is pending")
	return cmd
}
