package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mapgen/internal/preflight"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check external tools and directories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			results := preflight.RunAll(cmd.Context(), cfg)
			out := cmd.OutOrStdout()

			rows := make([][]string, 0, len(results))
			for _, r := range results {
				status := "ok"
				switch {
				case !r.Passed && r.Optional:
					status = "optional"
				case !r.Passed:
					status = "missing"
				}
				rows = append(rows, []string{r.Name, statusLabel(out, status), r.Detail})
			}
			fmt.Fprintln(out, renderTable([]string{"Check", "Status", "Detail"}, rows, nil))

			if err := preflight.Err(results); err != nil {
				return err
			}
			fmt.Fprintln(out, "All required checks passed")
			return nil
		},
	}
}
