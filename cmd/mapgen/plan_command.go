package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"mapgen/internal/pipeline"
)

func newPlanCommand(ctx *commandContext) *cobra.Command {
	var showPaths bool

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the boundaries, extents, and outputs a run would produce",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			driver, err := pipeline.New(cfg)
			if err != nil {
				return err
			}
			m, err := driver.Plan(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Dataset: %s\nOutput:  %s\nMapfile: %s\n\n", m.Dataset, m.BaseDir, m.MapFile)

			rows := make([][]string, 0, len(m.Boundaries))
			for _, b := range m.Boundaries {
				fields := make([]string, 0, len(b.Fields))
				for _, f := range b.Fields {
					fields = append(fields, f.Name)
				}
				rows = append(rows, []string{b.ID, b.SourceExtent.String(), b.Extent.String(), strings.Join(fields, ", ")})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Boundary", "Source extent", "Clip extent", "Fields"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft},
			))

			if showPaths {
				fmt.Fprintln(out)
				for _, path := range m.Paths() {
					fmt.Fprintln(out, path)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showPaths, "paths", false, "List every output path")
	return cmd
}
