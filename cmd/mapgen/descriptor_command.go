package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"mapgen/internal/vrt"
)

func newDescriptorCommand(ctx *commandContext) *cobra.Command {
	var outPath string
	var csvName string

	cmd := &cobra.Command{
		Use:   "descriptor",
		Short: "Write the point-layer descriptor for the source CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := cfg.RequirePipeline(); err != nil {
				return err
			}
			dataset := cfg.DatasetName()
			out := strings.TrimSpace(outPath)
			if out == "" {
				out = filepath.Join(cfg.OutputDir(), "temp", dataset+".vrt")
			}
			name := strings.TrimSpace(csvName)
			if name == "" {
				name = dataset + ".csv"
			}

			columns := make([]vrt.Column, 0, len(cfg.Source.Fields))
			for _, f := range cfg.Source.Fields {
				columns = append(columns, vrt.Column{Data: f.Data, Significance: f.Significance, Type: f.Type})
			}
			doc := vrt.Build(dataset, name, cfg.Source.LonColumn, cfg.Source.LatColumn, columns)
			if err := vrt.Write(out, doc); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote descriptor %s (layer %s, %d fields)\n", out, dataset, len(columns))
			return nil
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Destination descriptor path (default <output>/temp/<dataset>.vrt)")
	cmd.Flags().StringVar(&csvName, "csv", "", "CSV file name referenced relative to the descriptor")
	return cmd
}
