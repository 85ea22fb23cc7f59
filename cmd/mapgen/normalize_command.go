package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"mapgen/internal/lonfix"
)

func newNormalizeCommand(ctx *commandContext) *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "normalize [input]",
		Short: "Rewrite 0..360 longitudes in a CSV to -180..180",
		Long: "Stream the CSV row by row and replace every longitude of 180 or more with its " +
			"-180..180 equivalent. Other cells are written unchanged. The input defaults to " +
			"source.path and the output to <input>_normalized.csv.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			in := cfg.Source.Path
			if len(args) == 1 {
				in = args[0]
			}
			if strings.TrimSpace(in) == "" {
				return fmt.Errorf("no input: pass a path or set source.path")
			}
			out := strings.TrimSpace(outPath)
			if out == "" {
				out = strings.TrimSuffix(in, filepath.Ext(in)) + "_normalized.csv"
			}
			if filepath.Clean(out) == filepath.Clean(in) {
				return fmt.Errorf("output %s would overwrite the input", out)
			}

			rows, err := lonfix.NormalizeFile(cmd.Context(), in, out, lonfix.Options{
				LonColumn: cfg.Source.LonColumn,
				Encoding:  cfg.Source.Encoding,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Normalized %d rows into %s\n", rows, out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Destination CSV")
	return cmd
}
