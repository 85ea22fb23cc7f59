package main

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"mapgen/internal/copier"
)

func newCopyCommand(ctx *commandContext) *cobra.Command {
	var dryRun bool
	var root string

	cmd := &cobra.Command{
		Use:   "copy",
		Short: "Fan renders and data files out into per-boundary directories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := cfg.RequireCopier(); err != nil {
				return err
			}
			logger, err := ctx.logger(cmd)
			if err != nil {
				return err
			}

			opts := copier.Options{
				Root:     cfg.Copier.Root,
				Discover: cfg.Copier.Discover,
				Source:   cfg.Copier.Source,
				DryRun:   dryRun,
			}
			if root != "" {
				opts.Root = root
			}
			for _, t := range cfg.Copier.Targets {
				opts.Targets = append(opts.Targets, copier.Target{Dir: t.Dir, Ext: t.Ext})
			}

			report, err := copier.Copy(cmd.Context(), opts, logger)
			if err != nil {
				return err
			}
			printCopyReport(cmd, report, dryRun)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "Report what would be copied without writing")
	cmd.Flags().StringVar(&root, "root", "", "Directory the patterns are relative to (overrides copier.root)")
	return cmd
}

type copyKey struct {
	target   string
	boundary string
}

func printCopyReport(cmd *cobra.Command, report *copier.Report, dryRun bool) {
	out := cmd.OutOrStdout()
	if len(report.Boundaries) == 0 {
		fmt.Fprintln(out, "No boundaries discovered; nothing copied")
		return
	}

	type tally struct {
		files, unchanged int
		bytes            int64
	}
	counts := make(map[copyKey]*tally)
	var keys []copyKey
	for _, f := range report.Files {
		k := copyKey{target: f.Target, boundary: f.Boundary}
		t, ok := counts[k]
		if !ok {
			t = &tally{}
			counts[k] = t
			keys = append(keys, k)
		}
		t.files++
		if f.Unchanged {
			t.unchanged++
		} else {
			t.bytes += f.Bytes
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].target != keys[j].target {
			return keys[i].target < keys[j].target
		}
		return keys[i].boundary < keys[j].boundary
	})

	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		t := counts[k]
		rows = append(rows, []string{k.target, k.boundary, strconv.Itoa(t.files), strconv.Itoa(t.unchanged), formatBytes(t.bytes)})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Target", "Boundary", "Files", "Unchanged", "Copied"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight},
	))
	verb := "Copied"
	if dryRun {
		verb = "Would copy"
	}
	fmt.Fprintf(out, "%s %d files (%s) for %d boundaries\n", verb, report.Copied(), formatBytes(report.Bytes()), len(report.Boundaries))
}
