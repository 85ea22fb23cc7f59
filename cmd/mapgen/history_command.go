package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"mapgen/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List recent runs, or the steps of one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withHistory(func(store *history.Store) error {
				if len(args) == 1 {
					return showRun(cmd, store, args[0])
				}
				return listRuns(cmd, store, limit)
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to list (0 for all)")
	return cmd
}

func listRuns(cmd *cobra.Command, store *history.Store, limit int) error {
	runs, err := store.ListRuns(cmd.Context(), limit)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded")
		return nil
	}
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			shortID(r.ID),
			r.Dataset,
			statusLabel(out, string(r.Status)),
			humanize.Time(r.StartedAt),
			formatDuration(r.Duration()),
			strconv.Itoa(r.Boundaries),
			strconv.Itoa(r.Fields),
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"ID", "Dataset", "Status", "Started", "Duration", "Boundaries", "Fields"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight},
	))
	return nil
}

func showRun(cmd *cobra.Command, store *history.Store, id string) error {
	run, err := store.GetRun(cmd.Context(), id)
	if errors.Is(err, history.ErrNotFound) {
		return fmt.Errorf("no run matches %q", id)
	}
	if err != nil {
		return err
	}
	steps, err := store.Steps(cmd.Context(), run.ID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run:      %s\n", run.ID)
	fmt.Fprintf(out, "Dataset:  %s\n", run.Dataset)
	fmt.Fprintf(out, "Status:   %s\n", statusLabel(out, string(run.Status)))
	fmt.Fprintf(out, "Started:  %s\n", formatTime(run.StartedAt))
	fmt.Fprintf(out, "Duration: %s\n", formatDuration(run.Duration()))
	if run.ConfigPath != "" {
		fmt.Fprintf(out, "Config:   %s\n", run.ConfigPath)
	}
	if run.OutputDir != "" {
		fmt.Fprintf(out, "Output:   %s\n", run.OutputDir)
	}
	if run.Error != "" {
		fmt.Fprintf(out, "Error:    %s\n", run.Error)
	}
	fmt.Fprintln(out)

	rows := make([][]string, 0, len(steps))
	for _, s := range steps {
		detail := s.Command
		if s.Error != "" {
			detail = s.Error
		}
		rows = append(rows, []string{
			s.Stage,
			dash(s.Boundary),
			dash(s.Field),
			statusLabel(out, string(s.Status)),
			formatDuration(s.Duration),
			detail,
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Stage", "Boundary", "Field", "Status", "Duration", "Command / error"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	))
	return nil
}

func dash(value string) string {
	if value == "" {
		return "-"
	}
	return value
}
