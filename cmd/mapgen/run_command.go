package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mapgen/internal/history"
	"mapgen/internal/pipeline"
	"mapgen/internal/preflight"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var workers int
	var interpolate bool
	var skipPreflight bool
	var noHistory bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full map generation pipeline",
		Long: "Normalize the source table, clip it to every boundary, rasterize each field and its " +
			"significance, assemble the map configuration, and render one image per boundary and field.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("workers") {
				if workers < 1 {
					return fmt.Errorf("--workers must be at least 1")
				}
				cfg.Pipeline.Workers = workers
			}
			if cmd.Flags().Changed("interpolate") {
				cfg.Render.Interpolate = interpolate
			}
			if !skipPreflight {
				if err := preflight.Err(preflight.RunAll(cmd.Context(), cfg)); err != nil {
					return fmt.Errorf("%w (run `mapgen doctor` for details)", err)
				}
			}

			logger, err := ctx.logger(cmd)
			if err != nil {
				return err
			}
			opts := []pipeline.Option{
				pipeline.WithLogger(logger),
				pipeline.WithConfigPath(ctx.configPath),
				pipeline.WithExecutor(ctx.executor),
			}

			execute := func() error {
				driver, err := pipeline.New(cfg, opts...)
				if err != nil {
					return err
				}
				result, err := driver.Run(cmd.Context())
				if err != nil {
					if result != nil && result.LogPath != "" {
						return fmt.Errorf("%w\nrun log: %s", err, result.LogPath)
					}
					return err
				}
				printRunSummary(cmd, result)
				return nil
			}
			if noHistory {
				return execute()
			}
			return ctx.withHistory(func(store *history.Store) error {
				opts = append(opts, pipeline.WithJournal(store))
				return execute()
			})
		},
	}

	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "Boundaries processed concurrently (overrides pipeline.workers)")
	cmd.Flags().BoolVar(&interpolate, "interpolate", false, "Render resampled rasters (overrides render.interpolate)")
	cmd.Flags().BoolVar(&skipPreflight, "skip-preflight", false, "Do not check tools and directories before running")
	cmd.Flags().BoolVar(&noHistory, "no-history", false, "Do not record the run in the history database")
	return cmd
}

func printRunSummary(cmd *cobra.Command, result *pipeline.Result) {
	out := cmd.OutOrStdout()
	m := result.Manifest
	fmt.Fprintf(out, "Run %s %s in %s\n", shortID(result.RunID), statusLabel(out, "succeeded"), formatDuration(result.Duration))
	fmt.Fprintf(out, "Dataset:    %s\n", m.Dataset)
	fmt.Fprintf(out, "Output:     %s\n", m.BaseDir)
	fmt.Fprintf(out, "Boundaries: %d\n", len(m.Boundaries))
	fmt.Fprintf(out, "Rows:       %d\n", result.Rows)
	fmt.Fprintf(out, "Renders:    %d\n", len(result.Renders))
	for _, path := range result.Renders {
		fmt.Fprintf(out, "  %s\n", path)
	}
	if result.LogPath != "" {
		fmt.Fprintf(out, "Run log:    %s\n", result.LogPath)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
