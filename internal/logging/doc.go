// Package logging assembles structured slog loggers and formatting helpers used
// across mapgen.
//
// It owns the console/JSON handlers, level and output plumbing, and
// context-aware helpers so pipeline code can tag log lines with the run id,
// stage, boundary and field being processed. Each pipeline run additionally
// tees its log stream into a JSON file under the state directory; old run logs
// are pruned by age. A no-op logger is provided for tests.
package logging
