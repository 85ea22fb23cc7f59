package pipeline

import (
	"context"
	"log/slog"
	"time"

	"mapgen/internal/history"
	"mapgen/internal/logging"
	"mapgen/internal/services"
)

// Journal records runs and their steps. *history.Store satisfies it.
type Journal interface {
	StartRun(ctx context.Context, info history.RunInfo) (*history.Run, error)
	RecordStep(ctx context.Context, step history.Step) error
	FinishRun(ctx context.Context, id string, boundaries, fields int, runErr error) error
}

// journalExecutor logs and journals every external command using the stage,
// boundary and field carried on the context.
type journalExecutor struct {
	next    services.Executor
	journal Journal
	logger  *slog.Logger
}

func (e *journalExecutor) Run(ctx context.Context, cmd services.Command) ([]byte, error) {
	logger := logging.WithContext(ctx, e.logger)
	logger.Debug("tool started", logging.String("command", cmd.String()))
	if len(cmd.Env) > 0 {
		logger.Debug("tool environment", logging.Any("env", cmd.Env))
	}

	start := time.Now()
	out, err := e.next.Run(ctx, cmd)
	elapsed := time.Since(start)

	if err != nil {
		logger.Debug("tool failed", logging.String("command", cmd.String()), logging.Duration("elapsed", elapsed), logging.Error(err))
	} else {
		logger.Debug("tool finished", logging.String("command", cmd.String()), logging.Duration("elapsed", elapsed))
	}
	e.record(ctx, cmd.String(), start, elapsed, err)
	return out, err
}

func (e *journalExecutor) record(ctx context.Context, command string, start time.Time, elapsed time.Duration, err error) {
	if e.journal == nil {
		return
	}
	runID, ok := services.RunIDFromContext(ctx)
	if !ok {
		return
	}
	stage, _ := services.StageFromContext(ctx)
	boundary, _ := services.BoundaryFromContext(ctx)
	field, _ := services.FieldFromContext(ctx)
	step := history.Step{
		RunID:     runID,
		Stage:     stage,
		Boundary:  boundary,
		Field:     field,
		Command:   command,
		Status:    history.StatusSucceeded,
		StartedAt: start.UTC(),
		Duration:  elapsed,
	}
	if err != nil {
		step.Status = history.StatusFailed
		step.Error = err.Error()
	}
	// Failed steps are recorded even after the run context is cancelled.
	if recErr := e.journal.RecordStep(context.WithoutCancel(ctx), step); recErr != nil {
		logging.WithContext(ctx, e.logger).Warn("journal step failed", logging.Error(recErr))
	}
}
