package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a run id matches nothing.
var ErrNotFound = errors.New("run not found")

// Store manages the run journal backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond

	// timeLayout has a fixed-width fraction so stored timestamps sort as text.
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// Open initializes or connects to the journal database at path.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("history database path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// StartRun opens a run row in the running state.
func (s *Store) StartRun(ctx context.Context, info RunInfo) (*Run, error) {
	run := &Run{
		ID:         uuid.NewString(),
		Dataset:    info.Dataset,
		ConfigPath: info.ConfigPath,
		OutputDir:  info.OutputDir,
		Status:     StatusRunning,
		StartedAt:  time.Now().UTC(),
	}
	err := s.exec(ctx,
		`INSERT INTO runs (id, dataset, config_path, output_dir, status, started_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.Dataset, nullableString(run.ConfigPath), nullableString(run.OutputDir),
		run.Status, formatTime(run.StartedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

// RecordStep appends a step to its run.
func (s *Store) RecordStep(ctx context.Context, step Step) error {
	if step.RunID == "" {
		return errors.New("step run id required")
	}
	if step.StartedAt.IsZero() {
		step.StartedAt = time.Now().UTC()
	}
	err := s.exec(ctx,
		`INSERT INTO steps (run_id, stage, boundary, field, command, status, error, started_at, duration_ms)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		step.RunID, step.Stage, nullableString(step.Boundary), nullableString(step.Field),
		nullableString(step.Command), step.Status, nullableString(step.Error),
		formatTime(step.StartedAt), step.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("insert step: %w", err)
	}
	return nil
}

// FinishRun closes a run with its counts and outcome. A nil runErr marks it
// succeeded.
func (s *Store) FinishRun(ctx context.Context, id string, boundaries, fields int, runErr error) error {
	status, message := StatusSucceeded, ""
	if runErr != nil {
		status, message = StatusFailed, runErr.Error()
	}
	err := s.exec(ctx,
		`UPDATE runs SET status = ?, error = ?, boundaries = ?, fields = ?, finished_at = ? WHERE id = ?`,
		status, nullableString(message), boundaries, fields, formatTime(time.Now().UTC()), id,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs first. A limit <= 0 returns all runs.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT id, dataset, config_path, output_dir, status, error, boundaries, fields, started_at, finished_at
              FROM runs ORDER BY started_at DESC, id`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// GetRun returns the run whose id equals or uniquely starts with id.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrNotFound
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, dataset, config_path, output_dir, status, error, boundaries, fields, started_at, finished_at
         FROM runs WHERE id = ? OR id LIKE ? ORDER BY id LIMIT 2`,
		id, id+"%",
	)
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	defer rows.Close()

	var matches []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		if run.ID == id {
			return run, nil
		}
		matches = append(matches, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("run id prefix %q is ambiguous", id)
	}
}

// Steps returns the steps of a run in the order they were recorded.
func (s *Store) Steps(ctx context.Context, runID string) ([]Step, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, stage, boundary, field, command, status, error, started_at, duration_ms
         FROM steps WHERE run_id = ? ORDER BY id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	defer rows.Close()

	var steps []Step
	for rows.Next() {
		var (
			step                                Step
			boundary, field, command, errorText sql.NullString
			startedAt                           string
			durationMS                          int64
		)
		if err := rows.Scan(&step.ID, &step.RunID, &step.Stage, &boundary, &field, &command,
			&step.Status, &errorText, &startedAt, &durationMS); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		step.Boundary = boundary.String
		step.Field = field.String
		step.Command = command.String
		step.Error = errorText.String
		step.StartedAt, _ = parseTime(startedAt)
		step.Duration = time.Duration(durationMS) * time.Millisecond
		steps = append(steps, step)
	}
	return steps, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var (
		run                              Run
		configPath, outputDir, errorText sql.NullString
		startedAt                        string
		finishedAt                       sql.NullString
	)
	if err := row.Scan(&run.ID, &run.Dataset, &configPath, &outputDir, &run.Status, &errorText,
		&run.Boundaries, &run.Fields, &startedAt, &finishedAt); err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}
	run.ConfigPath = configPath.String
	run.OutputDir = outputDir.String
	run.Error = errorText.String
	run.StartedAt, _ = parseTime(startedAt)
	if finishedAt.Valid {
		if t, err := parseTime(finishedAt.String); err == nil {
			run.FinishedAt = &t
		}
	}
	return &run, nil
}

func (s *Store) exec(ctx context.Context, query string, args ...any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	})
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	return time.Parse(time.RFC3339Nano, value)
}
