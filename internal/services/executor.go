package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// ErrNoOutput marks a tool that exited cleanly without producing its output.
var ErrNoOutput = errors.New("expected output missing")

// Command describes a single external process invocation.
type Command struct {
	Binary string
	Args   []string
	// Env entries are appended to the parent environment for this process only.
	Env     []string
	Dir     string
	Timeout time.Duration
}

// String renders the command line for logs and error messages.
func (c Command) String() string {
	parts := append([]string{c.Binary}, c.Args...)
	return strings.Join(parts, " ")
}

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, cmd Command) ([]byte, error)
}

// ToolError is the typed failure outcome of an external call.
type ToolError struct {
	Binary   string
	Args     []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ToolError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s", e.Binary)
	if e.ExitCode != 0 {
		fmt.Fprintf(&b, " exited with status %d", e.ExitCode)
	} else if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	} else {
		b.WriteString(" failed")
	}
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		b.WriteString(": ")
		b.WriteString(stderr)
	}
	return b.String()
}

func (e *ToolError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrExternalTool}
	}
	return []error{ErrExternalTool, e.Err}
}

// CommandExecutor runs commands with os/exec and waits for them to finish.
type CommandExecutor struct{}

// Run executes cmd, returning stdout. Any non-zero exit, start failure, or
// timeout is reported as a *ToolError.
func (CommandExecutor) Run(ctx context.Context, cmd Command) ([]byte, error) {
	if strings.TrimSpace(cmd.Binary) == "" {
		return nil, errors.New("command binary required")
	}
	runCtx := ctx
	if cmd.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, cmd.Timeout)
		defer cancel()
	}

	proc := exec.CommandContext(runCtx, cmd.Binary, cmd.Args...) //nolint:gosec
	proc.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		proc.Env = append(os.Environ(), cmd.Env...)
	}
	var stdout, stderr bytes.Buffer
	proc.Stdout = &stdout
	proc.Stderr = &stderr

	if err := proc.Run(); err != nil {
		toolErr := &ToolError{
			Binary: cmd.Binary,
			Args:   append([]string(nil), cmd.Args...),
			Stderr: truncate(stderr.String(), 2048),
			Err:    err,
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			toolErr.ExitCode = exitErr.ExitCode()
		}
		if ctxErr := runCtx.Err(); ctxErr != nil {
			toolErr.Err = fmt.Errorf("%w: %w", ctxErr, err)
		}
		return stdout.Bytes(), toolErr
	}
	return stdout.Bytes(), nil
}

func truncate(value string, limit int) string {
	value = strings.TrimSpace(value)
	if len(value) <= limit {
		return value
	}
	return value[len(value)-limit:]
}

// RequireOutput returns a *ToolError wrapping ErrNoOutput when path is absent
// after cmd reported success.
func RequireOutput(cmd Command, path string) error {
	info, err := os.Stat(path)
	if err == nil && !info.IsDir() {
		return nil
	}
	return &ToolError{
		Binary: cmd.Binary,
		Args:   append([]string(nil), cmd.Args...),
		Err:    fmt.Errorf("%w: %s", ErrNoOutput, path),
	}
}
