package history

import "time"

// Status is the outcome of a run or step.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Run is one invocation of the pipeline.
type Run struct {
	ID         string
	Dataset    string
	ConfigPath string
	OutputDir  string
	Status     Status
	Error      string
	Boundaries int
	Fields     int
	StartedAt  time.Time
	FinishedAt *time.Time
}

// Duration reports how long the run took, or zero while it is still open.
func (r Run) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Step is one unit of work inside a run, usually a single tool invocation.
type Step struct {
	ID        int64
	RunID     string
	Stage     string
	Boundary  string
	Field     string
	Command   string
	Status    Status
	Error     string
	StartedAt time.Time
	Duration  time.Duration
}

// RunInfo describes a run being opened.
type RunInfo struct {
	Dataset    string
	ConfigPath string
	OutputDir  string
}
