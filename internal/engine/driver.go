// Package engine defines the narrow capability the orchestration core needs from
// a durable workflow engine. Concrete adapters live in sub-packages.
package engine

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrRunNotFound is returned when the engine has no run with the given id.
	ErrRunNotFound = errors.New("run not found")
	// ErrRunExists is returned when a run with the same id already exists.
	ErrRunExists = errors.New("run already exists")
	// ErrUnavailable is returned when the engine cannot be reached or fails a call.
	ErrUnavailable = errors.New("engine unavailable")
)

// RunState is the engine-native state of a run. Values outside the known
// set are passed through verbatim by adapters.
type RunState string

const (
	StateQueued     RunState = "queued"
	StateScheduled  RunState = "scheduled"
	StateRunning    RunState = "running"
	StateSuccess    RunState = "success"
	StateFailed     RunState = "failed"
	StateUpForRetry RunState = "up_for_retry"
	StateError      RunState = "error"
	StateSkipped    RunState = "skipped"
	StateTerminated RunState = "terminated"
)

// String returns the state name.
func (s RunState) String() string { return string(s) }

// RunRequest asks the engine to create one run of a template.
type RunRequest struct {
	RunID    string
	Template string
	Params   any
	// StartAt delays the first step. Nil or a past instant starts immediately.
	StartAt *time.Time
}

// Run is the engine's view of one run.
type Run struct {
	RunID     string
	State     RunState
	CreatedAt time.Time
	StartedAt *time.Time
	EndedAt   *time.Time
	Message   string
}

// Driver is implemented by workflow engine adapters.
type Driver interface {
	CreateRun(ctx context.Context, req RunRequest) (*Run, error)
	GetRun(ctx context.Context, runID string) (*Run, error)
	// ListRuns returns runs of the configured template, most recent first.
	ListRuns(ctx context.Context, limit, offset int) ([]Run, error)
	// TerminateRun stops a run. Terminating an already closed run is an adapter error.
	TerminateRun(ctx context.Context, runID, reason string) error
	Ping(ctx context.Context) error
}
