package jobs

import "reviewplane/internal/engine"

// Status is the job lifecycle status reported to clients.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusRunning   Status = "running"
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusUnknown   Status = "unknown"
)

// IsTerminal reports whether no further transitions can happen.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// NormalizeState maps an engine run state to a job status.
// Unrecognized states yield StatusUnknown.
func NormalizeState(state engine.RunState) Status {
	switch state {
	case engine.StateQueued, engine.StateScheduled:
		return StatusScheduled
	case engine.StateRunning:
		return StatusRunning
	case engine.StateSuccess:
		return StatusSuccess
	case engine.StateFailed, engine.StateUpForRetry, engine.StateError:
		return StatusFailed
	case engine.StateSkipped, engine.StateTerminated:
		return StatusCancelled
	default:
		return StatusUnknown
	}
}

func defaultMessage(s Status) string {
	switch s {
	case StatusScheduled:
		return "Job is scheduled and waiting to start"
	case StatusRunning:
		return "Job is running"
	case StatusSuccess:
		return "Job completed successfully"
	case StatusFailed:
		return "Job failed"
	case StatusCancelled:
		return "Job was cancelled"
	default:
		return "Job state is unknown"
	}
}
