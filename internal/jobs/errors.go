package jobs

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed client input. Never retried.
	ErrValidation = errors.New("validation error")
	// ErrEngineUnavailable marks an engine failure that persisted through retries.
	ErrEngineUnavailable = errors.New("engine unavailable")
	// ErrNotFound is returned for job ids the engine does not know.
	ErrNotFound = errors.New("job not found")
	// ErrAlreadyTerminal is returned when cancelling a job that already finished.
	ErrAlreadyTerminal = errors.New("job already terminal")
	// ErrDuplicateJob is returned when the engine already holds a run with the generated id.
	ErrDuplicateJob = errors.New("duplicate job id")
)

// Validation failure reasons.
const (
	ReasonEmptyBatch  = "empty batch"
	ReasonInvalidItem = "invalid item"
	ReasonInvalidWait = "invalid wait"
	ReasonPastStart   = "start_time in the past"
	ReasonInvalidPage = "invalid page"
)

// ValidationError describes why a batch was rejected.
type ValidationError struct {
	Reason string
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("ValidationError: %s", e.Reason)
	}
	return fmt.Sprintf("ValidationError: %s: %s", e.Reason, e.Detail)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(reason, format string, args ...any) error {
	return &ValidationError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}
