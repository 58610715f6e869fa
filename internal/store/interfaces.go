package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no record exists for a job id.
var ErrNotFound = errors.New("record not found")

// JobStore persists job submission records.
type JobStore interface {
	// CreateJob inserts the record of a newly accepted batch.
	CreateJob(ctx context.Context, rec *JobRecord) error

	// GetJob returns the record for a job id, or ErrNotFound.
	GetJob(ctx context.Context, jobID string) (*JobRecord, error)

	// GetJobsByIDs returns the records that exist for ids, keyed by job id.
	GetJobsByIDs(ctx context.Context, ids []string) (map[string]*JobRecord, error)

	// ListJobs returns up to limit records, newest first, after skipping offset.
	ListJobs(ctx context.Context, limit, offset int) ([]*JobRecord, error)

	// MarkCancelRequested stamps the time a cancellation was sent to the engine.
	MarkCancelRequested(ctx context.Context, jobID string, at time.Time) error

	// CountJobs returns the number of recorded jobs.
	CountJobs(ctx context.Context) (int64, error)

	// Ping verifies the database is reachable.
	Ping(ctx context.Context) error
}
