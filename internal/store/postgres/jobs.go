package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"reviewplane/internal/store"
)

var _ store.JobStore = (*Store)(nil)

const jobColumns = "job_id, items, wait_minutes, start_time, scheduled_time, created_at, cancel_requested_at"

// CreateJob inserts a new job row. Items are stored as a JSON array.
func (s *Store) CreateJob(ctx context.Context, rec *store.JobRecord) error {
	query := `
		INSERT INTO jobs (job_id, items, wait_minutes, start_time, scheduled_time, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	itemsJSON, err := json.Marshal(rec.Items)
	if err != nil {
		return fmt.Errorf("failed to encode items: %w", err)
	}

	_, err = s.db.ExecContext(ctx, query,
		rec.JobID,
		itemsJSON,
		rec.WaitMinutes,
		rec.StartTime,
		rec.ScheduledTime,
		rec.CreatedAt,
	)
	return err
}

// GetJob returns the record for a job id.
func (s *Store) GetJob(ctx context.Context, jobID string) (*store.JobRecord, error) {
	query := "SELECT " + jobColumns + " FROM jobs WHERE job_id = $1"

	rec, err := scanJob(s.db.QueryRowContext(ctx, query, jobID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// GetJobsByIDs fetches a page of records in one round trip.
func (s *Store) GetJobsByIDs(ctx context.Context, ids []string) (map[string]*store.JobRecord, error) {
	out := make(map[string]*store.JobRecord, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	query := "SELECT " + jobColumns + " FROM jobs WHERE job_id = ANY($1)"
	rows, err := s.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		rec, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out[rec.JobID] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListJobs pages records newest first. job_id breaks created_at ties so pages do not overlap.
func (s *Store) ListJobs(ctx context.Context, limit, offset int) ([]*store.JobRecord, error) {
	query := "SELECT " + jobColumns + " FROM jobs ORDER BY created_at DESC, job_id DESC LIMIT $1 OFFSET $2"
	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*store.JobRecord, 0, limit)
	for rows.Next() {
		rec, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// MarkCancelRequested records the first cancellation time. Later calls keep the original stamp.
func (s *Store) MarkCancelRequested(ctx context.Context, jobID string, at time.Time) error {
	query := `
		UPDATE jobs
		SET cancel_requested_at = COALESCE(cancel_requested_at, $2)
		WHERE job_id = $1
	`
	res, err := s.db.ExecContext(ctx, query, jobID, at)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// CountJobs returns the number of recorded jobs.
func (s *Store) CountJobs(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM jobs").Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*store.JobRecord, error) {
	var (
		rec       store.JobRecord
		itemsJSON []byte
		startTime sql.NullTime
		cancelAt  sql.NullTime
	)
	if err := row.Scan(
		&rec.JobID, &itemsJSON, &rec.WaitMinutes, &startTime,
		&rec.ScheduledTime, &rec.CreatedAt, &cancelAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(itemsJSON, &rec.Items); err != nil {
		return nil, fmt.Errorf("failed to decode items of %s: %w", rec.JobID, err)
	}
	if startTime.Valid {
		t := startTime.Time
		rec.StartTime = &t
	}
	if cancelAt.Valid {
		t := cancelAt.Time
		rec.CancelRequestedAt = &t
	}
	return &rec, nil
}
