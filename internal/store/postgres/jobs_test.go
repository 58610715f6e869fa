package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"reviewplane/internal/store"

	"github.com/DATA-DOG/go-sqlmock"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	return &Store{db: db}, mock
}

var jobRowColumns = []string{
	"job_id", "items", "wait_minutes", "start_time", "scheduled_time", "created_at", "cancel_requested_at",
}

func TestCreateJob_Success(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	now := time.Now().UTC()
	rec := &store.JobRecord{
		JobID:         "shoe_review_20250301_120000_abcd1234",
		Items:         []store.Item{{Name: "Nike Air Jordan 1", MaxResults: 5}},
		WaitMinutes:   10,
		ScheduledTime: now,
		CreatedAt:     now,
	}

	mock.ExpectExec(`INSERT INTO jobs`).
		WithArgs(rec.JobID, []byte(`[{"name":"Nike Air Jordan 1","max_results":5}]`), 10, sqlmock.AnyArg(), now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.CreateJob(context.Background(), rec); err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestCreateJob_DBError(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectExec(`INSERT INTO jobs`).WillReturnError(errors.New("duplicate key"))

	err := s.CreateJob(context.Background(), &store.JobRecord{JobID: "j"})
	if err == nil {
		t.Error("expected error, got nil")
	}
}

func TestGetJob_Success(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	created := time.Now().Add(-time.Hour).UTC()
	start := created.Add(30 * time.Minute)

	mock.ExpectQuery(`SELECT job_id, items, wait_minutes, start_time, scheduled_time, created_at, cancel_requested_at FROM jobs WHERE job_id = \$1`).
		WithArgs("job-1").
		WillReturnRows(sqlmock.NewRows(jobRowColumns).AddRow(
			"job-1", []byte(`[{"name":"Adidas Ultraboost","max_results":3},{"name":"Nike Pegasus","max_results":5}]`),
			0, start, start, created, nil,
		))

	rec, err := s.GetJob(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if rec.JobID != "job-1" {
		t.Errorf("got JobID %v, want job-1", rec.JobID)
	}
	if len(rec.Items) != 2 || rec.Items[0].Name != "Adidas Ultraboost" || rec.Items[0].MaxResults != 3 {
		t.Errorf("unexpected items: %+v", rec.Items)
	}
	if rec.StartTime == nil || !rec.StartTime.Equal(start) {
		t.Errorf("got StartTime %v, want %v", rec.StartTime, start)
	}
	if rec.CancelRequestedAt != nil {
		t.Errorf("expected nil CancelRequestedAt, got %v", rec.CancelRequestedAt)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestGetJob_NotFound(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectQuery(`SELECT .* FROM jobs WHERE job_id = \$1`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := s.GetJob(context.Background(), "missing")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected store.ErrNotFound, got %v", err)
	}
}

func TestGetJob_CorruptItems(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	now := time.Now()
	mock.ExpectQuery(`SELECT .* FROM jobs WHERE job_id = \$1`).
		WithArgs("job-1").
		WillReturnRows(sqlmock.NewRows(jobRowColumns).AddRow(
			"job-1", []byte(`not json`), 10, nil, now, now, nil,
		))

	if _, err := s.GetJob(context.Background(), "job-1"); err == nil {
		t.Error("expected decode error, got nil")
	}
}

func TestGetJobsByIDs(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	now := time.Now()
	mock.ExpectQuery(`SELECT .* FROM jobs WHERE job_id = ANY\(\$1\)`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(jobRowColumns).
			AddRow("a", []byte(`[{"name":"A","max_results":1}]`), 10, nil, now, now, nil).
			AddRow("c", []byte(`[{"name":"C","max_results":2}]`), 5, nil, now, now, now))

	recs, err := s.GetJobsByIDs(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("GetJobsByIDs failed: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if recs["c"].CancelRequestedAt == nil {
		t.Error("expected CancelRequestedAt on c")
	}
	if _, ok := recs["b"]; ok {
		t.Error("did not expect a record for b")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestGetJobsByIDs_EmptySkipsQuery(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	recs, err := s.GetJobsByIDs(context.Background(), nil)
	if err != nil {
		t.Fatalf("GetJobsByIDs failed: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("expected empty map, got %d", len(recs))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unexpected database calls: %v", err)
	}
}

func TestListJobs_NewestFirst(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	older := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	newer := older.Add(time.Minute)

	mock.ExpectQuery(`SELECT .* FROM jobs ORDER BY created_at DESC, job_id DESC LIMIT \$1 OFFSET \$2`).
		WithArgs(2, 4).
		WillReturnRows(sqlmock.NewRows(jobRowColumns).
			AddRow("job-new", []byte(`[{"name":"Nike Pegasus","max_results":5}]`), 10, nil, newer, newer, nil).
			AddRow("job-old", []byte(`[{"name":"Asics Novablast","max_results":5}]`), 10, nil, older, older, nil))

	recs, err := s.ListJobs(context.Background(), 2, 4)
	if err != nil {
		t.Fatalf("ListJobs failed: %v", err)
	}
	if len(recs) != 2 || recs[0].JobID != "job-new" || recs[1].JobID != "job-old" {
		t.Fatalf("unexpected records: %+v", recs)
	}
	if recs[1].Items[0].Name != "Asics Novablast" {
		t.Errorf("items not decoded: %+v", recs[1].Items)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestListJobs_DBError(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectQuery(`SELECT .* FROM jobs ORDER BY`).WillReturnError(errors.New("connection reset"))

	if _, err := s.ListJobs(context.Background(), 20, 0); err == nil {
		t.Error("expected error, got nil")
	}
}

func TestMarkCancelRequested(t *testing.T) {
	tests := []struct {
		name     string
		affected int64
		wantErr  error
	}{
		{"marked", 1, nil},
		{"unknown job", 0, store.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newMockStore(t)
			defer s.db.Close()

			at := time.Now()
			mock.ExpectExec(`UPDATE jobs\s+SET cancel_requested_at = COALESCE\(cancel_requested_at, \$2\)`).
				WithArgs("job-1", at).
				WillReturnResult(sqlmock.NewResult(0, tt.affected))

			err := s.MarkCancelRequested(context.Background(), "job-1", at)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("MarkCancelRequested() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCountJobs(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM jobs`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	count, err := s.CountJobs(context.Background())
	if err != nil {
		t.Fatalf("CountJobs failed: %v", err)
	}
	if count != 7 {
		t.Errorf("got count %d, want 7", count)
	}
}

func TestPing(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	s := &Store{db: db}
	defer s.Close()

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))

	if err := s.Ping(context.Background()); err == nil {
		t.Error("expected ping error, got nil")
	}
}
