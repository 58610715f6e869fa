package controller

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"reviewplane/internal/controller/handlers"
	"reviewplane/internal/controller/middleware"
	"reviewplane/internal/jobs"
)

type stubService struct{}

func (stubService) Submit(ctx context.Context, req jobs.BatchRequest) (*jobs.Submission, error) {
	return nil, &jobs.ValidationError{Reason: jobs.ReasonEmptyBatch}
}

func (stubService) Status(ctx context.Context, jobID string) (*jobs.Job, error) {
	return &jobs.Job{JobID: jobID, Status: jobs.StatusRunning}, nil
}

func (stubService) List(ctx context.Context, limit, offset int) ([]jobs.Job, error) {
	return nil, nil
}

func (stubService) Cancel(ctx context.Context, jobID string) (*jobs.Job, error) {
	return nil, jobs.ErrAlreadyTerminal
}

type upPinger struct{}

func (upPinger) Ping(ctx context.Context) error { return nil }

func newTestHandler(opts Options) http.Handler {
	h := handlers.New(stubService{}, upPinger{}, upPinger{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return NewHandler(h, opts)
}

func TestRoutes(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "reviewplane_jobs_submitted_total 0\n")
	})
	handler := newTestHandler(Options{CORSOrigins: []string{"*"}, Metrics: metrics})

	tests := []struct {
		method         string
		path           string
		body           string
		expectedStatus int
	}{
		{http.MethodPost, "/schedule", `{"shoes":[]}`, http.StatusBadRequest},
		{http.MethodGet, "/jobs", "", http.StatusOK},
		{http.MethodGet, "/jobs/shoe_review_20250301_120000", "", http.StatusOK},
		{http.MethodDelete, "/jobs/shoe_review_20250301_120000", "", http.StatusConflict},
		{http.MethodGet, "/health", "", http.StatusOK},
		{http.MethodGet, "/metrics", "", http.StatusOK},
		{http.MethodPut, "/jobs/x", "", http.StatusMethodNotAllowed},
		{http.MethodGet, "/unknown", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.expectedStatus {
				t.Errorf("got status %d, want %d (body: %s)", rr.Code, tt.expectedStatus, rr.Body.String())
			}
			if rr.Header().Get(middleware.RequestIDHeader) == "" {
				t.Error("expected X-Request-ID on every response")
			}
		})
	}
}

func TestRoutes_MetricsOptional(t *testing.T) {
	handler := newTestHandler(Options{})

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rr.Code != http.StatusNotFound {
		t.Errorf("got status %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestRoutes_RateLimited(t *testing.T) {
	handler := newTestHandler(Options{RateLimit: 1, RateBurst: 1})

	var last int
	for range 3 {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
		last = rr.Code
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("got status %d, want %d", last, http.StatusTooManyRequests)
	}
}
