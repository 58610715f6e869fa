// Package handlers contains HTTP handlers for the controller API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"reviewplane/internal/jobs"
	"reviewplane/internal/logger"
	"reviewplane/pkg/api"
)

// MaxBodyBytes caps request bodies.
const MaxBodyBytes = 1 << 20

// Error codes carried in api.ErrorResponse.Code.
const (
	CodeValidation        = "validation_error"
	CodeNotFound          = "not_found"
	CodeAlreadyTerminal   = "already_terminal"
	CodeDuplicateJob      = "duplicate_job"
	CodeEngineUnavailable = "engine_unavailable"
	CodeInternal          = "internal_error"
)

// JobService is the orchestration core the handlers drive.
type JobService interface {
	Submit(ctx context.Context, req jobs.BatchRequest) (*jobs.Submission, error)
	Status(ctx context.Context, jobID string) (*jobs.Job, error)
	List(ctx context.Context, limit, offset int) ([]jobs.Job, error)
	Cancel(ctx context.Context, jobID string) (*jobs.Job, error)
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers holds all HTTP handlers and their dependencies.
type Handlers struct {
	jobs   JobService
	engine Pinger
	store  Pinger
	logger *slog.Logger
}

// New creates a new Handlers instance. store may be nil when no job record
// cache is configured.
func New(svc JobService, engine, store Pinger, logger *slog.Logger) *Handlers {
	return &Handlers{jobs: svc, engine: engine, store: store, logger: logger}
}

// A helper function to write standard JSON responses.
func (h *Handlers) respondJson(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

// A helper function to return consistent error messages.
func (h *Handlers) httpError(w http.ResponseWriter, status int, code, message, details string) {
	h.respondJson(w, status, api.ErrorResponse{
		Error:   message,
		Code:    code,
		Details: details,
	})
}

// fail writes the response for a service error.
func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message := mapError(err)
	log := logger.FromContext(r.Context(), h.logger)
	if status >= http.StatusInternalServerError {
		log.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		log.Info("request rejected", "method", r.Method, "path", r.URL.Path, "code", code, "error", err)
	}
	h.httpError(w, status, code, message, err.Error())
}

// mapError maps the jobs error taxonomy to an HTTP status, error code and message.
func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, jobs.ErrValidation):
		var ve *jobs.ValidationError
		if errors.As(err, &ve) {
			return http.StatusBadRequest, CodeValidation, "ValidationError: " + ve.Reason
		}
		return http.StatusBadRequest, CodeValidation, "Invalid request"
	case errors.Is(err, jobs.ErrNotFound):
		return http.StatusNotFound, CodeNotFound, "Job not found"
	case errors.Is(err, jobs.ErrAlreadyTerminal):
		return http.StatusConflict, CodeAlreadyTerminal, "Job already finished"
	case errors.Is(err, jobs.ErrDuplicateJob):
		return http.StatusConflict, CodeDuplicateJob, "Job already exists"
	case errors.Is(err, jobs.ErrEngineUnavailable):
		return http.StatusServiceUnavailable, CodeEngineUnavailable, "Workflow engine unavailable"
	default:
		return http.StatusInternalServerError, CodeInternal, "Internal error"
	}
}

func toStatusResponse(job *jobs.Job) api.JobStatusResponse {
	resp := api.JobStatusResponse{
		JobID:     job.JobID,
		Status:    string(job.Status),
		StartDate: job.StartDate,
		EndDate:   job.EndDate,
		State:     job.State,
		Message:   job.Message,
	}
	for _, item := range job.Items {
		maxResults := item.MaxResults
		resp.Shoes = append(resp.Shoes, api.ShoeRequest{Name: item.Name, MaxResults: &maxResults})
	}
	return resp
}
