// Package api contains shared JSON request/response structs.
// This package is shared between the CLI and Controller.
package api

import "time"

// ShoeRequest is a single work item of a batch.
// MaxResults is optional; the controller applies its default when omitted.
type ShoeRequest struct {
	Name       string `json:"name"`
	MaxResults *int   `json:"max_results,omitempty"`
}

// ScheduleRequest is the request body for POST /schedule.
type ScheduleRequest struct {
	Shoes []ShoeRequest `json:"shoes"`
	// WaitMinutes is the delay between the search and the aggregation steps.
	WaitMinutes *int `json:"wait_minutes,omitempty"`
	// StartTime is an absolute UTC instant. Omitted means start immediately.
	StartTime *time.Time `json:"start_time,omitempty"`
}

// ScheduleResponse is the response body after a batch has been accepted.
type ScheduleResponse struct {
	JobID         string    `json:"job_id"`
	Status        string    `json:"status"`
	Message       string    `json:"message"`
	ScheduledTime time.Time `json:"scheduled_time"`
	ShoesCount    int       `json:"shoes_count"`
}

// JobStatusResponse is the response body for job status queries.
type JobStatusResponse struct {
	JobID     string        `json:"job_id"`
	Status    string        `json:"status"`
	StartDate *time.Time    `json:"start_date"`
	EndDate   *time.Time    `json:"end_date"`
	State     string        `json:"state"`
	Message   string        `json:"message"`
	Shoes     []ShoeRequest `json:"shoes,omitempty"`
}

// ListJobsResponse is the response body for GET /jobs.
type ListJobsResponse struct {
	Jobs  []JobStatusResponse `json:"jobs"`
	Total int                 `json:"total"`
}

// CancelJobResponse is the response body for DELETE /jobs/{job_id}.
type CancelJobResponse struct {
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
}

// ErrorResponse is the standard error response format.
// Code is the machine-checkable error kind (e.g. "validation_error").
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// Job lifecycle statuses as reported by the API.
const (
	StatusScheduled = "scheduled"
	StatusRunning   = "running"
	StatusSuccess   = "success"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
	StatusUnknown   = "unknown"
)

// Health statuses.
const (
	HealthHealthy   = "healthy"
	HealthDegraded  = "degraded"
	HealthUnhealthy = "unhealthy"
)
