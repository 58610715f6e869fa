package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"reviewplane/pkg/api"
)

// JobClient handles API calls to the reviewplane controller.
type JobClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewJobClient creates a new client with the given base URL.
func NewJobClient(baseURL string) *JobClient {
	return &JobClient{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// APIError represents an error response from the API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

// Schedule sends POST /schedule.
func (c *JobClient) Schedule(req api.ScheduleRequest) (*api.ScheduleResponse, error) {
	var result api.ScheduleResponse
	if err := c.do(http.MethodPost, "/schedule", req, &result, http.StatusCreated, http.StatusOK); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetJob sends GET /jobs/{id}.
func (c *JobClient) GetJob(jobID string) (*api.JobStatusResponse, error) {
	var result api.JobStatusResponse
	if err := c.do(http.MethodGet, "/jobs/"+url.PathEscape(jobID), nil, &result, http.StatusOK); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListJobs sends GET /jobs?limit=&offset=.
func (c *JobClient) ListJobs(limit, offset int) (*api.ListJobsResponse, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	path := "/jobs"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var result api.ListJobsResponse
	if err := c.do(http.MethodGet, path, nil, &result, http.StatusOK); err != nil {
		return nil, err
	}
	return &result, nil
}

// CancelJob sends DELETE /jobs/{id}.
func (c *JobClient) CancelJob(jobID string) (*api.CancelJobResponse, error) {
	var result api.CancelJobResponse
	if err := c.do(http.MethodDelete, "/jobs/"+url.PathEscape(jobID), nil, &result, http.StatusOK); err != nil {
		return nil, err
	}
	return &result, nil
}

// Health sends GET /health. An unhealthy controller answers 503 with a body,
// which is returned alongside the APIError.
func (c *JobClient) Health() (*api.HealthResponse, error) {
	var result api.HealthResponse
	err := c.do(http.MethodGet, "/health", nil, &result, http.StatusOK)
	if apiErr, ok := err.(*APIError); ok && apiErr.StatusCode == http.StatusServiceUnavailable {
		return &result, err
	}
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *JobClient) do(method, path string, body, out any, okStatus ...int) error {
	var reader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(bodyBytes)
	}

	httpReq, err := http.NewRequest(method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Add("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	ok := false
	for _, s := range okStatus {
		if resp.StatusCode == s {
			ok = true
			break
		}
	}
	if !ok {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
		var errResp api.ErrorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			apiErr.Code = errResp.Code
			apiErr.Message = errResp.Error
		}
		// Health answers with its own shape even when unhealthy.
		if out != nil {
			json.Unmarshal(respBody, out)
		}
		return apiErr
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}
