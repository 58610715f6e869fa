package handlers

import (
	"net/http"
	"strconv"

	"reviewplane/pkg/api"
)

// GetJob handles GET /jobs/{job_id}.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobs.Status(r.Context(), r.PathValue("job_id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondJson(w, http.StatusOK, toStatusResponse(job))
}

// ListJobs handles GET /jobs?limit=&offset=.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	limit, ok := h.queryInt(w, r, "limit")
	if !ok {
		return
	}
	offset, ok := h.queryInt(w, r, "offset")
	if !ok {
		return
	}

	list, err := h.jobs.List(r.Context(), limit, offset)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	resp := api.ListJobsResponse{Jobs: make([]api.JobStatusResponse, 0, len(list))}
	for i := range list {
		resp.Jobs = append(resp.Jobs, toStatusResponse(&list[i]))
	}
	resp.Total = len(resp.Jobs)
	h.respondJson(w, http.StatusOK, resp)
}

// CancelJob handles DELETE /jobs/{job_id}.
func (h *Handlers) CancelJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobs.Cancel(r.Context(), r.PathValue("job_id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondJson(w, http.StatusOK, api.CancelJobResponse{
		JobID:   job.JobID,
		Status:  string(job.Status),
		Message: job.Message,
	})
}

// queryInt reads an optional integer query parameter. Missing means 0.
func (h *Handlers) queryInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		h.httpError(w, http.StatusBadRequest, CodeValidation, "Invalid "+name, err.Error())
		return 0, false
	}
	return n, true
}
