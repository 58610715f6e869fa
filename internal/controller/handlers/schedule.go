package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"reviewplane/internal/jobs"
	"reviewplane/pkg/api"
)

// Schedule handles POST /schedule.
// It validates the batch and asks the workflow engine to create one run for it.
func (h *Handlers) Schedule(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)

	var req api.ScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.httpError(w, http.StatusRequestEntityTooLarge, CodeValidation, "Request body too large", "")
			return
		}
		h.httpError(w, http.StatusBadRequest, CodeValidation, "Invalid request body", err.Error())
		return
	}

	batch := jobs.BatchRequest{
		Items:       make([]jobs.ItemInput, 0, len(req.Shoes)),
		WaitMinutes: req.WaitMinutes,
		StartTime:   req.StartTime,
	}
	for _, shoe := range req.Shoes {
		batch.Items = append(batch.Items, jobs.ItemInput{Name: shoe.Name, MaxResults: shoe.MaxResults})
	}

	sub, err := h.jobs.Submit(r.Context(), batch)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.respondJson(w, http.StatusCreated, api.ScheduleResponse{
		JobID:         sub.JobID,
		Status:        string(sub.Status),
		Message:       sub.Message,
		ScheduledTime: sub.ScheduledTime,
		ShoesCount:    sub.ItemCount,
	})
}
