package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/dukerupert/chorequest/internal/apperr"
	"github.com/dukerupert/chorequest/internal/auth"
	"github.com/dukerupert/chorequest/internal/jobs"
	"github.com/dukerupert/chorequest/internal/model"
)

type JobHandler struct {
	jobs   *jobs.Service
	logger *slog.Logger
}

func NewJobHandler(js *jobs.Service, logger *slog.Logger) *JobHandler {
	return &JobHandler{jobs: js, logger: logger}
}

type jobRequest struct {
	Name      string             `json:"name"`
	JobType   model.JobType      `json:"job_type"`
	Frequency model.JobFrequency `json:"frequency"`
}

func (req *jobRequest) Validate() error {
	if req.JobType == "" {
		return apperr.InvalidInput("job_type is required")
	}
	return nil
}

func (h *JobHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.jobs.List(r.Context(), actor(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if list == nil {
		list = []model.ScheduledJob{}
	}
	writeData(w, http.StatusOK, list)
}

func (h *JobHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req jobRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	j, err := h.jobs.Create(r.Context(), actor(r), &model.ScheduledJob{
		Name:      req.Name,
		JobType:   req.JobType,
		Frequency: req.Frequency,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusCreated, j)
}

func (h *JobHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.jobs.Delete(r.Context(), actor(r), id); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, map[string]int64{"id": id})
}

func (h *JobHandler) Start(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.jobs.Start)
}

func (h *JobHandler) Stop(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.jobs.Stop)
}

// Run handles POST /api/jobs/{id}/run. A failed execution still answers 200
// with the recorded statistics and the failure message.
func (h *JobHandler) Run(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	j, err := h.jobs.RunNow(r.Context(), actor(r), id)
	if j == nil {
		writeError(w, r, h.logger, err)
		return
	}
	resp := map[string]any{"job": j}
	if err != nil {
		resp["error"] = err.Error()
	}
	writeData(w, http.StatusOK, resp)
}

func (h *JobHandler) transition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, ac auth.AuthContext, id int64) (*model.ScheduledJob, error)) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	j, err := fn(r.Context(), actor(r), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, j)
}
