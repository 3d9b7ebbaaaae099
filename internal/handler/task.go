package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dukerupert/chorequest/internal/apperr"
	"github.com/dukerupert/chorequest/internal/model"
	"github.com/dukerupert/chorequest/internal/store"
	"github.com/dukerupert/chorequest/internal/task"
)

type TaskHandler struct {
	tasks  *task.Service
	logger *slog.Logger
}

func NewTaskHandler(tasks *task.Service, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{tasks: tasks, logger: logger}
}

type taskRequest struct {
	ChildID         int64              `json:"child_id"`
	Name            string             `json:"name"`
	Description     string             `json:"description"`
	Icon            string             `json:"icon"`
	Points          int                `json:"points"`
	Category        string             `json:"category"`
	TaskType        model.TaskType     `json:"task_type"`
	RequirePhoto    bool               `json:"require_photo"`
	Recurrence      model.Recurrence   `json:"recurrence"`
	RecurrenceDay   *int               `json:"recurrence_day"`
	RecurrenceDays  []int              `json:"recurrence_days"`
	AutoPublishTime string             `json:"auto_publish_time"`
	Deadline        *time.Time         `json:"deadline"`
	ExpiryPolicy    model.ExpiryPolicy `json:"expiry_policy"`
}

func (req *taskRequest) Validate() error {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return apperr.InvalidInput("name is required")
	}
	if req.ChildID <= 0 {
		return apperr.InvalidInput("child_id is required")
	}
	if req.Points < 0 {
		return apperr.InvalidInput("points must be >= 0")
	}
	switch req.TaskType {
	case "":
		req.TaskType = model.TaskRegular
	case model.TaskRegular, model.TaskSpecial:
	default:
		return apperr.Newf(apperr.KindInvalidInput, "unknown task_type %q", req.TaskType)
	}
	switch req.ExpiryPolicy {
	case "":
		req.ExpiryPolicy = model.ExpiryKeep
	case model.ExpiryAutoClose, model.ExpiryRollover, model.ExpiryKeep:
	default:
		return apperr.Newf(apperr.KindInvalidInput, "unknown expiry_policy %q", req.ExpiryPolicy)
	}
	return nil
}

func (req *taskRequest) toTask() *model.Task {
	return &model.Task{
		ChildID:         req.ChildID,
		Name:            req.Name,
		Description:     req.Description,
		Icon:            req.Icon,
		Points:          req.Points,
		Category:        req.Category,
		TaskType:        req.TaskType,
		RequirePhoto:    req.RequirePhoto,
		Recurrence:      req.Recurrence,
		RecurrenceDay:   req.RecurrenceDay,
		RecurrenceDays:  req.RecurrenceDays,
		AutoPublishTime: req.AutoPublishTime,
		Deadline:        req.Deadline,
		ExpiryPolicy:    req.ExpiryPolicy,
	}
}

func (h *TaskHandler) list(w http.ResponseWriter, r *http.Request, templates bool) {
	f := store.TaskFilter{
		Status:    model.TaskStatus(r.URL.Query().Get("status")),
		Templates: templates,
	}
	if v := r.URL.Query().Get("child_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, r, h.logger, apperr.InvalidInput("invalid child_id"))
			return
		}
		f.ChildID = id
	}
	tasks, err := h.tasks.List(r.Context(), actor(r), f)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if tasks == nil {
		tasks = []model.Task{}
	}
	writeData(w, http.StatusOK, tasks)
}

func (h *TaskHandler) create(w http.ResponseWriter, r *http.Request, template bool) {
	var req taskRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	t := req.toTask()
	t.IsTemplate = template
	created, err := h.tasks.Create(r.Context(), actor(r), t)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusCreated, created)
}

// List handles GET /api/tasks.
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, false)
}

// Create handles POST /api/tasks.
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	h.create(w, r, false)
}

// ListTemplates handles GET /api/templates.
func (h *TaskHandler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, true)
}

// CreateTemplate handles POST /api/templates.
func (h *TaskHandler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	h.create(w, r, true)
}

func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	t, err := h.tasks.Get(r.Context(), actor(r), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, t)
}

func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req taskRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	t := req.toTask()
	t.ID = id
	updated, err := h.tasks.Update(r.Context(), actor(r), t)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, updated)
}

// Delete handles DELETE /api/tasks/{id} and DELETE /api/templates/{id}.
func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.tasks.Delete(r.Context(), actor(r), id); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, map[string]int64{"id": id})
}

type submitRequest struct {
	PhotoURL string `json:"photo_url"`
	Note     string `json:"note"`
}

func (req *submitRequest) Validate() error {
	req.PhotoURL = strings.TrimSpace(req.PhotoURL)
	if req.PhotoURL != "" && !strings.HasPrefix(req.PhotoURL, "http://") && !strings.HasPrefix(req.PhotoURL, "https://") {
		return apperr.InvalidInput("photo_url must be an http(s) URL")
	}
	if len(req.Note) > 1000 {
		return apperr.InvalidInput("note is too long")
	}
	return nil
}

// Submit handles POST /api/tasks/{id}/submit.
func (h *TaskHandler) Submit(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req submitRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	t, err := h.tasks.Submit(r.Context(), actor(r), id, req.PhotoURL, req.Note)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, t)
}

// Approve handles POST /api/tasks/{id}/approve.
func (h *TaskHandler) Approve(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	result, err := h.tasks.Approve(r.Context(), actor(r), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, result)
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

// Reject handles POST /api/tasks/{id}/reject.
func (h *TaskHandler) Reject(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req rejectRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	t, err := h.tasks.Reject(r.Context(), actor(r), id, strings.TrimSpace(req.Reason))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, t)
}
