package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/taskqueue/orchestrator/internal/logger"
	"github.com/taskqueue/orchestrator/internal/model"
	"github.com/taskqueue/orchestrator/internal/queuemanager"
	"github.com/taskqueue/orchestrator/internal/store"
)

// CreateTaskRequest is the POST /api/v1/tasks request body.
type CreateTaskRequest struct {
	TaskType       string            `json:"task_type"`
	TaskName       string            `json:"task_name,omitempty"`
	Payload        json.RawMessage   `json:"payload,omitempty"`
	QueueName      string            `json:"queue_name,omitempty"`
	Priority       string            `json:"priority,omitempty"`
	CorrelationID  string            `json:"correlation_id,omitempty"`
	ScheduledAt    *time.Time        `json:"scheduled_at,omitempty"`
	TimeoutSeconds *int              `json:"timeout_seconds,omitempty"`
	RetryLimit     *int              `json:"retry_limit,omitempty"`
	Tags           map[string]string `json:"tags,omitempty"`
}

// TaskResponse is the JSON projection of a model.Task returned to API callers.
type TaskResponse struct {
	ID             string            `json:"id"`
	QueueName      string            `json:"queue_name"`
	TaskType       string            `json:"task_type"`
	TaskName       string            `json:"task_name,omitempty"`
	Status         string            `json:"status"`
	Priority       string            `json:"priority"`
	RetryCount     int               `json:"retry_count"`
	MaxRetries     int               `json:"max_retries"`
	ErrorMessage   string            `json:"error_message,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	ScheduledAt    *time.Time        `json:"scheduled_at,omitempty"`
	StartedAt      *time.Time        `json:"started_at,omitempty"`
	CompletedAt    *time.Time        `json:"completed_at,omitempty"`
	CorrelationID  string            `json:"correlation_id,omitempty"`
	Tags           map[string]string `json:"tags,omitempty"`
}

func toTaskResponse(t *model.Task) TaskResponse {
	return TaskResponse{
		ID:            t.ID.String(),
		QueueName:     t.QueueName,
		TaskType:      t.TaskType,
		TaskName:      t.TaskName,
		Status:        string(t.Status),
		Priority:      t.Priority.String(),
		RetryCount:    t.RetryCount,
		MaxRetries:    t.MaxRetries,
		ErrorMessage:  t.ErrorMessage,
		CreatedAt:     t.CreatedAt,
		ScheduledAt:   t.ScheduledAt,
		StartedAt:     t.StartedAt,
		CompletedAt:   t.CompletedAt,
		CorrelationID: t.CorrelationID,
		Tags:          t.Tags,
	}
}

// TaskHandler handles task submission, lookup, cancellation, and listing.
type TaskHandler struct {
	manager *queuemanager.Manager
	store   *store.Store
}

func NewTaskHandler(manager *queuemanager.Manager, st *store.Store) *TaskHandler {
	return &TaskHandler{manager: manager, store: st}
}

// Create handles POST /api/v1/tasks
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TaskType == "" {
		h.respondError(w, http.StatusBadRequest, "task_type is required")
		return
	}

	priority := model.PriorityNormal
	if req.Priority != "" {
		priority = model.ParsePriority(req.Priority)
	}

	sub := model.Submission{
		TaskType:       req.TaskType,
		TaskName:       req.TaskName,
		Payload:        req.Payload,
		QueueName:      req.QueueName,
		Priority:       priority,
		CorrelationID:  req.CorrelationID,
		ScheduledAt:    req.ScheduledAt,
		TimeoutSeconds: req.TimeoutSeconds,
		RetryLimit:     req.RetryLimit,
		Tags:           req.Tags,
	}

	t, err := h.manager.Submit(r.Context(), sub)
	if err != nil {
		switch {
		case errors.Is(err, queuemanager.ErrQueueInactive):
			h.respondError(w, http.StatusConflict, "target queue is not active")
			return
		case errors.Is(err, store.ErrQueueNotFound):
			h.respondError(w, http.StatusNotFound, "QueueNotFound: target queue does not exist")
			return
		}
		logger.Error().Err(err).Str("task_type", req.TaskType).Msg("failed to submit task")
		h.respondError(w, http.StatusInternalServerError, "failed to submit task")
		return
	}

	logger.Info().
		Str("task_id", t.ID.String()).
		Str("task_type", t.TaskType).
		Str("priority", t.Priority.String()).
		Msg("task submitted")

	h.respondJSON(w, http.StatusCreated, toTaskResponse(t))
}

// Get handles GET /api/v1/tasks/{taskID}
func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseTaskID(w, r)
	if !ok {
		return
	}

	t, err := h.store.Tasks.ByID(r.Context(), id)
	if err != nil {
		if err == store.ErrTaskNotFound {
			h.respondError(w, http.StatusNotFound, "task not found")
			return
		}
		logger.Error().Err(err).Str("task_id", id.String()).Msg("failed to get task")
		h.respondError(w, http.StatusInternalServerError, "failed to get task")
		return
	}

	h.respondJSON(w, http.StatusOK, toTaskResponse(t))
}

// Cancel handles DELETE /api/v1/tasks/{taskID}
func (h *TaskHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseTaskID(w, r)
	if !ok {
		return
	}

	if err := h.manager.Cancel(r.Context(), id); err != nil {
		switch err {
		case store.ErrTaskNotFound:
			h.respondError(w, http.StatusNotFound, "task not found")
		case queuemanager.ErrNotCancellable:
			h.respondError(w, http.StatusConflict, "task cannot be cancelled in its current state")
		default:
			logger.Error().Err(err).Str("task_id", id.String()).Msg("failed to cancel task")
			h.respondError(w, http.StatusInternalServerError, "failed to cancel task")
		}
		return
	}

	t, err := h.store.Tasks.ByID(r.Context(), id)
	if err != nil {
		h.respondJSON(w, http.StatusOK, map[string]string{"task_id": id.String(), "status": "cancelled"})
		return
	}

	logger.Info().Str("task_id", id.String()).Msg("task cancelled")
	h.respondJSON(w, http.StatusOK, toTaskResponse(t))
}

// List handles GET /api/v1/tasks?status=pending, returning at most 100
// tasks.
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	status := model.Status(r.URL.Query().Get("status"))
	if status == "" {
		status = model.StatusPending
	}
	limit := 100

	tasks, err := h.store.Tasks.ByStatus(r.Context(), status, limit)
	if err != nil {
		logger.Error().Err(err).Msg("failed to list tasks")
		h.respondError(w, http.StatusInternalServerError, "failed to list tasks")
		return
	}

	out := make([]TaskResponse, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, toTaskResponse(t))
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"tasks":       out,
		"total_count": len(out),
	})
}

func (h *TaskHandler) parseTaskID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "taskID")
	if raw == "" {
		h.respondError(w, http.StatusBadRequest, "task ID is required")
		return uuid.UUID{}, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid task ID")
		return uuid.UUID{}, false
	}
	return id, true
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (h *TaskHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *TaskHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
	})
}
