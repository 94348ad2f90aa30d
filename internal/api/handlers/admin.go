package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/taskqueue/orchestrator/internal/alarm"
	"github.com/taskqueue/orchestrator/internal/logger"
	"github.com/taskqueue/orchestrator/internal/model"
	"github.com/taskqueue/orchestrator/internal/queuemanager"
	"github.com/taskqueue/orchestrator/internal/store"
	"github.com/taskqueue/orchestrator/internal/worker"
)

// AdminHandler handles operator endpoints: worker control, queue
// inspection, dead-letter requeue, alarm acknowledgement, health
// reporting, and the shutdown trigger.
type AdminHandler struct {
	manager    *queuemanager.Manager
	store      *store.Store
	alarms     *alarm.Engine
	redis      *redis.Client
	shutdownFn func(ctx context.Context, reason string)
}

// NewAdminHandler wires the admin surface. shutdownFn is invoked by the
// POST /system/shutdown endpoint — typically engine.Engine.TriggerShutdown
// — so the HTTP layer never reaches into shutdown.Controller directly.
func NewAdminHandler(manager *queuemanager.Manager, st *store.Store, alarms *alarm.Engine, redisClient *redis.Client, shutdownFn func(ctx context.Context, reason string)) *AdminHandler {
	return &AdminHandler{
		manager:    manager,
		store:      st,
		alarms:     alarms,
		redis:      redisClient,
		shutdownFn: shutdownFn,
	}
}

// ListWorkers handles GET /admin/workers
func (h *AdminHandler) ListWorkers(w http.ResponseWriter, r *http.Request) {
	workers, err := worker.ActiveWorkers(r.Context(), h.redis)
	if err != nil {
		logger.Error().Err(err).Msg("failed to get active workers")
		h.respondError(w, http.StatusInternalServerError, "failed to get workers")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"workers": workers,
		"count":   len(workers),
	})
}

// GetWorker handles GET /admin/workers/{workerID}
func (h *AdminHandler) GetWorker(w http.ResponseWriter, r *http.Request) {
	workerID := chi.URLParam(r, "workerID")
	if workerID == "" {
		h.respondError(w, http.StatusBadRequest, "worker ID is required")
		return
	}

	alive, err := worker.IsAlive(r.Context(), h.redis, workerID)
	if err != nil {
		logger.Error().Err(err).Str("worker_id", workerID).Msg("failed to check worker status")
		h.respondError(w, http.StatusInternalServerError, "failed to get worker")
		return
	}
	if !alive {
		h.respondError(w, http.StatusNotFound, "worker not found or not active")
		return
	}

	workers, err := worker.ActiveWorkers(r.Context(), h.redis)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "failed to get worker details")
		return
	}

	for _, wk := range workers {
		if wk.ID == workerID {
			h.respondJSON(w, http.StatusOK, wk)
			return
		}
	}

	h.respondError(w, http.StatusNotFound, "worker not found")
}

// PauseWorker handles POST /admin/workers/{workerID}/pause
func (h *AdminHandler) PauseWorker(w http.ResponseWriter, r *http.Request) {
	h.setWorkerPaused(w, r, true, "worker paused")
}

// ResumeWorker handles POST /admin/workers/{workerID}/resume
func (h *AdminHandler) ResumeWorker(w http.ResponseWriter, r *http.Request) {
	h.setWorkerPaused(w, r, false, "worker resumed")
}

func (h *AdminHandler) setWorkerPaused(w http.ResponseWriter, r *http.Request, paused bool, message string) {
	workerID := chi.URLParam(r, "workerID")
	if workerID == "" {
		h.respondError(w, http.StatusBadRequest, "worker ID is required")
		return
	}

	alive, err := worker.IsAlive(r.Context(), h.redis, workerID)
	if err != nil {
		logger.Error().Err(err).Str("worker_id", workerID).Msg("failed to check worker status")
		h.respondError(w, http.StatusInternalServerError, "failed to check worker status")
		return
	}
	if !alive {
		h.respondError(w, http.StatusNotFound, "worker not found or not active")
		return
	}

	if err := worker.SetPausedRemote(r.Context(), h.redis, workerID, paused); err != nil {
		logger.Error().Err(err).Str("worker_id", workerID).Msg("failed to set worker pause state")
		h.respondError(w, http.StatusInternalServerError, "failed to update worker")
		return
	}

	logger.Info().Str("worker_id", workerID).Bool("paused", paused).Msg(message)
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"message":   message,
		"worker_id": workerID,
	})
}

// GetQueues handles GET /admin/queues
func (h *AdminHandler) GetQueues(w http.ResponseWriter, r *http.Request) {
	queues, err := h.store.Queues.ActiveAll(r.Context())
	if err != nil {
		logger.Error().Err(err).Msg("failed to list queues")
		h.respondError(w, http.StatusInternalServerError, "failed to get queue statistics")
		return
	}

	var totalPending int64
	out := make([]map[string]interface{}, 0, len(queues))
	for _, q := range queues {
		stats, err := h.store.Tasks.QueueStats(r.Context(), q.ID)
		if err != nil {
			logger.Error().Err(err).Str("queue", q.Name).Msg("failed to get queue stats")
			continue
		}
		totalPending += stats.Pending
		out = append(out, map[string]interface{}{
			"name":       q.Name,
			"priority":   q.Priority.String(),
			"is_active":  q.IsActive,
			"pending":    stats.Pending,
			"processing": stats.Processing,
			"completed":  stats.Completed,
			"failed":     stats.Failed,
			"retrying":   stats.Retrying,
		})
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"queues":       out,
		"total_pending": totalPending,
	})
}

// ListDeadLetter handles GET /admin/dlq
func (h *AdminHandler) ListDeadLetter(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.manager.DeadLetterTasks(r.Context(), 100)
	if err != nil {
		logger.Error().Err(err).Msg("failed to list dead-letter tasks")
		h.respondError(w, http.StatusInternalServerError, "failed to list dead-letter tasks")
		return
	}

	out := make([]TaskResponse, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, toTaskResponse(t))
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"tasks": out,
		"count": len(out),
	})
}

// RequeueTask handles POST /admin/tasks/{taskID}/requeue
func (h *AdminHandler) RequeueTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	if taskID == "" {
		h.respondError(w, http.StatusBadRequest, "task ID is required")
		return
	}

	id, ok := parseUUIDParam(taskID)
	if !ok {
		h.respondError(w, http.StatusBadRequest, "invalid task ID")
		return
	}

	t, err := h.manager.Requeue(r.Context(), id)
	if err != nil {
		switch err {
		case store.ErrTaskNotFound:
			h.respondError(w, http.StatusNotFound, "task not found")
		case queuemanager.ErrNotRequeueable:
			h.respondError(w, http.StatusConflict, "only failed tasks can be requeued")
		default:
			logger.Error().Err(err).Str("task_id", taskID).Msg("failed to requeue task")
			h.respondError(w, http.StatusInternalServerError, "failed to requeue task")
		}
		return
	}

	logger.Info().Str("task_id", taskID).Msg("task requeued manually")
	h.respondJSON(w, http.StatusOK, toTaskResponse(t))
}

// ListAlarms handles GET /admin/alarms
func (h *AdminHandler) ListAlarms(w http.ResponseWriter, r *http.Request) {
	alarms, err := h.alarms.ActiveAlarms(r.Context())
	if err != nil {
		logger.Error().Err(err).Msg("failed to list active alarms")
		h.respondError(w, http.StatusInternalServerError, "failed to list alarms")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"alarms": alarms,
		"count":  len(alarms),
	})
}

// AcknowledgeAlarmRequest is the POST /admin/alarms/{alarmID}/acknowledge body.
type AcknowledgeAlarmRequest struct {
	AcknowledgedBy string `json:"acknowledged_by"`
}

// AcknowledgeAlarm handles POST /admin/alarms/{alarmID}/acknowledge
func (h *AdminHandler) AcknowledgeAlarm(w http.ResponseWriter, r *http.Request) {
	id, ok := parseInt64(chi.URLParam(r, "alarmID"))
	if !ok {
		h.respondError(w, http.StatusBadRequest, "invalid alarm ID")
		return
	}

	var req AcknowledgeAlarmRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.AcknowledgedBy == "" {
		req.AcknowledgedBy = "operator"
	}

	if err := h.alarms.Acknowledge(r.Context(), id, req.AcknowledgedBy); err != nil {
		logger.Error().Err(err).Int64("alarm_id", id).Msg("failed to acknowledge alarm")
		h.respondError(w, http.StatusInternalServerError, "failed to acknowledge alarm")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"message":  "alarm acknowledged",
		"alarm_id": id,
	})
}

// ResolveAlarm handles POST /admin/alarms/{alarmID}/resolve
func (h *AdminHandler) ResolveAlarm(w http.ResponseWriter, r *http.Request) {
	id, ok := parseInt64(chi.URLParam(r, "alarmID"))
	if !ok {
		h.respondError(w, http.StatusBadRequest, "invalid alarm ID")
		return
	}

	if err := h.alarms.Resolve(r.Context(), id); err != nil {
		logger.Error().Err(err).Int64("alarm_id", id).Msg("failed to resolve alarm")
		h.respondError(w, http.StatusInternalServerError, "failed to resolve alarm")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"message":  "alarm resolved",
		"alarm_id": id,
	})
}

// SystemStatus handles GET /admin/status
func (h *AdminHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.store.Status.Get(r.Context())
	if err != nil {
		logger.Error().Err(err).Msg("failed to get system status")
		h.respondError(w, http.StatusInternalServerError, "failed to get system status")
		return
	}

	h.respondJSON(w, http.StatusOK, status)
}

// Health handles GET /health: the full persisted system status, the same
// report the Health Evaluator's component cadence last wrote.
func (h *AdminHandler) Health(w http.ResponseWriter, r *http.Request) {
	status, err := h.store.Status.Get(r.Context())
	if err != nil {
		logger.Error().Err(err).Msg("failed to get system status")
		h.respondError(w, http.StatusInternalServerError, "failed to get system status")
		return
	}

	code := http.StatusOK
	if status.OverallHealth == model.HealthCritical {
		code = http.StatusServiceUnavailable
	}
	h.respondJSON(w, code, status)
}

// HealthQuick handles GET /health/quick: a liveness probe that answers
// without touching the Store or Broker, for load balancer health checks
// that must not fail open just because a downstream dependency is slow.
func (h *AdminHandler) HealthQuick(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
	})
}

// HealthComponents handles GET /health/components: the per-component
// breakdown from the last completed component health tick.
func (h *AdminHandler) HealthComponents(w http.ResponseWriter, r *http.Request) {
	status, err := h.store.Status.Get(r.Context())
	if err != nil {
		logger.Error().Err(err).Msg("failed to get system status")
		h.respondError(w, http.StatusInternalServerError, "failed to get system status")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"components":        status.SubsystemHealth,
		"last_health_check": status.LastHealthCheck,
	})
}

// ShutdownRequest is the body of POST /system/shutdown.
type ShutdownRequest struct {
	Reason string `json:"reason"`
}

// Shutdown handles POST /system/shutdown: triggers the emergency shutdown
// path. Mounted behind the bearer-token/API-key auth middleware since it
// is destructive to the whole running system, not one task or worker.
func (h *AdminHandler) Shutdown(w http.ResponseWriter, r *http.Request) {
	var req ShutdownRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if req.Reason == "" {
		req.Reason = "manual shutdown requested via API"
	}

	if h.shutdownFn == nil {
		h.respondError(w, http.StatusServiceUnavailable, "shutdown is not available on this process")
		return
	}

	logger.Warn().Str("reason", req.Reason).Msg("admin: shutdown requested via API")
	h.shutdownFn(r.Context(), req.Reason)

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"message": "shutdown triggered",
		"reason":  req.Reason,
	})
}

// TestAlarmRequest is the body of POST /test/alarm.
type TestAlarmRequest struct {
	AlarmType string `json:"alarm_type"`
	Severity  string `json:"severity"`
	Title     string `json:"title"`
	Message   string `json:"message"`
}

// TestAlarm handles POST /test/alarm: fires a synthetic alarm through the
// normal Trigger path (dedup, persistence, notification fan-out), so
// operators can verify notification channels end to end without waiting
// for a real fault.
func (h *AdminHandler) TestAlarm(w http.ResponseWriter, r *http.Request) {
	var req TestAlarmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.AlarmType == "" {
		req.AlarmType = string(model.AlarmSystemError)
	}
	severity := model.SeverityWarning
	if req.Severity == string(model.SeverityCritical) {
		severity = model.SeverityCritical
	}
	if req.Title == "" {
		req.Title = "test alarm"
	}
	if req.Message == "" {
		req.Message = "triggered via POST /test/alarm"
	}

	a, err := h.alarms.Trigger(r.Context(), model.Event{
		AlarmType:   model.AlarmType(req.AlarmType),
		Severity:    severity,
		Title:       req.Title,
		Description: req.Message,
		Component:   "test",
		ContextData: map[string]any{"triggered_at": time.Now().UTC()},
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to trigger test alarm")
		h.respondError(w, http.StatusInternalServerError, "failed to trigger test alarm")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"message": "test alarm triggered",
		"alarm":   a,
	})
}

func (h *AdminHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *AdminHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]interface{}{
		"error":   http.StatusText(status),
		"message": message,
	})
}
