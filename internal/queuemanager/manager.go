// Package queuemanager implements the Queue Manager: the single entry
// point for submitting, cancelling, and requeuing tasks, plus the
// scheduler loop that activates tasks whose eta has arrived. It is the
// direct descendant of the teacher's internal/queue package, generalized
// from a single Redis-backed FIFO queue to a Postgres-durable Task row
// fronted by a priority-aware Broker.
package queuemanager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/taskqueue/orchestrator/internal/broker"
	"github.com/taskqueue/orchestrator/internal/logger"
	"github.com/taskqueue/orchestrator/internal/model"
	"github.com/taskqueue/orchestrator/internal/store"
)

var (
	ErrQueueInactive  = errors.New("queuemanager: target queue is not active")
	ErrNotRequeueable = errors.New("queuemanager: task is not failed")
	ErrNotCancellable = errors.New("queuemanager: task is already in a terminal state")
)

// Manager is the Queue Manager. It owns the submit ordering: an immediate
// task is handed to the Broker first and its row is written to the Store
// only once the Broker has accepted it, while a scheduled task's row is
// written first and handed to the Broker by the scheduler loop once due.
type Manager struct {
	store  *store.Store
	broker broker.Port

	schedulerStop chan struct{}
	schedulerWG   sync.WaitGroup
	pollInterval  time.Duration
}

func New(st *store.Store, b broker.Port) *Manager {
	return &Manager{
		store:         st,
		broker:        b,
		schedulerStop: make(chan struct{}),
		pollInterval:  1 * time.Second,
	}
}

// Submit persists a new Task and, unless it carries a future eta, hands it
// to the Broker immediately. The task is durable the instant this call
// returns successfully, even if the broker submission itself later fails
// and must be retried by the scheduler loop.
func (m *Manager) Submit(ctx context.Context, sub model.Submission) (*model.Task, error) {
	queueName := sub.QueueName
	if queueName == "" {
		queueName = model.DefaultQueueName
	}
	q, err := m.store.Queues.ByName(ctx, queueName)
	if err != nil {
		if errors.Is(err, store.ErrQueueNotFound) {
			return nil, fmt.Errorf("queuemanager: queue %q: %w", queueName, store.ErrQueueNotFound)
		}
		return nil, fmt.Errorf("queuemanager: lookup queue %q: %w", queueName, err)
	}
	if !q.IsActive {
		return nil, ErrQueueInactive
	}

	retryLimit := q.RetryLimit
	if sub.RetryLimit != nil {
		retryLimit = *sub.RetryLimit
	}
	timeoutSeconds := q.TimeoutSeconds
	if sub.TimeoutSeconds != nil {
		timeoutSeconds = *sub.TimeoutSeconds
	}

	now := time.Now().UTC()
	t := &model.Task{
		ID:            uuid.New(),
		QueueID:       q.ID,
		QueueName:     q.Name,
		TaskType:      sub.TaskType,
		TaskName:      sub.TaskName,
		Payload:       sub.Payload,
		Status:        model.StatusPending,
		Priority:      sub.Priority,
		MaxRetries:    retryLimit,
		CorrelationID: sub.CorrelationID,
		Tags:          sub.Tags,
		CreatedAt:     now,
		UpdatedAt:     now,
		ScheduledAt:   sub.ScheduledAt,
	}

	// A future eta has nothing to dispatch yet: persist the row and let
	// the scheduler loop submit it to the broker once it is due.
	if sub.ScheduledAt != nil && sub.ScheduledAt.After(now) {
		if err := m.store.Tasks.Insert(ctx, t); err != nil {
			return nil, fmt.Errorf("queuemanager: persist scheduled task: %w", err)
		}
		logger.Info().Str("task_id", t.ID.String()).Time("scheduled_at", *sub.ScheduledAt).Msg("task scheduled for future dispatch")
		return t, nil
	}

	// An immediate submission dispatches to the broker first, then
	// persists the row: a task's durable record exists iff the broker
	// accepted it. A failure between the two calls is reconciled later by
	// the worker, which treats a delivery with no matching Store row as an
	// orphaned broker execution and logs it rather than processing it.
	if _, err := m.broker.Submit(ctx, t.ID.String(), t.Payload, t.QueueName, t.Priority, nil, nil); err != nil {
		return nil, fmt.Errorf("queuemanager: broker submit: %w", err)
	}

	timeoutAt := now.Add(time.Duration(timeoutSeconds) * time.Second)
	t.TimeoutAt = &timeoutAt
	t.ScheduledAt = nil

	if err := m.store.Tasks.Insert(ctx, t); err != nil {
		logger.Error().Err(err).Str("task_id", t.ID.String()).Msg("broker accepted task but store persist failed, execution is orphaned")
		return nil, fmt.Errorf("queuemanager: persist task after broker submit: %w", err)
	}
	return t, nil
}

// dispatch submits an already-persisted task to the broker, used by the
// scheduler loop and by requeue: on success it stamps timeout_at and
// clears scheduled_at so the scheduler never resubmits it.
func (m *Manager) dispatch(ctx context.Context, t *model.Task, timeoutSeconds int) error {
	if _, err := m.broker.Submit(ctx, t.ID.String(), t.Payload, t.QueueName, t.Priority, nil, nil); err != nil {
		return err
	}

	now := time.Now().UTC()
	timeoutAt := now.Add(time.Duration(timeoutSeconds) * time.Second)
	t.TimeoutAt = &timeoutAt
	t.ScheduledAt = nil
	t.UpdatedAt = now
	return m.store.Tasks.MarkDispatched(ctx, t.ID, timeoutAt, now)
}

// Cancel transitions a task to cancelled, regardless of whether it has
// been dispatched to the broker yet; Broker.Revoke is best-effort for
// already-dispatched executions.
func (m *Manager) Cancel(ctx context.Context, id uuid.UUID) error {
	t, err := m.store.Tasks.ByID(ctx, id)
	if err != nil {
		return err
	}
	if t.Status.IsFinal() {
		return ErrNotCancellable
	}

	sm := model.NewStateMachine(t)
	if err := sm.Cancel(time.Now().UTC()); err != nil {
		return err
	}
	if err := m.store.Tasks.UpdateTransition(ctx, t); err != nil {
		return err
	}

	if err := m.broker.Revoke(ctx, t.ID.String(), true); err != nil {
		logger.Warn().Err(err).Str("task_id", t.ID.String()).Msg("broker revoke failed after cancel")
	}
	return nil
}

// Requeue moves a failed task back to pending and redispatches it,
// resetting its retry budget the way an operator-initiated retry should.
func (m *Manager) Requeue(ctx context.Context, id uuid.UUID) (*model.Task, error) {
	t, err := m.store.Tasks.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Status != model.StatusFailed {
		return nil, ErrNotRequeueable
	}

	sm := model.NewStateMachine(t)
	if err := sm.Requeue(time.Now().UTC()); err != nil {
		return nil, err
	}
	if err := m.store.Tasks.UpdateTransition(ctx, t); err != nil {
		return nil, err
	}

	q, err := m.store.Queues.ByName(ctx, t.QueueName)
	if err != nil {
		return nil, err
	}
	if err := m.dispatch(ctx, t, q.TimeoutSeconds); err != nil {
		logger.Warn().Err(err).Str("task_id", t.ID.String()).Msg("requeue dispatch failed, will retry via scheduler")
	}
	return t, nil
}

// DeadLetterTasks lists failed tasks, the operator-facing dead-letter view
// over the closed failed status (most of which reached it by exhausting
// their retry budget).
func (m *Manager) DeadLetterTasks(ctx context.Context, limit int) ([]*model.Task, error) {
	return m.store.Tasks.ByStatus(ctx, model.StatusFailed, limit)
}

// StartScheduler begins the background loop that activates due scheduled
// tasks, polling at pollInterval.
func (m *Manager) StartScheduler(ctx context.Context) {
	m.schedulerWG.Add(1)
	go m.schedulerLoop(ctx)
	logger.Info().Dur("poll_interval", m.pollInterval).Msg("queuemanager: scheduler started")
}

func (m *Manager) StopScheduler() {
	close(m.schedulerStop)
	m.schedulerWG.Wait()
	logger.Info().Msg("queuemanager: scheduler stopped")
}

func (m *Manager) schedulerLoop(ctx context.Context) {
	defer m.schedulerWG.Done()
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.schedulerStop:
			return
		case <-ticker.C:
			m.activateDueTasks(ctx)
		}
	}
}

func (m *Manager) activateDueTasks(ctx context.Context) {
	due, err := m.store.Tasks.ByStatus(ctx, model.StatusPending, 100)
	if err != nil {
		logger.Error().Err(err).Msg("queuemanager: failed to list pending tasks")
		return
	}

	now := time.Now().UTC()
	for _, t := range due {
		if t.ScheduledAt == nil || t.ScheduledAt.After(now) {
			continue
		}
		q, err := m.store.Queues.ByName(ctx, t.QueueName)
		if err != nil {
			logger.Error().Err(err).Str("task_id", t.ID.String()).Msg("queuemanager: failed to look up queue for due task")
			continue
		}
		if err := m.dispatch(ctx, t, q.TimeoutSeconds); err != nil {
			logger.Error().Err(err).Str("task_id", t.ID.String()).Msg("queuemanager: failed to dispatch due task")
			continue
		}
		logger.Info().Str("task_id", t.ID.String()).Str("priority", t.Priority.String()).Msg("scheduled task activated")
	}
}
