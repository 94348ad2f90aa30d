package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taskqueue/orchestrator/internal/model"
)

// TaskRepo implements the `tasks.*` domain queries.
type TaskRepo struct {
	pool *pgxpool.Pool
}

func (r *TaskRepo) Insert(ctx context.Context, t *model.Task) error {
	const q = `
		INSERT INTO tasks (
			id, queue_id, task_type, task_name, payload, status, priority,
			retry_count, max_retries, correlation_id, worker_id, tags,
			created_at, scheduled_at, timeout_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`
	_, err := r.pool.Exec(ctx, q,
		t.ID, t.QueueID, t.TaskType, t.TaskName, t.Payload, string(t.Status), int(t.Priority),
		t.RetryCount, t.MaxRetries, t.CorrelationID, t.WorkerID, t.Tags,
		t.CreatedAt, t.ScheduledAt, t.TimeoutAt, t.UpdatedAt,
	)
	return err
}

// ByID returns a single Task snapshot.
func (r *TaskRepo) ByID(ctx context.Context, id uuid.UUID) (*model.Task, error) {
	const q = taskSelectColumns + ` WHERE t.id = $1`
	row := r.pool.QueryRow(ctx, q, id)
	t, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTaskNotFound
	}
	return t, err
}

// ByWorkerID locates a Task by its worker_id, the id of the worker that
// last started it.
func (r *TaskRepo) ByWorkerID(ctx context.Context, workerID string) (*model.Task, error) {
	const q = taskSelectColumns + ` WHERE t.worker_id = $1`
	row := r.pool.QueryRow(ctx, q, workerID)
	t, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTaskNotFound
	}
	return t, err
}

// ByStatus implements `tasks.by_status(status, limit)`.
func (r *TaskRepo) ByStatus(ctx context.Context, status model.Status, limit int) ([]*model.Task, error) {
	const q = taskSelectColumns + ` WHERE t.status = $1 ORDER BY t.created_at LIMIT $2`
	rows, err := r.pool.Query(ctx, q, string(status), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTasks(rows)
}

// OverdueProcessing implements `tasks.overdue_processing()`: status=processing
// && timeout_at < now.
func (r *TaskRepo) OverdueProcessing(ctx context.Context) ([]*model.Task, error) {
	const q = taskSelectColumns + ` WHERE t.status = 'processing' AND t.timeout_at < now()`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTasks(rows)
}

// QueueStats implements `tasks.queue_stats(queue_id)` → counts grouped by
// status in a single round-trip.
func (r *TaskRepo) QueueStats(ctx context.Context, queueID int64) (model.QueueStats, error) {
	const q = `
		SELECT
			count(*) FILTER (WHERE status = 'pending'),
			count(*) FILTER (WHERE status = 'processing'),
			count(*) FILTER (WHERE status = 'completed'),
			count(*) FILTER (WHERE status = 'failed'),
			count(*) FILTER (WHERE status = 'retrying'),
			count(*) FILTER (WHERE status = 'cancelled')
		FROM tasks WHERE queue_id = $1`
	stats := model.QueueStats{QueueID: queueID}
	err := r.pool.QueryRow(ctx, q, queueID).Scan(
		&stats.Pending, &stats.Processing, &stats.Completed,
		&stats.Failed, &stats.Retrying, &stats.Cancelled,
	)
	return stats, err
}

// LastProcessedAt returns max(completed_at) across a queue's tasks, used by
// the per-queue health pipeline.
func (r *TaskRepo) LastProcessedAt(ctx context.Context, queueID int64) (*time.Time, error) {
	const q = `SELECT max(completed_at) FROM tasks WHERE queue_id = $1 AND status IN ('completed','failed')`
	var ts *time.Time
	err := r.pool.QueryRow(ctx, q, queueID).Scan(&ts)
	return ts, err
}

// UpdateTransition persists the fields mutated by one state-machine
// transition. Every lifecycle column is written from the in-memory Task,
// so timestamps are stored exactly as the StateMachine left them.
func (r *TaskRepo) UpdateTransition(ctx context.Context, t *model.Task) error {
	const q = `
		UPDATE tasks SET
			status = $2, worker_id = $3, retry_count = $4,
			error_message = $5, error_traceback = $6, result = $7,
			started_at = $8, completed_at = $9, last_error_at = $10,
			updated_at = $11
		WHERE id = $1`
	tag, err := r.pool.Exec(ctx, q,
		t.ID, string(t.Status), t.WorkerID, t.RetryCount,
		t.ErrorMessage, t.ErrorTraceback, t.Result,
		t.StartedAt, t.CompletedAt, t.LastErrorAt,
		t.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// MarkDispatched clears scheduled_at and stamps timeout_at once a task has
// been handed to the broker, so the scheduler loop never resubmits it.
func (r *TaskRepo) MarkDispatched(ctx context.Context, id uuid.UUID, timeoutAt time.Time, now time.Time) error {
	const q = `UPDATE tasks SET scheduled_at = NULL, timeout_at = $2, updated_at = $3 WHERE id = $1`
	tag, err := r.pool.Exec(ctx, q, id, timeoutAt, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTaskNotFound
	}
	return nil
}

const taskSelectColumns = `
	SELECT
		t.id, t.queue_id, q.name, t.task_type, t.task_name, t.payload, t.result,
		t.status, t.priority, t.retry_count, t.max_retries,
		t.error_message, t.error_traceback, t.created_at, t.scheduled_at,
		t.started_at, t.completed_at, t.last_error_at, t.timeout_at,
		t.correlation_id, t.worker_id, t.tags, t.updated_at
	FROM tasks t JOIN queues q ON q.id = t.queue_id`

func scanTask(row pgx.Row) (*model.Task, error) {
	var (
		t        model.Task
		priority int
		status   string
	)
	if err := row.Scan(
		&t.ID, &t.QueueID, &t.QueueName, &t.TaskType, &t.TaskName, &t.Payload, &t.Result,
		&status, &priority, &t.RetryCount, &t.MaxRetries,
		&t.ErrorMessage, &t.ErrorTraceback, &t.CreatedAt, &t.ScheduledAt,
		&t.StartedAt, &t.CompletedAt, &t.LastErrorAt, &t.TimeoutAt,
		&t.CorrelationID, &t.WorkerID, &t.Tags, &t.UpdatedAt,
	); err != nil {
		return nil, err
	}
	t.Status = model.Status(status)
	t.Priority = model.Priority(priority)
	return &t, nil
}

func scanTasks(rows pgx.Rows) ([]*model.Task, error) {
	var out []*model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
