package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taskqueue/orchestrator/internal/model"
)

// QueueRepo implements the `queues.*` domain queries.
type QueueRepo struct {
	pool *pgxpool.Pool
}

type CreateQueueParams struct {
	Name           string
	Priority       model.Priority
	IsActive       bool
	MaxWorkers     int
	RetryLimit     int
	TimeoutSeconds int
}

func (r *QueueRepo) Create(ctx context.Context, p CreateQueueParams) (*model.Queue, error) {
	const q = `
		INSERT INTO queues (name, priority, is_active, max_workers, retry_limit, timeout_seconds, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		RETURNING id, name, priority, is_active, max_workers, retry_limit, timeout_seconds, created_at, updated_at`
	row := r.pool.QueryRow(ctx, q, p.Name, int(p.Priority), p.IsActive, p.MaxWorkers, p.RetryLimit, p.TimeoutSeconds)
	return scanQueue(row)
}

// ByName implements `queues.by_name(name)` → Queue or none.
func (r *QueueRepo) ByName(ctx context.Context, name string) (*model.Queue, error) {
	const q = `
		SELECT id, name, priority, is_active, max_workers, retry_limit, timeout_seconds, created_at, updated_at
		FROM queues WHERE name = $1`
	row := r.pool.QueryRow(ctx, q, name)
	qq, err := scanQueue(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrQueueNotFound
	}
	return qq, err
}

// ActiveAll implements `queues.active_all()` → all is_active=true.
func (r *QueueRepo) ActiveAll(ctx context.Context) ([]*model.Queue, error) {
	const q = `
		SELECT id, name, priority, is_active, max_workers, retry_limit, timeout_seconds, created_at, updated_at
		FROM queues WHERE is_active = true ORDER BY name`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Queue
	for rows.Next() {
		qq, err := scanQueue(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, qq)
	}
	return out, rows.Err()
}

func scanQueue(row pgx.Row) (*model.Queue, error) {
	var (
		q         model.Queue
		priority  int
		createdAt time.Time
		updatedAt time.Time
	)
	if err := row.Scan(&q.ID, &q.Name, &priority, &q.IsActive, &q.MaxWorkers, &q.RetryLimit, &q.TimeoutSeconds, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	q.Priority = model.Priority(priority)
	q.CreatedAt = createdAt
	q.UpdatedAt = updatedAt
	return &q, nil
}
