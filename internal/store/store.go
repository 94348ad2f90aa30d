// Package store implements the durable Store port against Postgres using
// pgx/v5. The pool-sizing knobs below (pool_size, max_overflow,
// pool_timeout, pool_recycle) follow the familiar SQLAlchemy QueuePool
// naming so operators migrating tuning values across stacks don't have to
// re-learn a new vocabulary.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taskqueue/orchestrator/internal/logger"
)

var (
	ErrQueueNotFound = errors.New("store: queue not found")
	ErrQueueInactive = errors.New("store: queue inactive")
	ErrTaskNotFound  = errors.New("store: task not found")
	ErrAlarmNotFound = errors.New("store: alarm not found")
)

// Config is the Store's connection-pool configuration group.
type Config struct {
	URL         string
	PoolSize    int32
	MaxOverflow int32
	PoolTimeout time.Duration
	PoolRecycle time.Duration
}

// Store is a set of repositories over a single shared connection pool,
// providing CRUD and domain queries for every durable entity. Every
// exported method that mutates state runs in a single transaction that
// commits on normal return and rolls back on error.
type Store struct {
	Pool    *pgxpool.Pool
	Queues  *QueueRepo
	Tasks   *TaskRepo
	Metrics *MetricsRepo
	Alarms  *AlarmRepo
	Status  *StatusRepo
	Audit   *AuditRepo
}

// Open creates the pool and wires the repositories. It does not run
// migrations; callers run those explicitly (for example with goose
// against internal/store/migrations).
func Open(ctx context.Context, cfg Config) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("store: parse config: %w", err)
	}

	if cfg.PoolSize > 0 {
		poolCfg.MaxConns = cfg.PoolSize + cfg.MaxOverflow
		poolCfg.MinConns = cfg.PoolSize / 2
	}
	if cfg.PoolTimeout > 0 {
		poolCfg.MaxConnLifetime = cfg.PoolRecycle
		poolCfg.HealthCheckPeriod = cfg.PoolTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("store: open pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	s := &Store{Pool: pool}
	s.Queues = &QueueRepo{pool: pool}
	s.Tasks = &TaskRepo{pool: pool}
	s.Metrics = &MetricsRepo{pool: pool}
	s.Alarms = &AlarmRepo{pool: pool}
	s.Status = &StatusRepo{pool: pool}
	s.Audit = &AuditRepo{pool: pool}

	logger.Info().Msg("store: connected")
	return s, nil
}

// Close releases all pooled connections.
func (s *Store) Close() {
	s.Pool.Close()
}

// Ping executes SELECT 1 for the Health Evaluator's Store probe.
func (s *Store) Ping(ctx context.Context) error {
	var one int
	return s.Pool.QueryRow(ctx, "SELECT 1").Scan(&one)
}

// PoolStats exposes checked-out/idle counts for the Store component health
// check.
type PoolStats struct {
	AcquiredConns int32
	IdleConns     int32
	MaxConns      int32
}

func (s *Store) PoolStats() PoolStats {
	st := s.Pool.Stat()
	return PoolStats{
		AcquiredConns: st.AcquiredConns(),
		IdleConns:     st.IdleConns(),
		MaxConns:      st.MaxConns(),
	}
}

// EnsureDefaultQueue creates the `default` queue if absent, so the engine
// always has a queue to fall back to on submissions with no queue name.
func (s *Store) EnsureDefaultQueue(ctx context.Context) error {
	_, err := s.Queues.ByName(ctx, "default")
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrQueueNotFound) {
		return err
	}
	_, err = s.Queues.Create(ctx, CreateQueueParams{
		Name:           "default",
		Priority:       5,
		IsActive:       true,
		MaxWorkers:     4,
		RetryLimit:     3,
		TimeoutSeconds: 300,
	})
	return err
}
