// Package engine wires together the durable store, the Redis broker, the
// task registry, one or more worker wrappers, the queue manager, the
// health evaluator, the alarm engine, and the shutdown controller into a
// single running system.
package engine

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/taskqueue/orchestrator/internal/alarm"
	"github.com/taskqueue/orchestrator/internal/broker"
	"github.com/taskqueue/orchestrator/internal/config"
	"github.com/taskqueue/orchestrator/internal/health"
	"github.com/taskqueue/orchestrator/internal/logger"
	"github.com/taskqueue/orchestrator/internal/metrics"
	"github.com/taskqueue/orchestrator/internal/model"
	"github.com/taskqueue/orchestrator/internal/queuemanager"
	"github.com/taskqueue/orchestrator/internal/registry"
	"github.com/taskqueue/orchestrator/internal/shutdown"
	"github.com/taskqueue/orchestrator/internal/store"
	"github.com/taskqueue/orchestrator/internal/worker"
)

// Engine owns every long-lived component and their lifecycle.
type Engine struct {
	cfg *config.Config

	Store    *store.Store
	Redis    *redis.Client
	Broker   *broker.RedisBroker
	Registry *registry.Registry
	Manager  *queuemanager.Manager
	Health   *health.Evaluator
	Alarms   *alarm.Engine
	Shutdown *shutdown.Controller
	workers  []*worker.Wrapper
}

// New opens the store and broker connections and assembles every
// component, but starts nothing yet.
func New(ctx context.Context, cfg *config.Config, reg *registry.Registry, externalServices []health.ExternalService) (*Engine, error) {
	st, err := store.Open(ctx, store.Config{
		URL:         cfg.Store.URL,
		PoolSize:    int32(cfg.Store.PoolSize),
		MaxOverflow: int32(cfg.Store.MaxOverflow),
		PoolTimeout: cfg.Store.PoolTimeout,
		PoolRecycle: cfg.Store.PoolRecycle,
	})
	if err != nil {
		return nil, fmt.Errorf("engine: open store: %w", err)
	}

	if err := st.EnsureDefaultQueue(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("engine: ensure default queue: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		MaxRetries:   cfg.Redis.MaxRetries,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})

	b, err := broker.NewRedisBroker(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, *logger.Get())
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("engine: open broker: %w", err)
	}

	manager := queuemanager.New(st, b)

	channels := alarm.ChannelsFromConfig(cfg.Notification)
	alarmEngine := alarm.New(st, channels, cfg.Alarm)

	shutdownController := shutdown.New(st, alarmEngine)
	alarmEngine.ShutdownFn = shutdownController.Trigger

	healthEvaluator := health.New(st, b, cfg.Health, externalServices)
	healthEvaluator.OnQueueHealth(alarmEngine.HandleQueueHealth)
	healthEvaluator.OnComponentHealth(alarmEngine.HandleComponentHealth)

	e := &Engine{
		cfg:      cfg,
		Store:    st,
		Redis:    redisClient,
		Broker:   b,
		Registry: reg,
		Manager:  manager,
		Health:   healthEvaluator,
		Alarms:   alarmEngine,
		Shutdown: shutdownController,
	}

	e.Shutdown.Register(shutdown.Callback{
		Name: "stop-scheduler",
		Fn: func(ctx context.Context) error {
			e.Manager.StopScheduler()
			return nil
		},
	})
	e.Shutdown.Register(shutdown.Callback{
		Name: "stop-health-evaluator",
		Fn: func(ctx context.Context) error {
			e.Health.Stop()
			return nil
		},
	})
	e.Shutdown.Register(shutdown.Callback{
		Name: "stop-workers",
		Fn: func(ctx context.Context) error {
			for _, w := range e.workers {
				w.Stop(ctx)
			}
			return nil
		},
	})
	e.Shutdown.Register(shutdown.Callback{
		Name: "close-broker-and-store",
		Fn: func(ctx context.Context) error {
			e.Broker.Close()
			e.Store.Close()
			return e.Redis.Close()
		},
	})

	return e, nil
}

// SpawnWorkers constructs `count` worker wrappers bound to the shared
// registry, store, and broker, without starting them.
func (e *Engine) SpawnWorkers(count int) {
	for i := 0; i < count; i++ {
		w := worker.New(e.cfg.Worker, e.Redis, e.Broker, e.Store, e.Registry)
		e.workers = append(e.workers, w)
	}
}

// StartControlPlane launches the scheduler and the health evaluator. It
// does not block. Exactly one process in a deployment should own the
// control plane; running it twice double-activates scheduled tasks and
// double-evaluates health.
func (e *Engine) StartControlPlane(ctx context.Context) {
	e.Manager.StartScheduler(ctx)
	e.Health.Start(ctx)
}

// StartWorkers starts every spawned worker wrapper. It does not block.
func (e *Engine) StartWorkers(ctx context.Context) {
	for _, w := range e.workers {
		w.Start(ctx)
	}
	metrics.SetActiveWorkers(float64(len(e.workers)))
}

// Start launches the control plane and every spawned worker. Convenience
// for single-process deployments; split topologies should call
// StartControlPlane and StartWorkers independently.
func (e *Engine) Start(ctx context.Context) {
	e.StartControlPlane(ctx)
	e.StartWorkers(ctx)
}

// Close releases the store, broker, and Redis connections directly,
// without running the emergency shutdown path. Use this for short-lived
// read-only processes (the dashboard and monitor commands); use
// TriggerShutdown for a process that actually owns live workers or a
// scheduler.
func (e *Engine) Close() {
	e.Broker.Close()
	e.Store.Close()
	e.Redis.Close()
}

// TriggerShutdown runs the emergency shutdown path.
func (e *Engine) TriggerShutdown(ctx context.Context, reason string) {
	e.Shutdown.Trigger(ctx, reason)
}

// CurrentStatus returns the last persisted system status row. If none has
// been written yet, it returns the Store's lookup error.
func (e *Engine) CurrentStatus(ctx context.Context) (model.SystemStatus, error) {
	return e.Store.Status.Get(ctx)
}
