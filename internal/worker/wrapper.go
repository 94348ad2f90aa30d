// Package worker implements the Worker Wrapper: the goroutine pool that
// polls the Broker for deliveries, executes them through the Task
// Registry, and persists the outcome to the Store before acknowledging
// the broker — in that order, so a crash between execution and
// acknowledgement only causes a redelivery, never a silently lost result.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/taskqueue/orchestrator/internal/broker"
	"github.com/taskqueue/orchestrator/internal/config"
	"github.com/taskqueue/orchestrator/internal/logger"
	"github.com/taskqueue/orchestrator/internal/metrics"
	"github.com/taskqueue/orchestrator/internal/model"
	"github.com/taskqueue/orchestrator/internal/registry"
	"github.com/taskqueue/orchestrator/internal/store"
)

// State is the Wrapper's current operational state.
type State int

const (
	StateIdle State = iota
	StateBusy
	StatePaused
	StateShuttingDown
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBusy:
		return "busy"
	case StatePaused:
		return "paused"
	case StateShuttingDown:
		return "shutting_down"
	default:
		return "unknown"
	}
}

// Wrapper owns a pool of goroutines that poll the Broker, run handlers via
// the Task Registry, and persist lifecycle transitions to the Store.
type Wrapper struct {
	id        string
	broker    broker.Port
	store     *store.Store
	registry  *registry.Registry
	redis     *redis.Client
	heartbeat *Heartbeat
	cfg       config.WorkerConfig

	state   State
	stateMu sync.RWMutex

	currentTasks   sync.Map
	wg             sync.WaitGroup
	stopCh         chan struct{}
	pauseCh        chan struct{}
	resumeCh       chan struct{}
	concurrencySem chan struct{}

	retryPolicy model.RetryPolicy
}

type runningTask struct {
	taskID    string
	cancel    context.CancelFunc
	startedAt time.Time
}

// New builds a Wrapper. redisClient backs the heartbeat and admin
// pause-flag mechanism; it is separate from the broker.Port abstraction
// because liveness bookkeeping is not part of the task-transport contract.
func New(cfg config.WorkerConfig, redisClient *redis.Client, b broker.Port, st *store.Store, reg *registry.Registry) *Wrapper {
	id := cfg.ID
	if id == "" {
		id = fmt.Sprintf("worker-%s", uuid.New().String()[:8])
	}

	w := &Wrapper{
		id:             id,
		broker:         b,
		store:          st,
		registry:       reg,
		redis:          redisClient,
		cfg:            cfg,
		state:          StateIdle,
		stopCh:         make(chan struct{}),
		pauseCh:        make(chan struct{}),
		resumeCh:       make(chan struct{}),
		concurrencySem: make(chan struct{}, cfg.Concurrency),
		retryPolicy:    model.DefaultRetryPolicy(),
	}
	w.heartbeat = NewHeartbeat(redisClient, id, cfg.HeartbeatInterval, cfg.HeartbeatTimeout)
	return w
}

func (w *Wrapper) ID() string { return w.id }

func (w *Wrapper) State() State {
	w.stateMu.RLock()
	defer w.stateMu.RUnlock()
	return w.state
}

func (w *Wrapper) setState(s State) {
	w.stateMu.Lock()
	w.state = s
	w.stateMu.Unlock()
	w.heartbeat.UpdateState(s.String())
}

// ActiveTaskCount returns the number of deliveries currently executing.
func (w *Wrapper) ActiveTaskCount() int {
	n := 0
	w.currentTasks.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Start spawns cfg.Concurrency worker goroutines plus the orphan-recovery
// loop, and begins publishing heartbeats.
func (w *Wrapper) Start(ctx context.Context) {
	w.setState(StateBusy)
	w.heartbeat.UpdateConcurrency(w.cfg.Concurrency)
	w.heartbeat.Start(ctx)

	for i := 0; i < w.cfg.Concurrency; i++ {
		w.wg.Add(1)
		go w.loop(ctx, i)
	}

	w.wg.Add(1)
	go w.recoveryLoop(ctx)

	metrics.SetActiveWorkers(float64(w.cfg.Concurrency))
	logger.Info().Str("worker_id", w.id).Int("concurrency", w.cfg.Concurrency).Msg("worker wrapper started")
}

// Stop signals every goroutine to exit and waits up to ShutdownTimeout for
// in-flight deliveries to finish.
func (w *Wrapper) Stop(ctx context.Context) {
	w.setState(StateShuttingDown)
	close(w.stopCh)

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info().Str("worker_id", w.id).Msg("worker wrapper stopped gracefully")
	case <-time.After(w.cfg.ShutdownTimeout):
		logger.Warn().Str("worker_id", w.id).Msg("worker wrapper shutdown timed out, in-flight tasks abandoned")
	case <-ctx.Done():
		logger.Warn().Str("worker_id", w.id).Msg("worker wrapper shutdown canceled")
	}

	w.heartbeat.Stop()
}

// Pause stops this worker from fetching new deliveries, without affecting
// in-flight ones.
func (w *Wrapper) Pause() {
	w.stateMu.Lock()
	defer w.stateMu.Unlock()
	if w.state == StateBusy {
		w.state = StatePaused
		close(w.pauseCh)
		w.pauseCh = make(chan struct{})
		w.heartbeat.UpdateState(StatePaused.String())
		logger.Info().Str("worker_id", w.id).Msg("worker wrapper paused")
	}
}

func (w *Wrapper) Resume() {
	w.stateMu.Lock()
	defer w.stateMu.Unlock()
	if w.state == StatePaused {
		w.state = StateBusy
		close(w.resumeCh)
		w.resumeCh = make(chan struct{})
		w.heartbeat.UpdateState(StateBusy.String())
		logger.Info().Str("worker_id", w.id).Msg("worker wrapper resumed")
	}
}

func (w *Wrapper) loop(ctx context.Context, num int) {
	defer w.wg.Done()
	log := logger.WithWorker(w.id)
	log.Info().Int("worker_num", num).Msg("worker goroutine started")

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		default:
		}

		if w.State() == StatePaused {
			select {
			case <-w.resumeCh:
			case <-w.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}

		if paused, _ := IsPausedRemote(ctx, w.redis, w.id); paused {
			select {
			case <-time.After(1 * time.Second):
				continue
			case <-w.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}

		select {
		case w.concurrencySem <- struct{}{}:
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		}

		if err := w.pollAndProcess(ctx); err != nil {
			log.Error().Err(err).Msg("error processing delivery")
		}
		<-w.concurrencySem
	}
}

func (w *Wrapper) pollAndProcess(ctx context.Context) error {
	d, err := w.broker.Poll(ctx, w.id, 2*time.Second)
	if err != nil {
		return fmt.Errorf("worker: poll: %w", err)
	}
	if d == nil {
		return nil
	}
	w.process(ctx, d)
	return nil
}

// process executes one delivery, persisting its outcome before
// acknowledging the broker. A delivery whose Task row is absent (the
// broker-then-store submit ordering left an orphaned execution) is logged
// and acknowledged without being run.
func (w *Wrapper) process(ctx context.Context, d *broker.Delivery) {
	id, err := uuid.Parse(d.TaskID)
	if err != nil {
		logger.Error().Err(err).Str("task_id", d.TaskID).Msg("worker: delivery carried an unparsable task id")
		_ = w.broker.Ack(ctx, d)
		return
	}

	t, err := w.store.Tasks.ByID(ctx, id)
	if err != nil {
		logger.Warn().Err(err).Str("task_id", d.TaskID).Msg("worker: delivery has no matching task row, treating as orphaned execution")
		_ = w.broker.Ack(ctx, d)
		return
	}
	if t.Status.IsFinal() {
		// Already resolved by a prior delivery of the same execution
		// (e.g. a redelivery racing a just-completed ack).
		_ = w.broker.Ack(ctx, d)
		return
	}

	taskCtx := ctx
	var cancel context.CancelFunc
	if t.TimeoutAt != nil {
		taskCtx, cancel = context.WithDeadline(ctx, *t.TimeoutAt)
	} else {
		taskCtx, cancel = context.WithTimeout(ctx, 5*time.Minute)
	}
	defer cancel()

	rt := &runningTask{taskID: t.ID.String(), cancel: cancel, startedAt: time.Now()}
	w.currentTasks.Store(t.ID.String(), rt)
	defer w.currentTasks.Delete(t.ID.String())
	w.heartbeat.UpdateActiveTasks(w.ActiveTaskCount())

	now := time.Now().UTC()
	sm := model.NewStateMachine(t)
	if err := sm.Start(w.id, now); err != nil {
		logger.Error().Err(err).Str("task_id", t.ID.String()).Msg("worker: failed to transition task to processing")
		_ = w.broker.Ack(ctx, d)
		return
	}
	if err := w.store.Tasks.UpdateTransition(ctx, t); err != nil {
		logger.Error().Err(err).Str("task_id", t.ID.String()).Msg("worker: failed to persist processing transition")
		_ = w.broker.Ack(ctx, d)
		return
	}
	_ = w.broker.ReportResult(ctx, d.ExecutionID, broker.ExecutionStatus{State: broker.ExecStarted})

	result, execErr := w.registry.Execute(taskCtx, t)
	duration := time.Since(rt.startedAt)

	if execErr != nil {
		w.handleFailure(ctx, t, d, execErr)
		metrics.RecordTaskCompletion(t.TaskType, "failed", duration.Seconds())
		return
	}
	w.handleSuccess(ctx, t, d, result)
	metrics.RecordTaskCompletion(t.TaskType, "success", duration.Seconds())
}

func (w *Wrapper) handleSuccess(ctx context.Context, t *model.Task, d *broker.Delivery, result []byte) {
	log := logger.WithTask(t.ID.String())
	sm := model.NewStateMachine(t)
	now := time.Now().UTC()

	if err := sm.Complete(result, now); err != nil {
		log.Error().Err(err).Msg("worker: failed to transition task to completed")
		return
	}
	if err := w.store.Tasks.UpdateTransition(ctx, t); err != nil {
		log.Error().Err(err).Msg("worker: failed to persist completed transition")
		return
	}

	_ = w.broker.ReportResult(ctx, d.ExecutionID, broker.ExecutionStatus{
		State:      broker.ExecSuccess,
		Result:     result,
		Successful: true,
	})
	if err := w.broker.Ack(ctx, d); err != nil {
		log.Error().Err(err).Msg("worker: failed to ack completed delivery")
	}
	log.Info().Str("task_type", t.TaskType).Int("attempts", t.RetryCount+1).Msg("task completed")
}

func (w *Wrapper) handleFailure(ctx context.Context, t *model.Task, d *broker.Delivery, execErr error) {
	log := logger.WithTask(t.ID.String())
	log.Error().Err(execErr).Msg("task execution failed")

	sm := model.NewStateMachine(t)
	nowT := time.Now().UTC()
	willRetry := t.CanRetry()

	var transitionErr error
	if willRetry {
		transitionErr = sm.Retry(execErr.Error(), "", nowT)
	} else {
		transitionErr = sm.Fail(execErr.Error(), "", nowT)
	}
	if transitionErr != nil {
		log.Error().Err(transitionErr).Msg("worker: failed to transition task on failure")
		return
	}
	if err := w.store.Tasks.UpdateTransition(ctx, t); err != nil {
		log.Error().Err(err).Msg("worker: failed to persist retry/failed transition")
		return
	}

	_ = w.broker.ReportResult(ctx, d.ExecutionID, broker.ExecutionStatus{
		State:     broker.ExecFailure,
		Traceback: execErr.Error(),
		Failed:    true,
	})

	if willRetry {
		metrics.RecordTaskRetry(t.TaskType)
		backoff := w.retryPolicy.Backoff(t.RetryCount - 1)
		eta := nowT.Add(backoff)
		if _, err := w.broker.Submit(ctx, t.ID.String(), t.Payload, t.QueueName, t.Priority, &eta, nil); err != nil {
			log.Error().Err(err).Msg("worker: failed to re-submit task for retry")
		} else {
			log.Warn().Dur("backoff", backoff).Int("attempt", t.RetryCount).Msg("task scheduled for retry")
		}
	} else {
		metrics.IncrementDLQAdded()
		log.Warn().Msg("task failed, retry budget exhausted")
	}

	if err := w.broker.Ack(ctx, d); err != nil {
		log.Error().Err(err).Msg("worker: failed to ack failed delivery")
	}
}

// recoveryLoop reclaims deliveries abandoned by crashed workers and
// reprocesses them under this worker's identity.
func (w *Wrapper) recoveryLoop(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.cfg.HeartbeatInterval * 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.recoverOrphaned(ctx)
		}
	}
}

func (w *Wrapper) recoverOrphaned(ctx context.Context) {
	deliveries, err := w.broker.ClaimOrphaned(ctx, w.id, w.cfg.HeartbeatTimeout*3)
	if err != nil {
		logger.Error().Err(err).Str("worker_id", w.id).Msg("worker: failed to claim orphaned deliveries")
		return
	}
	for _, d := range deliveries {
		logger.Info().Str("task_id", d.TaskID).Str("worker_id", w.id).Msg("recovered orphaned delivery")
		w.process(ctx, d)
	}
}
