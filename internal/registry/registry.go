// Package registry maps task_type strings to the handler functions that
// execute them, generalizing the single executor.Executor map in the
// teacher repo to a dedicated, concurrency-safe component workers and the
// engine both depend on.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/taskqueue/orchestrator/internal/logger"
	"github.com/taskqueue/orchestrator/internal/model"
)

// Handler processes one task and returns its result payload.
type Handler func(ctx context.Context, t *model.Task) (json.RawMessage, error)

var (
	ErrHandlerNotFound = errors.New("registry: no handler registered for task type")
	ErrTaskTimeout     = errors.New("registry: task execution timed out")
	ErrTaskCanceled    = errors.New("registry: task execution canceled")
)

// Registry is the Task Registry: an idempotent task_type -> Handler map
// safe for concurrent registration and lookup.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func New() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds taskType to handler. Registering a type a second time
// overwrites the old handler and logs a warning rather than failing,
// since a handler set is usually built up once at startup from independent
// registration calls and a silent failure there would be worse than a
// noisy overwrite.
func (r *Registry) Register(taskType string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[taskType]; exists {
		logger.Warn().Str("task_type", taskType).Msg("registry: overwriting existing handler")
	}
	r.handlers[taskType] = handler
}

func (r *Registry) HasHandler(taskType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[taskType]
	return ok
}

// TaskTypes lists every registered task_type.
func (r *Registry) TaskTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	return out
}

// Execute runs the handler bound to t.TaskType, converting a panic into an
// error so one misbehaving handler cannot take a worker goroutine down
// with it.
func (r *Registry) Execute(ctx context.Context, t *model.Task) (result json.RawMessage, err error) {
	r.mu.RLock()
	handler, ok := r.handlers[t.TaskType]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrHandlerNotFound, t.TaskType)
	}

	defer func() {
		if rec := recover(); rec != nil {
			stack := debug.Stack()
			logger.Error().
				Str("task_id", t.ID.String()).
				Str("task_type", t.TaskType).
				Interface("panic", rec).
				Str("stack", string(stack)).
				Msg("task handler panicked")
			err = fmt.Errorf("registry: handler panicked: %v", rec)
		}
	}()

	log := logger.WithTask(t.ID.String())
	log.Debug().Str("task_type", t.TaskType).Int("attempt", t.RetryCount).Msg("executing task")

	start := time.Now()
	result, err = handler(ctx, t)
	duration := time.Since(start)

	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			log.Warn().Dur("duration", duration).Msg("task timed out")
			return nil, ErrTaskTimeout
		case errors.Is(err, context.Canceled):
			log.Warn().Dur("duration", duration).Msg("task canceled")
			return nil, ErrTaskCanceled
		default:
			log.Error().Err(err).Dur("duration", duration).Msg("task handler returned an error")
			return nil, err
		}
	}

	log.Debug().Dur("duration", duration).Msg("task executed successfully")
	return result, nil
}
