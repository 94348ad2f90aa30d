// Package shutdown implements the Shutdown Controller: a reentrancy-safe
// emergency-stop path that marks the system non-operational, runs
// registered cleanup callbacks in order, and emits a final informational
// alarm.
package shutdown

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/taskqueue/orchestrator/internal/alarm"
	"github.com/taskqueue/orchestrator/internal/logger"
	"github.com/taskqueue/orchestrator/internal/metrics"
	"github.com/taskqueue/orchestrator/internal/model"
	"github.com/taskqueue/orchestrator/internal/store"
)

// Callback is one registered cleanup step: stop accepting new work, drain
// workers, close connections. Its own deadline bounds its execution; a
// callback that errors or times out is logged and skipped, never aborting
// the remaining callbacks.
type Callback struct {
	Name    string
	Timeout time.Duration
	Fn      func(ctx context.Context) error
}

// Controller runs at most one shutdown in its lifetime; every Trigger call
// after the first, whether or not that one has finished, is a no-op.
type Controller struct {
	store  *store.Store
	alarms *alarm.Engine

	mu         sync.Mutex
	callbacks  []Callback
	inProgress int32
}

func New(st *store.Store, alarms *alarm.Engine) *Controller {
	return &Controller{store: st, alarms: alarms}
}

// Register adds a cleanup callback, invoked in registration order.
func (c *Controller) Register(cb Callback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callbacks = append(c.callbacks, cb)
}

// InProgress reports whether a shutdown has been triggered; it stays true
// after the shutdown sequence has finished.
func (c *Controller) InProgress() bool {
	return atomic.LoadInt32(&c.inProgress) == 1
}

// Trigger begins an emergency shutdown. It is safe to call concurrently
// and from the Alarm Engine's critical-escalation path; only the first
// caller's invocation actually runs.
func (c *Controller) Trigger(ctx context.Context, reason string) {
	if !atomic.CompareAndSwapInt32(&c.inProgress, 0, 1) {
		logger.Warn().Str("reason", reason).Msg("shutdown: trigger ignored, shutdown already in progress")
		return
	}

	logger.Error().Str("reason", reason).Msg("shutdown: emergency shutdown triggered")
	metrics.RecordShutdownTriggered()

	now := time.Now().UTC()
	if err := c.store.Status.MarkShutdown(ctx, reason, now); err != nil {
		logger.Error().Err(err).Msg("shutdown: failed to persist shutdown status")
	}

	c.mu.Lock()
	callbacks := append([]Callback(nil), c.callbacks...)
	c.mu.Unlock()

	for _, cb := range callbacks {
		c.runCallback(ctx, cb)
	}

	if c.alarms != nil {
		_, err := c.alarms.Trigger(ctx, model.Event{
			AlarmType:   model.AlarmSystemShutdown,
			Severity:    model.SeverityInfo,
			Title:       "system shutdown complete",
			Description: reason,
			AutoResolve: true,
		})
		if err != nil {
			logger.Error().Err(err).Msg("shutdown: failed to emit shutdown alarm")
		}
	}
}

func (c *Controller) runCallback(ctx context.Context, cb Callback) {
	timeout := cb.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmtPanicError(r)
			}
		}()
		done <- cb.Fn(cctx)
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.Error().Err(err).Str("callback", cb.Name).Msg("shutdown: callback failed")
		} else {
			logger.Info().Str("callback", cb.Name).Msg("shutdown: callback completed")
		}
	case <-cctx.Done():
		logger.Error().Str("callback", cb.Name).Msg("shutdown: callback timed out")
	}
}

type panicError struct{ v any }

func (e panicError) Error() string { return fmt.Sprintf("panic in shutdown callback: %v", e.v) }

func fmtPanicError(v any) error { return panicError{v} }
