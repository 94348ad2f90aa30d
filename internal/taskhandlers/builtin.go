// Package taskhandlers provides a handful of built-in task_type handlers
// useful for smoke-testing a running engine, plus the registration helper
// that wires them into a registry.Registry.
package taskhandlers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/taskqueue/orchestrator/internal/model"
	"github.com/taskqueue/orchestrator/internal/registry"
)

// RegisterBuiltins binds the demo handlers below into reg.
func RegisterBuiltins(reg *registry.Registry) {
	reg.Register("echo", Echo)
	reg.Register("sleep", Sleep)
}

// Echo returns its payload unchanged as the task result.
func Echo(ctx context.Context, t *model.Task) (json.RawMessage, error) {
	if len(t.Payload) == 0 {
		return json.RawMessage(`{}`), nil
	}
	return t.Payload, nil
}

type sleepPayload struct {
	Milliseconds int `json:"milliseconds"`
}

// Sleep blocks for the duration given in its payload's "milliseconds"
// field, honoring context cancellation, then returns how long it slept.
func Sleep(ctx context.Context, t *model.Task) (json.RawMessage, error) {
	var p sleepPayload
	if len(t.Payload) > 0 {
		if err := json.Unmarshal(t.Payload, &p); err != nil {
			return nil, fmt.Errorf("taskhandlers: invalid sleep payload: %w", err)
		}
	}

	select {
	case <-time.After(time.Duration(p.Milliseconds) * time.Millisecond):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return json.Marshal(map[string]int{"slept_ms": p.Milliseconds})
}
