package registry

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskqueue/orchestrator/internal/model"
)

func newTask(taskType string) *model.Task {
	return &model.Task{ID: uuid.New(), TaskType: taskType, Status: model.StatusProcessing}
}

func TestRegistry_ExecuteUnknownType(t *testing.T) {
	r := New()
	_, err := r.Execute(context.Background(), newTask("unknown"))
	require.ErrorIs(t, err, ErrHandlerNotFound)
}

func TestRegistry_RegisterOverwrite(t *testing.T) {
	r := New()
	r.Register("echo", func(ctx context.Context, t *model.Task) (json.RawMessage, error) {
		return json.RawMessage(`{"v":1}`), nil
	})
	r.Register("echo", func(ctx context.Context, t *model.Task) (json.RawMessage, error) {
		return json.RawMessage(`{"v":2}`), nil
	})
	out, err := r.Execute(context.Background(), newTask("echo"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":2}`, string(out))
}

func TestRegistry_ExecutePropagatesError(t *testing.T) {
	r := New()
	boom := errors.New("boom")
	r.Register("fail", func(ctx context.Context, t *model.Task) (json.RawMessage, error) {
		return nil, boom
	})
	_, err := r.Execute(context.Background(), newTask("fail"))
	require.ErrorIs(t, err, boom)
}

func TestRegistry_ExecuteRecoversPanic(t *testing.T) {
	r := New()
	r.Register("panicky", func(ctx context.Context, t *model.Task) (json.RawMessage, error) {
		panic("kaboom")
	})
	_, err := r.Execute(context.Background(), newTask("panicky"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")
}

func TestRegistry_ExecuteDeadlineExceeded(t *testing.T) {
	r := New()
	r.Register("slow", func(ctx context.Context, t *model.Task) (json.RawMessage, error) {
		return nil, context.DeadlineExceeded
	})
	_, err := r.Execute(context.Background(), newTask("slow"))
	require.ErrorIs(t, err, ErrTaskTimeout)
}

func TestRegistry_HasHandlerAndTaskTypes(t *testing.T) {
	r := New()
	assert.False(t, r.HasHandler("echo"))
	r.Register("echo", func(ctx context.Context, t *model.Task) (json.RawMessage, error) { return nil, nil })
	assert.True(t, r.HasHandler("echo"))
	assert.Equal(t, []string{"echo"}, r.TaskTypes())
}
