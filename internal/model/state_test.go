package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_IsFinal(t *testing.T) {
	final := []Status{StatusCompleted, StatusFailed, StatusCancelled}
	nonFinal := []Status{StatusPending, StatusProcessing, StatusRetrying}

	for _, s := range final {
		assert.True(t, s.IsFinal(), "%s should be final", s)
	}
	for _, s := range nonFinal {
		assert.False(t, s.IsFinal(), "%s should not be final", s)
	}
}

func TestStatus_CanTransitionTo(t *testing.T) {
	assert.True(t, StatusPending.CanTransitionTo(StatusProcessing))
	assert.True(t, StatusProcessing.CanTransitionTo(StatusCompleted))
	assert.True(t, StatusRetrying.CanTransitionTo(StatusProcessing))
	assert.True(t, StatusFailed.CanTransitionTo(StatusPending))
	assert.False(t, StatusCompleted.CanTransitionTo(StatusProcessing))
	assert.False(t, StatusPending.CanTransitionTo(StatusCompleted))
}

func TestStateMachine_Start_StampsStartedAtOnce(t *testing.T) {
	task := &Task{Status: StatusPending}
	sm := NewStateMachine(task)

	first := time.Now().UTC()
	require.NoError(t, sm.Start("worker-1", first))
	require.NotNil(t, task.StartedAt)
	assert.Equal(t, "worker-1", task.WorkerID)

	// A transition back through retrying->processing must not re-stamp
	// started_at must be set exactly once.
	task.Status = StatusRetrying
	later := first.Add(time.Minute)
	require.NoError(t, sm.Start("worker-2", later))
	assert.Equal(t, first, *task.StartedAt)
}

func TestStateMachine_Complete_StampsCompletedAtOnce(t *testing.T) {
	task := &Task{Status: StatusProcessing}
	sm := NewStateMachine(task)
	now := time.Now().UTC()

	require.NoError(t, sm.Complete([]byte(`{"ok":true}`), now))
	assert.Equal(t, StatusCompleted, task.Status)
	assert.Equal(t, now, *task.CompletedAt)
	assert.True(t, task.Status.IsFinal())
}

func TestStateMachine_Fail_OnExhaustedRetryBudget(t *testing.T) {
	task := &Task{Status: StatusProcessing, RetryCount: 2, MaxRetries: 2}
	require.False(t, task.CanRetry())
	sm := NewStateMachine(task)

	require.NoError(t, sm.Fail("boom", "trace", time.Now().UTC()))
	assert.Equal(t, StatusFailed, task.Status)
	assert.True(t, task.Status.IsFinal())
}

func TestStateMachine_Requeue_FromFailed(t *testing.T) {
	task := &Task{Status: StatusFailed, RetryCount: 3, MaxRetries: 3, ErrorMessage: "boom"}
	sm := NewStateMachine(task)

	require.NoError(t, sm.Requeue(time.Now().UTC()))
	assert.Equal(t, StatusPending, task.Status)
	assert.Equal(t, 0, task.RetryCount)
	assert.Empty(t, task.ErrorMessage)
}

func TestStateMachine_Retry_StaysUnderBudget(t *testing.T) {
	task := &Task{Status: StatusProcessing, RetryCount: 0, MaxRetries: 3}
	sm := NewStateMachine(task)

	require.NoError(t, sm.Retry("boom", "trace", time.Now().UTC()))
	assert.Equal(t, StatusRetrying, task.Status)
	assert.LessOrEqual(t, task.RetryCount, task.MaxRetries)
}

func TestStateMachine_Cancel_FromNonTerminal(t *testing.T) {
	task := &Task{Status: StatusPending}
	sm := NewStateMachine(task)
	require.NoError(t, sm.Cancel(time.Now().UTC()))
	assert.Equal(t, StatusCancelled, task.Status)
}

func TestStateMachine_InvalidTransition(t *testing.T) {
	task := &Task{Status: StatusCompleted}
	sm := NewStateMachine(task)
	err := sm.Cancel(time.Now().UTC())
	assert.ErrorIs(t, err, ErrInvalidTransition)
}
