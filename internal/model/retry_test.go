package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryPolicy_Backoff_ExponentialWithCap(t *testing.T) {
	p := RetryPolicy{InitialBackoff: time.Second, MaxBackoff: 3600 * time.Second, JitterFactor: 0}

	assert.Equal(t, time.Second, p.Backoff(0))
	assert.Equal(t, 2*time.Second, p.Backoff(1))
	assert.Equal(t, 4*time.Second, p.Backoff(2))

	// Large attempts must be capped at MaxBackoff.
	assert.Equal(t, 3600*time.Second, p.Backoff(20))
}

func TestRetryPolicy_Backoff_JitterStaysPositive(t *testing.T) {
	p := RetryPolicy{InitialBackoff: time.Second, MaxBackoff: time.Minute, JitterFactor: 0.5}
	for i := 0; i < 50; i++ {
		d := p.Backoff(i % 10)
		assert.GreaterOrEqual(t, d, time.Duration(0))
	}
}

func TestTask_CanRetry(t *testing.T) {
	tk := &Task{RetryCount: 2, MaxRetries: 3}
	assert.True(t, tk.CanRetry())
	tk.RetryCount = 3
	assert.False(t, tk.CanRetry())
}

func TestTask_IsOverdue(t *testing.T) {
	now := time.Now().UTC()
	past := now.Add(-time.Second)
	future := now.Add(time.Second)

	overdue := &Task{Status: StatusProcessing, TimeoutAt: &past}
	assert.True(t, overdue.IsOverdue(now))

	notYet := &Task{Status: StatusProcessing, TimeoutAt: &future}
	assert.False(t, notYet.IsOverdue(now))

	notProcessing := &Task{Status: StatusCompleted, TimeoutAt: &past}
	assert.False(t, notProcessing.IsOverdue(now))
}

func TestTask_Duration(t *testing.T) {
	started := time.Now().UTC()
	completed := started.Add(2 * time.Second)
	tk := &Task{StartedAt: &started, CompletedAt: &completed}

	d, ok := tk.Duration()
	assert.True(t, ok)
	assert.Equal(t, 2*time.Second, d)

	tk2 := &Task{}
	_, ok2 := tk2.Duration()
	assert.False(t, ok2)
}
