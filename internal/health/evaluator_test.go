package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/taskqueue/orchestrator/internal/config"
	"github.com/taskqueue/orchestrator/internal/model"
)

func TestQueueErrorRate(t *testing.T) {
	assert.Equal(t, 0.0, queueErrorRate(model.QueueStats{}))
	assert.Equal(t, 0.5, queueErrorRate(model.QueueStats{Completed: 5, Failed: 5}))
	assert.InDelta(t, 0.2, queueErrorRate(model.QueueStats{Completed: 8, Failed: 2}), 0.001)
}

func TestQueueIssues(t *testing.T) {
	cfg := config.HealthConfig{
		PendingWarnThreshold:   100,
		ErrorRateWarnThreshold: 0.1,
		OverdueWarnCount:       5,
	}

	t.Run("healthy queue has no issues", func(t *testing.T) {
		issues := queueIssues(model.QueueStats{Pending: 10, Completed: 90, Failed: 1}, 0.01, ptr(time.Now()), 0, time.Hour, cfg)
		assert.Empty(t, issues)
	})

	t.Run("backlog triggers an issue", func(t *testing.T) {
		issues := queueIssues(model.QueueStats{Pending: 500}, 0, nil, 0, time.Hour, cfg)
		assert.Len(t, issues, 1)
		assert.Contains(t, issues[0], "backed up")
	})

	t.Run("high error rate triggers an issue", func(t *testing.T) {
		issues := queueIssues(model.QueueStats{Pending: 1}, 0.5, nil, 0, time.Hour, cfg)
		assert.Contains(t, issues[0], "error rate")
	})

	t.Run("stale processing triggers an issue", func(t *testing.T) {
		stale := time.Now().Add(-2 * time.Hour)
		issues := queueIssues(model.QueueStats{}, 0, &stale, 0, time.Hour, cfg)
		assert.Contains(t, issues[0], "processing timeout")
	})

	t.Run("overdue tasks trigger an issue", func(t *testing.T) {
		issues := queueIssues(model.QueueStats{}, 0, nil, 20, time.Hour, cfg)
		assert.Contains(t, issues[0], "overdue")
	})

	t.Run("multiple issues accumulate", func(t *testing.T) {
		stale := time.Now().Add(-2 * time.Hour)
		issues := queueIssues(model.QueueStats{Pending: 500}, 0.9, &stale, 20, time.Hour, cfg)
		assert.Len(t, issues, 4)
	})
}

func TestClassifyResourceStatus(t *testing.T) {
	cfg := config.HealthConfig{CPUWarnPercent: 85, MemWarnPercent: 85, DiskWarnPercent: 90}

	t.Run("within bounds is healthy", func(t *testing.T) {
		status, issues := classifyResourceStatus(10, 20, 30, cfg)
		assert.Equal(t, model.HealthHealthy, status)
		assert.Empty(t, issues)
	})

	t.Run("crossing warn threshold degrades", func(t *testing.T) {
		status, issues := classifyResourceStatus(90, 20, 30, cfg)
		assert.Equal(t, model.HealthDegraded, status)
		assert.Len(t, issues, 1)
	})

	t.Run("crossing critical ceiling is critical", func(t *testing.T) {
		status, _ := classifyResourceStatus(96, 20, 30, cfg)
		assert.Equal(t, model.HealthCritical, status)
	})

	t.Run("disk has its own critical ceiling", func(t *testing.T) {
		status, _ := classifyResourceStatus(10, 10, 99, cfg)
		assert.Equal(t, model.HealthCritical, status)
	})
}

func ptr(t time.Time) *time.Time { return &t }
