package worker

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/taskqueue/orchestrator/internal/config"
	"github.com/taskqueue/orchestrator/internal/registry"
)

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "busy", StateBusy.String())
	assert.Equal(t, "paused", StatePaused.String())
	assert.Equal(t, "shutting_down", StateShuttingDown.String())
	assert.Equal(t, "unknown", State(99).String())
}

func TestNew_GeneratesIDWhenEmpty(t *testing.T) {
	cfg := config.WorkerConfig{Concurrency: 3}
	w := New(cfg, nil, nil, nil, registry.New())

	assert.NotEmpty(t, w.ID())
	assert.Equal(t, StateIdle, w.State())
	assert.Equal(t, 0, w.ActiveTaskCount())
}

func TestNew_KeepsConfiguredID(t *testing.T) {
	cfg := config.WorkerConfig{ID: "worker-fixed", Concurrency: 1}
	w := New(cfg, nil, nil, nil, registry.New())

	assert.Equal(t, "worker-fixed", w.ID())
}
