package queuemanager

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	m := New(nil, nil)

	assert.NotNil(t, m)
	assert.Nil(t, m.store)
	assert.Nil(t, m.broker)
	assert.Equal(t, 1*time.Second, m.pollInterval)
	assert.NotNil(t, m.schedulerStop)
}

func TestSentinelErrors(t *testing.T) {
	assert.EqualError(t, ErrQueueInactive, "queuemanager: target queue is not active")
	assert.EqualError(t, ErrNotRequeueable, "queuemanager: task is not failed")
	assert.EqualError(t, ErrNotCancellable, "queuemanager: task is already in a terminal state")
}
