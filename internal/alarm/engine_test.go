package alarm

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskqueue/orchestrator/internal/config"
	"github.com/taskqueue/orchestrator/internal/model"
)

func TestClassifyIssue(t *testing.T) {
	cases := []struct {
		issue    string
		wantType model.AlarmType
		wantOK   bool
	}{
		{"queue is backed up with 500 pending tasks", model.AlarmQueueBackup, true},
		{"error rate of 0.42 exceeds threshold", model.AlarmHighErrorRate, true},
		{"processing timeout: no task completed in 600s", model.AlarmProcessingTimeout, true},
		{"3 overdue tasks past their scheduled time", model.AlarmOverdueTasks, true},
		{"something entirely unrelated", "", false},
	}
	for _, c := range cases {
		got, ok := ClassifyIssue(c.issue)
		assert.Equal(t, c.wantOK, ok, c.issue)
		if c.wantOK {
			assert.Equal(t, c.wantType, got, c.issue)
		}
	}
}

func TestDedupKey(t *testing.T) {
	assert.Equal(t, "queue_backup:emails", dedupKey(model.AlarmQueueBackup, "emails"))
	assert.Equal(t, "system_error:system", dedupKey(model.AlarmSystemError, ""))
}

func TestAlarmScope_MatchesDedupKeyFallback(t *testing.T) {
	// The persisted queue_name must agree with the in-memory dedup
	// scope, or a system-scoped alarm never finds its own prior row.
	assert.Equal(t, "emails", alarmScope("emails"))
	assert.Equal(t, "system", alarmScope(""))
}

func TestNew(t *testing.T) {
	cfg := config.AlarmConfig{CooldownSeconds: 300, EscalationThreshold: 5}
	e := New(nil, nil, cfg)
	require.NotNil(t, e)
	assert.NotNil(t, e.lastAlarmTimes)
	assert.NotNil(t, e.consecutiveFailures)
	assert.Equal(t, cfg, e.cfg)
}

// fakeChannel lets tests control latency and failure without a real
// network transport.
type fakeChannel struct {
	name  string
	delay time.Duration
	err   error
	sent  int32
}

func (f *fakeChannel) Name() string { return f.name }

func (f *fakeChannel) Send(ctx context.Context, a *model.Alarm) error {
	select {
	case <-time.After(f.delay):
	case <-ctx.Done():
		return ctx.Err()
	}
	atomic.AddInt32(&f.sent, 1)
	return f.err
}

func TestNotify_FansOutConcurrentlyAndToleratesFailure(t *testing.T) {
	ok := &fakeChannel{name: "ok"}
	bad := &fakeChannel{name: "bad", err: errors.New("webhook rejected")}
	e := New(nil, []NotificationChannel{ok, bad}, config.AlarmConfig{NotificationTimeout: time.Second})

	start := time.Now()
	e.notify(context.Background(), &model.Alarm{AlarmType: model.AlarmSystemError, Severity: model.SeverityCritical})
	elapsed := time.Since(start)

	assert.Less(t, elapsed, 500*time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&ok.sent))
	assert.Equal(t, int32(1), atomic.LoadInt32(&bad.sent))
}

func TestNotify_HonorsPerChannelTimeout(t *testing.T) {
	slow := &fakeChannel{name: "slow", delay: 200 * time.Millisecond}
	e := New(nil, []NotificationChannel{slow}, config.AlarmConfig{NotificationTimeout: 10 * time.Millisecond})

	e.notify(context.Background(), &model.Alarm{})

	assert.Equal(t, int32(0), atomic.LoadInt32(&slow.sent))
}

func TestIsEscalated_CrossesOnKthConsecutiveFailure(t *testing.T) {
	// Scenario S5: consecutive_failures_threshold=3; the 3rd tick yields a
	// critical alarm, not the 4th.
	assert.False(t, isEscalated(1, 3))
	assert.False(t, isEscalated(2, 3))
	assert.True(t, isEscalated(3, 3))
	assert.True(t, isEscalated(4, 3))
}

func TestHandleQueueHealth_ResetsConsecutiveFailuresWhenHealthy(t *testing.T) {
	e := New(nil, nil, config.AlarmConfig{})
	e.consecutiveFailures["emails"] = 4

	e.HandleQueueHealth(context.Background(), model.QueueHealth{QueueName: "emails", IsHealthy: true})

	assert.Equal(t, 0, e.consecutiveFailures["emails"])
}
