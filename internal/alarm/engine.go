// Package alarm implements the Alarm Engine: classification of queue
// health issues into alarm types, dedup/cooldown/escalation bookkeeping,
// Store persistence, and concurrent notification fan-out.
package alarm

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/taskqueue/orchestrator/internal/config"
	"github.com/taskqueue/orchestrator/internal/logger"
	"github.com/taskqueue/orchestrator/internal/metrics"
	"github.com/taskqueue/orchestrator/internal/model"
	"github.com/taskqueue/orchestrator/internal/store"
)

// Engine is the Alarm Engine. ShutdownFn is invoked when a critical alarm
// whose type is in model.ShutdownSet fires; it is set after construction by
// whatever assembles the engine, so this package never imports the
// shutdown controller directly.
type Engine struct {
	store    *store.Store
	channels []NotificationChannel
	cfg      config.AlarmConfig

	mu                  sync.Mutex
	lastAlarmTimes      map[string]time.Time
	consecutiveFailures map[string]int

	ShutdownFn func(ctx context.Context, reason string)
}

func New(st *store.Store, channels []NotificationChannel, cfg config.AlarmConfig) *Engine {
	return &Engine{
		store:               st,
		channels:            channels,
		cfg:                 cfg,
		lastAlarmTimes:      make(map[string]time.Time),
		consecutiveFailures: make(map[string]int),
	}
}

// alarmScope maps an event's queue name to the scope used for both the
// in-memory cooldown key and the persisted alarm's queue_name column,
// falling back to "system" for queue-less (component) events so the two
// always agree on what a queue-less alarm is scoped to.
func alarmScope(queueName string) string {
	if queueName == "" {
		return "system"
	}
	return queueName
}

// dedupKey scopes the cooldown/occurrence bookkeeping to alarm_type:queue,
// falling back to alarm_type:system for queue-less (component) events.
func dedupKey(alarmType model.AlarmType, queueName string) string {
	return string(alarmType) + ":" + alarmScope(queueName)
}

// isEscalated reports whether a consecutive-failure count has crossed the
// escalation threshold: on the Kth consecutive failure, where K is the
// threshold, severity escalates to critical.
func isEscalated(consecutiveFailures, threshold int) bool {
	return consecutiveFailures >= threshold
}

// ClassifyIssue maps a QueueHealth issue string to an alarm type via
// substring matching. Unknown issue text is dropped (ok=false).
func ClassifyIssue(issue string) (model.AlarmType, bool) {
	lower := strings.ToLower(issue)
	switch {
	case strings.Contains(lower, "backup") || strings.Contains(lower, "backed up"):
		return model.AlarmQueueBackup, true
	case strings.Contains(lower, "error rate"):
		return model.AlarmHighErrorRate, true
	case strings.Contains(lower, "processing") && strings.Contains(lower, "timeout"):
		return model.AlarmProcessingTimeout, true
	case strings.Contains(lower, "overdue"):
		return model.AlarmOverdueTasks, true
	default:
		return "", false
	}
}

// HandleQueueHealth is the Health Evaluator's per-queue callback: it
// updates the consecutive-failure counter and raises one event per issue.
func (e *Engine) HandleQueueHealth(ctx context.Context, qh model.QueueHealth) {
	e.mu.Lock()
	if qh.IsHealthy {
		e.consecutiveFailures[qh.QueueName] = 0
		e.mu.Unlock()
		return
	}
	e.consecutiveFailures[qh.QueueName]++
	failures := e.consecutiveFailures[qh.QueueName]
	e.mu.Unlock()

	for _, issue := range qh.Issues {
		alarmType, ok := ClassifyIssue(issue)
		if !ok {
			continue
		}
		severity := model.SeverityWarning
		title := fmt.Sprintf("%s: %s", qh.QueueName, issue)
		description := issue
		if isEscalated(failures, e.cfg.EscalationThreshold) {
			severity = model.SeverityCritical
			title = "CRITICAL: " + title
			description = fmt.Sprintf("%s (consecutive failures: %d)", issue, failures)
		}

		_, err := e.Trigger(ctx, model.Event{
			AlarmType:   alarmType,
			Severity:    severity,
			Title:       title,
			Description: description,
			QueueName:   qh.QueueName,
			ContextData: map[string]any{
				"pending":    qh.Stats.Pending,
				"error_rate": qh.ErrorRate,
				"failures":   failures,
			},
		})
		if err != nil {
			logger.Error().Err(err).Str("queue", qh.QueueName).Str("alarm_type", string(alarmType)).Msg("alarm: failed to trigger queue health alarm")
		}
	}
}

// HandleComponentHealth is the Health Evaluator's per-component callback:
// a critical component raises a SYSTEM_ERROR or RESOURCE_EXHAUSTION alarm.
func (e *Engine) HandleComponentHealth(ctx context.Context, ch model.ComponentHealth) {
	if ch.Status != model.HealthCritical {
		return
	}
	alarmType := model.AlarmSystemError
	if ch.Component == "host_resources" {
		alarmType = model.AlarmResourceExhaustion
	}

	_, err := e.Trigger(ctx, model.Event{
		AlarmType:   alarmType,
		Severity:    model.SeverityCritical,
		Title:       fmt.Sprintf("component %s is critical", ch.Component),
		Description: ch.Message,
		Component:   ch.Component,
		ContextData: ch.Details,
	})
	if err != nil {
		logger.Error().Err(err).Str("component", ch.Component).Msg("alarm: failed to trigger component health alarm")
	}
}

// Trigger classifies, dedups, persists, notifies, and — if escalated to
// critical within the shutdown set — invokes ShutdownFn.
func (e *Engine) Trigger(ctx context.Context, ev model.Event) (*model.Alarm, error) {
	key := dedupKey(ev.AlarmType, ev.QueueName)
	now := time.Now().UTC()

	e.mu.Lock()
	last, seen := e.lastAlarmTimes[key]
	cooldown := time.Duration(e.cfg.CooldownSeconds) * time.Second
	if seen && now.Sub(last) < cooldown {
		e.mu.Unlock()
		return nil, nil
	}
	e.lastAlarmTimes[key] = now
	e.mu.Unlock()

	since := now.Add(-e.cfg.DedupWindow)
	scope := alarmScope(ev.QueueName)

	existing, err := e.store.Alarms.MostRecent(ctx, ev.AlarmType, scope, since)
	var a *model.Alarm
	if err == nil && existing.IsActive {
		existing.OccurrenceCount++
		existing.LastOccurrence = now
		existing.Description = ev.Description
		existing.Severity = ev.Severity
		existing.Title = ev.Title
		if err := e.store.Alarms.Touch(ctx, existing.ID, ev.Description, ev.ContextData, existing.OccurrenceCount, now, ev.Severity, ev.Title); err != nil {
			return nil, fmt.Errorf("alarm: touch existing alarm: %w", err)
		}
		a = existing
	} else {
		a = &model.Alarm{
			AlarmType:       ev.AlarmType,
			Severity:        ev.Severity,
			Title:           ev.Title,
			Description:     ev.Description,
			QueueName:       scope,
			TaskID:          ev.TaskID,
			Component:       ev.Component,
			IsActive:        true,
			TriggeredAt:     now,
			LastOccurrence:  now,
			OccurrenceCount: 1,
			ContextData:     ev.ContextData,
			Tags:            ev.Tags,
			AutoResolve:     ev.AutoResolve,
			RequiresAck:     ev.RequiresAcknowledgment,
		}
		id, err := e.store.Alarms.Insert(ctx, a)
		if err != nil {
			return nil, fmt.Errorf("alarm: insert alarm: %w", err)
		}
		a.ID = id
	}

	metrics.RecordAlarmTriggered(string(ev.AlarmType), string(ev.Severity))
	e.notify(ctx, a)

	if ev.Severity == model.SeverityCritical && model.ShutdownSet[ev.AlarmType] && e.ShutdownFn != nil {
		e.ShutdownFn(ctx, fmt.Sprintf("Critical alarm triggered: %s", ev.Title))
	}
	return a, nil
}

// notify fans an alarm out to every configured channel concurrently, each
// bounded by NotificationTimeout; a channel failure is logged, never
// propagated.
func (e *Engine) notify(ctx context.Context, a *model.Alarm) {
	var wg sync.WaitGroup
	for _, ch := range e.channels {
		wg.Add(1)
		go func(ch NotificationChannel) {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, e.cfg.NotificationTimeout)
			defer cancel()

			outcome := "success"
			if err := ch.Send(cctx, a); err != nil {
				outcome = "failure"
				logger.Warn().Err(err).Str("channel", ch.Name()).Str("alarm_type", string(a.AlarmType)).Msg("alarm: notification channel failed")
			}
			metrics.RecordNotificationSent(ch.Name(), outcome)
		}(ch)
	}
	wg.Wait()
}

// Acknowledge and Resolve are Store mutations only; the engine never
// blocks a trigger on whether an operator has acknowledged a prior alarm.
func (e *Engine) Acknowledge(ctx context.Context, id int64, by string) error {
	return e.store.Alarms.Acknowledge(ctx, id, by, time.Now().UTC())
}

func (e *Engine) Resolve(ctx context.Context, id int64) error {
	return e.store.Alarms.Resolve(ctx, id, time.Now().UTC())
}

func (e *Engine) ActiveAlarms(ctx context.Context) ([]*model.Alarm, error) {
	alarms, err := e.store.Alarms.ActiveAll(ctx)
	if err == nil {
		metrics.SetAlarmsActive(float64(len(alarms)))
	}
	return alarms, err
}
