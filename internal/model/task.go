// Package model defines the durable entities of the task queue engine:
// Queue, Task, QueueMetrics, Alarm, SystemStatus and AuditLog, plus the
// task lifecycle state machine and retry policy that operate on them.
package model

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Priority is a dense small-integer priority band used both for queue
// ordering and for the broker's native priority value.
type Priority int

const (
	PriorityLow      Priority = 1
	PriorityNormal   Priority = 5
	PriorityHigh     Priority = 8
	PriorityCritical Priority = 10
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "normal"
	}
}

// StreamName returns the broker stream/queue name this priority is routed to.
func (p Priority) StreamName(prefix string) string {
	return prefix + ":" + p.String()
}

// ParsePriority parses a priority token, defaulting to normal on an
// unrecognized value.
func ParsePriority(s string) Priority {
	switch s {
	case "low":
		return PriorityLow
	case "normal":
		return PriorityNormal
	case "high":
		return PriorityHigh
	case "critical":
		return PriorityCritical
	default:
		return PriorityNormal
	}
}

// AllPriorities lists priorities from highest to lowest, the order workers
// poll broker streams in.
func AllPriorities() []Priority {
	return []Priority{PriorityCritical, PriorityHigh, PriorityNormal, PriorityLow}
}

// Status is the task lifecycle status.
type Status string

const (
	StatusPending   Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusRetrying  Status = "retrying"
	StatusCancelled Status = "cancelled"
)

// Task is the durable unit of work tracked end to end: submission,
// execution attempts, outcome, and the bookkeeping needed to retry or
// time it out.
type Task struct {
	ID             uuid.UUID
	QueueID        int64
	QueueName      string
	TaskType       string
	TaskName       string
	Payload        json.RawMessage
	Result         json.RawMessage
	Status         Status
	Priority       Priority
	RetryCount     int
	MaxRetries     int
	ErrorMessage   string
	ErrorTraceback string
	CreatedAt      time.Time
	ScheduledAt    *time.Time
	StartedAt      *time.Time
	CompletedAt    *time.Time
	LastErrorAt    *time.Time
	TimeoutAt      *time.Time
	CorrelationID  string
	WorkerID       string
	Tags           map[string]string
	UpdatedAt      time.Time
}

// Duration returns completed_at - started_at when both are set.
func (t *Task) Duration() (time.Duration, bool) {
	if t.StartedAt == nil || t.CompletedAt == nil {
		return 0, false
	}
	return t.CompletedAt.Sub(*t.StartedAt), true
}

// IsOverdue reports status=processing && now > timeout_at.
func (t *Task) IsOverdue(now time.Time) bool {
	return t.Status == StatusProcessing && t.TimeoutAt != nil && now.After(*t.TimeoutAt)
}

// CanRetry reports whether the retry budget has not been exhausted.
func (t *Task) CanRetry() bool {
	return t.RetryCount < t.MaxRetries
}

// Submission is the input to the Queue Manager's submit operation.
type Submission struct {
	TaskType      string
	TaskName      string
	Payload       json.RawMessage
	QueueName     string
	Priority      Priority
	CorrelationID string
	ScheduledAt   *time.Time
	TimeoutSeconds *int
	RetryLimit    *int
	Tags          map[string]string
}

var (
	ErrInvalidTransition = errors.New("model: invalid task state transition")
	ErrTaskNotFound      = errors.New("model: task not found")
)
