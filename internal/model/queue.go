package model

import "time"

// Queue is a named logical stream of tasks with its own priority,
// concurrency, retry, and timeout policy.
type Queue struct {
	ID             int64
	Name           string
	Priority       Priority
	IsActive       bool
	MaxWorkers     int
	RetryLimit     int
	TimeoutSeconds int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// DefaultQueueName is auto-created on engine init so submissions with no
// explicit queue always have somewhere to land.
const DefaultQueueName = "default"

// QueueStats is the single-round-trip status breakdown returned by
// Store.Tasks.QueueStats.
type QueueStats struct {
	QueueID    int64
	Pending    int64
	Processing int64
	Completed  int64
	Failed     int64
	Retrying   int64
	Cancelled  int64
}

// QueueMetricsSample is one append-only row per queue per health tick.
type QueueMetricsSample struct {
	ID                  int64
	QueueID             int64
	Pending             int64
	Processing          int64
	Completed           int64
	Failed              int64
	AvgProcessingSeconds float64
	MinProcessingSeconds float64
	MaxProcessingSeconds float64
	ErrorRate           float64
	SuccessRate         float64
	HostCPUPercent      float64
	HostMemPercent      float64
	HostDiskPercent     float64
	SampledAt           time.Time
}
