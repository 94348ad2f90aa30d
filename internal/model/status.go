package model

import "time"

// HealthStatus is the per-component / overall status vocabulary, ordered
// worst-first for max-reduction.
type HealthStatus string

const (
	HealthCritical HealthStatus = "critical"
	HealthDegraded HealthStatus = "degraded"
	HealthHealthy  HealthStatus = "healthy"
	HealthUnknown  HealthStatus = "unknown"
)

// rank orders statuses so the worst of a set can be picked with a max.
var rank = map[HealthStatus]int{
	HealthCritical: 3,
	HealthDegraded: 2,
	HealthHealthy:  1,
	HealthUnknown:  0,
}

// Worse returns the more severe of a and b: critical > degraded > healthy >
// unknown. Overall health is always the worst of its contributing parts.
func Worse(a, b HealthStatus) HealthStatus {
	if rank[a] >= rank[b] {
		return a
	}
	return b
}

// ComponentHealth is one probe result (store, broker, host resources, an
// external dependency) feeding into a SystemHealthReport.
type ComponentHealth struct {
	Component   string
	Status      HealthStatus
	Message     string
	CheckedAt   time.Time
	DurationMS  int64
	Details     map[string]any
}

// SystemHealthReport is the aggregate produced by one health tick.
type SystemHealthReport struct {
	Overall    HealthStatus
	Components []ComponentHealth
	CheckedAt  time.Time
}

// QueueHealth is the per-queue health result: pending backlog, error rate,
// and staleness rolled into an issue list and a pass/fail verdict.
type QueueHealth struct {
	QueueName          string
	IsHealthy          bool
	Stats              QueueStats
	ErrorRate          float64
	AvgProcessingTime  float64
	LastProcessedAt    *time.Time
	Issues             []string
}

// SystemStatus is the singleton record describing the whole engine's
// operational state, enforced with a fixed id rather than a one-row table
// convention so concurrent writers always upsert the same row.
type SystemStatus struct {
	ID                 int64
	IsOperational      bool
	IsMaintenanceMode  bool
	ShutdownRequested  bool
	ShutdownReason     string
	OverallHealth      HealthStatus
	SubsystemHealth    map[string]HealthStatus
	UptimeStart        time.Time
	LastHealthCheck    time.Time
	Version            string
	Environment        string
	UpdatedAt          time.Time
}

// SystemStatusSingletonID is the fixed id every read/write targets.
const SystemStatusSingletonID int64 = 1

// AuditLog is an append-only record of a notable mutation: who did what to
// which entity, with before/after snapshots for diagnosis.
type AuditLog struct {
	ID         int64
	Actor      string
	Action     string
	EntityType string
	EntityID   string
	Before     map[string]any
	After      map[string]any
	CreatedAt  time.Time
}
