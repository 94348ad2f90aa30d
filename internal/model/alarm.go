package model

import "time"

// AlarmType enumerates the operational conditions the Alarm Engine can
// raise, from a single slow queue up to a system-wide shutdown notice.
type AlarmType string

const (
	AlarmQueueBackup        AlarmType = "queue_backup"
	AlarmHighErrorRate      AlarmType = "high_error_rate"
	AlarmProcessingTimeout  AlarmType = "processing_timeout"
	AlarmOverdueTasks       AlarmType = "overdue_tasks"
	AlarmSystemError        AlarmType = "system_error"
	AlarmDatabaseError      AlarmType = "database_error"
	AlarmResourceExhaustion AlarmType = "resource_exhaustion"
	AlarmSystemShutdown     AlarmType = "system_shutdown"
)

// ShutdownSet is the fixed set of alarm types whose critical escalation
// triggers an emergency shutdown.
var ShutdownSet = map[AlarmType]bool{
	AlarmHighErrorRate:      true,
	AlarmProcessingTimeout:  true,
	AlarmSystemError:        true,
	AlarmDatabaseError:      true,
	AlarmResourceExhaustion: true,
}

// Severity ranks an alarm or component health probe from informational up
// to critical.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Alarm is the persisted record of one raised operational condition,
// deduplicated and re-occurrence-counted across its active lifetime.
type Alarm struct {
	ID                  int64
	AlarmType           AlarmType
	Severity            Severity
	Title               string
	Description         string
	QueueName           string
	TaskID              string
	Component           string
	IsActive            bool
	Acknowledged        bool
	AcknowledgedBy      string
	AcknowledgedAt      *time.Time
	TriggeredAt         time.Time
	ResolvedAt          *time.Time
	LastOccurrence      time.Time
	OccurrenceCount     int
	ContextData         map[string]any
	Tags                map[string]string
	AutoResolve         bool
	RequiresAck         bool
}

// Event is the input to the Alarm Engine's Trigger operation: either
// synthesized from a QueueHealth issue or raised directly by a caller.
type Event struct {
	AlarmType             AlarmType
	Severity              Severity
	Title                 string
	Description           string
	QueueName             string
	TaskID                string
	Component             string
	ContextData           map[string]any
	Tags                  map[string]string
	AutoResolve           bool
	RequiresAcknowledgment bool
}
