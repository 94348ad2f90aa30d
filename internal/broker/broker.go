// Package broker defines the Broker Port: submit/status/revoke against
// whatever system actually transports task executions to workers. The
// concrete implementation (redis.go) uses Redis Streams consumer groups.
package broker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/taskqueue/orchestrator/internal/model"
)

// ExecutionState is the broker-reported state returned by Status.
type ExecutionState string

const (
	ExecPending   ExecutionState = "pending"
	ExecStarted   ExecutionState = "started"
	ExecSuccess   ExecutionState = "success"
	ExecFailure   ExecutionState = "failure"
	ExecRevoked   ExecutionState = "revoked"
	ExecUnknown   ExecutionState = "unknown"
)

// ExecutionStatus is a point-in-time snapshot of an execution: its state,
// result payload if any, and traceback/outcome flags if it has finished.
type ExecutionStatus struct {
	State       ExecutionState
	Result      json.RawMessage
	Traceback   string
	Successful  bool
	Failed      bool
}

// Delivery is one unit of work popped off the broker by a worker: the
// broker-assigned execution id, the stream entry id, the priority stream it
// came from, and the task id needed to look the durable Task up and
// execute it.
type Delivery struct {
	ExecutionID string
	StreamMsgID string
	TaskID      string
	Priority    model.Priority
}

// Port is the capability set a task queue needs from its transport:
// submit, status, revoke, plus the worker-side primitives (poll, ack,
// claim orphaned) needed by the Worker Wrapper. Submit/Status/Revoke may
// fail transiently; callers should treat transport failure as a warning
// and only surface the broker id to a caller after persistence succeeds.
type Port interface {
	// Submit dispatches payload onto queueName at the given priority,
	// honoring eta (nil = immediate) and expiry (nil = no expiry), and
	// returns a broker-assigned execution id.
	Submit(ctx context.Context, taskID string, payload json.RawMessage, queueName string, priority model.Priority, eta *time.Time, expiry *time.Time) (executionID string, err error)

	// Status returns the broker's view of an execution.
	Status(ctx context.Context, executionID string) (ExecutionStatus, error)

	// ReportResult records the outcome of an execution so a later Status
	// call reflects it; this is the broker-side analogue of a Celery
	// worker writing into the result backend.
	ReportResult(ctx context.Context, executionID string, status ExecutionStatus) error

	// Revoke is best-effort; success is not guaranteed once the execution
	// has already completed.
	Revoke(ctx context.Context, executionID string, terminate bool) error

	// Poll pops the next ready delivery across all priority streams,
	// highest priority first, blocking up to blockFor.
	Poll(ctx context.Context, consumerName string, blockFor time.Duration) (*Delivery, error)

	// Ack acknowledges successful processing of a delivery.
	Ack(ctx context.Context, d *Delivery) error

	// ClaimOrphaned reassigns deliveries whose consumer has been idle
	// longer than minIdle, for worker-crash recovery.
	ClaimOrphaned(ctx context.Context, newConsumer string, minIdle time.Duration) ([]*Delivery, error)

	// ActiveConsumers reports the set of consumer names currently
	// registered, used by the Broker component health probe: an empty
	// set means no worker is connected.
	ActiveConsumers(ctx context.Context) ([]string, error)

	Close() error
}
