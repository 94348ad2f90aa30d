package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/taskqueue/orchestrator/internal/model"
)

// streamPrefix namespaces the per-priority consumer-group streams from any
// other key space sharing the same Redis instance.
const streamPrefix = "taskqueue:stream"

const groupName = "taskqueue-workers"

// execKeyPrefix namespaces the broker's own execution-result cache, kept
// separate from the durable Task row that lives in the Postgres Store.
const execKeyPrefix = "taskqueue:exec"

const execTTL = 24 * time.Hour

// streamMessage is what actually rides inside a Redis Streams entry: just
// enough to look the durable Task up, since the Task row itself lives in
// the Store.
type streamMessage struct {
	ExecutionID string `json:"execution_id"`
	TaskID      string `json:"task_id"`
}

// RedisBroker implements Port against Redis Streams: one stream per
// priority, each with its own shared consumer group, so workers drain
// higher-priority streams before lower ones instead of a single FIFO queue.
type RedisBroker struct {
	client *redis.Client
	log    zerolog.Logger
}

// NewRedisBroker connects to addr and ensures a consumer group exists on
// every priority stream.
func NewRedisBroker(ctx context.Context, addr, password string, db int, log zerolog.Logger) (*RedisBroker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("broker: connect redis: %w", err)
	}
	b := &RedisBroker{client: client, log: log.With().Str("component", "broker").Logger()}
	if err := b.initStreams(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *RedisBroker) initStreams(ctx context.Context) error {
	for _, p := range model.AllPriorities() {
		stream := p.StreamName(streamPrefix)
		err := b.client.XGroupCreateMkStream(ctx, stream, groupName, "0").Err()
		if err != nil && !errors.Is(err, redis.Nil) {
			if isBusyGroupErr(err) {
				continue
			}
			return fmt.Errorf("broker: create group for %s: %w", stream, err)
		}
	}
	return nil
}

func isBusyGroupErr(err error) bool {
	return err != nil && len(err.Error()) >= 9 && err.Error()[:9] == "BUSYGROUP"
}

func execKey(executionID string) string {
	return fmt.Sprintf("%s:%s", execKeyPrefix, executionID)
}

// Submit pushes a streamMessage onto the priority stream named by priority
// and seeds the execution's status cache as pending. eta and expiry are
// honored by the Scheduler, which holds scheduled submissions back and
// calls Submit only once they're due; RedisBroker itself does not delay
// delivery.
func (b *RedisBroker) Submit(ctx context.Context, taskID string, payload json.RawMessage, queueName string, priority model.Priority, eta *time.Time, expiry *time.Time) (string, error) {
	if expiry != nil && time.Now().After(*expiry) {
		return "", fmt.Errorf("broker: submission already expired at %s", expiry)
	}

	executionID := taskID
	msg := streamMessage{ExecutionID: executionID, TaskID: taskID}
	body, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("broker: marshal stream message: %w", err)
	}

	stream := priority.StreamName(streamPrefix)
	if err := b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{"body": body},
	}).Err(); err != nil {
		return "", fmt.Errorf("broker: xadd %s: %w", stream, err)
	}

	status := ExecutionStatus{State: ExecPending}
	if err := b.ReportResult(ctx, executionID, status); err != nil {
		b.log.Warn().Err(err).Str("execution_id", executionID).Msg("failed to seed execution status cache")
	}
	return executionID, nil
}

// Status reads the broker's cached view of an execution written by
// ReportResult. A cache miss is reported as ExecUnknown rather than an
// error, since the execution may simply predate the cache's TTL.
func (b *RedisBroker) Status(ctx context.Context, executionID string) (ExecutionStatus, error) {
	raw, err := b.client.Get(ctx, execKey(executionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ExecutionStatus{State: ExecUnknown}, nil
	}
	if err != nil {
		return ExecutionStatus{}, fmt.Errorf("broker: get status %s: %w", executionID, err)
	}
	var status ExecutionStatus
	if err := json.Unmarshal(raw, &status); err != nil {
		return ExecutionStatus{}, fmt.Errorf("broker: unmarshal status %s: %w", executionID, err)
	}
	return status, nil
}

// ReportResult caches an execution's outcome, overwriting any prior state.
func (b *RedisBroker) ReportResult(ctx context.Context, executionID string, status ExecutionStatus) error {
	body, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("broker: marshal status %s: %w", executionID, err)
	}
	return b.client.Set(ctx, execKey(executionID), body, execTTL).Err()
}

// Revoke marks an execution revoked in the status cache. terminate would
// additionally signal an in-flight worker to abort, which Redis Streams has
// no built-in primitive for; best-effort here means the next Poll/Ack cycle
// observes the revoked state rather than a guaranteed interrupt.
func (b *RedisBroker) Revoke(ctx context.Context, executionID string, terminate bool) error {
	return b.ReportResult(ctx, executionID, ExecutionStatus{State: ExecRevoked})
}

// Poll reads one delivery, trying streams highest priority first so a
// flooded low-priority queue never starves critical work.
func (b *RedisBroker) Poll(ctx context.Context, consumerName string, blockFor time.Duration) (*Delivery, error) {
	for _, p := range model.AllPriorities() {
		d, err := b.readOne(ctx, p, consumerName, 0)
		if err != nil {
			return nil, err
		}
		if d != nil {
			return d, nil
		}
	}
	// Nothing ready on any stream without blocking; block on the highest
	// priority stream for the remainder.
	return b.readOne(ctx, model.PriorityCritical, consumerName, blockFor)
}

func (b *RedisBroker) readOne(ctx context.Context, p model.Priority, consumerName string, block time.Duration) (*Delivery, error) {
	stream := p.StreamName(streamPrefix)
	res, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    groupName,
		Consumer: consumerName,
		Streams:  []string{stream, ">"},
		Count:    1,
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("broker: xreadgroup %s: %w", stream, err)
	}
	for _, s := range res {
		for _, m := range s.Messages {
			return b.toDelivery(m, p)
		}
	}
	return nil, nil
}

func (b *RedisBroker) toDelivery(m redis.XMessage, p model.Priority) (*Delivery, error) {
	raw, _ := m.Values["body"].(string)
	var msg streamMessage
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return nil, fmt.Errorf("broker: unmarshal stream message %s: %w", m.ID, err)
	}
	return &Delivery{
		ExecutionID: msg.ExecutionID,
		StreamMsgID: m.ID,
		TaskID:      msg.TaskID,
		Priority:    p,
	}, nil
}

// Ack acknowledges the stream entry.
func (b *RedisBroker) Ack(ctx context.Context, d *Delivery) error {
	stream := d.Priority.StreamName(streamPrefix)
	return b.client.XAck(ctx, stream, groupName, d.StreamMsgID).Err()
}

// ClaimOrphaned reassigns pending entries idle longer than minIdle to
// newConsumer across all priority streams, so a crashed worker's in-flight
// deliveries on any priority get picked back up.
func (b *RedisBroker) ClaimOrphaned(ctx context.Context, newConsumer string, minIdle time.Duration) ([]*Delivery, error) {
	var claimed []*Delivery
	for _, p := range model.AllPriorities() {
		stream := p.StreamName(streamPrefix)
		pending, err := b.client.XPendingExt(ctx, &redis.XPendingExtArgs{
			Stream: stream,
			Group:  groupName,
			Start:  "-",
			End:    "+",
			Count:  100,
			Idle:   minIdle,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, fmt.Errorf("broker: xpending %s: %w", stream, err)
		}
		if len(pending) == 0 {
			continue
		}
		ids := make([]string, len(pending))
		for i, pe := range pending {
			ids[i] = pe.ID
		}
		msgs, err := b.client.XClaim(ctx, &redis.XClaimArgs{
			Stream:   stream,
			Group:    groupName,
			Consumer: newConsumer,
			MinIdle:  minIdle,
			Messages: ids,
		}).Result()
		if err != nil {
			return nil, fmt.Errorf("broker: xclaim %s: %w", stream, err)
		}
		for _, m := range msgs {
			d, err := b.toDelivery(m, p)
			if err != nil {
				b.log.Warn().Err(err).Str("stream", stream).Str("id", m.ID).Msg("dropping unparseable orphaned message")
				continue
			}
			claimed = append(claimed, d)
		}
	}
	return claimed, nil
}

// ActiveConsumers lists every consumer registered on any priority stream's
// group, used by the Broker component health probe to detect the "no
// workers connected" critical condition.
func (b *RedisBroker) ActiveConsumers(ctx context.Context) ([]string, error) {
	seen := map[string]struct{}{}
	for _, p := range model.AllPriorities() {
		stream := p.StreamName(streamPrefix)
		consumers, err := b.client.XInfoConsumers(ctx, stream, groupName).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			continue
		}
		for _, c := range consumers {
			seen[c.Name] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	return out, nil
}

func (b *RedisBroker) Close() error {
	return b.client.Close()
}

var _ Port = (*RedisBroker)(nil)
