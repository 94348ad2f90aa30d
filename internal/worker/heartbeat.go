package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/taskqueue/orchestrator/internal/logger"
)

const (
	workerKeyPrefix     = "worker:"
	workerSetKey        = "workers:active"
	heartbeatKeySuffix  = ":heartbeat"
	workerInfoKeySuffix = ":info"
)

// Info is the liveness+load snapshot a worker publishes to Redis so the
// dashboard and monitor CLI can list active workers without going through
// the Store.
type Info struct {
	ID            string    `json:"id"`
	State         string    `json:"state"`
	StartedAt     time.Time `json:"started_at"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
	ActiveTasks   int       `json:"active_tasks"`
	Concurrency   int       `json:"concurrency"`
}

// Heartbeat periodically republishes a worker's liveness and load to Redis
// and removes its entry on a clean shutdown.
type Heartbeat struct {
	client   *redis.Client
	workerID string
	interval time.Duration
	timeout  time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
	info     *Info
	infoMu   sync.RWMutex
}

func NewHeartbeat(client *redis.Client, workerID string, interval, timeout time.Duration) *Heartbeat {
	return &Heartbeat{
		client:   client,
		workerID: workerID,
		interval: interval,
		timeout:  timeout,
		stopCh:   make(chan struct{}),
		info: &Info{
			ID:        workerID,
			State:     "idle",
			StartedAt: time.Now().UTC(),
		},
	}
}

func (h *Heartbeat) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.loop(ctx)
	h.register(ctx)
	logger.Info().Str("worker_id", h.workerID).Dur("interval", h.interval).Msg("heartbeat started")
}

func (h *Heartbeat) Stop() {
	close(h.stopCh)
	h.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	h.deregister(ctx)

	logger.Info().Str("worker_id", h.workerID).Msg("heartbeat stopped")
}

func (h *Heartbeat) UpdateState(state string) {
	h.infoMu.Lock()
	h.info.State = state
	h.infoMu.Unlock()
}

func (h *Heartbeat) UpdateActiveTasks(count int) {
	h.infoMu.Lock()
	h.info.ActiveTasks = count
	h.infoMu.Unlock()
}

func (h *Heartbeat) UpdateConcurrency(concurrency int) {
	h.infoMu.Lock()
	h.info.Concurrency = concurrency
	h.infoMu.Unlock()
}

func (h *Heartbeat) loop(ctx context.Context) {
	defer h.wg.Done()
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.send(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.stopCh:
			return
		case <-ticker.C:
			h.send(ctx)
		}
	}
}

func (h *Heartbeat) send(ctx context.Context) {
	now := time.Now().UTC()
	if err := h.client.Set(ctx, h.heartbeatKey(), now.Unix(), h.timeout).Err(); err != nil {
		logger.Error().Err(err).Str("worker_id", h.workerID).Msg("failed to send heartbeat")
		return
	}

	h.infoMu.Lock()
	h.info.LastHeartbeat = now
	data, _ := json.Marshal(h.info)
	h.infoMu.Unlock()

	if err := h.client.Set(ctx, h.infoKey(), data, h.timeout*2).Err(); err != nil {
		logger.Error().Err(err).Str("worker_id", h.workerID).Msg("failed to update worker info")
	}
	h.client.SAdd(ctx, workerSetKey, h.workerID)
}

func (h *Heartbeat) register(ctx context.Context) {
	h.client.SAdd(ctx, workerSetKey, h.workerID)

	h.infoMu.Lock()
	h.info.StartedAt = time.Now().UTC()
	data, _ := json.Marshal(h.info)
	h.infoMu.Unlock()

	h.client.Set(ctx, h.infoKey(), data, h.timeout*2)
}

func (h *Heartbeat) deregister(ctx context.Context) {
	h.client.SRem(ctx, workerSetKey, h.workerID)
	h.client.Del(ctx, h.heartbeatKey(), h.infoKey())
}

func (h *Heartbeat) heartbeatKey() string {
	return fmt.Sprintf("%s%s%s", workerKeyPrefix, h.workerID, heartbeatKeySuffix)
}

func (h *Heartbeat) infoKey() string {
	return fmt.Sprintf("%s%s%s", workerKeyPrefix, h.workerID, workerInfoKeySuffix)
}

// ActiveWorkers lists every worker currently registered, pruning entries
// whose info key has already expired.
func ActiveWorkers(ctx context.Context, client *redis.Client) ([]Info, error) {
	ids, err := client.SMembers(ctx, workerSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("worker: list active workers: %w", err)
	}

	out := make([]Info, 0, len(ids))
	for _, id := range ids {
		key := fmt.Sprintf("%s%s%s", workerKeyPrefix, id, workerInfoKeySuffix)
		data, err := client.Get(ctx, key).Bytes()
		if err == redis.Nil {
			client.SRem(ctx, workerSetKey, id)
			continue
		}
		if err != nil {
			continue
		}
		var info Info
		if err := json.Unmarshal(data, &info); err != nil {
			continue
		}
		out = append(out, info)
	}
	return out, nil
}

// IsAlive reports whether a worker's heartbeat key has not yet expired.
func IsAlive(ctx context.Context, client *redis.Client, workerID string) (bool, error) {
	key := fmt.Sprintf("%s%s%s", workerKeyPrefix, workerID, heartbeatKeySuffix)
	n, err := client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("worker: check heartbeat: %w", err)
	}
	return n > 0, nil
}

// pauseKey and its accessors implement the admin-triggered pause flag: a
// plain Redis key, set/cleared by the admin API's PauseWorker/ResumeWorker
// handlers and polled by the worker loop between task fetches.
func pauseKey(workerID string) string {
	return fmt.Sprintf("%s%s:paused", workerKeyPrefix, workerID)
}

func IsPausedRemote(ctx context.Context, client *redis.Client, workerID string) (bool, error) {
	n, err := client.Exists(ctx, pauseKey(workerID)).Result()
	if err != nil {
		return false, fmt.Errorf("worker: check pause flag: %w", err)
	}
	return n > 0, nil
}

func SetPausedRemote(ctx context.Context, client *redis.Client, workerID string, paused bool) error {
	if paused {
		return client.Set(ctx, pauseKey(workerID), 1, 0).Err()
	}
	return client.Del(ctx, pauseKey(workerID)).Err()
}
