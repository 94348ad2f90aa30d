// Package health implements the Health Evaluator: two independent
// cadences, one scoring each queue's backlog/error-rate/staleness and one
// scoring the Store, Broker, host resources, and any external
// dependencies, rolled up into a SystemHealthReport.
package health

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/sony/gobreaker"

	"github.com/taskqueue/orchestrator/internal/broker"
	"github.com/taskqueue/orchestrator/internal/config"
	"github.com/taskqueue/orchestrator/internal/logger"
	"github.com/taskqueue/orchestrator/internal/metrics"
	"github.com/taskqueue/orchestrator/internal/model"
	"github.com/taskqueue/orchestrator/internal/store"
)

// QueueHealthFunc receives every per-queue result as soon as it is
// computed, before the aggregate tick finishes.
type QueueHealthFunc func(ctx context.Context, qh model.QueueHealth)

// ComponentHealthFunc receives every per-component result.
type ComponentHealthFunc func(ctx context.Context, ch model.ComponentHealth)

// ExternalService is one optional HTTP dependency the component pipeline
// probes with a GET.
type ExternalService struct {
	Name    string
	URL     string
	Timeout time.Duration
}

// Evaluator runs the two health cadences against a Store/Broker pair and
// the local host, fanning results out to registered callbacks.
type Evaluator struct {
	store  *store.Store
	broker broker.Port
	cfg    config.HealthConfig

	externalServices []ExternalService
	httpClient       *http.Client

	brokerBreaker   *gobreaker.CircuitBreaker[any]
	externalBreaker map[string]*gobreaker.CircuitBreaker[any]

	onQueueHealth     []QueueHealthFunc
	onComponentHealth []ComponentHealthFunc

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func New(st *store.Store, b broker.Port, cfg config.HealthConfig, externalServices []ExternalService) *Evaluator {
	e := &Evaluator{
		store:            st,
		broker:           b,
		cfg:              cfg,
		externalServices: externalServices,
		httpClient:       &http.Client{Timeout: 10 * time.Second},
		externalBreaker:  make(map[string]*gobreaker.CircuitBreaker[any]),
		stopCh:           make(chan struct{}),
	}

	e.brokerBreaker = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "broker-health",
		MaxRequests: 1,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 3 },
	})
	for _, svc := range externalServices {
		svc := svc
		e.externalBreaker[svc.Name] = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
			Name:        "external-" + svc.Name,
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 3 },
		})
	}
	return e
}

func (e *Evaluator) OnQueueHealth(fn QueueHealthFunc) { e.onQueueHealth = append(e.onQueueHealth, fn) }

func (e *Evaluator) OnComponentHealth(fn ComponentHealthFunc) {
	e.onComponentHealth = append(e.onComponentHealth, fn)
}

// Start spawns both cadences as independent goroutines.
func (e *Evaluator) Start(ctx context.Context) {
	e.wg.Add(2)
	go e.queueLoop(ctx)
	go e.componentLoop(ctx)
	logger.Info().Msg("health: evaluator started")
}

func (e *Evaluator) Stop() {
	close(e.stopCh)
	e.wg.Wait()
	logger.Info().Msg("health: evaluator stopped")
}

func (e *Evaluator) queueLoop(ctx context.Context) {
	defer e.wg.Done()
	interval := e.cfg.TickInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.evaluateQueues(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		case <-ticker.C:
			e.evaluateQueues(ctx)
		}
	}
}

func (e *Evaluator) componentLoop(ctx context.Context) {
	defer e.wg.Done()
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	e.evaluateComponents(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		case <-ticker.C:
			e.evaluateComponents(ctx)
		}
	}
}

// evaluateQueues scores every active queue's backlog, error rate, and
// staleness, then persists one QueueMetricsSample per queue.
func (e *Evaluator) evaluateQueues(ctx context.Context) {
	queues, err := e.store.Queues.ActiveAll(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("health: failed to list active queues")
		return
	}

	for _, q := range queues {
		qh, sample, err := e.evaluateQueue(ctx, q)
		if err != nil {
			logger.Error().Err(err).Str("queue", q.Name).Msg("health: queue evaluation failed")
			continue
		}

		for _, fn := range e.onQueueHealth {
			fn(ctx, qh)
		}
		if err := e.store.Metrics.Insert(ctx, sample); err != nil {
			logger.Error().Err(err).Str("queue", q.Name).Msg("health: failed to persist queue metrics sample")
		}
	}
}

func (e *Evaluator) evaluateQueue(ctx context.Context, q *model.Queue) (model.QueueHealth, model.QueueMetricsSample, error) {
	stats, err := e.store.Tasks.QueueStats(ctx, q.ID)
	if err != nil {
		return model.QueueHealth{}, model.QueueMetricsSample{}, fmt.Errorf("query queue stats: %w", err)
	}
	lastProcessed, err := e.store.Tasks.LastProcessedAt(ctx, q.ID)
	if err != nil {
		return model.QueueHealth{}, model.QueueMetricsSample{}, fmt.Errorf("query last processed: %w", err)
	}
	overdue, err := e.store.Tasks.OverdueProcessing(ctx)
	if err != nil {
		return model.QueueHealth{}, model.QueueMetricsSample{}, fmt.Errorf("query overdue tasks: %w", err)
	}
	overdueForQueue := int64(0)
	for _, t := range overdue {
		if t.QueueID == q.ID {
			overdueForQueue++
		}
	}

	errorRate := queueErrorRate(stats)
	issues := queueIssues(stats, errorRate, lastProcessed, overdueForQueue, time.Duration(q.TimeoutSeconds)*time.Second, e.cfg)

	qh := model.QueueHealth{
		QueueName:       q.Name,
		IsHealthy:       len(issues) == 0,
		Stats:           stats,
		ErrorRate:       errorRate,
		LastProcessedAt: lastProcessed,
		Issues:          issues,
	}

	sample := model.QueueMetricsSample{
		QueueID:     q.ID,
		Pending:     stats.Pending,
		Processing:  stats.Processing,
		Completed:   stats.Completed,
		Failed:      stats.Failed,
		ErrorRate:   errorRate,
		SuccessRate: 1 - errorRate,
		SampledAt:   time.Now().UTC(),
	}
	return qh, sample, nil
}

// queueErrorRate is failed / (completed + failed); a queue with no
// finished tasks yet has a zero error rate rather than an undefined one.
func queueErrorRate(stats model.QueueStats) float64 {
	finished := stats.Completed + stats.Failed
	if finished == 0 {
		return 0
	}
	return float64(stats.Failed) / float64(finished)
}

// queueIssues is the pure per-queue verdict function: backlog, error
// rate, staleness, and overdue count each contribute an independent issue
// string, split out from evaluateQueue so it is unit testable without a
// Store.
func queueIssues(stats model.QueueStats, errorRate float64, lastProcessed *time.Time, overdueForQueue int64, processingTimeout time.Duration, cfg config.HealthConfig) []string {
	var issues []string
	if stats.Pending > cfg.PendingWarnThreshold {
		issues = append(issues, fmt.Sprintf("queue is backed up with %d pending tasks", stats.Pending))
	}
	if errorRate > cfg.ErrorRateWarnThreshold {
		issues = append(issues, fmt.Sprintf("error rate of %.2f exceeds threshold", errorRate))
	}
	if lastProcessed != nil && time.Since(*lastProcessed) > processingTimeout {
		issues = append(issues, fmt.Sprintf("processing timeout: nothing completed in %s", time.Since(*lastProcessed).Round(time.Second)))
	}
	if overdueForQueue > cfg.OverdueWarnCount {
		issues = append(issues, fmt.Sprintf("%d overdue tasks past their processing deadline", overdueForQueue))
	}
	return issues
}

// evaluateComponents probes the Store, Broker, host resources, and any
// configured external services, then rolls the worst of them into the
// overall report and persists a SystemStatus snapshot.
func (e *Evaluator) evaluateComponents(ctx context.Context) {
	components := []model.ComponentHealth{
		e.probeStore(ctx),
		e.probeBroker(ctx),
		e.probeHostResources(ctx),
	}
	for _, svc := range e.externalServices {
		components = append(components, e.probeExternal(ctx, svc))
	}

	overall := model.HealthHealthy
	for _, c := range components {
		overall = model.Worse(overall, c.Status)
		metrics.SetComponentHealth(c.Component, string(c.Status))
		for _, fn := range e.onComponentHealth {
			fn(ctx, c)
		}
	}
	metrics.SetOverallHealth(string(overall))

	subsystem := make(map[string]model.HealthStatus, len(components))
	for _, c := range components {
		subsystem[c.Component] = c.Status
	}

	now := time.Now().UTC()
	status := model.SystemStatus{
		IsOperational:   overall != model.HealthCritical,
		OverallHealth:   overall,
		SubsystemHealth: subsystem,
		LastHealthCheck: now,
		UpdatedAt:       now,
	}
	if err := e.store.Status.Upsert(ctx, status); err != nil {
		logger.Error().Err(err).Msg("health: failed to persist system status")
	}
}

func (e *Evaluator) probeStore(ctx context.Context) model.ComponentHealth {
	start := time.Now()
	ch := model.ComponentHealth{Component: "store", CheckedAt: start}

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := e.store.Ping(pctx); err != nil {
		ch.Status = model.HealthCritical
		ch.Message = fmt.Sprintf("store ping failed: %v", err)
		ch.DurationMS = time.Since(start).Milliseconds()
		return ch
	}

	stats := e.store.PoolStats()
	ch.Details = map[string]any{
		"acquired_conns": stats.AcquiredConns,
		"idle_conns":     stats.IdleConns,
		"max_conns":      stats.MaxConns,
	}
	ch.Status = model.HealthHealthy
	if stats.MaxConns > 0 && float64(stats.AcquiredConns)/float64(stats.MaxConns) > 0.9 {
		ch.Status = model.HealthDegraded
		ch.Message = "connection pool nearly exhausted"
	}
	ch.DurationMS = time.Since(start).Milliseconds()
	return ch
}

func (e *Evaluator) probeBroker(ctx context.Context) model.ComponentHealth {
	start := time.Now()
	ch := model.ComponentHealth{Component: "broker", CheckedAt: start}

	result, err := e.brokerBreaker.Execute(func() (any, error) {
		bctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return e.broker.ActiveConsumers(bctx)
	})
	if err != nil {
		ch.Status = model.HealthCritical
		ch.Message = fmt.Sprintf("broker probe failed: %v", err)
		ch.DurationMS = time.Since(start).Milliseconds()
		return ch
	}

	consumers, _ := result.([]string)
	ch.Details = map[string]any{"active_consumers": len(consumers)}
	if len(consumers) == 0 {
		ch.Status = model.HealthCritical
		ch.Message = "no worker consumers are connected"
	} else {
		ch.Status = model.HealthHealthy
	}
	ch.DurationMS = time.Since(start).Milliseconds()
	return ch
}

// probeHostResources samples CPU, memory, disk, and load average with the
// warn thresholds at 85/85/90 and the hardcoded critical ceiling of
// 95/95/98, matching a conservative single-node deployment.
func (e *Evaluator) probeHostResources(ctx context.Context) model.ComponentHealth {
	start := time.Now()
	ch := model.ComponentHealth{Component: "host_resources", CheckedAt: start, Status: model.HealthHealthy}

	cpuPercents, err := cpu.PercentWithContext(ctx, 200*time.Millisecond, false)
	cpuPct := 0.0
	if err == nil && len(cpuPercents) > 0 {
		cpuPct = cpuPercents[0]
	}

	vm, _ := mem.VirtualMemoryWithContext(ctx)
	memPct := 0.0
	if vm != nil {
		memPct = vm.UsedPercent
	}

	du, _ := disk.UsageWithContext(ctx, "/")
	diskPct := 0.0
	if du != nil {
		diskPct = du.UsedPercent
	}

	la, _ := load.AvgWithContext(ctx)
	loadAvg1 := 0.0
	if la != nil {
		loadAvg1 = la.Load1
	}

	ch.Details = map[string]any{
		"cpu_percent":  cpuPct,
		"mem_percent":  memPct,
		"disk_percent": diskPct,
		"load1":        loadAvg1,
	}

	status, issues := classifyResourceStatus(cpuPct, memPct, diskPct, e.cfg)
	ch.Status = status
	if len(issues) > 0 {
		ch.Message = fmt.Sprintf("resource pressure: %v", issues)
	}
	ch.DurationMS = time.Since(start).Milliseconds()
	return ch
}

// resourceCriticalCPU, resourceCriticalMem, and resourceCriticalDisk are
// the fixed critical ceilings above the configurable warn thresholds;
// crossing them means the host is at real risk of falling over rather
// than just running hot.
const (
	resourceCriticalCPU  = 95.0
	resourceCriticalMem  = 95.0
	resourceCriticalDisk = 98.0
)

// classifyResourceStatus is the pure decision function behind the host
// resource probe, split out so it can be unit tested without sampling the
// real host.
func classifyResourceStatus(cpuPct, memPct, diskPct float64, cfg config.HealthConfig) (model.HealthStatus, []string) {
	var issues []string
	status := model.HealthHealthy

	if cpuPct > resourceCriticalCPU || memPct > resourceCriticalMem || diskPct > resourceCriticalDisk {
		status = model.HealthCritical
	} else if cpuPct > cfg.CPUWarnPercent || memPct > cfg.MemWarnPercent || diskPct > cfg.DiskWarnPercent {
		status = model.HealthDegraded
	}
	if cpuPct > cfg.CPUWarnPercent {
		issues = append(issues, fmt.Sprintf("cpu at %.1f%%", cpuPct))
	}
	if memPct > cfg.MemWarnPercent {
		issues = append(issues, fmt.Sprintf("memory at %.1f%%", memPct))
	}
	if diskPct > cfg.DiskWarnPercent {
		issues = append(issues, fmt.Sprintf("disk at %.1f%%", diskPct))
	}
	return status, issues
}

// probeExternal GETs an optional dependency's health URL, classifying 2xx/
// 3xx as healthy, 4xx as degraded, and 5xx/timeout/connection error as
// critical.
func (e *Evaluator) probeExternal(ctx context.Context, svc ExternalService) model.ComponentHealth {
	start := time.Now()
	ch := model.ComponentHealth{Component: "external:" + svc.Name, CheckedAt: start}

	timeout := svc.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}

	breaker := e.externalBreaker[svc.Name]
	result, err := breaker.Execute(func() (any, error) {
		rctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		req, err := http.NewRequestWithContext(rctx, http.MethodGet, svc.URL, nil)
		if err != nil {
			return nil, err
		}
		resp, err := e.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		return resp.StatusCode, nil
	})
	if err != nil {
		ch.Status = model.HealthCritical
		ch.Message = fmt.Sprintf("external dependency unreachable: %v", err)
		ch.DurationMS = time.Since(start).Milliseconds()
		return ch
	}

	status, _ := result.(int)
	ch.Details = map[string]any{"status_code": status}
	switch {
	case status >= 200 && status < 400:
		ch.Status = model.HealthHealthy
	case status >= 400 && status < 500:
		ch.Status = model.HealthDegraded
		ch.Message = fmt.Sprintf("external dependency returned %d", status)
	default:
		ch.Status = model.HealthCritical
		ch.Message = fmt.Sprintf("external dependency returned %d", status)
	}
	ch.DurationMS = time.Since(start).Milliseconds()
	return ch
}
