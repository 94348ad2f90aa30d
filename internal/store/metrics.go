package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taskqueue/orchestrator/internal/model"
)

// MetricsRepo persists the append-only per-queue metrics samples taken on
// each health tick.
type MetricsRepo struct {
	pool *pgxpool.Pool
}

func (r *MetricsRepo) Insert(ctx context.Context, s model.QueueMetricsSample) error {
	const q = `
		INSERT INTO queue_metrics (
			queue_id, pending, processing, completed, failed,
			avg_processing_seconds, min_processing_seconds, max_processing_seconds,
			error_rate, success_rate, host_cpu_percent, host_mem_percent, host_disk_percent,
			sampled_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`
	_, err := r.pool.Exec(ctx, q,
		s.QueueID, s.Pending, s.Processing, s.Completed, s.Failed,
		s.AvgProcessingSeconds, s.MinProcessingSeconds, s.MaxProcessingSeconds,
		s.ErrorRate, s.SuccessRate, s.HostCPUPercent, s.HostMemPercent, s.HostDiskPercent,
		s.SampledAt,
	)
	return err
}

// Latest returns the most recent sample for a queue.
func (r *MetricsRepo) Latest(ctx context.Context, queueID int64) (*model.QueueMetricsSample, error) {
	const q = `
		SELECT id, queue_id, pending, processing, completed, failed,
			avg_processing_seconds, min_processing_seconds, max_processing_seconds,
			error_rate, success_rate, host_cpu_percent, host_mem_percent, host_disk_percent, sampled_at
		FROM queue_metrics WHERE queue_id = $1 ORDER BY sampled_at DESC LIMIT 1`
	var s model.QueueMetricsSample
	err := r.pool.QueryRow(ctx, q, queueID).Scan(
		&s.ID, &s.QueueID, &s.Pending, &s.Processing, &s.Completed, &s.Failed,
		&s.AvgProcessingSeconds, &s.MinProcessingSeconds, &s.MaxProcessingSeconds,
		&s.ErrorRate, &s.SuccessRate, &s.HostCPUPercent, &s.HostMemPercent, &s.HostDiskPercent, &s.SampledAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
