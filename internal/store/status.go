package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taskqueue/orchestrator/internal/model"
)

// StatusRepo manages the singleton SystemStatus record. A fixed id plus
// upsert keeps exactly one row no matter how many callers write to it
// concurrently.
type StatusRepo struct {
	pool *pgxpool.Pool
}

func (r *StatusRepo) Upsert(ctx context.Context, s model.SystemStatus) error {
	subsystem, err := json.Marshal(s.SubsystemHealth)
	if err != nil {
		return err
	}
	const q = `
		INSERT INTO system_status (
			id, is_operational, is_maintenance_mode, shutdown_requested, shutdown_reason,
			overall_health, subsystem_health, uptime_start, last_health_check, version, environment, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (id) DO UPDATE SET
			is_operational = EXCLUDED.is_operational,
			is_maintenance_mode = EXCLUDED.is_maintenance_mode,
			shutdown_requested = EXCLUDED.shutdown_requested,
			shutdown_reason = EXCLUDED.shutdown_reason,
			overall_health = EXCLUDED.overall_health,
			subsystem_health = EXCLUDED.subsystem_health,
			last_health_check = EXCLUDED.last_health_check,
			updated_at = EXCLUDED.updated_at`
	_, err = r.pool.Exec(ctx, q,
		model.SystemStatusSingletonID, s.IsOperational, s.IsMaintenanceMode, s.ShutdownRequested, s.ShutdownReason,
		string(s.OverallHealth), subsystem, s.UptimeStart, s.LastHealthCheck, s.Version, s.Environment, s.UpdatedAt,
	)
	return err
}

func (r *StatusRepo) Get(ctx context.Context) (model.SystemStatus, error) {
	const q = `
		SELECT is_operational, is_maintenance_mode, shutdown_requested, shutdown_reason,
			overall_health, subsystem_health, uptime_start, last_health_check, version, environment, updated_at
		FROM system_status WHERE id = $1`
	var (
		s         model.SystemStatus
		overall   string
		subsystem []byte
	)
	err := r.pool.QueryRow(ctx, q, model.SystemStatusSingletonID).Scan(
		&s.IsOperational, &s.IsMaintenanceMode, &s.ShutdownRequested, &s.ShutdownReason,
		&overall, &subsystem, &s.UptimeStart, &s.LastHealthCheck, &s.Version, &s.Environment, &s.UpdatedAt,
	)
	if err != nil {
		return model.SystemStatus{}, err
	}
	s.ID = model.SystemStatusSingletonID
	s.OverallHealth = model.HealthStatus(overall)
	if len(subsystem) > 0 {
		_ = json.Unmarshal(subsystem, &s.SubsystemHealth)
	}
	return s, nil
}

// MarkShutdown is a focused mutation used by the Shutdown Controller so it
// does not need to read-modify-write the whole record.
func (r *StatusRepo) MarkShutdown(ctx context.Context, reason string, at time.Time) error {
	const q = `
		UPDATE system_status SET
			is_operational = false, shutdown_requested = true, shutdown_reason = $2,
			overall_health = 'critical', last_health_check = $3, updated_at = $3
		WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, model.SystemStatusSingletonID, reason, at)
	return err
}
