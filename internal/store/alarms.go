package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taskqueue/orchestrator/internal/model"
)

// AlarmRepo implements the `alarms.*` domain queries.
type AlarmRepo struct {
	pool *pgxpool.Pool
}

func (r *AlarmRepo) Insert(ctx context.Context, a *model.Alarm) (int64, error) {
	ctxData, err := json.Marshal(a.ContextData)
	if err != nil {
		return 0, err
	}
	const q = `
		INSERT INTO system_alarms (
			alarm_type, severity, title, description, queue_name, task_id, component,
			is_active, acknowledged, triggered_at, last_occurrence, occurrence_count,
			context_data, tags, auto_resolve, requires_ack
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		RETURNING id`
	var id int64
	err = r.pool.QueryRow(ctx, q,
		string(a.AlarmType), string(a.Severity), a.Title, a.Description, a.QueueName, a.TaskID, a.Component,
		a.IsActive, a.Acknowledged, a.TriggeredAt, a.LastOccurrence, a.OccurrenceCount,
		ctxData, a.Tags, a.AutoResolve, a.RequiresAck,
	).Scan(&id)
	return id, err
}

// MostRecent implements `alarms.most_recent(type, since)` used by the Alarm
// Engine's dedup window lookup: the most recent alarm of the same
// alarm_type within a fixed lookback window.
func (r *AlarmRepo) MostRecent(ctx context.Context, alarmType model.AlarmType, scope string, since time.Time) (*model.Alarm, error) {
	const q = `
		SELECT id, alarm_type, severity, title, description, queue_name, task_id, component,
			is_active, acknowledged, acknowledged_by, acknowledged_at, triggered_at, resolved_at,
			last_occurrence, occurrence_count, context_data, tags, auto_resolve, requires_ack
		FROM system_alarms
		WHERE alarm_type = $1 AND queue_name = $2 AND triggered_at >= $3
		ORDER BY triggered_at DESC LIMIT 1`
	row := r.pool.QueryRow(ctx, q, string(alarmType), scope, since)
	a, err := scanAlarm(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAlarmNotFound
	}
	return a, err
}

// Touch increments occurrence_count and refreshes last_occurrence/
// description/context_data on an existing active alarm.
func (r *AlarmRepo) Touch(ctx context.Context, id int64, description string, contextData map[string]any, occurrenceCount int, lastOccurrence time.Time, severity model.Severity, title string) error {
	ctxData, err := json.Marshal(contextData)
	if err != nil {
		return err
	}
	const q = `
		UPDATE system_alarms SET
			description = $2, context_data = $3, occurrence_count = $4,
			last_occurrence = $5, severity = $6, title = $7
		WHERE id = $1`
	_, err = r.pool.Exec(ctx, q, id, description, ctxData, occurrenceCount, lastOccurrence, string(severity), title)
	return err
}

func (r *AlarmRepo) Acknowledge(ctx context.Context, id int64, by string, at time.Time) error {
	const q = `UPDATE system_alarms SET acknowledged = true, acknowledged_by = $2, acknowledged_at = $3 WHERE id = $1`
	tag, err := r.pool.Exec(ctx, q, id, by, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAlarmNotFound
	}
	return nil
}

// Resolve implements `alarms.resolve(id)`.
func (r *AlarmRepo) Resolve(ctx context.Context, id int64, at time.Time) error {
	const q = `UPDATE system_alarms SET is_active = false, resolved_at = $2 WHERE id = $1`
	tag, err := r.pool.Exec(ctx, q, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAlarmNotFound
	}
	return nil
}

// ActiveAll implements `alarms.active_all()`.
func (r *AlarmRepo) ActiveAll(ctx context.Context) ([]*model.Alarm, error) {
	const q = `
		SELECT id, alarm_type, severity, title, description, queue_name, task_id, component,
			is_active, acknowledged, acknowledged_by, acknowledged_at, triggered_at, resolved_at,
			last_occurrence, occurrence_count, context_data, tags, auto_resolve, requires_ack
		FROM system_alarms WHERE is_active = true ORDER BY triggered_at DESC`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Alarm
	for rows.Next() {
		a, err := scanAlarm(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAlarm(row pgx.Row) (*model.Alarm, error) {
	var (
		a           model.Alarm
		alarmType   string
		severity    string
		contextData []byte
	)
	if err := row.Scan(
		&a.ID, &alarmType, &severity, &a.Title, &a.Description, &a.QueueName, &a.TaskID, &a.Component,
		&a.IsActive, &a.Acknowledged, &a.AcknowledgedBy, &a.AcknowledgedAt, &a.TriggeredAt, &a.ResolvedAt,
		&a.LastOccurrence, &a.OccurrenceCount, &contextData, &a.Tags, &a.AutoResolve, &a.RequiresAck,
	); err != nil {
		return nil, err
	}
	a.AlarmType = model.AlarmType(alarmType)
	a.Severity = model.Severity(severity)
	if len(contextData) > 0 {
		_ = json.Unmarshal(contextData, &a.ContextData)
	}
	return &a, nil
}
