package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taskqueue/orchestrator/internal/model"
)

// AuditRepo persists the append-only audit trail: who did what to which
// entity, with before/after snapshots for diagnosis.
type AuditRepo struct {
	pool *pgxpool.Pool
}

func (r *AuditRepo) Record(ctx context.Context, actor, action, entityType, entityID string, before, after map[string]any) error {
	beforeJSON, err := json.Marshal(before)
	if err != nil {
		return err
	}
	afterJSON, err := json.Marshal(after)
	if err != nil {
		return err
	}
	const q = `
		INSERT INTO audit_logs (actor, action, entity_type, entity_id, before_data, after_data, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`
	_, err = r.pool.Exec(ctx, q, actor, action, entityType, entityID, beforeJSON, afterJSON, time.Now().UTC())
	return err
}

func (r *AuditRepo) Recent(ctx context.Context, entityType, entityID string, limit int) ([]*model.AuditLog, error) {
	const q = `
		SELECT id, actor, action, entity_type, entity_id, before_data, after_data, created_at
		FROM audit_logs WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at DESC LIMIT $3`
	rows, err := r.pool.Query(ctx, q, entityType, entityID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.AuditLog
	for rows.Next() {
		var (
			l      model.AuditLog
			before []byte
			after  []byte
		)
		if err := rows.Scan(&l.ID, &l.Actor, &l.Action, &l.EntityType, &l.EntityID, &before, &after, &l.CreatedAt); err != nil {
			return nil, err
		}
		if len(before) > 0 {
			_ = json.Unmarshal(before, &l.Before)
		}
		if len(after) > 0 {
			_ = json.Unmarshal(after, &l.After)
		}
		out = append(out, &l)
	}
	return out, rows.Err()
}
