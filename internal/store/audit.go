package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dukerupert/classbook/internal/model"
)

type AuditStore struct {
	db DBTX
}

func NewAuditStore(db DBTX) *AuditStore {
	return &AuditStore{db: db}
}

func (s *AuditStore) Insert(ctx context.Context, actorID, tenantID *int64, action string, metadata json.RawMessage) error {
	if len(metadata) == 0 {
		metadata = json.RawMessage(`{}`)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_events (actor_id, tenant_id, action, metadata, created_at) VALUES (?, ?, ?, ?, ?)`,
		nullInt64(actorID), nullInt64(tenantID), action, string(metadata), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (s *AuditStore) ListByTenant(ctx context.Context, tenantID int64) ([]model.AuditEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, actor_id, tenant_id, action, metadata, created_at FROM audit_events WHERE tenant_id = ? ORDER BY id`,
		tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var events []model.AuditEvent
	for rows.Next() {
		var e model.AuditEvent
		var actorID, tid sql.NullInt64
		var metadata []byte
		if err := rows.Scan(&e.ID, &actorID, &tid, &e.Action, &metadata, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.ActorID = int64Ptr(actorID)
		e.TenantID = int64Ptr(tid)
		e.Metadata = metadata
		events = append(events, e)
	}
	return events, rows.Err()
}
