package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dukerupert/classbook/internal/store"
)

const (
	ActionSnapshotCreate        = "snapshot.create"
	ActionSnapshotRestore       = "snapshot.restore"
	ActionSnapshotRestoreFailed = "snapshot.restore_failed"
)

// Event is one audited mutation. Metadata must never contain secrets.
type Event struct {
	ActorID  int64
	TenantID int64
	Action   string
	Metadata map[string]any
}

type Recorder interface {
	Record(ctx context.Context, e Event) error
}

// StoreRecorder writes events to the audit_events table.
type StoreRecorder struct {
	events *store.AuditStore
	logger *slog.Logger
}

func NewStoreRecorder(db store.DBTX, logger *slog.Logger) *StoreRecorder {
	return &StoreRecorder{
		events: store.NewAuditStore(db),
		logger: logger.With("component", "audit"),
	}
}

func (r *StoreRecorder) Record(ctx context.Context, e Event) error {
	metadata, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("encode audit metadata: %w", err)
	}
	var actorID, tenantID *int64
	if e.ActorID != 0 {
		actorID = &e.ActorID
	}
	if e.TenantID != 0 {
		tenantID = &e.TenantID
	}
	if err := r.events.Insert(ctx, actorID, tenantID, e.Action, metadata); err != nil {
		return err
	}
	r.logger.Info("audit event recorded", "action", e.Action, "actor_id", e.ActorID, "tenant_id", e.TenantID)
	return nil
}

// Discard drops every event.
type Discard struct{}

func (Discard) Record(context.Context, Event) error { return nil }
