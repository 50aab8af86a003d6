package snapshot

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/dukerupert/classbook/internal/audit"
	"github.com/dukerupert/classbook/internal/auth"
	"github.com/dukerupert/classbook/internal/model"
	"github.com/dukerupert/classbook/internal/store"
)

type ServiceConfig struct {
	// Archiver is optional. Leave it nil to keep snapshots in the database only.
	Archiver       Archiver
	Hasher         Hasher
	Audit          audit.Recorder
	RestoreTimeout time.Duration
	OnStatus       StatusFunc
}

// Service is the caller-facing entry point: it scope-checks the caller,
// delegates to the builder and engine, and records audit events.
type Service struct {
	builder *Builder
	engine  *Engine
	backups *store.BackupStore
	audit   audit.Recorder
	logger  *slog.Logger
}

func NewService(db *sql.DB, cfg ServiceConfig, logger *slog.Logger) *Service {
	logger = logger.With("component", "snapshot")
	rec := cfg.Audit
	if rec == nil {
		rec = audit.Discard{}
	}
	return &Service{
		builder: NewBuilder(db, cfg.Archiver, logger),
		engine: NewEngine(db, EngineConfig{
			Timeout:  cfg.RestoreTimeout,
			Hasher:   cfg.Hasher,
			OnStatus: cfg.OnStatus,
		}, logger),
		backups: store.NewBackupStore(db),
		audit:   rec,
		logger:  logger,
	}
}

func (s *Service) record(ctx context.Context, e audit.Event) {
	if err := s.audit.Record(context.WithoutCancel(ctx), e); err != nil {
		s.logger.Error("audit event not recorded", "action", e.Action, "tenant_id", e.TenantID, "error", err)
	}
}

// CreateSnapshot is restricted to platform operators.
func (s *Service) CreateSnapshot(ctx context.Context, ac auth.AuthContext, tenantID int64) (*model.Backup, error) {
	if !ac.IsOperator() {
		return nil, newError(KindForbidden, "only platform operators can create snapshots", nil)
	}
	b, err := s.builder.Create(ctx, tenantID, ac.IdentityID)
	if err != nil {
		return nil, err
	}
	s.record(ctx, audit.Event{
		ActorID:  ac.IdentityID,
		TenantID: tenantID,
		Action:   audit.ActionSnapshotCreate,
		Metadata: map[string]any{
			"backup_id":   b.ID,
			"archive_key": b.ArchiveKey,
		},
	})
	return b, nil
}

// ListSnapshots returns the tenant's newest backups without payloads.
func (s *Service) ListSnapshots(ctx context.Context, ac auth.AuthContext, tenantID int64) ([]model.Backup, error) {
	if !ac.CanAccessTenant(tenantID) {
		return nil, newError(KindForbidden, "tenant is outside your scope", nil)
	}
	backups, err := s.backups.List(ctx, tenantID, store.MaxBackupList)
	if err != nil {
		return nil, newError(KindInternal, "list snapshots", err)
	}
	if backups == nil {
		backups = []model.Backup{}
	}
	return backups, nil
}

func (s *Service) GetSnapshot(ctx context.Context, ac auth.AuthContext, id string, withPayload bool) (*model.Backup, error) {
	b, err := s.backups.Get(ctx, id, withPayload)
	if err != nil {
		return nil, newError(KindInternal, "get snapshot", err)
	}
	if b == nil {
		return nil, newError(KindNotFound, "backup not found", nil)
	}
	if !ac.CanAccessTenant(b.TenantID) {
		return nil, newError(KindForbidden, "backup is outside your scope", nil)
	}
	return b, nil
}

// RestoreSnapshot requires manage rights on the destination and access to
// the backup's origin tenant.
func (s *Service) RestoreSnapshot(ctx context.Context, ac auth.AuthContext, req RestoreRequest) (*RestoreResult, error) {
	if !ac.CanManageTenant(req.DestinationTenantID) {
		return nil, newError(KindForbidden, "destination tenant is outside your scope", nil)
	}
	b, err := s.backups.Get(ctx, req.BackupID, false)
	if err != nil {
		return nil, newError(KindInternal, "get snapshot", err)
	}
	if b == nil {
		return nil, newError(KindNotFound, "backup not found", nil)
	}
	if !ac.CanAccessTenant(b.TenantID) {
		return nil, newError(KindForbidden, "backup is outside your scope", nil)
	}

	req.ActorID = ac.IdentityID
	result, err := s.engine.Restore(ctx, req)
	if err != nil {
		// Pre-transaction rejections write nothing, audit included.
		if KindOf(err) == KindInternal {
			s.record(ctx, audit.Event{
				ActorID:  ac.IdentityID,
				TenantID: req.DestinationTenantID,
				Action:   audit.ActionSnapshotRestoreFailed,
				Metadata: map[string]any{
					"backup_id": req.BackupID,
					"mode":      string(req.Mode),
				},
			})
		}
		return nil, err
	}

	created := make([]string, 0, len(result.CreatedIdentities))
	for _, c := range result.CreatedIdentities {
		created = append(created, c.Handle)
	}
	skipped := make([]string, 0, len(result.SkippedIdentities))
	for _, sk := range result.SkippedIdentities {
		skipped = append(skipped, sk.Handle)
	}
	s.record(ctx, audit.Event{
		ActorID:  ac.IdentityID,
		TenantID: req.DestinationTenantID,
		Action:   audit.ActionSnapshotRestore,
		Metadata: map[string]any{
			"backup_id":        result.BackupID,
			"mode":             string(result.Mode),
			"source_tenant_id": result.SourceTenantID,
			"created_handles":  created,
			"skipped_handles":  skipped,
		},
	})
	return result, nil
}
