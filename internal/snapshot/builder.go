package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dukerupert/classbook/internal/model"
	"github.com/dukerupert/classbook/internal/store"
)

// Archiver stores an off-site copy of a snapshot payload and returns the key
// it was stored under.
type Archiver interface {
	Archive(ctx context.Context, tenantID int64, backupID string, payload []byte) (string, error)
}

// Builder exports a tenant's dataset into a BackupRecord.
type Builder struct {
	db       *sql.DB
	tenants  *store.TenantStore
	backups  *store.BackupStore
	archiver Archiver
	logger   *slog.Logger
	now      func() time.Time
}

func NewBuilder(db *sql.DB, archiver Archiver, logger *slog.Logger) *Builder {
	return &Builder{
		db:       db,
		tenants:  store.NewTenantStore(db),
		backups:  store.NewBackupStore(db),
		archiver: archiver,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Create snapshots tenantID and persists the result as a READY backup.
func (b *Builder) Create(ctx context.Context, tenantID, actorID int64) (*model.Backup, error) {
	tenant, err := b.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return nil, newError(KindInternal, "load tenant", err)
	}
	if tenant == nil {
		return nil, newError(KindNotFound, "tenant not found", nil)
	}
	if !tenant.Active {
		return nil, newError(KindConflict, "tenant is inactive", nil)
	}

	payload, err := b.Build(ctx, tenantID)
	if err != nil {
		return nil, newError(KindInternal, "build snapshot", err)
	}

	meta := Meta{
		Version:    payload.Version,
		ExportedAt: payload.ExportedAt,
		Tenant:     TenantDescriptor{ID: tenant.ID, Name: tenant.Name, Slug: tenant.Slug},
		Counts:     payload.Data.Counts(),
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, newError(KindInternal, "encode snapshot meta", err)
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, newError(KindInternal, "encode snapshot payload", err)
	}

	record := &model.Backup{
		ID:       uuid.NewString(),
		TenantID: tenantID,
		Type:     model.BackupTypeFull,
		Meta:     metaJSON,
		Payload:  payloadJSON,
	}
	if actorID != 0 {
		record.CreatedBy = &actorID
	}

	if b.archiver != nil {
		key, err := b.archiver.Archive(ctx, tenantID, record.ID, payloadJSON)
		if err != nil {
			b.logger.Warn("snapshot archive upload failed", "backup_id", record.ID, "tenant_id", tenantID, "error", err)
		} else {
			record.ArchiveKey = key
		}
	}

	created, err := b.backups.Create(ctx, record)
	if err != nil {
		return nil, newError(KindInternal, "persist snapshot", err)
	}

	b.logger.Info("snapshot created",
		"backup_id", created.ID,
		"tenant_id", tenantID,
		"identities", meta.Counts.Identities,
		"students", meta.Counts.Students,
		"bytes", len(payloadJSON),
	)
	return created, nil
}

// Build reads every tenant collection in parallel. Reads are not wrapped in a
// transaction, so the result is best-effort rather than a consistent cut. A
// collection whose table is missing from the schema exports as empty.
func (b *Builder) Build(ctx context.Context, tenantID int64) (*Payload, error) {
	p := &Payload{
		Version:    SupportedVersion,
		TenantID:   tenantID,
		ExportedAt: b.now(),
	}
	d := &p.Data

	identities := store.NewIdentityStore(b.db)
	staff := store.NewStaffStore(b.db)
	classes := store.NewClassStore(b.db)
	students := store.NewStudentStore(b.db)
	subjects := store.NewSubjectStore(b.db)
	subscriptions := store.NewSubscriptionStore(b.db)
	settings := store.NewSettingsStore(b.db)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		rows, err := collect(b, "identities", func() ([]model.Identity, error) {
			return identities.ListByTenant(gctx, tenantID)
		})
		if err != nil {
			return err
		}
		d.Identities = make([]IdentityRecord, 0, len(rows))
		for _, i := range rows {
			d.Identities = append(d.Identities, IdentityRecord{
				ID:                 i.ID,
				Handle:             i.Handle,
				Name:               i.Name,
				Role:               i.Role,
				Active:             i.Active,
				MustChangePassword: i.MustChangePassword,
			})
		}
		return nil
	})
	g.Go(func() (err error) {
		d.StaffProfiles, err = collect(b, "staff_profiles", func() ([]model.StaffProfile, error) {
			return staff.ListProfiles(gctx, tenantID)
		})
		return err
	})
	g.Go(func() (err error) {
		d.Classes, err = collect(b, "classes", func() ([]model.Class, error) {
			return classes.ListByTenant(gctx, tenantID)
		})
		return err
	})
	g.Go(func() (err error) {
		d.Students, err = collect(b, "students", func() ([]model.Student, error) {
			return students.ListByTenant(gctx, tenantID)
		})
		return err
	})
	g.Go(func() (err error) {
		d.Subjects, err = collect(b, "subjects", func() ([]model.Subject, error) {
			return subjects.ListByTenant(gctx, tenantID)
		})
		return err
	})
	g.Go(func() (err error) {
		d.TeachingAssignments, err = collect(b, "teaching_assignments", func() ([]model.TeachingAssignment, error) {
			return staff.ListAssignments(gctx, tenantID)
		})
		return err
	})
	g.Go(func() (err error) {
		d.ClassTeacherLinks, err = collect(b, "class_teacher_links", func() ([]model.ClassTeacherLink, error) {
			return staff.ListClassTeacherLinks(gctx, tenantID)
		})
		return err
	})
	g.Go(func() error {
		sub, err := subscriptions.Latest(gctx, tenantID)
		if store.IsMissingTable(err) {
			b.logger.Warn("snapshot collection unavailable", "collection", "subscriptions", "tenant_id", tenantID)
			return nil
		}
		if err != nil {
			return fmt.Errorf("read subscriptions: %w", err)
		}
		d.Subscription = sub
		return nil
	})
	g.Go(func() error {
		st, err := settings.Get(gctx, tenantID)
		if store.IsMissingTable(err) {
			b.logger.Warn("snapshot collection unavailable", "collection", "settings", "tenant_id", tenantID)
			return nil
		}
		if err != nil {
			return fmt.Errorf("read settings: %w", err)
		}
		d.Settings = store.SettingsMap(st)
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return p, nil
}

// collect runs one collection read, degrading a missing table to an empty list.
func collect[T any](b *Builder, name string, read func() ([]T, error)) ([]T, error) {
	rows, err := read()
	if store.IsMissingTable(err) {
		b.logger.Warn("snapshot collection unavailable", "collection", name)
		return []T{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	if rows == nil {
		rows = []T{}
	}
	return rows, nil
}
