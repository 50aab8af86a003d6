package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/classbook/internal/model"
)

// MaxBackupList caps the number of records returned by List.
const MaxBackupList = 50

type BackupStore struct {
	db DBTX
}

func NewBackupStore(db DBTX) *BackupStore {
	return &BackupStore{db: db}
}

const backupCols = `id, tenant_id, type, status, meta, archive_key, created_by, created_at, updated_at`

func scanBackup(s scanner, withPayload bool) (*model.Backup, error) {
	var b model.Backup
	var meta, payload []byte
	var archiveKey sql.NullString
	var createdBy sql.NullInt64
	dest := []any{&b.ID, &b.TenantID, &b.Type, &b.Status, &meta, &archiveKey, &createdBy, &b.CreatedAt, &b.UpdatedAt}
	if withPayload {
		dest = append(dest, &payload)
	}
	if err := s.Scan(dest...); err != nil {
		return nil, err
	}
	b.Meta = meta
	if withPayload {
		b.Payload = payload
	}
	b.ArchiveKey = archiveKey.String
	b.CreatedBy = int64Ptr(createdBy)
	return &b, nil
}

// Create persists a new backup record. The status is forced to READY.
func (s *BackupStore) Create(ctx context.Context, b *model.Backup) (*model.Backup, error) {
	now := time.Now().UTC()
	if b.Type == "" {
		b.Type = model.BackupTypeFull
	}
	var archiveKey *string
	if b.ArchiveKey != "" {
		archiveKey = &b.ArchiveKey
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO backups (id, tenant_id, type, status, meta, payload, archive_key, created_by, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.TenantID, b.Type, model.BackupStatusReady, string(b.Meta), []byte(b.Payload),
		nullString(archiveKey), nullInt64(b.CreatedBy), now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("create backup: %w", err)
	}
	created := *b
	created.Status = model.BackupStatusReady
	created.CreatedAt = now
	created.UpdatedAt = now
	return &created, nil
}

// Get returns the backup with the given id, or nil if it does not exist.
// The payload is only loaded when withPayload is set.
func (s *BackupStore) Get(ctx context.Context, id string, withPayload bool) (*model.Backup, error) {
	cols := backupCols
	if withPayload {
		cols += ", payload"
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+cols+` FROM backups WHERE id = ?`, id)
	b, err := scanBackup(row, withPayload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get backup %s: %w", id, err)
	}
	return b, nil
}

// List returns the tenant's backups newest first, without payloads.
func (s *BackupStore) List(ctx context.Context, tenantID int64, limit int) ([]model.Backup, error) {
	if limit <= 0 || limit > MaxBackupList {
		limit = MaxBackupList
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+backupCols+` FROM backups WHERE tenant_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		tenantID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}
	defer rows.Close()

	var backups []model.Backup
	for rows.Next() {
		b, err := scanBackup(rows, false)
		if err != nil {
			return nil, fmt.Errorf("scan backup: %w", err)
		}
		backups = append(backups, *b)
	}
	return backups, rows.Err()
}

// ClaimForRestore moves a READY or FAILED backup to RESTORING in a single
// statement. It returns false if the backup is missing or already RESTORING.
func (s *BackupStore) ClaimForRestore(ctx context.Context, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE backups SET status = ?, updated_at = ? WHERE id = ? AND status IN (?, ?)`,
		model.BackupStatusRestoring, time.Now().UTC(), id, model.BackupStatusReady, model.BackupStatusFailed,
	)
	if err != nil {
		return false, fmt.Errorf("claim backup for restore: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// FinishRestore moves a RESTORING backup to a terminal status.
func (s *BackupStore) FinishRestore(ctx context.Context, id string, status model.BackupStatus) error {
	if status != model.BackupStatusReady && status != model.BackupStatusFailed {
		return fmt.Errorf("finish restore: invalid terminal status %q", status)
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE backups SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		status, time.Now().UTC(), id, model.BackupStatusRestoring,
	)
	if err != nil {
		return fmt.Errorf("finish restore: %w", err)
	}
	return nil
}
