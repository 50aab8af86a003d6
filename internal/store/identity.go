package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/classbook/internal/model"
)

type IdentityStore struct {
	db DBTX
}

func NewIdentityStore(db DBTX) *IdentityStore {
	return &IdentityStore{db: db}
}

func scanIdentity(s scanner) (*model.Identity, error) {
	var i model.Identity
	var tenantID sql.NullInt64
	var active, mustChange int
	var lockedUntil sql.NullTime
	err := s.Scan(
		&i.ID, &tenantID, &i.Handle, &i.Name, &i.Role, &active, &i.PasswordHash,
		&mustChange, &i.FailedAttempts, &lockedUntil, &i.CreatedAt, &i.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	i.TenantID = int64Ptr(tenantID)
	i.Active = active != 0
	i.MustChangePassword = mustChange != 0
	if lockedUntil.Valid {
		i.LockedUntil = &lockedUntil.Time
	}
	return &i, nil
}

const identityCols = `id, tenant_id, handle, name, role, active, password_hash, must_change_password, failed_attempts, locked_until, created_at, updated_at`

// NewIdentity holds the fields for inserting an identity. A zero ID lets the
// database assign one.
type NewIdentity struct {
	ID                 int64
	TenantID           *int64
	Handle             string
	Name               string
	Role               string
	Active             bool
	PasswordHash       string
	MustChangePassword bool
}

// Create inserts an identity with cleared lockout counters.
func (s *IdentityStore) Create(ctx context.Context, in NewIdentity) (*model.Identity, error) {
	var id any
	if in.ID != 0 {
		id = in.ID
	}
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO identities (id, tenant_id, handle, name, role, active, password_hash, must_change_password, failed_attempts, locked_until)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, NULL)`,
		id, nullInt64(in.TenantID), in.Handle, in.Name, in.Role, boolToInt(in.Active), in.PasswordHash, boolToInt(in.MustChangePassword),
	)
	if err != nil {
		return nil, fmt.Errorf("insert identity: %w", err)
	}
	newID, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, newID)
}

func (s *IdentityStore) GetByID(ctx context.Context, id int64) (*model.Identity, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+identityCols+` FROM identities WHERE id = ?`, id)
	i, err := scanIdentity(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get identity: %w", err)
	}
	return i, nil
}

// GetByHandle looks a handle up across all tenants.
func (s *IdentityStore) GetByHandle(ctx context.Context, handle string) (*model.Identity, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+identityCols+` FROM identities WHERE handle = ?`, handle)
	i, err := scanIdentity(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get identity by handle: %w", err)
	}
	return i, nil
}

func (s *IdentityStore) ListByTenant(ctx context.Context, tenantID int64) ([]model.Identity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+identityCols+` FROM identities WHERE tenant_id = ? ORDER BY id`, tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	defer rows.Close()

	var identities []model.Identity
	for rows.Next() {
		i, err := scanIdentity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		identities = append(identities, *i)
	}
	return identities, rows.Err()
}

// Exists reports whether an identity row with the given id exists in any tenant.
func (s *IdentityStore) Exists(ctx context.Context, id int64) (bool, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM identities WHERE id = ?`, id).Scan(&count); err != nil {
		return false, fmt.Errorf("check identity exists: %w", err)
	}
	return count > 0, nil
}

// Reconcile updates only the role, active flag and credential-reset flag of
// an existing identity. Tenant, handle and secrets are left untouched.
func (s *IdentityStore) Reconcile(ctx context.Context, id int64, role string, active, mustChange bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE identities SET role = ?, active = ?, must_change_password = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		role, boolToInt(active), boolToInt(mustChange), id,
	)
	if err != nil {
		return fmt.Errorf("reconcile identity: %w", err)
	}
	return nil
}

// RecordFailedLogin increments the failure counter and locks the identity
// until lockUntil once the counter reaches maxAttempts.
func (s *IdentityStore) RecordFailedLogin(ctx context.Context, id int64, maxAttempts int, lockUntil time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE identities SET failed_attempts = failed_attempts + 1,
		   locked_until = CASE WHEN failed_attempts + 1 >= ? THEN ? ELSE locked_until END
		 WHERE id = ?`,
		maxAttempts, lockUntil.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("record failed login: %w", err)
	}
	return nil
}
