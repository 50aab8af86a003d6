package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/classbook/internal/model"
)

type TenantStore struct {
	db DBTX
}

func NewTenantStore(db DBTX) *TenantStore {
	return &TenantStore{db: db}
}

func scanTenant(s scanner) (*model.Tenant, error) {
	var t model.Tenant
	var active int
	if err := s.Scan(&t.ID, &t.Name, &t.Slug, &active, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.Active = active != 0
	return &t, nil
}

const tenantCols = `id, name, slug, active, created_at, updated_at`

func (s *TenantStore) Create(ctx context.Context, name, slug string) (*model.Tenant, error) {
	result, err := s.db.ExecContext(ctx, `INSERT INTO tenants (name, slug) VALUES (?, ?)`, name, slug)
	if err != nil {
		return nil, fmt.Errorf("insert tenant: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *TenantStore) GetByID(ctx context.Context, id int64) (*model.Tenant, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+tenantCols+` FROM tenants WHERE id = ?`, id)
	t, err := scanTenant(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	return t, nil
}

func (s *TenantStore) SetActive(ctx context.Context, id int64, active bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE tenants SET active = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		boolToInt(active), id,
	)
	if err != nil {
		return fmt.Errorf("set tenant active: %w", err)
	}
	return nil
}
