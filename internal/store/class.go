package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/classbook/internal/model"
)

type ClassStore struct {
	db DBTX
}

func NewClassStore(db DBTX) *ClassStore {
	return &ClassStore{db: db}
}

func scanClass(s scanner) (*model.Class, error) {
	var c model.Class
	if err := s.Scan(&c.ID, &c.TenantID, &c.Name, &c.Stream, &c.AcademicYear, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

const classCols = `id, tenant_id, name, stream, academic_year, created_at, updated_at`

// Create inserts a class. An empty stream is stored as model.DefaultStream.
func (s *ClassStore) Create(ctx context.Context, tenantID int64, name, stream, academicYear string) (*model.Class, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO classes (tenant_id, name, stream, academic_year) VALUES (?, ?, ?, ?)`,
		tenantID, name, model.NormalizeStream(stream), academicYear,
	)
	if err != nil {
		return nil, fmt.Errorf("insert class: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+classCols+` FROM classes WHERE id = ?`, id)
	return scanClass(row)
}

// GetByNaturalKey finds a class by (name, stream, academic year) within a tenant.
// The stream is normalized before matching.
func (s *ClassStore) GetByNaturalKey(ctx context.Context, tenantID int64, name, stream, academicYear string) (*model.Class, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+classCols+` FROM classes WHERE tenant_id = ? AND name = ? AND stream = ? AND academic_year = ?`,
		tenantID, name, model.NormalizeStream(stream), academicYear,
	)
	c, err := scanClass(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get class by natural key: %w", err)
	}
	return c, nil
}

func (s *ClassStore) ListByTenant(ctx context.Context, tenantID int64) ([]model.Class, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+classCols+` FROM classes WHERE tenant_id = ? ORDER BY academic_year, name, stream`, tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("list classes: %w", err)
	}
	defer rows.Close()

	var classes []model.Class
	for rows.Next() {
		c, err := scanClass(rows)
		if err != nil {
			return nil, fmt.Errorf("scan class: %w", err)
		}
		classes = append(classes, *c)
	}
	return classes, rows.Err()
}

// Touch bumps updated_at on a matched class during reconciliation.
func (s *ClassStore) Touch(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE classes SET updated_at = CURRENT_TIMESTAMP WHERE id = ?`, id); err != nil {
		return fmt.Errorf("touch class: %w", err)
	}
	return nil
}
