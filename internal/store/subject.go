package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/classbook/internal/model"
)

type SubjectStore struct {
	db DBTX
}

func NewSubjectStore(db DBTX) *SubjectStore {
	return &SubjectStore{db: db}
}

func scanSubject(s scanner) (*model.Subject, error) {
	var sub model.Subject
	var code sql.NullString
	if err := s.Scan(&sub.ID, &sub.TenantID, &sub.Name, &code, &sub.CreatedAt, &sub.UpdatedAt); err != nil {
		return nil, err
	}
	sub.Code = stringPtr(code)
	return &sub, nil
}

const subjectCols = `id, tenant_id, name, code, created_at, updated_at`

func (s *SubjectStore) Create(ctx context.Context, tenantID int64, name string, code *string) (*model.Subject, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO subjects (tenant_id, name, code) VALUES (?, ?, ?)`,
		tenantID, name, nullString(code),
	)
	if err != nil {
		return nil, fmt.Errorf("insert subject: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *SubjectStore) GetByID(ctx context.Context, id int64) (*model.Subject, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+subjectCols+` FROM subjects WHERE id = ?`, id)
	sub, err := scanSubject(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get subject: %w", err)
	}
	return sub, nil
}

func (s *SubjectStore) GetByName(ctx context.Context, tenantID int64, name string) (*model.Subject, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+subjectCols+` FROM subjects WHERE tenant_id = ? AND name = ?`, tenantID, name,
	)
	sub, err := scanSubject(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get subject by name: %w", err)
	}
	return sub, nil
}

// CodeOwner returns the id of the subject using code in the tenant, or 0.
func (s *SubjectStore) CodeOwner(ctx context.Context, tenantID int64, code string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM subjects WHERE tenant_id = ? AND code = ?`, tenantID, code,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get subject code owner: %w", err)
	}
	return id, nil
}

// SetCode replaces the code of a subject. A nil code leaves the current one.
func (s *SubjectStore) SetCode(ctx context.Context, id int64, code *string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE subjects SET code = COALESCE(?, code), updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		nullString(code), id,
	)
	if err != nil {
		return fmt.Errorf("set subject code: %w", err)
	}
	return nil
}

func (s *SubjectStore) ListByTenant(ctx context.Context, tenantID int64) ([]model.Subject, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+subjectCols+` FROM subjects WHERE tenant_id = ? ORDER BY name`, tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}
	defer rows.Close()

	var subjects []model.Subject
	for rows.Next() {
		sub, err := scanSubject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subject: %w", err)
		}
		subjects = append(subjects, *sub)
	}
	return subjects, rows.Err()
}
