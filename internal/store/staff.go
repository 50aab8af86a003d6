package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/classbook/internal/model"
)

// StaffStore covers staff profiles and the two link tables that hang off them.
type StaffStore struct {
	db DBTX
}

func NewStaffStore(db DBTX) *StaffStore {
	return &StaffStore{db: db}
}

func scanStaffProfile(s scanner) (*model.StaffProfile, error) {
	var p model.StaffProfile
	var identityID sql.NullInt64
	if err := s.Scan(&p.ID, &p.TenantID, &identityID, &p.FullName, &p.Title, &p.Phone, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.IdentityID = int64Ptr(identityID)
	return &p, nil
}

const staffProfileCols = `id, tenant_id, identity_id, full_name, title, phone, created_at, updated_at`

func (s *StaffStore) CreateProfile(ctx context.Context, tenantID int64, identityID *int64, fullName, title, phone string) (*model.StaffProfile, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO staff_profiles (tenant_id, identity_id, full_name, title, phone) VALUES (?, ?, ?, ?, ?)`,
		tenantID, nullInt64(identityID), fullName, title, phone,
	)
	if err != nil {
		return nil, fmt.Errorf("insert staff profile: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+staffProfileCols+` FROM staff_profiles WHERE id = ?`, id)
	return scanStaffProfile(row)
}

func (s *StaffStore) ListProfiles(ctx context.Context, tenantID int64) ([]model.StaffProfile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+staffProfileCols+` FROM staff_profiles WHERE tenant_id = ? ORDER BY id`, tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("list staff profiles: %w", err)
	}
	defer rows.Close()

	var profiles []model.StaffProfile
	for rows.Next() {
		p, err := scanStaffProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan staff profile: %w", err)
		}
		profiles = append(profiles, *p)
	}
	return profiles, rows.Err()
}

func (s *StaffStore) CreateAssignment(ctx context.Context, tenantID, staffID, classID, subjectID int64) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO teaching_assignments (tenant_id, staff_id, class_id, subject_id) VALUES (?, ?, ?, ?)`,
		tenantID, staffID, classID, subjectID,
	)
	if err != nil {
		return 0, fmt.Errorf("insert teaching assignment: %w", err)
	}
	return result.LastInsertId()
}

func (s *StaffStore) ListAssignments(ctx context.Context, tenantID int64) ([]model.TeachingAssignment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tenant_id, staff_id, class_id, subject_id, created_at FROM teaching_assignments WHERE tenant_id = ? ORDER BY id`,
		tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("list teaching assignments: %w", err)
	}
	defer rows.Close()

	var assignments []model.TeachingAssignment
	for rows.Next() {
		var a model.TeachingAssignment
		if err := rows.Scan(&a.ID, &a.TenantID, &a.StaffID, &a.ClassID, &a.SubjectID, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan teaching assignment: %w", err)
		}
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}

func (s *StaffStore) CreateClassTeacherLink(ctx context.Context, tenantID, classID, staffID int64) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO class_teacher_links (tenant_id, class_id, staff_id) VALUES (?, ?, ?)`,
		tenantID, classID, staffID,
	)
	if err != nil {
		return 0, fmt.Errorf("insert class teacher link: %w", err)
	}
	return result.LastInsertId()
}

func (s *StaffStore) ListClassTeacherLinks(ctx context.Context, tenantID int64) ([]model.ClassTeacherLink, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tenant_id, class_id, staff_id, created_at FROM class_teacher_links WHERE tenant_id = ? ORDER BY id`,
		tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("list class teacher links: %w", err)
	}
	defer rows.Close()

	var links []model.ClassTeacherLink
	for rows.Next() {
		var l model.ClassTeacherLink
		if err := rows.Scan(&l.ID, &l.TenantID, &l.ClassID, &l.StaffID, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan class teacher link: %w", err)
		}
		links = append(links, l)
	}
	return links, rows.Err()
}
