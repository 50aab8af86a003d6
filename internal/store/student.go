package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/classbook/internal/model"
)

type StudentStore struct {
	db DBTX
}

func NewStudentStore(db DBTX) *StudentStore {
	return &StudentStore{db: db}
}

func scanStudent(s scanner) (*model.Student, error) {
	var st model.Student
	var dob sql.NullString
	var classID, identityID sql.NullInt64
	err := s.Scan(
		&st.ID, &st.TenantID, &st.AdmissionNumber, &st.FirstName, &st.LastName, &st.Gender,
		&dob, &classID, &identityID, &st.CreatedAt, &st.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	st.DateOfBirth = stringPtr(dob)
	st.ClassID = int64Ptr(classID)
	st.IdentityID = int64Ptr(identityID)
	return &st, nil
}

const studentCols = `id, tenant_id, admission_number, first_name, last_name, gender, date_of_birth, class_id, identity_id, created_at, updated_at`

// StudentFields are the writable columns of a student row.
type StudentFields struct {
	AdmissionNumber string
	FirstName       string
	LastName        string
	Gender          string
	DateOfBirth     *string
	ClassID         *int64
	IdentityID      *int64
}

func (s *StudentStore) Create(ctx context.Context, tenantID int64, f StudentFields) (*model.Student, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO students (tenant_id, admission_number, first_name, last_name, gender, date_of_birth, class_id, identity_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		tenantID, f.AdmissionNumber, f.FirstName, f.LastName, f.Gender,
		nullString(f.DateOfBirth), nullInt64(f.ClassID), nullInt64(f.IdentityID),
	)
	if err != nil {
		return nil, fmt.Errorf("insert student: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *StudentStore) GetByID(ctx context.Context, id int64) (*model.Student, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+studentCols+` FROM students WHERE id = ?`, id)
	st, err := scanStudent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get student: %w", err)
	}
	return st, nil
}

func (s *StudentStore) GetByAdmissionNumber(ctx context.Context, tenantID int64, admissionNumber string) (*model.Student, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+studentCols+` FROM students WHERE tenant_id = ? AND admission_number = ?`,
		tenantID, admissionNumber,
	)
	st, err := scanStudent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get student by admission number: %w", err)
	}
	return st, nil
}

// Update overwrites every writable column except the admission number.
func (s *StudentStore) Update(ctx context.Context, id int64, f StudentFields) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE students SET first_name = ?, last_name = ?, gender = ?, date_of_birth = ?, class_id = ?, identity_id = ?,
		   updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		f.FirstName, f.LastName, f.Gender, nullString(f.DateOfBirth), nullInt64(f.ClassID), nullInt64(f.IdentityID), id,
	)
	if err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	return nil
}

func (s *StudentStore) ListByTenant(ctx context.Context, tenantID int64) ([]model.Student, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+studentCols+` FROM students WHERE tenant_id = ? ORDER BY admission_number`, tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	defer rows.Close()

	var students []model.Student
	for rows.Next() {
		st, err := scanStudent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan student: %w", err)
		}
		students = append(students, *st)
	}
	return students, rows.Err()
}
