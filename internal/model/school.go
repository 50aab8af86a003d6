package model

import (
	"strings"
	"time"
)

// DefaultStream replaces a missing class stream so the class natural key never
// contains a null.
const DefaultStream = "DEFAULT"

// NormalizeStream trims s and falls back to DefaultStream when empty.
func NormalizeStream(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultStream
	}
	return s
}

type Class struct {
	ID           int64     `json:"id"`
	TenantID     int64     `json:"tenant_id"`
	Name         string    `json:"name"`
	Stream       string    `json:"stream"`
	AcademicYear string    `json:"academic_year"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Subject struct {
	ID        int64     `json:"id"`
	TenantID  int64     `json:"tenant_id"`
	Name      string    `json:"name"`
	Code      *string   `json:"code"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Student struct {
	ID              int64     `json:"id"`
	TenantID        int64     `json:"tenant_id"`
	AdmissionNumber string    `json:"admission_number"`
	FirstName       string    `json:"first_name"`
	LastName        string    `json:"last_name"`
	Gender          string    `json:"gender"`
	DateOfBirth     *string   `json:"date_of_birth"`
	ClassID         *int64    `json:"class_id"`
	IdentityID      *int64    `json:"identity_id"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type StaffProfile struct {
	ID         int64     `json:"id"`
	TenantID   int64     `json:"tenant_id"`
	IdentityID *int64    `json:"identity_id"`
	FullName   string    `json:"full_name"`
	Title      string    `json:"title"`
	Phone      string    `json:"phone"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type TeachingAssignment struct {
	ID        int64     `json:"id"`
	TenantID  int64     `json:"tenant_id"`
	StaffID   int64     `json:"staff_id"`
	ClassID   int64     `json:"class_id"`
	SubjectID int64     `json:"subject_id"`
	CreatedAt time.Time `json:"created_at"`
}

type ClassTeacherLink struct {
	ID        int64     `json:"id"`
	TenantID  int64     `json:"tenant_id"`
	ClassID   int64     `json:"class_id"`
	StaffID   int64     `json:"staff_id"`
	CreatedAt time.Time `json:"created_at"`
}
