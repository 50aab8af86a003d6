package model

import "time"

const (
	RolePlatformOperator = "platform_operator"
	RoleSchoolAdmin      = "school_admin"
	RoleTeacher          = "teacher"
	RoleStudent          = "student"
)

// Identity is a login identity. Handle is unique across all tenants.
// PlatformOperator identities have no tenant.
type Identity struct {
	ID                 int64      `json:"id"`
	TenantID           *int64     `json:"tenant_id"`
	Handle             string     `json:"handle"`
	Name               string     `json:"name"`
	Role               string     `json:"role"`
	Active             bool       `json:"active"`
	PasswordHash       string     `json:"-"`
	MustChangePassword bool       `json:"must_change_password"`
	FailedAttempts     int        `json:"failed_attempts"`
	LockedUntil        *time.Time `json:"locked_until,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// BelongsTo reports whether the identity is bound to tenantID.
func (i *Identity) BelongsTo(tenantID int64) bool {
	return i.TenantID != nil && *i.TenantID == tenantID
}
