package auth

import (
	"context"

	"github.com/dukerupert/classbook/internal/model"
)

type contextKey struct{}

// AuthContext describes the authenticated caller. TenantID is nil for
// platform operators, who are not bound to a tenant.
type AuthContext struct {
	IdentityID int64
	TenantID   *int64
	Role       string
	SessionID  int64
}

func WithAuth(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, contextKey{}, ac)
}

func FromContext(ctx context.Context) (AuthContext, bool) {
	ac, ok := ctx.Value(contextKey{}).(AuthContext)
	return ac, ok
}

func (ac AuthContext) IsOperator() bool {
	return ac.Role == model.RolePlatformOperator
}

// CanAccessTenant reports whether the caller is authorized for tenantID.
// Operators may act on any tenant; everyone else only on their own.
func (ac AuthContext) CanAccessTenant(tenantID int64) bool {
	if ac.IsOperator() {
		return true
	}
	return ac.TenantID != nil && *ac.TenantID == tenantID
}

// CanManageTenant reports whether the caller may run restores against tenantID.
func (ac AuthContext) CanManageTenant(tenantID int64) bool {
	if ac.IsOperator() {
		return true
	}
	return ac.Role == model.RoleSchoolAdmin && ac.CanAccessTenant(tenantID)
}
