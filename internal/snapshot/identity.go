package snapshot

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukerupert/classbook/internal/model"
	"github.com/dukerupert/classbook/internal/store"
)

// Placement is where a login handle currently lives relative to the
// destination tenant of a restore.
type Placement int

const (
	// Absent: no identity anywhere uses the handle.
	Absent Placement = iota
	// InScope: the handle belongs to the destination tenant.
	InScope
	// OutOfScope: the handle belongs to another tenant or to no tenant at all.
	OutOfScope
)

func (p Placement) String() string {
	switch p {
	case InScope:
		return "in_scope"
	case OutOfScope:
		return "out_of_scope"
	default:
		return "absent"
	}
}

// Decision is the outcome of classifying one snapshot identity.
type Decision struct {
	Placement Placement
	Existing  *model.Identity
}

const reasonHandleClaimed = "handle already registered to another tenant"

// IdentityReconciler decides, before any write, whether a snapshot identity
// may be created or updated in the destination tenant. Handles are unique
// system-wide but an identity's tenant is never reassigned.
type IdentityReconciler struct {
	logger *slog.Logger
}

func NewIdentityReconciler(logger *slog.Logger) *IdentityReconciler {
	return &IdentityReconciler{logger: logger}
}

func (r *IdentityReconciler) Classify(ctx context.Context, identities *store.IdentityStore, handle string, destTenantID int64) (Decision, error) {
	existing, err := identities.GetByHandle(ctx, handle)
	if err != nil {
		return Decision{}, fmt.Errorf("classify identity %q: %w", handle, err)
	}
	switch {
	case existing == nil:
		return Decision{Placement: Absent}, nil
	case existing.BelongsTo(destTenantID):
		return Decision{Placement: InScope, Existing: existing}, nil
	default:
		var owner any = "none"
		if existing.TenantID != nil {
			owner = *existing.TenantID
		}
		r.logger.Warn("restore skipping identity owned outside destination tenant",
			"handle", handle,
			"destination_tenant_id", destTenantID,
			"owner_tenant_id", owner,
		)
		return Decision{Placement: OutOfScope, Existing: existing}, nil
	}
}
