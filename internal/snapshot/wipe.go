package snapshot

import (
	"context"
	"fmt"
	"sort"

	"github.com/dukerupert/classbook/internal/store"
)

// wipeDependencies lists every tenant-scoped table and the tables whose
// tenant rows must already be deleted before it may be wiped. Adding a tenant
// table means adding it here; TestWipeCoversTenantTables enforces that.
var wipeDependencies = map[string][]string{
	"class_teacher_links":  nil,
	"teaching_assignments": nil,
	"students":             {"class_teacher_links", "teaching_assignments"},
	"classes":              {"students", "teaching_assignments", "class_teacher_links"},
	"staff_profiles":       {"classes", "teaching_assignments", "class_teacher_links"},
	"subjects":             {"staff_profiles", "teaching_assignments"},
	"settings":             {"subjects"},
	"subscriptions":        {"settings"},
	"sessions":             {"subscriptions"},
	"identities":           {"sessions", "students", "staff_profiles", "subscriptions"},
}

// wipeOrder is wipeDependencies in deletion order.
var wipeOrder = mustOrder(wipeDependencies)

// WipeOrder returns the table deletion order used by REPLACE restores.
func WipeOrder() []string {
	return append([]string(nil), wipeOrder...)
}

// mustOrder topologically sorts deps, breaking ties alphabetically so the
// order is stable. It panics on unknown tables or cycles.
func mustOrder(deps map[string][]string) []string {
	remaining := make(map[string]int, len(deps))
	dependents := make(map[string][]string, len(deps))
	for table, after := range deps {
		remaining[table] = len(after)
		for _, a := range after {
			if _, ok := deps[a]; !ok {
				panic(fmt.Sprintf("wipe: %s depends on unknown table %s", table, a))
			}
			dependents[a] = append(dependents[a], table)
		}
	}

	var ready []string
	for table, n := range remaining {
		if n == 0 {
			ready = append(ready, table)
		}
	}

	order := make([]string, 0, len(deps))
	for len(ready) > 0 {
		sort.Strings(ready)
		next := ready[0]
		ready = ready[1:]
		order = append(order, next)
		for _, d := range dependents[next] {
			remaining[d]--
			if remaining[d] == 0 {
				ready = append(ready, d)
			}
		}
	}
	if len(order) != len(deps) {
		panic("wipe: dependency cycle")
	}
	return order
}

// wipeTenant deletes every tenant-scoped row of tenantID in dependency order
// and returns the number of rows removed per table. Tables missing from the
// schema are skipped.
func wipeTenant(ctx context.Context, db store.DBTX, tenantID int64) (map[string]int64, error) {
	deleted := make(map[string]int64, len(wipeOrder))
	for _, table := range wipeOrder {
		result, err := db.ExecContext(ctx, `DELETE FROM `+table+` WHERE tenant_id = ?`, tenantID)
		if store.IsMissingTable(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("wipe %s: %w", table, err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("wipe %s rows affected: %w", table, err)
		}
		deleted[table] = n
	}
	return deleted, nil
}
