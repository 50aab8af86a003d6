package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/dukerupert/classbook/internal/model"
)

// SettingsKeys are the recognized settings fields. Each key is also its column name.
var SettingsKeys = []string{
	"display_name",
	"motto",
	"timezone",
	"currency",
	"academic_year",
	"grading_scale",
}

type SettingsStore struct {
	db DBTX
}

func NewSettingsStore(db DBTX) *SettingsStore {
	return &SettingsStore{db: db}
}

func (s *SettingsStore) Get(ctx context.Context, tenantID int64) (*model.Settings, error) {
	var st model.Settings
	err := s.db.QueryRowContext(ctx,
		`SELECT tenant_id, display_name, motto, timezone, currency, academic_year, grading_scale, updated_at
		 FROM settings WHERE tenant_id = ?`, tenantID,
	).Scan(&st.TenantID, &st.DisplayName, &st.Motto, &st.Timezone, &st.Currency, &st.AcademicYear, &st.GradingScale, &st.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get settings: %w", err)
	}
	return &st, nil
}

// Upsert creates the tenant's settings row if missing and applies the
// recognized keys of values. Unknown keys are ignored. It returns the keys
// that were applied.
func (s *SettingsStore) Upsert(ctx context.Context, tenantID int64, values map[string]string) ([]string, error) {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (tenant_id) VALUES (?) ON CONFLICT(tenant_id) DO NOTHING`, tenantID,
	); err != nil {
		return nil, fmt.Errorf("insert settings: %w", err)
	}

	var sets []string
	var args []any
	var applied []string
	for _, key := range SettingsKeys {
		v, ok := values[key]
		if !ok {
			continue
		}
		sets = append(sets, key+" = ?")
		args = append(args, v)
		applied = append(applied, key)
	}
	if len(sets) == 0 {
		return nil, nil
	}
	args = append(args, tenantID)

	_, err := s.db.ExecContext(ctx,
		`UPDATE settings SET `+strings.Join(sets, ", ")+`, updated_at = CURRENT_TIMESTAMP WHERE tenant_id = ?`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("update settings: %w", err)
	}
	return applied, nil
}

// SettingsMap flattens settings into the key/value form stored in snapshots.
func SettingsMap(st *model.Settings) map[string]string {
	if st == nil {
		return nil
	}
	return map[string]string{
		"display_name":  st.DisplayName,
		"motto":         st.Motto,
		"timezone":      st.Timezone,
		"currency":      st.Currency,
		"academic_year": st.AcademicYear,
		"grading_scale": st.GradingScale,
	}
}
