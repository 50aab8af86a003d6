package model

import "time"

type Settings struct {
	TenantID     int64     `json:"tenant_id"`
	DisplayName  string    `json:"display_name"`
	Motto        string    `json:"motto"`
	Timezone     string    `json:"timezone"`
	Currency     string    `json:"currency"`
	AcademicYear string    `json:"academic_year"`
	GradingScale string    `json:"grading_scale"`
	UpdatedAt    time.Time `json:"updated_at"`
}
