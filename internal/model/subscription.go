package model

import "time"

type Subscription struct {
	ID        int64      `json:"id"`
	TenantID  int64      `json:"tenant_id"`
	Plan      string     `json:"plan"`
	Status    string     `json:"status"`
	StartsAt  time.Time  `json:"starts_at"`
	EndsAt    *time.Time `json:"ends_at"`
	CreatedAt time.Time  `json:"created_at"`
}
