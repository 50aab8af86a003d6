package model

import "time"

type Session struct {
	ID         int64     `json:"id"`
	Token      string    `json:"token"`
	IdentityID int64     `json:"identity_id"`
	TenantID   *int64    `json:"tenant_id"`
	ExpiresAt  time.Time `json:"expires_at"`
	CreatedAt  time.Time `json:"created_at"`
}
