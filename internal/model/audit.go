package model

import (
	"encoding/json"
	"time"
)

type AuditEvent struct {
	ID        int64           `json:"id"`
	ActorID   *int64          `json:"actor_id"`
	TenantID  *int64          `json:"tenant_id"`
	Action    string          `json:"action"`
	Metadata  json.RawMessage `json:"metadata"`
	CreatedAt time.Time       `json:"created_at"`
}
