package model

import (
	"encoding/json"
	"time"
)

type BackupStatus string

const (
	BackupStatusReady     BackupStatus = "READY"
	BackupStatusRestoring BackupStatus = "RESTORING"
	BackupStatusFailed    BackupStatus = "FAILED"
)

const BackupTypeFull = "full"

// Backup is a persisted tenant snapshot. Only Status changes after creation.
// Payload is left nil unless explicitly requested.
type Backup struct {
	ID         string          `json:"id"`
	TenantID   int64           `json:"tenant_id"`
	Type       string          `json:"type"`
	Status     BackupStatus    `json:"status"`
	Meta       json.RawMessage `json:"meta"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	ArchiveKey string          `json:"archive_key,omitempty"`
	CreatedBy  *int64          `json:"created_by"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}
