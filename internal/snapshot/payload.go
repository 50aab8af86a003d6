package snapshot

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dukerupert/classbook/internal/model"
)

// SupportedVersion is the only payload version the engine reads or writes.
const SupportedVersion = 1

type Payload struct {
	Version    int       `json:"version"`
	TenantID   int64     `json:"tenant_id"`
	ExportedAt time.Time `json:"exported_at"`
	Data       Data      `json:"data"`
}

type Data struct {
	Identities          []IdentityRecord           `json:"identities"`
	StaffProfiles       []model.StaffProfile       `json:"staff_profiles"`
	Classes             []model.Class              `json:"classes"`
	Students            []model.Student            `json:"students"`
	Subjects            []model.Subject            `json:"subjects"`
	TeachingAssignments []model.TeachingAssignment `json:"teaching_assignments"`
	ClassTeacherLinks   []model.ClassTeacherLink   `json:"class_teacher_links"`
	Subscription        *model.Subscription        `json:"subscription_snapshot"`
	Settings            map[string]string          `json:"settings_snapshot"`
}

// IdentityRecord is an exported login identity. It never carries a secret.
type IdentityRecord struct {
	ID                 int64  `json:"id"`
	Handle             string `json:"handle"`
	Name               string `json:"name"`
	Role               string `json:"role"`
	Active             bool   `json:"active"`
	MustChangePassword bool   `json:"must_change_password"`
}

type Counts struct {
	Identities          int `json:"identities"`
	StaffProfiles       int `json:"staff_profiles"`
	Classes             int `json:"classes"`
	Students            int `json:"students"`
	Subjects            int `json:"subjects"`
	TeachingAssignments int `json:"teaching_assignments"`
	ClassTeacherLinks   int `json:"class_teacher_links"`
	Subscription        int `json:"subscription"`
	Settings            int `json:"settings"`
}

func (d *Data) Counts() Counts {
	c := Counts{
		Identities:          len(d.Identities),
		StaffProfiles:       len(d.StaffProfiles),
		Classes:             len(d.Classes),
		Students:            len(d.Students),
		Subjects:            len(d.Subjects),
		TeachingAssignments: len(d.TeachingAssignments),
		ClassTeacherLinks:   len(d.ClassTeacherLinks),
	}
	if d.Subscription != nil {
		c.Subscription = 1
	}
	if d.Settings != nil {
		c.Settings = 1
	}
	return c
}

type TenantDescriptor struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// Meta is the summary stored alongside every backup and returned by listings.
type Meta struct {
	Version    int              `json:"version"`
	ExportedAt time.Time        `json:"exported_at"`
	Tenant     TenantDescriptor `json:"tenant"`
	Counts     Counts           `json:"counts"`
}

// DecodePayload parses a stored payload and rejects any version other than
// SupportedVersion.
func DecodePayload(raw []byte) (*Payload, error) {
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, newError(KindBadRequest, "backup payload is not valid JSON", err)
	}
	if p.Version != SupportedVersion {
		return nil, newError(KindUnsupportedVersion,
			fmt.Sprintf("unsupported snapshot version %d (supported: %d)", p.Version, SupportedVersion), nil)
	}
	return &p, nil
}
