package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

type recordingArchiver struct {
	key      string
	err      error
	tenantID int64
	payload  []byte
}

func (a *recordingArchiver) Archive(_ context.Context, tenantID int64, backupID string, payload []byte) (string, error) {
	a.tenantID = tenantID
	a.payload = payload
	if a.err != nil {
		return "", a.err
	}
	return a.key + backupID, nil
}

func TestBuilderCreate(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	hill := seedSchool(t, db, "hill")
	seedSchool(t, db, "vale")

	arch := &recordingArchiver{key: "snapshots/"}
	b, err := NewBuilder(db, arch, discardLogger()).Create(ctx, hill.tenant.ID, hill.admin.ID)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if b.ArchiveKey != "snapshots/"+b.ID {
		t.Errorf("archive key = %q", b.ArchiveKey)
	}
	if b.CreatedBy == nil || *b.CreatedBy != hill.admin.ID {
		t.Errorf("created_by = %v", b.CreatedBy)
	}
	if arch.tenantID != hill.tenant.ID || string(arch.payload) != string(b.Payload) {
		t.Error("archiver did not receive the stored payload")
	}

	var meta Meta
	if err := json.Unmarshal(b.Meta, &meta); err != nil {
		t.Fatalf("decode meta: %v", err)
	}
	want := Counts{Identities: 2, StaffProfiles: 1, Classes: 1, Students: 1, Subjects: 1, TeachingAssignments: 1, ClassTeacherLinks: 1, Subscription: 1, Settings: 1}
	if meta.Counts != want {
		t.Errorf("counts = %+v, want %+v", meta.Counts, want)
	}
	if meta.Tenant.Slug != "hill" || meta.Version != SupportedVersion {
		t.Errorf("meta = %+v", meta)
	}

	p, err := DecodePayload(b.Payload)
	if err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	for _, i := range p.Data.Identities {
		if !strings.HasSuffix(i.Handle, "@hill") {
			t.Errorf("snapshot leaked identity %s", i.Handle)
		}
	}
	if strings.Contains(string(b.Payload), "password_hash") {
		t.Error("payload contains a secret column")
	}
	if p.Data.Settings["display_name"] != "hill" {
		t.Errorf("settings = %v", p.Data.Settings)
	}
}

func TestBuilderArchiveFailureKeepsSnapshot(t *testing.T) {
	db := setupTestDB(t)
	hill := seedSchool(t, db, "hill")

	b, err := NewBuilder(db, &recordingArchiver{err: errors.New("bucket gone")}, discardLogger()).Create(context.Background(), hill.tenant.ID, 0)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if b.ArchiveKey != "" || b.CreatedBy != nil {
		t.Errorf("backup = %+v", b)
	}
}

func TestBuilderRejectsUnknownTenant(t *testing.T) {
	db := setupTestDB(t)
	_, err := NewBuilder(db, nil, discardLogger()).Create(context.Background(), 42, 0)
	assertKind(t, err, KindNotFound)
}

func TestBuildToleratesMissingTable(t *testing.T) {
	db := setupTestDB(t)
	hill := seedSchool(t, db, "hill")
	if _, err := db.Exec(`DROP TABLE class_teacher_links`); err != nil {
		t.Fatalf("drop table: %v", err)
	}

	p, err := NewBuilder(db, nil, discardLogger()).Build(context.Background(), hill.tenant.ID)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if p.Data.ClassTeacherLinks == nil || len(p.Data.ClassTeacherLinks) != 0 {
		t.Errorf("class teacher links = %v, want empty", p.Data.ClassTeacherLinks)
	}
	if len(p.Data.Students) != 1 {
		t.Errorf("students = %d, want 1", len(p.Data.Students))
	}
}

func TestDecodePayload(t *testing.T) {
	_, err := DecodePayload([]byte(`{not json`))
	assertKind(t, err, KindBadRequest)

	_, err = DecodePayload([]byte(`{"version":0,"data":{}}`))
	assertKind(t, err, KindUnsupportedVersion)

	p, err := DecodePayload([]byte(`{"version":1,"tenant_id":3,"data":{"identities":[{"id":1,"handle":"a"}]}}`))
	if err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if p.TenantID != 3 || len(p.Data.Identities) != 1 {
		t.Errorf("payload = %+v", p)
	}
}
