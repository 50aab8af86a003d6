package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/dukerupert/classbook/internal/database"
	"github.com/dukerupert/classbook/internal/model"
	"github.com/dukerupert/classbook/internal/store"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// setupFileDB opens a database on disk so several connections can run at once.
func setupFileDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "classbook.db"))
	if err != nil {
		t.Fatalf("open file db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeHasher skips bcrypt so tests stay fast.
type fakeHasher struct {
	err error
}

func (h fakeHasher) Hash(secret string) (string, error) {
	if h.err != nil {
		return "", h.err
	}
	return "hashed:" + secret, nil
}

func newTestEngine(db *sql.DB) *Engine {
	return NewEngine(db, EngineConfig{Hasher: fakeHasher{}}, discardLogger())
}

func createTenant(t *testing.T, db *sql.DB, slug string) *model.Tenant {
	t.Helper()
	tenant, err := store.NewTenantStore(db).Create(context.Background(), slug+" school", slug)
	if err != nil {
		t.Fatalf("create tenant: %v", err)
	}
	return tenant
}

func strPtr(s string) *string { return &s }

type school struct {
	tenant  *model.Tenant
	admin   *model.Identity
	teacher *model.Identity
	class   *model.Class
	subject *model.Subject
}

// seedSchool fills a tenant with one row in every collection.
func seedSchool(t *testing.T, db *sql.DB, slug string) school {
	t.Helper()
	ctx := context.Background()
	tenant := createTenant(t, db, slug)
	identities := store.NewIdentityStore(db)
	staff := store.NewStaffStore(db)

	admin, err := identities.Create(ctx, store.NewIdentity{TenantID: &tenant.ID, Handle: "admin@" + slug, Name: "Admin", Role: model.RoleSchoolAdmin, Active: true, PasswordHash: "x"})
	if err != nil {
		t.Fatalf("create admin: %v", err)
	}
	teacher, err := identities.Create(ctx, store.NewIdentity{TenantID: &tenant.ID, Handle: "teacher@" + slug, Name: "Teacher", Role: model.RoleTeacher, Active: true, PasswordHash: "x"})
	if err != nil {
		t.Fatalf("create teacher: %v", err)
	}
	class, err := store.NewClassStore(db).Create(ctx, tenant.ID, "Grade 1", "East", "2026")
	if err != nil {
		t.Fatalf("create class: %v", err)
	}
	subject, err := store.NewSubjectStore(db).Create(ctx, tenant.ID, "Mathematics", strPtr("MTH"))
	if err != nil {
		t.Fatalf("create subject: %v", err)
	}
	if _, err := store.NewStudentStore(db).Create(ctx, tenant.ID, store.StudentFields{
		AdmissionNumber: "ADM-1", FirstName: "Ada", LastName: "Lovelace", ClassID: &class.ID,
	}); err != nil {
		t.Fatalf("create student: %v", err)
	}
	profile, err := staff.CreateProfile(ctx, tenant.ID, &teacher.ID, "Teacher One", "Mr", "555")
	if err != nil {
		t.Fatalf("create staff profile: %v", err)
	}
	if _, err := staff.CreateAssignment(ctx, tenant.ID, profile.ID, class.ID, subject.ID); err != nil {
		t.Fatalf("create assignment: %v", err)
	}
	if _, err := staff.CreateClassTeacherLink(ctx, tenant.ID, class.ID, profile.ID); err != nil {
		t.Fatalf("create class teacher link: %v", err)
	}
	if _, err := store.NewSubscriptionStore(db).Create(ctx, tenant.ID, "basic", "active", time.Now().UTC(), nil); err != nil {
		t.Fatalf("create subscription: %v", err)
	}
	if _, err := store.NewSettingsStore(db).Upsert(ctx, tenant.ID, map[string]string{"display_name": slug, "currency": "KES"}); err != nil {
		t.Fatalf("upsert settings: %v", err)
	}
	return school{tenant: tenant, admin: admin, teacher: teacher, class: class, subject: subject}
}

func snapshotOf(t *testing.T, db *sql.DB, tenantID int64) *model.Backup {
	t.Helper()
	b, err := NewBuilder(db, nil, discardLogger()).Create(context.Background(), tenantID, 0)
	if err != nil {
		t.Fatalf("create snapshot: %v", err)
	}
	return b
}

// storePayload persists p as-is, bypassing the builder.
func storePayload(t *testing.T, db *sql.DB, id string, p *Payload) *model.Backup {
	t.Helper()
	raw, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("encode payload: %v", err)
	}
	b, err := store.NewBackupStore(db).Create(context.Background(), &model.Backup{
		ID:       id,
		TenantID: p.TenantID,
		Meta:     json.RawMessage(`{}`),
		Payload:  raw,
	})
	if err != nil {
		t.Fatalf("store payload: %v", err)
	}
	return b
}

func countRows(t *testing.T, db *sql.DB, table string, tenantID int64) int {
	t.Helper()
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM `+table+` WHERE tenant_id = ?`, tenantID).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

var dataTables = []string{
	"identities", "staff_profiles", "classes", "students", "subjects",
	"teaching_assignments", "class_teacher_links", "subscriptions", "settings",
}

func tableCounts(t *testing.T, db *sql.DB, tenantID int64) map[string]int {
	t.Helper()
	counts := make(map[string]int, len(dataTables))
	for _, table := range dataTables {
		counts[table] = countRows(t, db, table, tenantID)
	}
	return counts
}

func backupStatus(t *testing.T, db *sql.DB, id string) model.BackupStatus {
	t.Helper()
	b, err := store.NewBackupStore(db).Get(context.Background(), id, false)
	if err != nil || b == nil {
		t.Fatalf("get backup %s: %v", id, err)
	}
	return b.Status
}

func assertKind(t *testing.T, err error, want Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", want)
	}
	if got := KindOf(err); got != want {
		t.Fatalf("error kind = %s, want %s (%v)", got, want, err)
	}
}
