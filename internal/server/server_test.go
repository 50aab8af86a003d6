package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dukerupert/classbook/internal/config"
	"github.com/dukerupert/classbook/internal/database"
	"github.com/dukerupert/classbook/internal/model"
	"github.com/dukerupert/classbook/internal/store"
)

func setupServer(t *testing.T) (*Server, *sql.DB) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg, err := config.Load(func(string) string { return "" })
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	cfg.BcryptCost = 4
	return New(db, cfg, slog.New(slog.NewTextHandler(io.Discard, nil))), db
}

func login(t *testing.T, s *Server, db *sql.DB, handle, role string, tenantID *int64) string {
	t.Helper()
	ctx := context.Background()
	ident, err := store.NewIdentityStore(db).Create(ctx, store.NewIdentity{TenantID: tenantID, Handle: handle, Role: role, Active: true})
	if err != nil {
		t.Fatalf("create identity: %v", err)
	}
	sess, err := s.SessionStore().Create(ctx, ident.ID, tenantID)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return sess.Token
}

func do(t *testing.T, h http.Handler, method, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s, _ := setupServer(t)
	rec := do(t, s.Router(), "GET", "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]string
	json.NewDecoder(rec.Body).Decode(&body)
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}
}

func TestSnapshotRoutes(t *testing.T) {
	s, db := setupServer(t)
	router := s.Router()
	tenant, err := store.NewTenantStore(db).Create(context.Background(), "Hill School", "hill")
	if err != nil {
		t.Fatalf("create tenant: %v", err)
	}
	admin := login(t, s, db, "admin@hill", model.RoleSchoolAdmin, &tenant.ID)
	operator := login(t, s, db, "ops@platform", model.RolePlatformOperator, nil)
	snapshots := fmt.Sprintf("/api/tenants/%d/snapshots", tenant.ID)

	if rec := do(t, router, "GET", snapshots, ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous list = %d, want 401", rec.Code)
	}
	if rec := do(t, router, "GET", snapshots, "bogus"); rec.Code != http.StatusUnauthorized {
		t.Errorf("bogus token list = %d, want 401", rec.Code)
	}
	if rec := do(t, router, "POST", snapshots, admin); rec.Code != http.StatusForbidden {
		t.Errorf("admin create = %d, want 403", rec.Code)
	}

	rec := do(t, router, "POST", snapshots, operator)
	if rec.Code != http.StatusCreated {
		t.Fatalf("operator create = %d: %s", rec.Code, rec.Body)
	}
	var b model.Backup
	json.NewDecoder(rec.Body).Decode(&b)

	rec = do(t, router, "GET", snapshots, admin)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin list = %d", rec.Code)
	}
	var list []model.Backup
	json.NewDecoder(rec.Body).Decode(&list)
	if len(list) != 1 || list[0].ID != b.ID {
		t.Errorf("list = %+v", list)
	}

	if rec := do(t, router, "GET", "/api/snapshots/"+b.ID, admin); rec.Code != http.StatusOK {
		t.Errorf("admin get = %d", rec.Code)
	}
	if rec := do(t, router, "GET", "/api/snapshots/"+b.ID+"/archive", admin); rec.Code != http.StatusForbidden {
		t.Errorf("admin archive = %d, want 403", rec.Code)
	}
	if rec := do(t, router, "GET", "/api/snapshots/"+b.ID+"/archive", operator); rec.Code != http.StatusNotFound {
		t.Errorf("operator archive without storage = %d, want 404", rec.Code)
	}
}
