package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dukerupert/classbook/internal/auth"
	"github.com/dukerupert/classbook/internal/database"
	"github.com/dukerupert/classbook/internal/model"
	"github.com/dukerupert/classbook/internal/store"
)

type authFixture struct {
	sessions   *store.SessionStore
	identities *store.IdentityStore
	tenantID   int64
}

func setupAuthMiddlewareDB(t *testing.T) authFixture {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	tenant, err := store.NewTenantStore(db).Create(context.Background(), "Hill School", "hill")
	if err != nil {
		t.Fatalf("create tenant: %v", err)
	}
	return authFixture{
		sessions:   store.NewSessionStore(db),
		identities: store.NewIdentityStore(db),
		tenantID:   tenant.ID,
	}
}

func (f authFixture) login(t *testing.T, handle, role string, active bool) (*model.Identity, *model.Session) {
	t.Helper()
	ctx := context.Background()
	tid := f.tenantID
	ident, err := f.identities.Create(ctx, store.NewIdentity{
		TenantID: &tid,
		Handle:   handle,
		Name:     handle,
		Role:     role,
		Active:   active,
	})
	if err != nil {
		t.Fatalf("create identity: %v", err)
	}
	sess, err := f.sessions.Create(ctx, ident.ID, ident.TenantID)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return ident, sess
}

func unreachable(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not reach handler")
	})
}

func TestRequireAuthNoToken(t *testing.T) {
	f := setupAuthMiddlewareDB(t)

	rec := httptest.NewRecorder()
	RequireAuth(f.sessions, f.identities)(unreachable(t)).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestRequireAuthInvalidToken(t *testing.T) {
	f := setupAuthMiddlewareDB(t)

	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "invalid-token"})
	rec := httptest.NewRecorder()
	RequireAuth(f.sessions, f.identities)(unreachable(t)).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestRequireAuthInactiveIdentity(t *testing.T) {
	f := setupAuthMiddlewareDB(t)
	_, sess := f.login(t, "gone@hill.test", model.RoleTeacher, false)

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+sess.Token)
	rec := httptest.NewRecorder()
	RequireAuth(f.sessions, f.identities)(unreachable(t)).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestRequireAuthValidSession(t *testing.T) {
	f := setupAuthMiddlewareDB(t)
	ident, sess := f.login(t, "admin@hill.test", model.RoleSchoolAdmin, true)

	tests := []struct {
		name  string
		setup func(*http.Request)
	}{
		{"bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+sess.Token) }},
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: sessionCookieName, Value: sess.Token}) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotAC auth.AuthContext
			handler := RequireAuth(f.sessions, f.identities)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				ac, ok := auth.FromContext(r.Context())
				if !ok {
					t.Fatal("expected AuthContext in request context")
				}
				gotAC = ac
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest("GET", "/", nil)
			tt.setup(req)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
			}
			if gotAC.IdentityID != ident.ID {
				t.Errorf("IdentityID = %d, want %d", gotAC.IdentityID, ident.ID)
			}
			if gotAC.TenantID == nil || *gotAC.TenantID != f.tenantID {
				t.Errorf("TenantID = %v, want %d", gotAC.TenantID, f.tenantID)
			}
			if gotAC.Role != model.RoleSchoolAdmin {
				t.Errorf("Role = %q, want %q", gotAC.Role, model.RoleSchoolAdmin)
			}
			if gotAC.SessionID != sess.ID {
				t.Errorf("SessionID = %d, want %d", gotAC.SessionID, sess.ID)
			}
		})
	}
}

func TestRequireOperator(t *testing.T) {
	tests := []struct {
		name string
		role string
		want int
	}{
		{"operator", model.RolePlatformOperator, http.StatusOK},
		{"school admin", model.RoleSchoolAdmin, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := auth.WithAuth(context.Background(), auth.AuthContext{Role: tt.role})
			req := httptest.NewRequest("GET", "/", nil).WithContext(ctx)
			rec := httptest.NewRecorder()

			RequireOperator(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})).ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestRequestLoggerRequestID(t *testing.T) {
	handler := RequestLogger(discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d", rec.Code)
	}
	if rec.Header().Get(requestIDHeader) == "" {
		t.Error("expected generated request id")
	}

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if got := rec.Header().Get(requestIDHeader); got != "abc-123" {
		t.Errorf("request id = %q, want abc-123", got)
	}
}
