package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/classbook/internal/archive"
	"github.com/dukerupert/classbook/internal/audit"
	"github.com/dukerupert/classbook/internal/config"
	"github.com/dukerupert/classbook/internal/handler"
	"github.com/dukerupert/classbook/internal/middleware"
	"github.com/dukerupert/classbook/internal/snapshot"
	"github.com/dukerupert/classbook/internal/store"
	ws "github.com/dukerupert/classbook/internal/websocket"
)

const (
	restoreRateLimit  = 5
	restoreRateWindow = time.Minute
)

type Server struct {
	db             *sql.DB
	hub            *ws.Hub
	snapshotH      *handler.SnapshotHandler
	sessionStore   *store.SessionStore
	identityStore  *store.IdentityStore
	rateLimiter    *middleware.RateLimiter
	originPatterns []string
	logger         *slog.Logger
}

func New(db *sql.DB, cfg config.Config, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))

	svcCfg := snapshot.ServiceConfig{
		Hasher:         snapshot.BcryptHasher{Cost: cfg.BcryptCost},
		Audit:          audit.NewStoreRecorder(db, logger),
		RestoreTimeout: cfg.RestoreTimeout,
		OnStatus:       hub.NotifyBackupStatus,
	}
	var fetcher handler.ArchiveFetcher
	if archives := archive.New(cfg.Archive, logger); archives != nil {
		svcCfg.Archiver = archives
		fetcher = archives
	}
	svc := snapshot.NewService(db, svcCfg, logger)

	return &Server{
		db:             db,
		hub:            hub,
		snapshotH:      handler.NewSnapshotHandler(svc, fetcher, !cfg.Production(), logger.With("component", "snapshot_handler")),
		sessionStore:   store.NewSessionStore(db),
		identityStore:  store.NewIdentityStore(db),
		rateLimiter:    middleware.NewRateLimiter(),
		originPatterns: cfg.OriginPatterns,
		logger:         logger,
	}
}

// SessionStore returns the session store for cleanup tasks.
func (s *Server) SessionStore() *store.SessionStore {
	return s.sessionStore
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()
	outerMux.HandleFunc("GET /health", s.healthHandler)

	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	authMiddleware := middleware.RequireAuth(s.sessionStore, s.identityStore)
	outerMux.Handle("/", authMiddleware(protectedMux))

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if err := s.db.PingContext(r.Context()); err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}

// rateLimited throttles expensive calls per identity.
func (s *Server) rateLimited(h http.HandlerFunc) http.Handler {
	return middleware.RateLimit(s.rateLimiter, middleware.IdentityKey, restoreRateLimit, restoreRateWindow)(h)
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	mux.Handle("POST /api/tenants/{tenantID}/snapshots", middleware.RequireOperator(s.rateLimited(s.snapshotH.Create)))
	mux.HandleFunc("GET /api/tenants/{tenantID}/snapshots", s.snapshotH.List)
	mux.HandleFunc("GET /api/snapshots/{id}", s.snapshotH.Get)
	mux.Handle("POST /api/snapshots/{id}/restore", s.rateLimited(s.snapshotH.Restore))
	mux.Handle("GET /api/snapshots/{id}/archive", middleware.RequireOperator(http.HandlerFunc(s.snapshotH.Archive)))

	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.originPatterns, s.logger.With("component", "websocket")))
}
