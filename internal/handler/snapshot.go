package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dukerupert/classbook/internal/auth"
	"github.com/dukerupert/classbook/internal/snapshot"
)

// ArchiveFetcher reads an archived payload back from object storage.
type ArchiveFetcher interface {
	Fetch(ctx context.Context, key string) ([]byte, error)
}

type SnapshotHandler struct {
	svc      *snapshot.Service
	archives ArchiveFetcher
	errs     errorResponder
	logger   *slog.Logger
}

// NewSnapshotHandler wires the snapshot API. archives may be nil when
// archiving is disabled. showDetail exposes internal error causes.
func NewSnapshotHandler(svc *snapshot.Service, archives ArchiveFetcher, showDetail bool, logger *slog.Logger) *SnapshotHandler {
	return &SnapshotHandler{
		svc:      svc,
		archives: archives,
		errs:     errorResponder{showDetail: showDetail, logger: logger},
		logger:   logger,
	}
}

func (h *SnapshotHandler) caller(w http.ResponseWriter, r *http.Request) (auth.AuthContext, bool) {
	ac, ok := auth.FromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
	}
	return ac, ok
}

func (h *SnapshotHandler) Create(w http.ResponseWriter, r *http.Request) {
	ac, ok := h.caller(w, r)
	if !ok {
		return
	}
	tenantID, err := parseTenantParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid tenant id"})
		return
	}

	b, err := h.svc.CreateSnapshot(r.Context(), ac, tenantID)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (h *SnapshotHandler) List(w http.ResponseWriter, r *http.Request) {
	ac, ok := h.caller(w, r)
	if !ok {
		return
	}
	tenantID, err := parseTenantParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid tenant id"})
		return
	}

	backups, err := h.svc.ListSnapshots(r.Context(), ac, tenantID)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, backups)
}

// Get returns one backup; ?payload=true includes the payload.
func (h *SnapshotHandler) Get(w http.ResponseWriter, r *http.Request) {
	ac, ok := h.caller(w, r)
	if !ok {
		return
	}
	withPayload := r.URL.Query().Get("payload") == "true"

	b, err := h.svc.GetSnapshot(r.Context(), ac, r.PathValue("id"), withPayload)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

type restoreRequest struct {
	Mode                string `json:"mode"`
	DestinationTenantID int64  `json:"destination_tenant_id"`
	Confirmation        string `json:"confirmation"`
}

// Restore applies a backup. A missing destination defaults to the caller's
// own tenant; operators must name one.
func (h *SnapshotHandler) Restore(w http.ResponseWriter, r *http.Request) {
	ac, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req restoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if req.DestinationTenantID == 0 {
		if ac.TenantID == nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "destination_tenant_id is required"})
			return
		}
		req.DestinationTenantID = *ac.TenantID
	}

	result, err := h.svc.RestoreSnapshot(r.Context(), ac, snapshot.RestoreRequest{
		BackupID:            r.PathValue("id"),
		Mode:                snapshot.Mode(req.Mode),
		DestinationTenantID: req.DestinationTenantID,
		Confirmation:        req.Confirmation,
	})
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Archive streams the off-site copy of a backup back to an operator.
func (h *SnapshotHandler) Archive(w http.ResponseWriter, r *http.Request) {
	ac, ok := h.caller(w, r)
	if !ok {
		return
	}
	if h.archives == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "archiving is not configured"})
		return
	}

	b, err := h.svc.GetSnapshot(r.Context(), ac, r.PathValue("id"), false)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	if b.ArchiveKey == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "backup has no archive copy"})
		return
	}

	payload, err := h.archives.Fetch(r.Context(), b.ArchiveKey)
	if err != nil {
		h.logger.Error("archive fetch failed", "backup_id", b.ID, "key", b.ArchiveKey, "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "failed to fetch archive"})
		return
	}
	b.Payload = payload
	writeJSON(w, http.StatusOK, b)
}
