package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/classbook/internal/snapshot"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func parseTenantParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("tenantID"), 10, 64)
}

func statusForKind(k snapshot.Kind) int {
	switch k {
	case snapshot.KindNotFound:
		return http.StatusNotFound
	case snapshot.KindConflict:
		return http.StatusConflict
	case snapshot.KindBadRequest, snapshot.KindUnsupportedVersion:
		return http.StatusBadRequest
	case snapshot.KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// errorResponder writes snapshot errors. The internal cause is exposed as
// "detail" only when showDetail is set.
type errorResponder struct {
	showDetail bool
	logger     *slog.Logger
}

func (e errorResponder) write(w http.ResponseWriter, r *http.Request, err error) {
	kind := snapshot.KindOf(err)
	status := statusForKind(kind)

	body := map[string]string{"error": "internal error", "kind": kind.String()}
	var se *snapshot.Error
	if errors.As(err, &se) {
		body["error"] = se.Msg
	}
	if status >= 500 {
		e.logger.Error("request failed", "path", r.URL.Path, "error", err)
		if !e.showDetail {
			body["error"] = "internal error"
		}
	}
	if e.showDetail && se != nil && se.Err != nil {
		body["detail"] = se.Err.Error()
	}
	writeJSON(w, status, body)
}
