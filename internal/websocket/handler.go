package websocket

import (
	"log/slog"
	"net/http"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/classbook/internal/auth"
)

// HandleWebSocket upgrades authenticated requests and runs them as Hub
// clients scoped to the caller's tenant. originPatterns is passed to the
// upgrader; an empty list allows same-origin requests only.
func HandleWebSocket(hub *Hub, originPatterns []string, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ac, ok := auth.FromContext(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		if !ac.IsOperator() && ac.TenantID == nil {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := ws.Accept(w, r, &ws.AcceptOptions{OriginPatterns: originPatterns})
		if err != nil {
			logger.Warn("websocket accept failed", "error", err)
			return
		}

		tenantID := ac.TenantID
		if ac.IsOperator() {
			tenantID = nil
		}
		NewClient(hub, conn, tenantID).Run(r.Context())
	}
}
