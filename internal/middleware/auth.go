package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/dukerupert/classbook/internal/auth"
	"github.com/dukerupert/classbook/internal/store"
)

const sessionCookieName = "classbook_session"

// sessionToken reads a bearer token, falling back to the session cookie.
func sessionToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		return cookie.Value
	}
	return ""
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// RequireAuth resolves the session token to an active identity and
// populates AuthContext.
func RequireAuth(sessions *store.SessionStore, identities *store.IdentityStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := sessionToken(r)
			if token == "" {
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			sess, err := sessions.GetByToken(r.Context(), token)
			if err != nil || sess == nil {
				writeError(w, http.StatusUnauthorized, "invalid or expired session")
				return
			}

			ident, err := identities.GetByID(r.Context(), sess.IdentityID)
			if err != nil || ident == nil || !ident.Active {
				writeError(w, http.StatusUnauthorized, "invalid or expired session")
				return
			}

			ac := auth.AuthContext{
				IdentityID: ident.ID,
				TenantID:   ident.TenantID,
				Role:       ident.Role,
				SessionID:  sess.ID,
			}
			next.ServeHTTP(w, r.WithContext(auth.WithAuth(r.Context(), ac)))
		})
	}
}

// RequireOperator rejects callers that are not platform operators.
func RequireOperator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ac, ok := auth.FromContext(r.Context())
		if !ok || !ac.IsOperator() {
			writeError(w, http.StatusForbidden, "platform operator required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
