package auth

import (
	"net/http"

	"github.com/thecontextcache/contextcache-sub001/internal/httpserver"
)

// RequireAuth rejects requests with no authenticated Caller.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if FromContext(r.Context()) == nil {
			httpserver.RespondError(w, http.StatusUnauthorized, "auth_missing", "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin rejects requests whose Caller is not a platform admin. Used
// to gate /admin/* routes.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := FromContext(r.Context())
		if c == nil {
			httpserver.RespondError(w, http.StatusUnauthorized, "auth_missing", "authentication required")
			return
		}
		if !c.IsAdmin {
			httpserver.RespondError(w, http.StatusForbidden, "forbidden", "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
