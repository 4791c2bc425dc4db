package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/thecontextcache/contextcache-sub001/internal/db"
	"github.com/thecontextcache/contextcache-sub001/internal/httpserver"
)

// Middleware authenticates the caller via Authorization/X-Api-Key header
// first, then the session cookie, and stores the resulting Caller in the
// request context. The only request it rejects is one whose API key fails
// authentication (401 auth_invalid); a request with no credentials, or whose
// session cookie does not resolve, proceeds with no Caller, and RequireAuth
// enforces that a Caller is present.
//
// Precedence (§4.2):
//  1. Authorization: Bearer <secret> or X-Api-Key: <secret>
//  2. contextcache_session cookie
//  3. neither → anonymous (request proceeds with no Caller in context)
func Middleware(apiKeyAuth *APIKeyAuthenticator, sessionMgr *SessionManager, pool db.DBTX, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rawKey := bearerOrAPIKeyHeader(r); rawKey != "" {
				key, err := apiKeyAuth.Authenticate(r.Context(), rawKey)
				if err != nil {
					logger.Warn("api key authentication failed", "error", err)
					httpserver.RespondError(w, http.StatusUnauthorized, "auth_invalid", "invalid or revoked API key")
					return
				}

				caller := &Caller{
					OrgID:    &key.OrgID,
					AuthKind: AuthKindAPIKey,
					APIKeyID: &key.ID,
				}
				ctx := NewContext(r.Context(), caller)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			if _, ok := r.Header["Cookie"]; ok {
				sess, user, err := sessionMgr.Resolve(r)
				if err == nil {
					sessID := sess.ID
					caller := &Caller{
						UserID:      user.ID,
						Email:       user.Email,
						IsAdmin:     user.IsAdmin,
						IsUnlimited: user.IsUnlimited,
						AuthKind:    AuthKindSession,
						SessionID:   &sessID,
					}
					ctx := NewContext(r.Context(), caller)
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
				logger.Debug("session cookie rejected", "error", err)
			}

			// Anonymous: RequireAuth (mounted per-route) rejects where auth
			// is mandatory; the public routes never mount it.
			next.ServeHTTP(w, r)
		})
	}
}

// bearerOrAPIKeyHeader returns the raw secret from Authorization: Bearer or
// X-Api-Key, preferring Authorization when both are present (§6.2).
func bearerOrAPIKeyHeader(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		if after, ok := strings.CutPrefix(authHeader, "Bearer "); ok {
			return strings.TrimSpace(after)
		}
		if after, ok := strings.CutPrefix(authHeader, "bearer "); ok {
			return strings.TrimSpace(after)
		}
	}
	return strings.TrimSpace(r.Header.Get("X-Api-Key"))
}
