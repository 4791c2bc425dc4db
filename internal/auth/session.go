package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/thecontextcache/contextcache-sub001/internal/db"
)

// CookieName is the session cookie name (§6.2).
const CookieName = "contextcache_session"

// SessionManager issues and validates opaque, server-issued session tokens.
// Unlike the teacher's self-signed JWT sessions, these can be synchronously
// revoked: only a SHA-256 hash of the token is ever stored, and every
// validation is a database lookup (see REDESIGN FLAGS).
type SessionManager struct {
	db     db.DBTX
	maxAge time.Duration
	secure bool
}

// NewSessionManager creates a SessionManager. secure controls the cookie's
// Secure flag; it should be true in any environment serving HTTPS.
func NewSessionManager(pool db.DBTX, maxAge time.Duration, secure bool) *SessionManager {
	return &SessionManager{db: pool, maxAge: maxAge, secure: secure}
}

// GenerateToken returns a 32-byte, crypto/rand-sourced hex token.
func GenerateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("reading random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Issue creates a new session row for userID and sets it as an HttpOnly,
// SameSite=Strict cookie. The raw token is returned for callers (e.g. the
// CLI's login flow) that need it outside the cookie.
func (sm *SessionManager) Issue(ctx context.Context, w http.ResponseWriter, userID uuid.UUID) (string, error) {
	token, err := GenerateToken()
	if err != nil {
		return "", err
	}

	hash := HashSecret(token)
	expiresAt := time.Now().Add(sm.maxAge)

	q := db.New(sm.db)
	if _, err := q.CreateSession(ctx, userID, hash, expiresAt); err != nil {
		return "", fmt.Errorf("creating session: %w", err)
	}

	sm.setCookie(w, token)
	return token, nil
}

func (sm *SessionManager) setCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(sm.maxAge.Seconds()),
	})
}

// ClearCookie expires the session cookie client-side.
func (sm *SessionManager) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   -1,
	})
}

// ErrSessionInvalid covers missing, revoked, expired sessions, and sessions
// belonging to a disabled user — the caller does not need to distinguish
// these cases, only that authentication failed.
var ErrSessionInvalid = errors.New("session invalid")

// Resolve looks up the session cookie on r, validates it, and returns the
// backing user. It opportunistically refreshes last_login_at.
func (sm *SessionManager) Resolve(r *http.Request) (db.Session, db.User, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return db.Session{}, db.User{}, ErrSessionInvalid
	}

	q := db.New(sm.db)
	sess, err := q.GetSessionByTokenHash(r.Context(), HashSecret(cookie.Value))
	if err != nil {
		return db.Session{}, db.User{}, ErrSessionInvalid
	}
	if sess.RevokedAt != nil || time.Now().After(sess.ExpiresAt) {
		return db.Session{}, db.User{}, ErrSessionInvalid
	}

	user, err := q.GetUserByID(r.Context(), sess.UserID)
	if err != nil || user.IsDisabled {
		return db.Session{}, db.User{}, ErrSessionInvalid
	}

	go func() {
		_ = q.TouchUserLogin(context.Background(), user.ID)
	}()

	return sess, user, nil
}

// Revoke invalidates a single session by id.
func (sm *SessionManager) Revoke(ctx context.Context, id uuid.UUID) error {
	return db.New(sm.db).RevokeSession(ctx, id)
}
