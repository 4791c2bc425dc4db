package user

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/thecontextcache/contextcache-sub001/internal/auth"
	"github.com/thecontextcache/contextcache-sub001/internal/db"
	"github.com/thecontextcache/contextcache-sub001/pkg/apperr"
	"github.com/thecontextcache/contextcache-sub001/pkg/mailer"
	"github.com/thecontextcache/contextcache-sub001/pkg/quota"
)

// loginLinkTTL is how long a requested login link remains valid. Login
// links are short-lived and single-use, so they are kept in Redis rather
// than Postgres — a GETDEL away from being both validated and consumed
// atomically, the same redis.Nil-as-"absent" idiom internal/auth/ratelimit.go
// already uses for this stack.
const loginLinkTTL = 15 * time.Minute

func loginLinkKey(tokenHash string) string {
	return "login_link:" + tokenHash
}

// Service implements the identity and usage endpoints.
type Service struct {
	pool        *pgxpool.Pool
	redis       *redis.Client
	sessions    *auth.SessionManager
	rateLimiter *auth.RateLimiter
	mailer      mailer.Mailer
	quota       *quota.Ledger
}

// NewService creates a user Service.
func NewService(pool *pgxpool.Pool, rdb *redis.Client, sessions *auth.SessionManager, rl *auth.RateLimiter, m mailer.Mailer, ledger *quota.Ledger) *Service {
	return &Service{pool: pool, redis: rdb, sessions: sessions, rateLimiter: rl, mailer: m, quota: ledger}
}

// Me builds the GET /auth/me response for caller.
func (s *Service) Me(caller *auth.Caller) MeResponse {
	var resp MeResponse
	resp.User.ID = caller.UserID
	resp.User.Email = caller.Email
	resp.IsAdmin = caller.IsAdmin
	resp.IsUnlimited = caller.IsUnlimited
	return resp
}

// Usage returns caller's usage counters and configured caps for GET
// /me/usage.
func (s *Service) Usage(ctx context.Context, caller *auth.Caller) (UsageResponse, error) {
	u, err := s.quota.Today(ctx, s.pool, caller.PrincipalID())
	if err != nil {
		return UsageResponse{}, apperr.Internal(err)
	}
	return ToUsageResponse(u), nil
}

// RequestLink issues a passwordless login magic link for an existing,
// non-disabled user, rate-limited per client IP (§6.1, §4.2). Unlike
// pkg/invite.Accept, this never creates a user: it is a login mechanism for
// accounts that already exist.
func (s *Service) RequestLink(ctx context.Context, ip, email string) (RequestLinkResponse, error) {
	if s.rateLimiter != nil {
		result, err := s.rateLimiter.Check(ctx, ip)
		if err != nil {
			return RequestLinkResponse{}, apperr.Internal(err)
		}
		if !result.Allowed {
			return RequestLinkResponse{}, apperr.RateLimited("too many login attempts, try again later", time.Until(result.RetryAt))
		}
	}

	q := db.New(s.pool)
	u, err := q.GetUserByEmail(ctx, email)
	if errors.Is(err, db.ErrNotFound) {
		if s.rateLimiter != nil {
			_ = s.rateLimiter.Record(ctx, ip)
		}
		// Don't reveal whether the address has an account.
		return RequestLinkResponse{Sent: true}, nil
	}
	if err != nil {
		return RequestLinkResponse{}, apperr.Internal(err)
	}
	if u.IsDisabled {
		return RequestLinkResponse{Sent: true}, nil
	}

	token, err := auth.GenerateToken()
	if err != nil {
		return RequestLinkResponse{}, apperr.Internal(err)
	}
	if err := s.redis.Set(ctx, loginLinkKey(auth.HashSecret(token)), u.ID.String(), loginLinkTTL).Err(); err != nil {
		return RequestLinkResponse{}, apperr.Internal(err)
	}

	link := fmt.Sprintf("/auth/verify?token=%s", token)
	resp := RequestLinkResponse{Sent: true}
	if _, isLog := s.mailer.(*mailer.LogMailer); isLog || s.mailer == nil {
		resp.DebugLink = link
	}
	if s.mailer != nil {
		if err := s.mailer.Send(ctx, email, "Your ContextCache login link", link); err != nil {
			return RequestLinkResponse{}, apperr.Internal(err)
		}
	}

	if s.rateLimiter != nil {
		_ = s.rateLimiter.Reset(ctx, ip)
	}
	return resp, nil
}

// VerifyLink atomically validates and consumes a login-link token, then
// issues a Session cookie for its owning user. Returns
// apperr.AuthInvalid if the token is unknown, expired, or already used.
func (s *Service) VerifyLink(ctx context.Context, w http.ResponseWriter, token string) (db.User, error) {
	userIDStr, err := s.redis.GetDel(ctx, loginLinkKey(auth.HashSecret(token))).Result()
	if errors.Is(err, redis.Nil) {
		return db.User{}, apperr.AuthInvalid("login link is invalid or has expired")
	}
	if err != nil {
		return db.User{}, apperr.Internal(err)
	}

	id, err := uuid.Parse(userIDStr)
	if err != nil {
		return db.User{}, apperr.Internal(err)
	}

	u, err := db.New(s.pool).GetUserByID(ctx, id)
	if err != nil {
		return db.User{}, apperr.AuthInvalid("account no longer exists")
	}
	if u.IsDisabled {
		return db.User{}, apperr.AuthInvalid("account is disabled")
	}

	if _, err := s.sessions.Issue(ctx, w, u.ID); err != nil {
		return db.User{}, apperr.Internal(err)
	}
	return u, nil
}

// Logout revokes caller's current session.
func (s *Service) Logout(ctx context.Context, w http.ResponseWriter, caller *auth.Caller) error {
	if caller.SessionID != nil {
		if err := s.sessions.Revoke(ctx, *caller.SessionID); err != nil {
			return apperr.Internal(err)
		}
	}
	s.sessions.ClearCookie(w)
	return nil
}
