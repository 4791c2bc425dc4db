package invite

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/thecontextcache/contextcache-sub001/internal/auth"
	"github.com/thecontextcache/contextcache-sub001/internal/db"
	"github.com/thecontextcache/contextcache-sub001/pkg/apperr"
	"github.com/thecontextcache/contextcache-sub001/pkg/mailer"
)

// DefaultTTL is how long an invite remains acceptable after issuance.
const DefaultTTL = 7 * 24 * time.Hour

// Service implements invite issuance, acceptance, and revocation, plus
// waitlist review.
type Service struct {
	pool     *pgxpool.Pool
	sessions *auth.SessionManager
	mailer   mailer.Mailer
	ttl      time.Duration
}

// NewService creates an invite Service. mailer may be a *mailer.LogMailer,
// in which case Create echoes the link as debug_link instead of sending it.
func NewService(pool *pgxpool.Pool, sessions *auth.SessionManager, m mailer.Mailer, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{pool: pool, sessions: sessions, mailer: m, ttl: ttl}
}

// Create issues a new invite and either emails the magic link or — when
// running a LogMailer — echoes it back as DebugLink (§4.7).
func (s *Service) Create(ctx context.Context, createdBy uuid.UUID, req CreateRequest) (CreateResponse, error) {
	token, hash, err := generateToken()
	if err != nil {
		return CreateResponse{}, apperr.Internal(err)
	}

	email := NormalizeEmail(req.Email)
	row, err := NewStore(s.pool).CreateInvite(ctx, email, hash, createdBy, req.Notes, time.Now().Add(s.ttl))
	if err != nil {
		return CreateResponse{}, apperr.Internal(err)
	}

	link := fmt.Sprintf("/auth/verify?token=%s", token)
	resp := CreateResponse{Response: row.ToResponse()}

	if _, isLog := s.mailer.(*mailer.LogMailer); isLog || s.mailer == nil {
		resp.DebugLink = link
	}
	if s.mailer != nil {
		if err := s.mailer.Send(ctx, email, "You're invited to ContextCache", link); err != nil {
			slog.Warn("sending invite email", "email", email, "error", err)
		}
	}

	return resp, nil
}

// List returns invites matching emailQuery, newest first.
func (s *Service) List(ctx context.Context, emailQuery string, limit, offset int) ([]Row, error) {
	return NewStore(s.pool).List(ctx, emailQuery, limit, offset)
}

// Revoke revokes an invite by id; idempotent.
func (s *Service) Revoke(ctx context.Context, id uuid.UUID) error {
	return NewStore(s.pool).Revoke(ctx, id)
}

// Accept consumes a magic-link token exactly once: it locks the matching
// invite row, verifies it is still pending, finds-or-creates the User by
// email, issues a Session cookie, and marks the invite accepted — all
// within one transaction so concurrent acceptance attempts serialize on the
// row lock and only the first succeeds (§4.7).
func (s *Service) Accept(ctx context.Context, w http.ResponseWriter, token string) (db.User, error) {
	hash := auth.HashSecret(token)

	var user db.User
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		store := NewStore(tx)
		row, err := store.GetByTokenHash(ctx, hash)
		if errors.Is(err, db.ErrNotFound) {
			return apperr.AuthInvalid("invite link is invalid")
		}
		if err != nil {
			return apperr.Internal(err)
		}

		switch row.Status() {
		case StatusAccepted:
			return apperr.Conflict("invite has already been accepted")
		case StatusRevoked:
			return apperr.AuthInvalid("invite has been revoked")
		case StatusExpired:
			return apperr.AuthInvalid("invite link has expired")
		}

		q := db.New(tx)
		u, err := q.GetUserByEmail(ctx, row.Email)
		if errors.Is(err, db.ErrNotFound) {
			u, err = q.CreateUser(ctx, row.Email)
		}
		if err != nil {
			return apperr.Internal(err)
		}
		if u.IsDisabled {
			return apperr.AuthInvalid("account is disabled")
		}

		if err := store.MarkAccepted(ctx, row.ID); err != nil {
			return apperr.Internal(err)
		}

		if _, err := s.sessions.Issue(ctx, w, u.ID); err != nil {
			return apperr.Internal(err)
		}

		user = u
		return nil
	})
	if err != nil {
		return db.User{}, err
	}
	return user, nil
}

// Join records a new waitlist submission (§4.7 supplement).
func (s *Service) Join(ctx context.Context, req WaitlistJoinRequest) error {
	_, err := NewWaitlistStore(s.pool).Join(ctx, req)
	if err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// ListWaitlist returns waitlist entries filtered by status.
func (s *Service) ListWaitlist(ctx context.Context, status WaitlistStatus, limit, offset int) ([]WaitlistRow, error) {
	return NewWaitlistStore(s.pool).List(ctx, status, limit, offset)
}

// ApproveWaitlist transitions a waitlist entry to approved and converts it
// into a pending Invite in one transaction (§3: "Approving converts it into
// an active Invite").
func (s *Service) ApproveWaitlist(ctx context.Context, createdBy, entryID uuid.UUID) (CreateResponse, error) {
	var resp CreateResponse
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		wstore := NewWaitlistStore(tx)
		entry, err := wstore.Get(ctx, entryID)
		if errors.Is(err, db.ErrNotFound) {
			return apperr.NotFound("waitlist entry not found")
		}
		if err != nil {
			return apperr.Internal(err)
		}
		if entry.Status != WaitlistPending {
			return apperr.Conflict("waitlist entry is not pending")
		}

		if err := wstore.SetStatus(ctx, entryID, WaitlistApproved); err != nil {
			return apperr.Internal(err)
		}

		token, hash, err := generateToken()
		if err != nil {
			return apperr.Internal(err)
		}
		row, err := NewStore(tx).CreateInvite(ctx, entry.Email, hash, createdBy,
			fmt.Sprintf("approved from waitlist (%s)", entry.Source), time.Now().Add(s.ttl))
		if err != nil {
			return apperr.Internal(err)
		}

		resp = CreateResponse{Response: row.ToResponse(), DebugLink: fmt.Sprintf("/auth/verify?token=%s", token)}
		return nil
	})
	if err != nil {
		return CreateResponse{}, err
	}
	return resp, nil
}

// RejectWaitlist transitions a waitlist entry to rejected.
func (s *Service) RejectWaitlist(ctx context.Context, entryID uuid.UUID) error {
	if err := NewWaitlistStore(s.pool).SetStatus(ctx, entryID, WaitlistRejected); err != nil {
		return apperr.Conflict(err.Error())
	}
	return nil
}

// generateToken returns a crypto/rand-sourced hex token and its SHA-256
// hash, the same pattern auth.GenerateToken/HashSecret use for sessions.
func generateToken() (token, hash string, err error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("reading random bytes: %w", err)
	}
	token = hex.EncodeToString(b)
	hash = auth.HashSecret(token)
	return token, hash, nil
}
