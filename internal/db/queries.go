package db

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Queries wraps a DBTX with the cross-cutting lookups the identity perimeter
// needs (users, sessions, API keys, org membership). Domain packages that own
// a single entity (memory, project, invite, ...) write their own SQL against
// DBTX directly, in the teacher's per-package store.go style; these queries
// are the ones shared across package boundaries.
type Queries struct {
	db DBTX
}

// New wraps db in a Queries. db may be a *pgxpool.Pool for reads or a pgx.Tx
// for writes that must share a transaction with the caller.
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// ErrNotFound is returned when a lookup finds no matching row.
var ErrNotFound = errors.New("not found")

// User mirrors the essential User columns (§3).
type User struct {
	ID          uuid.UUID
	Email       string
	IsAdmin     bool
	IsUnlimited bool
	IsDisabled  bool
	CreatedAt   time.Time
	LastLoginAt *time.Time
}

func (q *Queries) GetUserByID(ctx context.Context, id uuid.UUID) (User, error) {
	var u User
	err := q.db.QueryRow(ctx,
		`SELECT id, email, is_admin, is_unlimited, is_disabled, created_at, last_login_at
		 FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Email, &u.IsAdmin, &u.IsUnlimited, &u.IsDisabled, &u.CreatedAt, &u.LastLoginAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return u, err
}

func (q *Queries) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var u User
	err := q.db.QueryRow(ctx,
		`SELECT id, email, is_admin, is_unlimited, is_disabled, created_at, last_login_at
		 FROM users WHERE email = $1`, email,
	).Scan(&u.ID, &u.Email, &u.IsAdmin, &u.IsUnlimited, &u.IsDisabled, &u.CreatedAt, &u.LastLoginAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return u, err
}

func (q *Queries) CreateUser(ctx context.Context, email string) (User, error) {
	var u User
	err := q.db.QueryRow(ctx,
		`INSERT INTO users (id, email) VALUES (gen_random_uuid(), $1)
		 RETURNING id, email, is_admin, is_unlimited, is_disabled, created_at, last_login_at`,
		email,
	).Scan(&u.ID, &u.Email, &u.IsAdmin, &u.IsUnlimited, &u.IsDisabled, &u.CreatedAt, &u.LastLoginAt)
	return u, err
}

func (q *Queries) TouchUserLogin(ctx context.Context, userID uuid.UUID) error {
	_, err := q.db.Exec(ctx, `UPDATE users SET last_login_at = now() WHERE id = $1`, userID)
	return err
}

// Session mirrors the Session entity (§3). TokenHash, not the plaintext
// token, is the only value ever persisted.
type Session struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	TokenHash string
	CreatedAt time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time
}

func (q *Queries) CreateSession(ctx context.Context, userID uuid.UUID, tokenHash string, expiresAt time.Time) (Session, error) {
	var s Session
	err := q.db.QueryRow(ctx,
		`INSERT INTO sessions (id, user_id, token_hash, expires_at)
		 VALUES (gen_random_uuid(), $1, $2, $3)
		 RETURNING id, user_id, token_hash, created_at, expires_at, revoked_at`,
		userID, tokenHash, expiresAt,
	).Scan(&s.ID, &s.UserID, &s.TokenHash, &s.CreatedAt, &s.ExpiresAt, &s.RevokedAt)
	return s, err
}

func (q *Queries) GetSessionByTokenHash(ctx context.Context, tokenHash string) (Session, error) {
	var s Session
	err := q.db.QueryRow(ctx,
		`SELECT id, user_id, token_hash, created_at, expires_at, revoked_at
		 FROM sessions WHERE token_hash = $1`, tokenHash,
	).Scan(&s.ID, &s.UserID, &s.TokenHash, &s.CreatedAt, &s.ExpiresAt, &s.RevokedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	return s, err
}

func (q *Queries) RevokeSession(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.Exec(ctx, `UPDATE sessions SET revoked_at = now() WHERE id = $1 AND revoked_at IS NULL`, id)
	return err
}

// APIKey mirrors the ApiKey entity (§3). Hash, never the plaintext secret, is persisted.
type APIKey struct {
	ID         uuid.UUID
	OrgID      uuid.UUID
	Name       string
	Prefix     string
	Hash       string
	CreatedAt  time.Time
	ExpiresAt  *time.Time
	RevokedAt  *time.Time
	LastUsedAt *time.Time
}

func (q *Queries) CreateAPIKey(ctx context.Context, orgID uuid.UUID, name, prefix, hash string, expiresAt *time.Time) (APIKey, error) {
	var k APIKey
	err := q.db.QueryRow(ctx,
		`INSERT INTO api_keys (id, org_id, name, prefix, hash, expires_at)
		 VALUES (gen_random_uuid(), $1, $2, $3, $4, $5)
		 RETURNING id, org_id, name, prefix, hash, created_at, expires_at, revoked_at, last_used_at`,
		orgID, name, prefix, hash, expiresAt,
	).Scan(&k.ID, &k.OrgID, &k.Name, &k.Prefix, &k.Hash, &k.CreatedAt, &k.ExpiresAt, &k.RevokedAt, &k.LastUsedAt)
	return k, err
}

func (q *Queries) GetAPIKeyByHash(ctx context.Context, hash string) (APIKey, error) {
	var k APIKey
	err := q.db.QueryRow(ctx,
		`SELECT id, org_id, name, prefix, hash, created_at, expires_at, revoked_at, last_used_at
		 FROM api_keys WHERE hash = $1`, hash,
	).Scan(&k.ID, &k.OrgID, &k.Name, &k.Prefix, &k.Hash, &k.CreatedAt, &k.ExpiresAt, &k.RevokedAt, &k.LastUsedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return APIKey{}, ErrNotFound
	}
	return k, err
}

func (q *Queries) ListAPIKeysByOrg(ctx context.Context, orgID uuid.UUID) ([]APIKey, error) {
	rows, err := q.db.Query(ctx,
		`SELECT id, org_id, name, prefix, hash, created_at, expires_at, revoked_at, last_used_at
		 FROM api_keys WHERE org_id = $1 ORDER BY created_at DESC`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []APIKey
	for rows.Next() {
		var k APIKey
		if err := rows.Scan(&k.ID, &k.OrgID, &k.Name, &k.Prefix, &k.Hash, &k.CreatedAt, &k.ExpiresAt, &k.RevokedAt, &k.LastUsedAt); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func (q *Queries) RevokeAPIKey(ctx context.Context, id, orgID uuid.UUID) (bool, error) {
	tag, err := q.db.Exec(ctx,
		`UPDATE api_keys SET revoked_at = now() WHERE id = $1 AND org_id = $2 AND revoked_at IS NULL`,
		id, orgID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (q *Queries) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.Exec(ctx, `UPDATE api_keys SET last_used_at = now() WHERE id = $1`, id)
	return err
}

// OrgMembership row (§3).
type OrgMembership struct {
	UserID uuid.UUID
	OrgID  uuid.UUID
	Role   string
}

func (q *Queries) GetOrgMembership(ctx context.Context, userID, orgID uuid.UUID) (OrgMembership, error) {
	var m OrgMembership
	err := q.db.QueryRow(ctx,
		`SELECT user_id, org_id, role FROM org_memberships WHERE user_id = $1 AND org_id = $2`,
		userID, orgID,
	).Scan(&m.UserID, &m.OrgID, &m.Role)
	if errors.Is(err, pgx.ErrNoRows) {
		return OrgMembership{}, ErrNotFound
	}
	return m, err
}

func (q *Queries) ListOrgMemberships(ctx context.Context, userID uuid.UUID) ([]OrgMembership, error) {
	rows, err := q.db.Query(ctx,
		`SELECT user_id, org_id, role FROM org_memberships WHERE user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OrgMembership
	for rows.Next() {
		var m OrgMembership
		if err := rows.Scan(&m.UserID, &m.OrgID, &m.Role); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (q *Queries) CreateOrgMembership(ctx context.Context, userID, orgID uuid.UUID, role string) error {
	_, err := q.db.Exec(ctx,
		`INSERT INTO org_memberships (user_id, org_id, role) VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, org_id) DO UPDATE SET role = EXCLUDED.role`,
		userID, orgID, role)
	return err
}

// ProjectOwnerOrg returns the org_id that owns projectID, used by services
// outside pkg/project to verify cross-tenant access without importing it.
func (q *Queries) ProjectOwnerOrg(ctx context.Context, projectID uuid.UUID) (uuid.UUID, error) {
	var orgID uuid.UUID
	err := q.db.QueryRow(ctx, `SELECT org_id FROM projects WHERE id = $1`, projectID).Scan(&orgID)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, ErrNotFound
	}
	return orgID, err
}
