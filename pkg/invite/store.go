package invite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/thecontextcache/contextcache-sub001/internal/db"
)

// Store provides database operations for invites.
type Store struct {
	dbtx db.DBTX
}

// NewStore creates an invite Store backed by the given database connection.
func NewStore(dbtx db.DBTX) *Store {
	return &Store{dbtx: dbtx}
}

const inviteColumns = `id, email, token_hash, created_by, notes, created_at, expires_at, accepted_at, revoked_at`

func scanRow(row pgx.Row) (Row, error) {
	var r Row
	if err := row.Scan(&r.ID, &r.Email, &r.TokenHash, &r.CreatedBy, &r.Notes,
		&r.CreatedAt, &r.ExpiresAt, &r.AcceptedAt, &r.RevokedAt); err != nil {
		return Row{}, err
	}
	return r, nil
}

// CreateInvite inserts a new invite row.
func (s *Store) CreateInvite(ctx context.Context, email, tokenHash string, createdBy uuid.UUID, notes string, expiresAt time.Time) (Row, error) {
	const q = `
		INSERT INTO invites (id, email, token_hash, created_by, notes, created_at, expires_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, now(), $5)
		RETURNING ` + inviteColumns
	row, err := scanRow(s.dbtx.QueryRow(ctx, q, email, tokenHash, createdBy, notes, expiresAt))
	if err != nil {
		return Row{}, fmt.Errorf("creating invite: %w", err)
	}
	return row, nil
}

// GetByTokenHash returns the invite matching tokenHash, locked FOR UPDATE
// so concurrent acceptance attempts serialize (§4.7 "only the first
// succeeds"). Must be called within a transaction.
func (s *Store) GetByTokenHash(ctx context.Context, tokenHash string) (Row, error) {
	const q = `SELECT ` + inviteColumns + ` FROM invites WHERE token_hash = $1 FOR UPDATE`
	row, err := scanRow(s.dbtx.QueryRow(ctx, q, tokenHash))
	if errors.Is(err, pgx.ErrNoRows) {
		return Row{}, db.ErrNotFound
	}
	if err != nil {
		return Row{}, fmt.Errorf("getting invite: %w", err)
	}
	return row, nil
}

// MarkAccepted sets accepted_at on an invite.
func (s *Store) MarkAccepted(ctx context.Context, id uuid.UUID) error {
	_, err := s.dbtx.Exec(ctx, `UPDATE invites SET accepted_at = now() WHERE id = $1 AND accepted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("marking invite accepted: %w", err)
	}
	return nil
}

// Revoke sets revoked_at on an invite; idempotent (§4.7).
func (s *Store) Revoke(ctx context.Context, id uuid.UUID) error {
	_, err := s.dbtx.Exec(ctx, `UPDATE invites SET revoked_at = now() WHERE id = $1 AND revoked_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("revoking invite: %w", err)
	}
	return nil
}

// List returns invites, optionally filtered by a case-insensitive email
// substring, newest first. Invites are not filtered by status.
func (s *Store) List(ctx context.Context, emailQuery string, limit, offset int) ([]Row, error) {
	const q = `
		SELECT ` + inviteColumns + ` FROM invites
		WHERE ($1 = '' OR email ILIKE '%' || $1 || '%')
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`
	rows, err := s.dbtx.Query(ctx, q, emailQuery, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing invites: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning invite row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
