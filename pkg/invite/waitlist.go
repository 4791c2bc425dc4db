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

// WaitlistStatus is a waitlist entry's review state (§3).
type WaitlistStatus string

const (
	WaitlistPending  WaitlistStatus = "pending"
	WaitlistApproved WaitlistStatus = "approved"
	WaitlistRejected WaitlistStatus = "rejected"
)

// WaitlistJoinRequest is the JSON body for POST /waitlist/join.
type WaitlistJoinRequest struct {
	Email   string `json:"email" validate:"required,email"`
	Name    string `json:"name"`
	Company string `json:"company"`
	UseCase string `json:"use_case"`
	Source  string `json:"source"`
}

// WaitlistRow is the persisted shape of a waitlist entry.
type WaitlistRow struct {
	ID        uuid.UUID
	Email     string
	Name      string
	Company   string
	UseCase   string
	Source    string
	Status    WaitlistStatus
	CreatedAt time.Time
}

// WaitlistResponse is the JSON representation of a waitlist entry.
type WaitlistResponse struct {
	ID        uuid.UUID      `json:"id"`
	Email     string         `json:"email"`
	Name      string         `json:"name,omitempty"`
	Company   string         `json:"company,omitempty"`
	UseCase   string         `json:"use_case,omitempty"`
	Source    string         `json:"source,omitempty"`
	Status    WaitlistStatus `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
}

// ToResponse converts a WaitlistRow to its API Response.
func (r WaitlistRow) ToResponse() WaitlistResponse {
	return WaitlistResponse{
		ID: r.ID, Email: r.Email, Name: r.Name, Company: r.Company,
		UseCase: r.UseCase, Source: r.Source, Status: r.Status, CreatedAt: r.CreatedAt,
	}
}

// WaitlistStore provides database operations for waitlist entries.
type WaitlistStore struct {
	dbtx db.DBTX
}

// NewWaitlistStore creates a WaitlistStore backed by the given database
// connection.
func NewWaitlistStore(dbtx db.DBTX) *WaitlistStore {
	return &WaitlistStore{dbtx: dbtx}
}

const waitlistColumns = `id, email, name, company, use_case, source, status, created_at`

func scanWaitlistRow(row pgx.Row) (WaitlistRow, error) {
	var r WaitlistRow
	if err := row.Scan(&r.ID, &r.Email, &r.Name, &r.Company, &r.UseCase, &r.Source, &r.Status, &r.CreatedAt); err != nil {
		return WaitlistRow{}, err
	}
	return r, nil
}

// Join inserts a new pending waitlist entry. Repeated joins by the same
// email are allowed to accumulate (the endpoint is public and unauthenticated,
// so there is no identity to dedupe against beyond the email string); admins
// see every submission when reviewing.
func (s *WaitlistStore) Join(ctx context.Context, req WaitlistJoinRequest) (WaitlistRow, error) {
	const q = `
		INSERT INTO waitlist_entries (id, email, name, company, use_case, source, status, created_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, now())
		RETURNING ` + waitlistColumns
	row, err := scanWaitlistRow(s.dbtx.QueryRow(ctx, q,
		NormalizeEmail(req.Email), req.Name, req.Company, req.UseCase, req.Source, WaitlistPending))
	if err != nil {
		return WaitlistRow{}, fmt.Errorf("joining waitlist: %w", err)
	}
	return row, nil
}

// Get returns a waitlist entry by id, locked FOR UPDATE so approve/reject
// race safely.
func (s *WaitlistStore) Get(ctx context.Context, id uuid.UUID) (WaitlistRow, error) {
	const q = `SELECT ` + waitlistColumns + ` FROM waitlist_entries WHERE id = $1 FOR UPDATE`
	row, err := scanWaitlistRow(s.dbtx.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return WaitlistRow{}, db.ErrNotFound
	}
	return row, err
}

// SetStatus transitions a waitlist entry to status, only if it is still
// pending.
func (s *WaitlistStore) SetStatus(ctx context.Context, id uuid.UUID, status WaitlistStatus) error {
	tag, err := s.dbtx.Exec(ctx,
		`UPDATE waitlist_entries SET status = $2 WHERE id = $1 AND status = $3`,
		id, status, WaitlistPending)
	if err != nil {
		return fmt.Errorf("updating waitlist status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("waitlist entry %s is not pending", id)
	}
	return nil
}

// List returns waitlist entries, optionally filtered by status.
func (s *WaitlistStore) List(ctx context.Context, status WaitlistStatus, limit, offset int) ([]WaitlistRow, error) {
	const q = `
		SELECT ` + waitlistColumns + ` FROM waitlist_entries
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`
	rows, err := s.dbtx.Query(ctx, q, string(status), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing waitlist: %w", err)
	}
	defer rows.Close()

	var out []WaitlistRow
	for rows.Next() {
		r, err := scanWaitlistRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning waitlist row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
