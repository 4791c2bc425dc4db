package project

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/thecontextcache/contextcache-sub001/internal/db"
)

// Store provides database operations for projects.
type Store struct {
	dbtx db.DBTX
}

// NewStore creates a project Store backed by the given database connection.
func NewStore(dbtx db.DBTX) *Store {
	return &Store{dbtx: dbtx}
}

const projectColumns = `id, org_id, name, created_at`

func scanRow(row pgx.Row) (Row, error) {
	var r Row
	if err := row.Scan(&r.ID, &r.OrgID, &r.Name, &r.CreatedAt); err != nil {
		return Row{}, err
	}
	return r, nil
}

// Create inserts a new project. Names are unique within an org (§3); a
// collision surfaces the underlying unique-violation error for the caller
// to map to apperr.Conflict.
func (s *Store) Create(ctx context.Context, orgID uuid.UUID, name string) (Row, error) {
	const q = `INSERT INTO projects (id, org_id, name, created_at) VALUES (gen_random_uuid(), $1, $2, now()) RETURNING ` + projectColumns
	return scanRow(s.dbtx.QueryRow(ctx, q, orgID, name))
}

// Get returns a project by id, or db.ErrNotFound.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (Row, error) {
	const q = `SELECT ` + projectColumns + ` FROM projects WHERE id = $1`
	row, err := scanRow(s.dbtx.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Row{}, db.ErrNotFound
	}
	if err != nil {
		return Row{}, fmt.Errorf("getting project: %w", err)
	}
	return row, nil
}

// ListByOrgs returns all projects belonging to any of orgIDs.
func (s *Store) ListByOrgs(ctx context.Context, orgIDs []uuid.UUID) ([]Row, error) {
	const q = `SELECT ` + projectColumns + ` FROM projects WHERE org_id = ANY($1) ORDER BY created_at DESC`
	rows, err := s.dbtx.Query(ctx, q, orgIDs)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning project row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
