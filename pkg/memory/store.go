package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/thecontextcache/contextcache-sub001/internal/db"
)

// Store provides database operations for memory cards.
type Store struct {
	dbtx db.DBTX
}

// NewStore creates a memory Store backed by the given database connection.
func NewStore(dbtx db.DBTX) *Store {
	return &Store{dbtx: dbtx}
}

const memoryColumns = `id, project_id, type, source, title, content, tags, metadata, content_hash, created_at, created_by`

func scanRow(row pgx.Row) (Row, error) {
	var r Row
	var metadata []byte
	if err := row.Scan(&r.ID, &r.ProjectID, &r.Type, &r.Source, &r.Title, &r.Content,
		&r.Tags, &metadata, &r.ContentHash, &r.CreatedAt, &r.CreatedBy); err != nil {
		return Row{}, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &r.Metadata); err != nil {
			return Row{}, fmt.Errorf("decoding metadata: %w", err)
		}
	}
	return r, nil
}

// Insert attempts to insert a new memory row; on a (project_id, content_hash)
// collision it returns the existing row and idempotent=true (§3, §4.4 step 6).
func (s *Store) Insert(ctx context.Context, projectID uuid.UUID, c canonical, createdBy *uuid.UUID) (Row, bool, error) {
	metadata, err := json.Marshal(c.Metadata)
	if err != nil {
		return Row{}, false, fmt.Errorf("encoding metadata: %w", err)
	}

	const insertQ = `
		INSERT INTO memories (` + memoryColumns + `)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8, now(), $9)
		ON CONFLICT (project_id, content_hash) DO NOTHING
		RETURNING ` + memoryColumns

	row, err := scanRow(s.dbtx.QueryRow(ctx, insertQ,
		projectID, string(c.Type), string(c.Source), c.Title, c.Content,
		c.Tags, metadata, c.ContentHash, createdBy))
	if err == nil {
		return row, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Row{}, false, fmt.Errorf("inserting memory: %w", err)
	}

	const existingQ = `SELECT ` + memoryColumns + ` FROM memories WHERE project_id = $1 AND content_hash = $2`
	existing, err := scanRow(s.dbtx.QueryRow(ctx, existingQ, projectID, c.ContentHash))
	if err != nil {
		return Row{}, false, fmt.Errorf("fetching existing memory: %w", err)
	}
	return existing, true, nil
}

// List returns memories for a project ordered by created_at desc (§4.1).
func (s *Store) List(ctx context.Context, projectID uuid.UUID, limit, offset int) ([]Row, error) {
	const q = `SELECT ` + memoryColumns + ` FROM memories WHERE project_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	rows, err := s.dbtx.Query(ctx, q, projectID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing memories: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning memory row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Count returns the total memory count for a project (used by GET /projects
// for memory_count).
func (s *Store) Count(ctx context.Context, projectID uuid.UUID) (int, error) {
	const q = `SELECT count(*) FROM memories WHERE project_id = $1`
	var n int
	if err := s.dbtx.QueryRow(ctx, q, projectID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting memories: %w", err)
	}
	return n, nil
}
