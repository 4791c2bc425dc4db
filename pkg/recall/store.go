package recall

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/thecontextcache/contextcache-sub001/internal/db"
	"github.com/thecontextcache/contextcache-sub001/pkg/memory"
)

// Store queries the memories table for recall candidates. Search and
// RecencyTopUp are separate methods, rather than one combined query, so a
// test can wrap Store and record whether Search was ever invoked — the
// spy hook the empty-query boundary case needs (§8).
type Store struct {
	dbtx db.DBTX
}

// NewStore creates a recall Store backed by the given database connection.
func NewStore(dbtx db.DBTX) *Store {
	return &Store{dbtx: dbtx}
}

const recallColumns = `id, project_id, type, source, title, content, tags, metadata, content_hash, created_at, created_by`

func scanMemoryRow(row pgx.Row) (memory.Row, error) {
	var r memory.Row
	var metadata []byte
	if err := row.Scan(&r.ID, &r.ProjectID, &r.Type, &r.Source, &r.Title, &r.Content,
		&r.Tags, &metadata, &r.ContentHash, &r.CreatedAt, &r.CreatedBy); err != nil {
		return memory.Row{}, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &r.Metadata); err != nil {
			return memory.Row{}, fmt.Errorf("decoding metadata: %w", err)
		}
	}
	return r, nil
}

// Search runs the full-text ranking pass (§4.5 steps 2–3): tokenizes query
// via plainto_tsquery, ranks matches with ts_rank_cd, and excludes rows
// whose rank is zero. Results are ordered rank DESC, created_at DESC, id ASC
// for the deterministic tie-break the stable sort requires.
func (s *Store) Search(ctx context.Context, projectID uuid.UUID, query string, limit int) ([]Item, error) {
	const q = `
		SELECT ` + recallColumns + `, ts_rank_cd(full_text, plainto_tsquery('english', $2)) AS rank
		FROM memories
		WHERE project_id = $1
		  AND full_text @@ plainto_tsquery('english', $2)
		ORDER BY rank DESC, created_at DESC, id ASC
		LIMIT $3`

	rows, err := s.dbtx.Query(ctx, q, projectID, query, limit)
	if err != nil {
		return nil, fmt.Errorf("searching memories: %w", err)
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		var rank float64
		r, err := scanMemoryRowWithRank(rows, &rank)
		if err != nil {
			return nil, fmt.Errorf("scanning search row: %w", err)
		}
		if rank == 0 {
			continue
		}
		rankCopy := rank
		out = append(out, Item{Memory: r, RankScore: &rankCopy})
	}
	return out, rows.Err()
}

func scanMemoryRowWithRank(row pgx.Row, rank *float64) (memory.Row, error) {
	var r memory.Row
	var metadata []byte
	if err := row.Scan(&r.ID, &r.ProjectID, &r.Type, &r.Source, &r.Title, &r.Content,
		&r.Tags, &metadata, &r.ContentHash, &r.CreatedAt, &r.CreatedBy, rank); err != nil {
		return memory.Row{}, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &r.Metadata); err != nil {
			return memory.Row{}, fmt.Errorf("decoding metadata: %w", err)
		}
	}
	return r, nil
}

// RecencyTopUp returns up to limit memories ordered by created_at DESC,
// excluding any id already present in exclude. Used both for the
// empty-query path (§4.5 step 1) and to top up an under-full FTS result
// (§4.5 step 4).
func (s *Store) RecencyTopUp(ctx context.Context, projectID uuid.UUID, limit int, exclude map[uuid.UUID]bool) ([]Item, error) {
	excluded := make([]uuid.UUID, 0, len(exclude))
	for id := range exclude {
		excluded = append(excluded, id)
	}

	const q = `
		SELECT ` + recallColumns + `
		FROM memories
		WHERE project_id = $1 AND NOT (id = ANY($2))
		ORDER BY created_at DESC, id ASC
		LIMIT $3`

	rows, err := s.dbtx.Query(ctx, q, projectID, excluded, limit)
	if err != nil {
		return nil, fmt.Errorf("listing recency rows: %w", err)
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		r, err := scanMemoryRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning recency row: %w", err)
		}
		out = append(out, Item{Memory: r, RankScore: nil})
	}
	return out, rows.Err()
}
