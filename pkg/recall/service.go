package recall

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/text/unicode/norm"

	"github.com/thecontextcache/contextcache-sub001/internal/audit"
	"github.com/thecontextcache/contextcache-sub001/internal/auth"
	"github.com/thecontextcache/contextcache-sub001/internal/db"
	"github.com/thecontextcache/contextcache-sub001/internal/telemetry"
	"github.com/thecontextcache/contextcache-sub001/pkg/apperr"
	"github.com/thecontextcache/contextcache-sub001/pkg/project"
	"github.com/thecontextcache/contextcache-sub001/pkg/quota"
)

// searcher is the subset of *Store a Service needs, so a spy implementation
// can be substituted to observe whether Search was invoked for a given query.
type searcher interface {
	Search(ctx context.Context, projectID uuid.UUID, query string, limit int) ([]Item, error)
	RecencyTopUp(ctx context.Context, projectID uuid.UUID, limit int, exclude map[uuid.UUID]bool) ([]Item, error)
}

// Service implements the FTS-with-recency-fallback recall algorithm (§4.5).
type Service struct {
	pool     *pgxpool.Pool
	projects *project.Service
	quota    *quota.Ledger
	newStore func(dbtx db.DBTX) searcher
}

// NewService creates a recall Service.
func NewService(pool *pgxpool.Pool, projects *project.Service, ledger *quota.Ledger) *Service {
	return &Service{
		pool:     pool,
		projects: projects,
		quota:    ledger,
		newStore: func(dbtx db.DBTX) searcher { return NewStore(dbtx) },
	}
}

// Query runs a recall for (projectID, query, limit), after authorizing
// caller's project access and reserving the recall_query quota event. limit
// must already have been validated non-negative by the caller (handler);
// Query clamps it into [MinLimit, MaxLimit].
func (s *Service) Query(ctx context.Context, caller *auth.Caller, projectID uuid.UUID, rawQuery string, limit int) (Result, error) {
	proj, err := s.projects.Authorize(ctx, caller, projectID)
	if err != nil {
		return Result{}, err
	}

	limit = ClampLimit(limit)
	query := norm.NFKC.String(rawQuery)

	var result Result
	err = db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := s.quota.Reserve(ctx, tx, caller.PrincipalID(), caller.IsUnlimited, quota.EventRecallQuery); err != nil {
			return err
		}

		store := s.newStore(tx)
		r, err := s.run(ctx, store, proj.ID, query, limit)
		if err != nil {
			return apperr.Internal(err)
		}
		result = r

		appender := audit.NewAppender(tx)
		_, err = appender.Append(ctx, audit.Event{
			ProjectID: proj.ID,
			EventType: "recall_query",
			Actor:     audit.ActorFor(caller),
			Data: map[string]any{
				"query":        query,
				"result_count": len(result.Items),
			},
		})
		if err != nil {
			return apperr.Internal(err)
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	telemetry.RecallQueriesTotal.WithLabelValues(fmt.Sprintf("%t", result.UsedFTS)).Inc()
	return result, nil
}

// run implements §4.5 steps 1–6 against an already-authorized project.
func (s *Service) run(ctx context.Context, store searcher, projectID uuid.UUID, query string, limit int) (Result, error) {
	if isBlank(query) {
		items, err := store.RecencyTopUp(ctx, projectID, limit, nil)
		if err != nil {
			return Result{}, fmt.Errorf("recency-only recall: %w", err)
		}
		return Result{Items: items, UsedFTS: false}, nil
	}

	ftsItems, err := store.Search(ctx, projectID, query, limit)
	if err != nil {
		return Result{}, fmt.Errorf("fts recall: %w", err)
	}

	items := ftsItems
	if len(items) < limit {
		seen := make(map[uuid.UUID]bool, len(items))
		for _, it := range items {
			seen[it.Memory.ID] = true
		}
		topUp, err := store.RecencyTopUp(ctx, projectID, limit-len(items), seen)
		if err != nil {
			return Result{}, fmt.Errorf("recency top-up: %w", err)
		}
		items = append(items, topUp...)
	}

	sortItems(items)
	if len(items) > limit {
		items = items[:limit]
	}
	return Result{Items: items, UsedFTS: true}, nil
}

// sortItems implements the stable tie-break from §4.5 step 5: rank_score
// DESC NULLS LAST, then created_at DESC, then id ASC.
func sortItems(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		switch {
		case a.RankScore == nil && b.RankScore != nil:
			return false
		case a.RankScore != nil && b.RankScore == nil:
			return true
		case a.RankScore != nil && b.RankScore != nil && *a.RankScore != *b.RankScore:
			return *a.RankScore > *b.RankScore
		}
		if !a.Memory.CreatedAt.Equal(b.Memory.CreatedAt) {
			return a.Memory.CreatedAt.After(b.Memory.CreatedAt)
		}
		return a.Memory.ID.String() < b.Memory.ID.String()
	})
}
