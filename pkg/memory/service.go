package memory

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/thecontextcache/contextcache-sub001/internal/audit"
	"github.com/thecontextcache/contextcache-sub001/internal/auth"
	"github.com/thecontextcache/contextcache-sub001/internal/db"
	"github.com/thecontextcache/contextcache-sub001/pkg/apperr"
	"github.com/thecontextcache/contextcache-sub001/pkg/project"
	"github.com/thecontextcache/contextcache-sub001/pkg/quota"
)

// Dispatcher is the subset of pkg/dispatcher a memory write needs: a
// best-effort hint that a project's pack cache should be refreshed. A
// failure to enqueue never fails the write (§7: jobs are best-effort).
type Dispatcher interface {
	EnqueueReindex(ctx context.Context, projectID uuid.UUID) error
}

// Service implements memory card creation and listing (§4.4).
type Service struct {
	pool       *pgxpool.Pool
	projects   *project.Service
	quota      *quota.Ledger
	dispatcher Dispatcher
}

// NewService creates a memory Service. dispatcher may be nil, in which case
// the reindex hint step is skipped entirely.
func NewService(pool *pgxpool.Pool, projects *project.Service, ledger *quota.Ledger, dispatcher Dispatcher) *Service {
	return &Service{pool: pool, projects: projects, quota: ledger, dispatcher: dispatcher}
}

// Create validates, canonicalizes, and stores a memory card, implementing
// §4.4 end to end: authorize and validate, then in one transaction insert
// (deduping on content hash) and, for a new row only, reserve quota and
// append the audit event. A best-effort reindex hint runs after commit
// since it is not part of the durable write.
func (s *Service) Create(ctx context.Context, caller *auth.Caller, projectID uuid.UUID, req CreateRequest) (Response, error) {
	proj, err := s.projects.Authorize(ctx, caller, projectID)
	if err != nil {
		return Response{}, err
	}

	c, err := validateAndCanonicalize(req)
	if err != nil {
		return Response{}, apperr.Validation(err.Error())
	}

	var result Row
	var idempotent bool

	err = db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		store := NewStore(tx)
		row, wasIdempotent, err := store.Insert(ctx, proj.ID, c, sessionUserID(caller))
		if err != nil {
			return apperr.Internal(err)
		}
		result, idempotent = row, wasIdempotent

		// A retried submission that lands on the same content_hash creates
		// nothing new, so it must not burn another quota unit — only a
		// genuinely new row reserves.
		if wasIdempotent {
			return nil
		}

		if _, err := s.quota.Reserve(ctx, tx, caller.PrincipalID(), caller.IsUnlimited, quota.EventMemoryCreated); err != nil {
			return err
		}

		appender := audit.NewAppender(tx)
		_, err = appender.Append(ctx, audit.Event{
			ProjectID: proj.ID,
			EventType: "memory_created",
			Actor:     audit.ActorFor(caller),
			Data: map[string]any{
				"memory_id":    row.ID.String(),
				"type":         row.Type,
				"source":       row.Source,
				"content_hash": row.ContentHash,
			},
		})
		if err != nil {
			return apperr.Internal(err)
		}
		return nil
	})
	if err != nil {
		return Response{}, err
	}

	resp := result.ToResponse()
	resp.Idempotent = idempotent

	if !idempotent && s.dispatcher != nil {
		if err := s.dispatcher.EnqueueReindex(ctx, proj.ID); err != nil {
			slog.Warn("enqueueing reindex hint", "project_id", proj.ID, "error", err)
		}
	}

	return resp, nil
}

// sessionUserID returns caller's user id for attribution, or nil for
// API-key callers, which aren't tied to a user.
func sessionUserID(caller *auth.Caller) *uuid.UUID {
	if caller.AuthKind == auth.AuthKindAPIKey {
		return nil
	}
	id := caller.UserID
	return &id
}

// List returns a project's memories, newest first, after authorizing
// caller's access.
func (s *Service) List(ctx context.Context, caller *auth.Caller, projectID uuid.UUID, limit, offset int) ([]Row, error) {
	if _, err := s.projects.Authorize(ctx, caller, projectID); err != nil {
		return nil, err
	}
	store := NewStore(s.pool)
	return store.List(ctx, projectID, limit, offset)
}

// Count returns a project's total memory count. It does no authorization of
// its own; it backs the project list's memory-count annotation and the
// memory list's total.
func (s *Service) Count(ctx context.Context, projectID uuid.UUID) (int, error) {
	return NewStore(s.pool).Count(ctx, projectID)
}
