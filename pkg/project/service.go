package project

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/thecontextcache/contextcache-sub001/internal/auth"
	"github.com/thecontextcache/contextcache-sub001/internal/db"
	"github.com/thecontextcache/contextcache-sub001/pkg/apperr"
	"github.com/thecontextcache/contextcache-sub001/pkg/quota"
)

// Service encapsulates project business logic and access control.
type Service struct {
	store *Store
	pool  *pgxpool.Pool
	quota *quota.Ledger
}

// NewService creates a project Service backed by pool. ledger may be nil, in
// which case Create skips quota reservation (used by call sites like org
// creation's seed project, if any, that must never be quota-limited).
func NewService(pool *pgxpool.Pool, ledger *quota.Ledger) *Service {
	return &Service{store: NewStore(pool), pool: pool, quota: ledger}
}

// Create creates a project in orgID on behalf of caller, after verifying org
// membership and reserving the project_created quota event (§4.6's third
// event type, alongside memory_created and recall_query). The reservation
// and the insert share one transaction, so a failed insert never leaves a
// stray quota increment behind.
func (s *Service) Create(ctx context.Context, caller *auth.Caller, orgID uuid.UUID, name string) (Row, error) {
	if err := s.requireOrgMember(ctx, caller, orgID); err != nil {
		return Row{}, err
	}

	var row Row
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if s.quota != nil {
			if _, err := s.quota.Reserve(ctx, tx, caller.PrincipalID(), caller.IsUnlimited, quota.EventProjectCreated); err != nil {
				return err
			}
		}
		r, err := NewStore(tx).Create(ctx, orgID, name)
		if err != nil {
			return apperr.Conflict(fmt.Sprintf("project %q already exists in this org", name))
		}
		row = r
		return nil
	})
	if err != nil {
		return Row{}, err
	}
	return row, nil
}

// ListVisible returns every project visible to caller: for session auth,
// every project in every org the caller belongs to; for API-key auth, only
// projects in the key's org.
func (s *Service) ListVisible(ctx context.Context, caller *auth.Caller) ([]Row, error) {
	orgIDs, err := s.callerOrgs(ctx, caller)
	if err != nil {
		return nil, err
	}
	if len(orgIDs) == 0 {
		return nil, nil
	}
	return s.store.ListByOrgs(ctx, orgIDs)
}

// Authorize loads projectID and verifies caller has access to its org,
// returning apperr.NotFound if the project doesn't exist and
// apperr.Forbidden if the caller lacks access to the project's org.
func (s *Service) Authorize(ctx context.Context, caller *auth.Caller, projectID uuid.UUID) (Row, error) {
	row, err := s.store.Get(ctx, projectID)
	if err == db.ErrNotFound {
		return Row{}, apperr.NotFound("project not found")
	}
	if err != nil {
		return Row{}, err
	}
	if err := s.requireOrgMember(ctx, caller, row.OrgID); err != nil {
		return Row{}, err
	}
	return row, nil
}

func (s *Service) requireOrgMember(ctx context.Context, caller *auth.Caller, orgID uuid.UUID) error {
	if caller == nil {
		return apperr.AuthMissing("authentication required")
	}
	if caller.AuthKind == auth.AuthKindAPIKey {
		if caller.OrgID == nil || *caller.OrgID != orgID {
			return apperr.Forbidden("API key is not scoped to this org")
		}
		return nil
	}
	if caller.IsAdmin {
		return nil
	}
	if _, err := db.New(s.pool).GetOrgMembership(ctx, caller.UserID, orgID); err != nil {
		if err == db.ErrNotFound {
			return apperr.Forbidden("not a member of this org")
		}
		return err
	}
	return nil
}

func (s *Service) callerOrgs(ctx context.Context, caller *auth.Caller) ([]uuid.UUID, error) {
	if caller == nil {
		return nil, apperr.AuthMissing("authentication required")
	}
	if caller.AuthKind == auth.AuthKindAPIKey {
		if caller.OrgID == nil {
			return nil, nil
		}
		return []uuid.UUID{*caller.OrgID}, nil
	}
	memberships, err := db.New(s.pool).ListOrgMemberships(ctx, caller.UserID)
	if err != nil {
		return nil, fmt.Errorf("listing org memberships: %w", err)
	}
	orgIDs := make([]uuid.UUID, len(memberships))
	for i, m := range memberships {
		orgIDs[i] = m.OrgID
	}
	return orgIDs, nil
}
