package org

import (
	"context"

	"github.com/google/uuid"

	"github.com/thecontextcache/contextcache-sub001/internal/db"
)

// Service encapsulates org business logic.
type Service struct {
	store *Store
}

// NewService creates an org Service backed by the given database connection.
func NewService(dbtx db.DBTX) *Service {
	return &Service{store: NewStore(dbtx)}
}

// Create creates a new org and grants creator an admin membership.
func (s *Service) Create(ctx context.Context, creator uuid.UUID, name string) (Row, error) {
	return s.store.Create(ctx, name, creator)
}

// ListForUser returns every org userID belongs to, with role.
func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID) ([]MembershipResponse, error) {
	return s.store.ListForUser(ctx, userID)
}
