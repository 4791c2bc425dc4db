// Package org implements organizations and org membership (§3).
package org

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/thecontextcache/contextcache-sub001/internal/db"
)

// CreateRequest is the JSON body for POST /orgs.
type CreateRequest struct {
	Name string `json:"name" validate:"required,min=1,max=200"`
}

// Row is the persisted shape of an organization.
type Row struct {
	ID        uuid.UUID
	Name      string
	CreatedAt time.Time
}

// Response is the JSON representation of an organization.
type Response struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// MembershipResponse is the JSON shape returned by GET /me/orgs.
type MembershipResponse struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	Role string    `json:"role"`
}

// Store provides database operations for organizations.
type Store struct {
	dbtx db.DBTX
}

// NewStore creates an org Store backed by the given database connection.
func NewStore(dbtx db.DBTX) *Store {
	return &Store{dbtx: dbtx}
}

// Create inserts a new organization and grants its creator an admin
// membership, mirroring the teacher's create-then-self-assign-role idiom.
func (s *Store) Create(ctx context.Context, name string, creator uuid.UUID) (Row, error) {
	var r Row
	err := s.dbtx.QueryRow(ctx,
		`INSERT INTO organizations (id, name, created_at) VALUES (gen_random_uuid(), $1, now()) RETURNING id, name, created_at`,
		name,
	).Scan(&r.ID, &r.Name, &r.CreatedAt)
	if err != nil {
		return Row{}, fmt.Errorf("creating org: %w", err)
	}

	if err := db.New(s.dbtx).CreateOrgMembership(ctx, creator, r.ID, "admin"); err != nil {
		return Row{}, fmt.Errorf("granting creator admin membership: %w", err)
	}
	return r, nil
}

// ListForUser returns every org the user belongs to, with their role.
func (s *Store) ListForUser(ctx context.Context, userID uuid.UUID) ([]MembershipResponse, error) {
	const q = `
		SELECT o.id, o.name, m.role
		FROM org_memberships m JOIN organizations o ON o.id = m.org_id
		WHERE m.user_id = $1
		ORDER BY o.name`
	rows, err := s.dbtx.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("listing orgs for user: %w", err)
	}
	defer rows.Close()

	out := []MembershipResponse{}
	for rows.Next() {
		var m MembershipResponse
		if err := rows.Scan(&m.ID, &m.Name, &m.Role); err != nil {
			return nil, fmt.Errorf("scanning org membership row: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// RequireAdminRole reports whether userID has the admin role in orgID,
// used to gate POST /orgs/{id}/api-keys/{kid}/revoke (§3 "Org member
// roles" supplement).
func RequireAdminRole(ctx context.Context, dbtx db.DBTX, userID, orgID uuid.UUID) (bool, error) {
	m, err := db.New(dbtx).GetOrgMembership(ctx, userID, orgID)
	if err == db.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return m.Role == "admin", nil
}
