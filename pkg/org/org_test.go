package org

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// fakeDBTX is a minimal db.DBTX whose QueryRow/Exec results are programmed
// per call via a queue, enough to exercise Store.Create's two sequential
// statements (insert org, then grant membership).
type fakeDBTX struct {
	rows    []fakeRow
	execErr error
}

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		switch v := d.(type) {
		case *uuid.UUID:
			*v = r.values[i].(uuid.UUID)
		case *string:
			*v = r.values[i].(string)
		case *time.Time:
			*v = r.values[i].(time.Time)
		default:
			return errors.New("fakeRow.Scan: unsupported dest type")
		}
	}
	return nil
}

func (f *fakeDBTX) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, f.execErr
}

func (f *fakeDBTX) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("Query not used by this test")
}

func (f *fakeDBTX) QueryRow(context.Context, string, ...any) pgx.Row {
	row := f.rows[0]
	f.rows = f.rows[1:]
	return row
}

func TestStore_Create(t *testing.T) {
	orgID := uuid.New()
	now := time.Now()
	db := &fakeDBTX{rows: []fakeRow{
		{values: []any{orgID, "Acme Corp", now}},
	}}

	s := NewStore(db)
	row, err := s.Create(context.Background(), "Acme Corp", uuid.New())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if row.ID != orgID {
		t.Errorf("ID = %v, want %v", row.ID, orgID)
	}
	if row.Name != "Acme Corp" {
		t.Errorf("Name = %q, want %q", row.Name, "Acme Corp")
	}
}

func TestStore_Create_MembershipGrantFails(t *testing.T) {
	orgID := uuid.New()
	db := &fakeDBTX{
		rows:    []fakeRow{{values: []any{orgID, "Acme Corp", time.Now()}}},
		execErr: errors.New("constraint violation"),
	}

	s := NewStore(db)
	if _, err := s.Create(context.Background(), "Acme Corp", uuid.New()); err == nil {
		t.Fatal("Create() error = nil, want non-nil when membership grant fails")
	}
}

func TestRequireAdminRole(t *testing.T) {
	t.Run("admin role", func(t *testing.T) {
		userID, orgID := uuid.New(), uuid.New()
		db := &fakeDBTX{rows: []fakeRow{{values: []any{userID, orgID, "admin"}}}}

		ok, err := RequireAdminRole(context.Background(), db, userID, orgID)
		if err != nil {
			t.Fatalf("RequireAdminRole() error = %v", err)
		}
		if !ok {
			t.Error("RequireAdminRole() = false, want true for admin role")
		}
	})

	t.Run("member role", func(t *testing.T) {
		userID, orgID := uuid.New(), uuid.New()
		db := &fakeDBTX{rows: []fakeRow{{values: []any{userID, orgID, "member"}}}}

		ok, err := RequireAdminRole(context.Background(), db, userID, orgID)
		if err != nil {
			t.Fatalf("RequireAdminRole() error = %v", err)
		}
		if ok {
			t.Error("RequireAdminRole() = true, want false for member role")
		}
	})

	t.Run("no membership", func(t *testing.T) {
		userID, orgID := uuid.New(), uuid.New()
		db := &fakeDBTX{rows: []fakeRow{{err: pgx.ErrNoRows}}}

		ok, err := RequireAdminRole(context.Background(), db, userID, orgID)
		if err != nil {
			t.Fatalf("RequireAdminRole() error = %v", err)
		}
		if ok {
			t.Error("RequireAdminRole() = true, want false with no membership row")
		}
	})
}
