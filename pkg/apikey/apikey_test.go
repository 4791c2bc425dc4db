package apikey

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/thecontextcache/contextcache-sub001/internal/auth"
)

// fakeDBTX is a minimal db.DBTX backing Service in isolation from Postgres.
type fakeDBTX struct {
	rows    []fakeRow
	execTag pgconn.CommandTag
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
		case **string:
			*v = r.values[i].(*string)
		case *time.Time:
			*v = r.values[i].(time.Time)
		case **time.Time:
			*v = r.values[i].(*time.Time)
		default:
			return errors.New("fakeRow.Scan: unsupported dest type")
		}
	}
	return nil
}

func (f *fakeDBTX) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return f.execTag, f.execErr
}

func (f *fakeDBTX) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("Query not used by this test")
}

func (f *fakeDBTX) QueryRow(context.Context, string, ...any) pgx.Row {
	row := f.rows[0]
	f.rows = f.rows[1:]
	return row
}

func TestGenerate_FormatAndHashing(t *testing.T) {
	raw, hash, prefix := generate()

	if !strings.HasPrefix(raw, "cck_") {
		t.Errorf("raw key %q does not have cck_ prefix", raw)
	}
	if raw == hash {
		t.Error("stored hash must never equal the plaintext key")
	}
	if hash != auth.HashSecret(raw) {
		t.Error("hash is not the SHA-256 digest of raw")
	}
	if prefix != raw[:10] {
		t.Errorf("prefix = %q, want first 10 chars of raw", prefix)
	}

	raw2, _, _ := generate()
	if raw == raw2 {
		t.Error("two calls to generate() produced the same key")
	}
}

func TestService_Create_RequiresAdmin(t *testing.T) {
	caller := &auth.Caller{UserID: uuid.New(), AuthKind: auth.AuthKindSession, IsAdmin: false}
	orgID := uuid.New()
	db := &fakeDBTX{rows: []fakeRow{{err: pgx.ErrNoRows}}} // no membership row

	s := NewService(db)
	_, err := s.Create(context.Background(), caller, orgID, CreateRequest{Name: "ci key"})
	if err == nil {
		t.Fatal("Create() error = nil, want Forbidden for a non-admin caller")
	}
}

func TestService_Create_APIKeyCallerForbidden(t *testing.T) {
	orgID := uuid.New()
	caller := &auth.Caller{AuthKind: auth.AuthKindAPIKey, OrgID: &orgID}
	db := &fakeDBTX{}

	s := NewService(db)
	_, err := s.Create(context.Background(), caller, orgID, CreateRequest{Name: "ci key"})
	if err == nil {
		t.Fatal("Create() error = nil, want Forbidden when caller authenticated via API key")
	}
}

func TestService_Revoke_NotFoundIsIdempotent(t *testing.T) {
	caller := &auth.Caller{UserID: uuid.New(), AuthKind: auth.AuthKindSession, IsAdmin: true}
	orgID, keyID := uuid.New(), uuid.New()
	db := &fakeDBTX{execTag: pgconn.NewCommandTag("UPDATE 0")}

	s := NewService(db)
	err := s.Revoke(context.Background(), caller, orgID, keyID)
	if err == nil {
		t.Fatal("Revoke() error = nil, want NotFound when zero rows affected")
	}
}

func TestService_Revoke_PlatformAdminSkipsOrgMembershipCheck(t *testing.T) {
	caller := &auth.Caller{UserID: uuid.New(), AuthKind: auth.AuthKindSession, IsAdmin: true}
	orgID, keyID := uuid.New(), uuid.New()
	db := &fakeDBTX{execTag: pgconn.NewCommandTag("UPDATE 1")}

	s := NewService(db)
	if err := s.Revoke(context.Background(), caller, orgID, keyID); err != nil {
		t.Fatalf("Revoke() error = %v, want nil", err)
	}
}
