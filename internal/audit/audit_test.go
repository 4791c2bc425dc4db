package audit

import (
	"context"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/thecontextcache/contextcache-sub001/internal/auth"
)

var ev0Time = time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

func hexEncode(h [32]byte) string {
	return hex.EncodeToString(h[:])
}

// fakeDBTX is a minimal db.DBTX: Exec records every statement it is asked to
// run (so the project-lock and insert can both be asserted on), and QueryRow
// returns a single programmed head-hash row.
type fakeDBTX struct {
	execs     []string
	headHash  string
	headErr   error
	insertErr error
}

func (f *fakeDBTX) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, sql)
	if len(f.execs) > 1 && f.insertErr != nil {
		return pgconn.CommandTag{}, f.insertErr
	}
	return pgconn.CommandTag{}, nil
}

func (f *fakeDBTX) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("Query not used by this test")
}

func (f *fakeDBTX) QueryRow(context.Context, string, ...any) pgx.Row {
	return fakeRow{value: f.headHash, err: f.headErr}
}

type fakeRow struct {
	value string
	err   error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*string)) = r.value
	return nil
}

func TestAppend_FirstEventChainsFromZeroHash(t *testing.T) {
	db := &fakeDBTX{headErr: pgx.ErrNoRows}
	a := NewAppender(db)

	ev, err := a.Append(context.Background(), Event{
		ProjectID: uuid.New(),
		EventType: "memory.created",
		Actor:     "system",
		Data:      map[string]any{"id": "abc"},
	})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if ev.PrevHash != ZeroHash {
		t.Errorf("PrevHash = %x, want ZeroHash for the first event", ev.PrevHash)
	}
	if ev.CurrentHash == ZeroHash {
		t.Error("CurrentHash must not equal ZeroHash")
	}
	if len(db.execs) != 2 {
		t.Fatalf("expected 2 Exec calls (lock + insert), got %d", len(db.execs))
	}
}

func TestAppend_ChainsFromPriorHead(t *testing.T) {
	priorHash := computeHash(ZeroHash, []byte("null"), ev0Time, "memory.created")
	db := &fakeDBTX{headHash: hexEncode(priorHash)}
	a := NewAppender(db)

	ev, err := a.Append(context.Background(), Event{
		ProjectID: uuid.New(),
		EventType: "memory.created",
		Actor:     "system",
	})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if ev.PrevHash != priorHash {
		t.Errorf("PrevHash = %x, want prior head %x", ev.PrevHash, priorHash)
	}
}

func TestAppend_PropagatesInsertError(t *testing.T) {
	db := &fakeDBTX{headErr: pgx.ErrNoRows, insertErr: errors.New("disk full")}
	a := NewAppender(db)

	_, err := a.Append(context.Background(), Event{ProjectID: uuid.New(), EventType: "x"})
	if err == nil {
		t.Fatal("Append() error = nil, want propagated insert error")
	}
}

func TestAppend_MalformedStoredHashFails(t *testing.T) {
	db := &fakeDBTX{headHash: "not-hex"}
	a := NewAppender(db)

	_, err := a.Append(context.Background(), Event{ProjectID: uuid.New(), EventType: "x"})
	if err == nil {
		t.Fatal("Append() error = nil, want error for malformed stored hash")
	}
}

func TestComputeHash_Deterministic(t *testing.T) {
	a := computeHash(ZeroHash, []byte(`{"a":1}`), ev0Time, "memory.created")
	b := computeHash(ZeroHash, []byte(`{"a":1}`), ev0Time, "memory.created")
	if a != b {
		t.Error("computeHash is not deterministic for identical input")
	}

	c := computeHash(ZeroHash, []byte(`{"a":2}`), ev0Time, "memory.created")
	if a == c {
		t.Error("computeHash collided for different event data")
	}
}

func TestActorFor(t *testing.T) {
	userID := uuid.New()
	sessionCaller := &auth.Caller{UserID: userID, AuthKind: auth.AuthKindSession}
	if got := ActorFor(sessionCaller); got != userID.String() {
		t.Errorf("ActorFor(session) = %q, want %q", got, userID.String())
	}

	apiKeyCaller := &auth.Caller{UserID: userID, AuthKind: auth.AuthKindAPIKey}
	if got := ActorFor(apiKeyCaller); got != SystemActor {
		t.Errorf("ActorFor(api key) = %q, want %q", got, SystemActor)
	}

	if got := ActorFor(nil); got != SystemActor {
		t.Errorf("ActorFor(nil) = %q, want %q", got, SystemActor)
	}
}
