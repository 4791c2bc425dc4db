package quota

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/thecontextcache/contextcache-sub001/pkg/apperr"
)

func TestCaps_CapFor(t *testing.T) {
	caps := Caps{MemoryCreatedPerDay: 10, RecallQueryPerDay: 20, ProjectCreatedPerDay: 5}

	tests := []struct {
		event EventType
		want  int
	}{
		{EventMemoryCreated, 10},
		{EventRecallQuery, 20},
		{EventProjectCreated, 5},
		{EventType("unknown"), unlimitedCap},
	}
	for _, tt := range tests {
		if got := caps.CapFor(tt.event); got != tt.want {
			t.Errorf("CapFor(%q) = %d, want %d", tt.event, got, tt.want)
		}
	}
}

// fakeDBTX is a minimal db.DBTX whose QueryRow/Exec results are set per test.
type fakeDBTX struct {
	scanValues []any
	scanErr    error
	execErr    error
}

func (f *fakeDBTX) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, f.execErr
}

func (f *fakeDBTX) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("Query not used by this test")
}

func (f *fakeDBTX) QueryRow(context.Context, string, ...any) pgx.Row {
	return fakeRow{values: f.scanValues, err: f.scanErr}
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
		case *int:
			*v = r.values[i].(int)
		default:
			return errors.New("fakeRow.Scan: unsupported dest type")
		}
	}
	return nil
}

func TestLedger_Reserve_UnderCap(t *testing.T) {
	l := NewLedger(Caps{MemoryCreatedPerDay: 3})
	db := &fakeDBTX{scanValues: []any{1}}

	res, err := l.Reserve(context.Background(), db, uuid.New(), false, EventMemoryCreated)
	if err != nil {
		t.Fatalf("Reserve() error = %v", err)
	}
	if res.Event != EventMemoryCreated {
		t.Errorf("Reservation.Event = %q, want %q", res.Event, EventMemoryCreated)
	}
}

func TestLedger_Reserve_AtCap(t *testing.T) {
	l := NewLedger(Caps{MemoryCreatedPerDay: 3})
	db := &fakeDBTX{scanErr: pgx.ErrNoRows}

	_, err := l.Reserve(context.Background(), db, uuid.New(), false, EventMemoryCreated)
	if !apperr.Is(err, apperr.KindQuota) {
		t.Fatalf("Reserve() at cap should return QuotaExceeded, got %v", err)
	}
	appErr, _ := apperr.As(err)
	if appErr.Resource != string(EventMemoryCreated) {
		t.Errorf("Resource = %q, want %q", appErr.Resource, EventMemoryCreated)
	}
	if appErr.RetryAfter <= 0 || appErr.RetryAfter > 24*time.Hour {
		t.Errorf("RetryAfter = %v, want a positive duration within a day", appErr.RetryAfter)
	}
}

func TestLedger_Reserve_UnlimitedBypassesCap(t *testing.T) {
	l := NewLedger(Caps{MemoryCreatedPerDay: 1})
	db := &fakeDBTX{scanValues: []any{500}}

	_, err := l.Reserve(context.Background(), db, uuid.New(), true, EventMemoryCreated)
	if err != nil {
		t.Fatalf("Reserve() for unlimited caller should not fail, got %v", err)
	}
}

func TestLedger_Rollback(t *testing.T) {
	l := NewLedger(Caps{MemoryCreatedPerDay: 3})
	db := &fakeDBTX{}

	res := Reservation{UserID: uuid.New(), Day: "2026-01-15", Event: EventMemoryCreated}
	if err := l.Rollback(context.Background(), db, res); err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}
}

func TestLedger_Rollback_PropagatesStorageError(t *testing.T) {
	l := NewLedger(Caps{})
	db := &fakeDBTX{execErr: errors.New("connection lost")}

	res := Reservation{UserID: uuid.New(), Day: "2026-01-15", Event: EventMemoryCreated}
	if err := l.Rollback(context.Background(), db, res); err == nil {
		t.Fatal("Rollback() error = nil, want non-nil")
	}
}
