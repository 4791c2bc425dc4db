// Package quota implements per-user daily event counters with atomic
// reserve/rollback semantics (§4.3).
package quota

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/thecontextcache/contextcache-sub001/internal/db"
	"github.com/thecontextcache/contextcache-sub001/internal/telemetry"
	"github.com/thecontextcache/contextcache-sub001/pkg/apperr"
)

// EventType enumerates the daily-counted event classes.
type EventType string

const (
	EventMemoryCreated  EventType = "memory_created"
	EventRecallQuery    EventType = "recall_query"
	EventProjectCreated EventType = "project_created"
)

// unlimitedCap stands in for "no cap" when a caller is flagged IsUnlimited;
// the counter still advances so usage reporting stays accurate.
const unlimitedCap = math.MaxInt32

// Caps holds the daily cap per event type, sourced from internal/config.
type Caps struct {
	MemoryCreatedPerDay  int `json:"memories_created_per_day"`
	RecallQueryPerDay    int `json:"recall_queries_per_day"`
	ProjectCreatedPerDay int `json:"projects_created_per_day"`
}

// CapFor returns the configured daily cap for an event type. An unrecognized
// event type has no cap.
func (c Caps) CapFor(e EventType) int {
	switch e {
	case EventMemoryCreated:
		return c.MemoryCreatedPerDay
	case EventRecallQuery:
		return c.RecallQueryPerDay
	case EventProjectCreated:
		return c.ProjectCreatedPerDay
	default:
		return unlimitedCap
	}
}

// Ledger enforces per-user daily caps against the usage_days table.
type Ledger struct {
	caps Caps
}

// NewLedger creates a Ledger with the given caps table.
func NewLedger(caps Caps) *Ledger {
	return &Ledger{caps: caps}
}

// Reservation identifies a counter increment made by Reserve. The counter
// advances at Reserve time and there is no separate commit step: the
// increment stands once the enclosing business transaction commits, and is
// undone by Rollback or by rolling back that transaction (§4.3).
type Reservation struct {
	UserID uuid.UUID
	Day    string
	Event  EventType
}

// Reserve increments today's counter for (userID, event) within tx, failing
// with apperr.QuotaExceeded if the increment would exceed the cap. Unlimited
// callers bypass the cap but still advance the counter.
func (l *Ledger) Reserve(ctx context.Context, tx db.DBTX, userID uuid.UUID, unlimited bool, event EventType) (Reservation, error) {
	day := today()
	capVal := l.caps.CapFor(event)
	if unlimited || capVal <= 0 {
		capVal = unlimitedCap
	}

	const q = `
		INSERT INTO usage_days (user_id, day, event_type, count)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (user_id, day, event_type)
		DO UPDATE SET count = usage_days.count + 1
		WHERE usage_days.count < $4
		RETURNING count`

	var count int
	err := tx.QueryRow(ctx, q, userID, day, string(event), capVal).Scan(&count)
	if err != nil {
		// No row returned means the conflict branch's WHERE clause
		// excluded the row: the cap is already reached.
		if errors.Is(err, pgx.ErrNoRows) {
			telemetry.QuotaExceededTotal.WithLabelValues(string(event)).Inc()
			return Reservation{}, apperr.QuotaExceeded(string(event), untilDayEnd())
		}
		return Reservation{}, fmt.Errorf("reserving quota: %w", err)
	}

	return Reservation{UserID: userID, Day: day, Event: event}, nil
}

// Rollback decrements the counter for a reservation whose enclosing business
// transaction failed, so the counter never advances for a failed operation.
func (l *Ledger) Rollback(ctx context.Context, tx db.DBTX, r Reservation) error {
	const q = `
		UPDATE usage_days SET count = count - 1
		WHERE user_id = $1 AND day = $2 AND event_type = $3 AND count > 0`
	if _, err := tx.Exec(ctx, q, r.UserID, r.Day, string(r.Event)); err != nil {
		return fmt.Errorf("rolling back quota: %w", err)
	}
	return nil
}

// Usage is today's counts plus the configured caps, for GET /me/usage.
type Usage struct {
	MemoriesCreated int
	RecallQueries   int
	ProjectsCreated int
	Caps            Caps
}

// Today returns u's usage counters for the current UTC day; the day boundary
// is always UTC and is not configurable.
func (l *Ledger) Today(ctx context.Context, tx db.DBTX, userID uuid.UUID) (Usage, error) {
	const q = `SELECT event_type, count FROM usage_days WHERE user_id = $1 AND day = $2`
	rows, err := tx.Query(ctx, q, userID, today())
	if err != nil {
		return Usage{}, fmt.Errorf("reading usage: %w", err)
	}
	defer rows.Close()

	u := Usage{Caps: l.caps}
	for rows.Next() {
		var eventType string
		var count int
		if err := rows.Scan(&eventType, &count); err != nil {
			return Usage{}, fmt.Errorf("scanning usage row: %w", err)
		}
		switch EventType(eventType) {
		case EventMemoryCreated:
			u.MemoriesCreated = count
		case EventRecallQuery:
			u.RecallQueries = count
		case EventProjectCreated:
			u.ProjectsCreated = count
		}
	}
	return u, rows.Err()
}

func today() string {
	return time.Now().UTC().Format("2006-01-02")
}

// untilDayEnd returns how long remains until today's UTC day boundary, for
// the Retry-After hint on a quota-exceeded response. See DESIGN.md for why
// the boundary itself is UTC-only rather than a configurable timezone.
func untilDayEnd() time.Duration {
	now := time.Now().UTC()
	tomorrow := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
	return tomorrow.Sub(now)
}
