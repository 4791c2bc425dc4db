package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/thecontextcache/contextcache-sub001/internal/auth"
	"github.com/thecontextcache/contextcache-sub001/internal/db"
)

// ZeroHash is the prev_hash of the first event in a project's chain.
var ZeroHash = [32]byte{}

// SystemActor is recorded when an event is not attributable to a specific
// user — API-key-authenticated requests and background jobs.
const SystemActor = "system"

// Event is a pending audit log entry.
type Event struct {
	ProjectID uuid.UUID
	EventType string
	Actor     string
	Data      map[string]any
}

// Appender writes audit events synchronously within the caller's
// transaction, extending a project's hash chain. The audit log is the
// system's source of truth for ingest (§7 propagation policy), so unlike
// the teacher's async buffered Writer, an append here runs inline and its
// error must fail the enclosing business transaction rather than being
// dropped under backpressure.
type Appender struct {
	db db.DBTX
}

// NewAppender wraps db, normally a transaction shared with the business
// write the event describes.
func NewAppender(tx db.DBTX) *Appender {
	return &Appender{db: tx}
}

// AuditEvent is a single row of a project's append-only chain.
type AuditEvent struct {
	ID          uuid.UUID
	ProjectID   uuid.UUID
	EventType   string
	Timestamp   time.Time
	Actor       string
	Data        json.RawMessage
	PrevHash    [32]byte
	CurrentHash [32]byte
}

// Append locks the project row to serialize concurrent appends, computes
// the next link in the chain, and inserts the event. Invariant: the first
// event for a project chains from ZeroHash.
func (a *Appender) Append(ctx context.Context, e Event) (AuditEvent, error) {
	if _, err := a.db.Exec(ctx, `SELECT 1 FROM projects WHERE id = $1 FOR UPDATE`, e.ProjectID); err != nil {
		return AuditEvent{}, fmt.Errorf("locking project for audit append: %w", err)
	}

	prevHash, err := a.headHash(ctx, e.ProjectID)
	if err != nil {
		return AuditEvent{}, fmt.Errorf("reading audit chain head: %w", err)
	}

	canonical, err := json.Marshal(e.Data)
	if err != nil {
		return AuditEvent{}, fmt.Errorf("canonicalizing event data: %w", err)
	}

	ev := AuditEvent{
		ID:        uuid.New(),
		ProjectID: e.ProjectID,
		EventType: e.EventType,
		Timestamp: time.Now().UTC(),
		Actor:     e.Actor,
		Data:      canonical,
		PrevHash:  prevHash,
	}
	ev.CurrentHash = computeHash(prevHash, canonical, ev.Timestamp, ev.EventType)

	const q = `
		INSERT INTO audit_events (id, project_id, event_type, ts, actor, event_data, prev_hash, current_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err := a.db.Exec(ctx, q,
		ev.ID, ev.ProjectID, ev.EventType, ev.Timestamp, ev.Actor, ev.Data,
		hex.EncodeToString(ev.PrevHash[:]), hex.EncodeToString(ev.CurrentHash[:]),
	); err != nil {
		return AuditEvent{}, fmt.Errorf("inserting audit event: %w", err)
	}

	return ev, nil
}

func (a *Appender) headHash(ctx context.Context, projectID uuid.UUID) ([32]byte, error) {
	const q = `
		SELECT current_hash FROM audit_events
		WHERE project_id = $1
		ORDER BY ts DESC, id DESC
		LIMIT 1`

	var hexHash string
	err := a.db.QueryRow(ctx, q, projectID).Scan(&hexHash)
	if errors.Is(err, pgx.ErrNoRows) {
		return ZeroHash, nil
	}
	if err != nil {
		return ZeroHash, err
	}

	var out [32]byte
	decoded, err := hex.DecodeString(hexHash)
	if err != nil || len(decoded) != 32 {
		return ZeroHash, fmt.Errorf("malformed stored hash for project %s", projectID)
	}
	copy(out[:], decoded)
	return out, nil
}

// computeHash implements current_hash = digest(prev_hash ‖ canonical(event_data) ‖ timestamp ‖ event_type).
func computeHash(prevHash [32]byte, canonicalData []byte, ts time.Time, eventType string) [32]byte {
	h := sha256.New()
	h.Write(prevHash[:])
	h.Write(canonicalData)
	h.Write([]byte(ts.Format(time.RFC3339Nano)))
	h.Write([]byte(eventType))
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// ActorFor derives the audit actor string from an authenticated Caller:
// the user id for session auth, or SystemActor for API-key/background
// actions that aren't attributable to a specific user (§4.2).
func ActorFor(c *auth.Caller) string {
	if c == nil || c.AuthKind == auth.AuthKindAPIKey {
		return SystemActor
	}
	return c.UserID.String()
}
