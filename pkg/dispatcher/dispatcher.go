// Package dispatcher runs background jobs (currently just project reindex
// after a memory write) behind a JobBackend collaborator, falling back to an
// in-process worker pool when no Redis-backed backend is configured (§4.9).
package dispatcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/thecontextcache/contextcache-sub001/internal/db"
	"github.com/thecontextcache/contextcache-sub001/internal/telemetry"
)

// TaskReindex is the only task a memory write currently enqueues: rebuild
// whatever derived state a project's recall index needs after new content
// lands. Kept as a named task so the dispatch table reads the way the
// teacher's engine/worker pair names its one fixed job.
const TaskReindex = "reindex_project"

// Job is one unit of dispatchable work.
type Job struct {
	Task    string
	Payload []byte
}

// Handler processes a single job's payload.
type Handler func(ctx context.Context, payload []byte) error

// JobBackend is the collaborator a Dispatcher enqueues onto. RedisJobBackend
// durably queues jobs; when no Redis backend is wired, Dispatcher falls back
// to its own in-process worker pool, which also satisfies this interface.
type JobBackend interface {
	Enqueue(ctx context.Context, job Job) error
}

// Store records jobs that exhausted their retry budget, so an operator can
// see what didn't make it in without the process crashing the loop — the
// same "log and continue" posture the teacher's audit writer uses for a
// flush that can't reach its backing store.
type Store struct {
	dbtx db.DBTX
}

// NewStore creates a job-failure Store.
func NewStore(dbtx db.DBTX) *Store {
	return &Store{dbtx: dbtx}
}

// RecordFailure inserts a row into job_failures for a job that exhausted its
// retry attempts.
func (s *Store) RecordFailure(ctx context.Context, task string, payload []byte, lastErr error) error {
	const q = `
		INSERT INTO job_failures (id, task, payload, last_error, failed_at)
		VALUES ($1, $2, $3, $4, now())`
	_, err := s.dbtx.Exec(ctx, q, uuid.New(), task, payload, lastErr.Error())
	if err != nil {
		return fmt.Errorf("recording job failure: %w", err)
	}
	return nil
}

// retryBackoff is the fixed 1s/5s/25s, 3-attempt schedule from §4.9.
var retryBackoff = []time.Duration{1 * time.Second, 5 * time.Second, 25 * time.Second}

// dedupWindow is how long a (task, payload) pair is suppressed after it was
// last enqueued.
const dedupWindow = 60 * time.Second

// Dispatcher wires named-task handlers to a JobBackend, deduplicating
// identical (task, payload) enqueues within a short window.
type Dispatcher struct {
	backend  JobBackend
	handlers map[string]Handler
	failures *Store
	logger   *slog.Logger

	dedupMu sync.Mutex
	dedup   map[string]time.Time

	inProcess *inProcessPool // set only when backend is the in-process fallback
	redis     *RedisJobBackend

	fallback *inProcessPool // degrade target when redis is the primary backend and Enqueue fails
}

// NewRedis creates a Dispatcher backed by a durable Redis-backed job queue.
// It also starts an in-process worker pool of its own, used only when a
// Redis push fails (§4.9's "in-memory fallback when the queue backend is
// unreachable"), so a Redis outage degrades a job to run in-process instead
// of dropping it.
func NewRedis(rdb *RedisJobBackend, workers, queueDepth int, failures *Store, logger *slog.Logger) *Dispatcher {
	d := &Dispatcher{
		backend:  rdb,
		handlers: make(map[string]Handler),
		failures: failures,
		logger:   logger,
		dedup:    make(map[string]time.Time),
		redis:    rdb,
	}
	d.fallback = newInProcessPool(workers, queueDepth, d.run)
	return d
}

// NewInProcess creates a Dispatcher backed by the bounded in-process worker
// pool, for deployments with no Redis configured.
func NewInProcess(workers, queueDepth int, failures *Store, logger *slog.Logger) *Dispatcher {
	d := &Dispatcher{
		handlers: make(map[string]Handler),
		failures: failures,
		logger:   logger,
		dedup:    make(map[string]time.Time),
	}
	d.inProcess = newInProcessPool(workers, queueDepth, d.run)
	d.backend = d.inProcess
	return d
}

// Handle registers the handler for a named task. Must be called before
// Start.
func (d *Dispatcher) Handle(task string, h Handler) {
	d.handlers[task] = h
}

// EnqueueReindex enqueues a TaskReindex job for projectID, implementing the
// memory.Dispatcher collaborator interface. Deduplicated within dedupWindow:
// several memory writes to the same project in quick succession collapse
// into a single reindex.
func (d *Dispatcher) EnqueueReindex(ctx context.Context, projectID uuid.UUID) error {
	payload, err := json.Marshal(map[string]string{"project_id": projectID.String()})
	if err != nil {
		return fmt.Errorf("marshaling reindex payload: %w", err)
	}
	return d.Enqueue(ctx, TaskReindex, payload)
}

// Enqueue dedupes and forwards job to the configured backend. When the
// backend is Redis and the push fails, the job degrades to the in-process
// fallback pool instead of being lost — the caller still gets a nil error
// and the reindex still runs, just locally instead of durably.
func (d *Dispatcher) Enqueue(ctx context.Context, task string, payload []byte) error {
	if d.seenRecently(task, payload) {
		return nil
	}

	job := Job{Task: task, Payload: payload}
	label := "in_process"
	if _, ok := d.backend.(*RedisJobBackend); ok {
		label = "redis"
	}
	if err := d.backend.Enqueue(ctx, job); err != nil {
		if d.fallback == nil {
			return fmt.Errorf("enqueuing job: %w", err)
		}
		d.logger.Error("job backend unreachable, degrading to in-process fallback", "task", task, "error", err)
		telemetry.DispatcherFallbackTotal.Inc()
		if fbErr := d.fallback.Enqueue(ctx, job); fbErr != nil {
			return fmt.Errorf("enqueuing job (fallback also failed): %w", fbErr)
		}
		telemetry.JobsEnqueuedTotal.WithLabelValues("in_process_fallback", task).Inc()
		return nil
	}
	telemetry.JobsEnqueuedTotal.WithLabelValues(label, task).Inc()
	return nil
}

func (d *Dispatcher) seenRecently(task string, payload []byte) bool {
	key := dedupKey(task, payload)
	now := time.Now()

	d.dedupMu.Lock()
	defer d.dedupMu.Unlock()

	for k, t := range d.dedup {
		if now.Sub(t) > dedupWindow {
			delete(d.dedup, k)
		}
	}

	if last, ok := d.dedup[key]; ok && now.Sub(last) <= dedupWindow {
		return true
	}
	d.dedup[key] = now
	return false
}

func dedupKey(task string, payload []byte) string {
	h := sha256.New()
	h.Write([]byte(task))
	h.Write([]byte{'|'})
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

// run executes a job's registered handler with the 1s/5s/25s retry schedule,
// recording a job_failures row if every attempt fails.
func (d *Dispatcher) run(ctx context.Context, job Job) {
	h, ok := d.handlers[job.Task]
	if !ok {
		d.logger.Warn("no handler registered for task", "task", job.Task)
		return
	}

	var lastErr error
	for attempt := 0; attempt <= len(retryBackoff); attempt++ {
		lastErr = h(ctx, job.Payload)
		if lastErr == nil {
			return
		}
		if attempt == len(retryBackoff) {
			break
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(retryBackoff[attempt]):
		}
	}

	d.logger.Error("job failed after exhausting retries", "task", job.Task, "error", lastErr)
	telemetry.JobsFailedTotal.WithLabelValues(job.Task).Inc()
	if d.failures != nil {
		if err := d.failures.RecordFailure(ctx, job.Task, job.Payload, lastErr); err != nil {
			d.logger.Error("recording job failure", "task", job.Task, "error", err)
		}
	}
}

// Start runs the configured backend's consume loop until ctx is cancelled.
// For the in-process pool this launches its worker goroutines; for Redis it
// launches one BRPOP consumer per registered task name, alongside the
// fallback pool's own workers so anything Enqueue degraded to it actually
// runs.
func (d *Dispatcher) Start(ctx context.Context) {
	if d.fallback != nil {
		go d.fallback.Start(ctx, d.logger)
	}
	switch {
	case d.inProcess != nil:
		d.inProcess.Start(ctx, d.logger)
	case d.redis != nil:
		tasks := make([]string, 0, len(d.handlers))
		for task := range d.handlers {
			tasks = append(tasks, task)
		}
		d.redis.startConsumers(ctx, d.logger, tasks, d.run)
	default:
		d.logger.Warn("dispatcher started with no backend configured")
	}
}
