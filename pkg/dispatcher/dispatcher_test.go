package dispatcher

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
)

func newTestDispatcher() *Dispatcher {
	return NewInProcess(2, 16, nil, slog.Default())
}

func TestEnqueueReindexDedupesWithinWindow(t *testing.T) {
	d := newTestDispatcher()
	var calls int32
	d.Handle(TaskReindex, func(ctx context.Context, payload []byte) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Start(ctx)

	projectID := uuid.New()
	for i := 0; i < 5; i++ {
		if err := d.EnqueueReindex(ctx, projectID); err != nil {
			t.Fatalf("EnqueueReindex: %v", err)
		}
	}

	time.Sleep(100 * time.Millisecond)
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected exactly one handler invocation for deduped enqueues, got %d", got)
	}
}

func TestEnqueueReindexDistinctProjectsNotDeduped(t *testing.T) {
	d := newTestDispatcher()
	var calls int32
	d.Handle(TaskReindex, func(ctx context.Context, payload []byte) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Start(ctx)

	if err := d.EnqueueReindex(ctx, uuid.New()); err != nil {
		t.Fatalf("EnqueueReindex: %v", err)
	}
	if err := d.EnqueueReindex(ctx, uuid.New()); err != nil {
		t.Fatalf("EnqueueReindex: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected two handler invocations for distinct projects, got %d", got)
	}
}

func TestRunRetriesThenRecordsFailure(t *testing.T) {
	d := newTestDispatcher()
	var attempts int32
	d.Handle("always_fails", func(ctx context.Context, payload []byte) error {
		atomic.AddInt32(&attempts, 1)
		return errors.New("boom")
	})
	retryBackoffSaved := retryBackoff
	retryBackoff = []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond}
	defer func() { retryBackoff = retryBackoffSaved }()

	d.run(context.Background(), Job{Task: "always_fails", Payload: []byte("x")})

	if got := atomic.LoadInt32(&attempts); got != 4 {
		t.Fatalf("expected 1 initial attempt + 3 retries = 4 calls, got %d", got)
	}
}

type failingBackend struct{}

func (failingBackend) Enqueue(ctx context.Context, job Job) error {
	return errors.New("backend unreachable")
}

func TestEnqueueFallsBackToInProcessWhenBackendFails(t *testing.T) {
	d := &Dispatcher{
		backend:  failingBackend{},
		handlers: make(map[string]Handler),
		logger:   slog.Default(),
		dedup:    make(map[string]time.Time),
	}
	d.fallback = newInProcessPool(2, 16, d.run)

	var calls int32
	d.Handle(TaskReindex, func(ctx context.Context, payload []byte) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.fallback.Start(ctx, d.logger)

	if err := d.EnqueueReindex(ctx, uuid.New()); err != nil {
		t.Fatalf("EnqueueReindex: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected job to run via in-process fallback, got %d calls", got)
	}
}

func TestDedupKeyDiffersByPayload(t *testing.T) {
	a := dedupKey("task", []byte("one"))
	b := dedupKey("task", []byte("two"))
	if a == b {
		t.Fatal("expected different payloads to produce different dedup keys")
	}
}
