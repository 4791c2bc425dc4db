package dispatcher

import (
	"context"
	"log/slog"
	"sync"

	"github.com/thecontextcache/contextcache-sub001/internal/telemetry"
)

// defaultWorkers and defaultQueueDepth match §4.9's "default 4 goroutines,
// 256-deep buffered channel" fallback sizing.
const (
	defaultWorkers    = 4
	defaultQueueDepth = 256
)

// inProcessPool is the JobBackend used when no Redis backend is configured.
// Shaped after the teacher's roster.RunScheduleTopUpLoop/escalation.Engine.Run
// ticker-and-select loops, generalized here from one fixed task to a
// buffered channel of named jobs consumed by a fixed worker count.
type inProcessPool struct {
	jobs    chan Job
	workers int
	run     func(ctx context.Context, job Job)

	mu sync.Mutex
}

// newInProcessPool creates an in-process fallback backend. run is called for
// each dequeued job by a worker goroutine (normally Dispatcher.run).
func newInProcessPool(workers, queueDepth int, run func(ctx context.Context, job Job)) *inProcessPool {
	if workers <= 0 {
		workers = defaultWorkers
	}
	if queueDepth <= 0 {
		queueDepth = defaultQueueDepth
	}
	return &inProcessPool{
		jobs:    make(chan Job, queueDepth),
		workers: workers,
		run:     run,
	}
}

// Enqueue pushes job onto the buffered channel. When the channel is already
// at capacity, the oldest queued job is dropped to make room, since a
// reindex job is superseded by a newer one for the same project anyway.
func (p *inProcessPool) Enqueue(ctx context.Context, job Job) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	select {
	case p.jobs <- job:
		return nil
	default:
	}

	select {
	case <-p.jobs:
		telemetry.JobsDroppedTotal.Inc()
	default:
	}

	select {
	case p.jobs <- job:
	default:
		telemetry.JobsDroppedTotal.Inc()
	}
	return nil
}

// Start launches the worker pool. It blocks until ctx is cancelled.
func (p *inProcessPool) Start(ctx context.Context, logger *slog.Logger) {
	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case job, ok := <-p.jobs:
					if !ok {
						return
					}
					p.run(ctx, job)
				}
			}
		}(i)
	}
	logger.Info("dispatcher in-process pool started", "workers", p.workers, "queue_depth", cap(p.jobs))
	<-ctx.Done()
	wg.Wait()
	logger.Info("dispatcher in-process pool stopped")
}
