package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

// RedisJobBackend durably queues jobs as a FIFO list per task name, using
// LPUSH to enqueue and BRPOP to dequeue — the same redis.Client and
// redis.Nil-as-"no data" idiom internal/auth/ratelimit.go uses for its
// counters, applied here to a work queue instead of a counter.
type RedisJobBackend struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisJobBackend creates a Redis-backed JobBackend.
func NewRedisJobBackend(rdb *redis.Client) *RedisJobBackend {
	return &RedisJobBackend{rdb: rdb, prefix: "contextcache:jobs:"}
}

func (b *RedisJobBackend) listKey(task string) string {
	return b.prefix + task
}

// Enqueue pushes job onto its task's list.
func (b *RedisJobBackend) Enqueue(ctx context.Context, job Job) error {
	if err := b.rdb.LPush(ctx, b.listKey(job.Task), job.Payload).Err(); err != nil {
		return fmt.Errorf("pushing job: %w", err)
	}
	return nil
}

// consume runs one blocking BRPOP cycle against task's list and invokes run
// for any job popped. Returns without error on a BRPOP timeout (redis.Nil),
// so the caller's loop can check ctx between polls.
func (b *RedisJobBackend) consume(ctx context.Context, task string, run func(ctx context.Context, job Job)) error {
	res, err := b.rdb.BRPop(ctx, 5*time.Second, b.listKey(task)).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("blocking pop for task %s: %w", task, err)
	}
	// res is [listKey, value].
	if len(res) != 2 {
		return nil
	}
	run(ctx, Job{Task: task, Payload: []byte(res[1])})
	return nil
}

// startConsumers launches one BRPOP loop per task name, blocking until ctx
// is cancelled. A single consumer returning a non-nil error (other than via
// ctx cancellation) does not stop the others; BRPOP errors are logged and
// retried in place, so the group only ever exits by ctx cancellation and
// g.Wait() never reports an error worth propagating.
func (b *RedisJobBackend) startConsumers(ctx context.Context, logger *slog.Logger, tasks []string, run func(ctx context.Context, job Job)) {
	g, gctx := errgroup.WithContext(ctx)
	for _, task := range tasks {
		task := task
		g.Go(func() error {
			logger.Info("dispatcher redis consumer started", "task", task)
			for {
				select {
				case <-gctx.Done():
					return nil
				default:
				}
				if err := b.consume(gctx, task, run); err != nil {
					logger.Error("redis job consume", "task", task, "error", err)
					select {
					case <-gctx.Done():
						return nil
					case <-time.After(time.Second):
					}
				}
			}
		})
	}
	_ = g.Wait()
	logger.Info("dispatcher redis consumers stopped")
}
