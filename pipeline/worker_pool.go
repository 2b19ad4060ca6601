// Package pipeline implements the four pipeline stages (spec.md §4.1,
// §4.3, §4.4, §4.7) as worker pools over the streamlog, one file per
// worker. Grounded on the teacher's orchestration.TaskWorkerPool
// (goroutine-per-worker pull loop, context-cancellable Start/Stop,
// panic-recovered handler execution, structured start/stop/error logging)
// generalized from a single dequeue-process-ack task queue to a
// partitioned, multi-stream pipeline.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kevinhagel/northstar-funding/core"
	"github.com/kevinhagel/northstar-funding/streamlog"
)

// Handler processes one message from a stream partition. Returning an error
// leaves the message unacked for redelivery; callers that want
// WorkflowError routing instead of redelivery should handle their own
// errors internally and return nil (see error-routing helper in each
// worker file).
type Handler func(ctx context.Context, msg streamlog.Message) error

// WorkerPool runs Workers goroutines pulling from stream/group, each owning
// a disjoint subset of partitions so intra-partition ordering is preserved
// (spec.md §5: "within a single partition, ordering is preserved").
type WorkerPool struct {
	log            *streamlog.Log
	stream         string
	group          string
	workers        int
	batchSize      int
	blockFor       time.Duration
	reclaimMinIdle time.Duration
	handler        Handler
	logger         core.Logger

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool
}

// Config configures a WorkerPool.
type Config struct {
	Stream         string
	Group          string
	Workers        int
	BatchSize      int
	BlockFor       time.Duration
	ReclaimMinIdle time.Duration
}

// NewWorkerPool builds a WorkerPool. Defaults: BatchSize 10, BlockFor 1s,
// ReclaimMinIdle 30s (spec.md §5 crash-recovery/§7 contention-retry: a
// message left unacked for at least this long, by a dead worker or a
// handler error, is claimed back and reprocessed rather than abandoned).
func NewWorkerPool(log *streamlog.Log, cfg Config, handler Handler, logger core.Logger) *WorkerPool {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.BlockFor <= 0 {
		cfg.BlockFor = time.Second
	}
	if cfg.ReclaimMinIdle <= 0 {
		cfg.ReclaimMinIdle = 30 * time.Second
	}
	if logger == nil {
		logger = core.NoOpLogger{}
	}
	return &WorkerPool{
		log: log, stream: cfg.Stream, group: cfg.Group, workers: cfg.Workers,
		batchSize: cfg.BatchSize, blockFor: cfg.BlockFor, reclaimMinIdle: cfg.ReclaimMinIdle,
		handler: handler, logger: logger,
	}
}

// Start launches the worker goroutines, ensuring the consumer group exists
// on every partition first. It returns once workers are launched; it does
// not block for the pool's lifetime.
func (p *WorkerPool) Start(ctx context.Context) error {
	if p.running.Swap(true) {
		return fmt.Errorf("pipeline: worker pool for %s already running", p.stream)
	}

	if err := p.log.EnsureGroup(ctx, p.stream, p.group); err != nil {
		p.running.Store(false)
		return fmt.Errorf("ensure group %s/%s: %w", p.stream, p.group, err)
	}

	workerCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	for i := 0; i < p.workers; i++ {
		owned := partitionsFor(i, p.workers, p.log.Partitions())
		p.wg.Add(1)
		go p.run(workerCtx, i, owned)
	}

	p.logger.Info("pipeline worker pool started", map[string]interface{}{
		"stream": p.stream, "group": p.group, "workers": p.workers,
	})
	return nil
}

// Shutdown cancels the workers' context and waits up to ctx's deadline for
// in-flight messages to finish draining (spec.md §5: "workers drain their
// in-flight message then stop consuming").
func (p *WorkerPool) Shutdown(ctx context.Context) error {
	if !p.running.Load() {
		return nil
	}
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.running.Store(false)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("pipeline: shutdown of %s timed out: %w", p.stream, ctx.Err())
	}
}

func (p *WorkerPool) run(ctx context.Context, workerID int, partitions []int) {
	defer p.wg.Done()
	consumer := fmt.Sprintf("%s-worker-%d", p.group, workerID)

	if len(partitions) == 0 {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		for _, partition := range partitions {
			select {
			case <-ctx.Done():
				return
			default:
			}

			reclaimed, err := p.log.ReclaimStale(ctx, p.stream, p.group, consumer, partition, p.reclaimMinIdle, int64(p.batchSize))
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				p.logger.ErrorWithContext(ctx, "reclaim stale entries failed", map[string]interface{}{
					"stream": p.stream, "partition": partition, "error": err.Error(),
				})
			}
			for _, msg := range reclaimed {
				p.process(ctx, partition, msg)
			}

			msgs, err := p.log.ReadBatch(ctx, p.stream, p.group, consumer, partition, p.batchSize, p.blockFor)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				p.logger.ErrorWithContext(ctx, "read batch failed", map[string]interface{}{
					"stream": p.stream, "partition": partition, "error": err.Error(),
				})
				continue
			}

			for _, msg := range msgs {
				p.process(ctx, partition, msg)
			}
		}
	}
}

func (p *WorkerPool) process(ctx context.Context, partition int, msg streamlog.Message) {
	if err := p.invokeHandler(ctx, msg); err != nil {
		p.logger.ErrorWithContext(ctx, "handler failed, leaving message unacked for redelivery", map[string]interface{}{
			"stream": p.stream, "partition": partition, "messageId": msg.ID, "error": err.Error(),
		})
		return
	}

	if err := p.log.Ack(ctx, p.stream, p.group, partition, msg.ID); err != nil {
		p.logger.WarnWithContext(ctx, "failed to ack message", map[string]interface{}{
			"stream": p.stream, "partition": partition, "messageId": msg.ID, "error": err.Error(),
		})
	}
}

// invokeHandler runs the handler with panic recovery, matching the
// teacher's executeHandler safety net.
func (p *WorkerPool) invokeHandler(ctx context.Context, msg streamlog.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pipeline handler panic: %v", r)
		}
	}()
	return p.handler(ctx, msg)
}

// partitionsFor assigns partition p to worker (p % workers), giving each
// worker a disjoint, deterministic subset so the same partition is never
// read concurrently by two workers.
func partitionsFor(workerID, workers, partitionCount int) []int {
	if workers <= 0 {
		return nil
	}
	var owned []int
	for p := 0; p < partitionCount; p++ {
		if p%workers == workerID {
			owned = append(owned, p)
		}
	}
	return owned
}
