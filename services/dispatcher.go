package services

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/cppla/circlefeed/metrics"
)

// Job is a unit of background fan-out work.
type Job func(ctx context.Context)

// Runner accepts fan-out jobs. Submit never blocks; it reports false when the
// job was not accepted, in which case the outbox sweep runs it later.
type Runner interface {
	Submit(job Job) bool
}

// SyncRunner runs every job inline on the caller's goroutine.
type SyncRunner struct{}

func (SyncRunner) Submit(job Job) bool {
	job(context.Background())
	return true
}

// Dispatcher is a fixed pool of workers reading from a bounded queue.
type Dispatcher struct {
	queue   chan Job
	workers int
	log     *zap.Logger

	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

func NewDispatcher(workers, queueSize int, log *zap.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{queue: make(chan Job, queueSize), workers: workers, log: log}
}

// Start launches the workers. They stop once Close is called and the queue is
// drained. ctx is handed to every job.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for job := range d.queue {
				metrics.QueueDepth.Dec()
				d.run(ctx, job)
			}
		}()
	}
}

func (d *Dispatcher) run(ctx context.Context, job Job) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("fan-out job panicked", zap.Any("panic", r))
		}
	}()
	job(ctx)
}

func (d *Dispatcher) Submit(job Job) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}
	select {
	case d.queue <- job:
		metrics.QueueDepth.Inc()
		return true
	default:
		d.log.Warn("dispatch queue full, deferring job to reconciliation", zap.Int("capacity", cap(d.queue)))
		return false
	}
}

// Close stops accepting jobs and waits for queued ones to finish.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	d.wg.Wait()
}
