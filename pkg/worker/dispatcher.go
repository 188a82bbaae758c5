package worker

import (
	"context"
	"errors"
	"sync"

	"shortlink/pkg/logging"
)

// ErrQueueFull signals backpressure: the caller drops the job instead of
// stalling the request that produced it.
var ErrQueueFull = errors.New("job queue full")

// Job is one unit of background work. Run errors are logged and dropped;
// a failing job never blocks the queue or other jobs.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

// Dispatcher reads jobs from a bounded queue and executes each in its own
// goroutine under a counting admission gate. The gate is the only explicit
// concurrency limit in the system.
type Dispatcher struct {
	jobs   chan Job
	gate   chan struct{}
	logger *logging.Logger
	wg     sync.WaitGroup
}

func NewDispatcher(capacity, concurrency int, logger *logging.Logger) *Dispatcher {
	if capacity < 1 {
		capacity = 1
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &Dispatcher{
		jobs:   make(chan Job, capacity),
		gate:   make(chan struct{}, concurrency),
		logger: logger,
	}
}

// Submit enqueues without blocking; a full queue fails fast.
func (d *Dispatcher) Submit(job Job) error {
	select {
	case d.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Run is the dispatcher loop. It returns when ctx is cancelled; queued jobs
// that never ran touched no state, so dropping them is safe.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-d.jobs:
			select {
			case d.gate <- struct{}{}:
			case <-ctx.Done():
				return
			}
			d.wg.Add(1)
			go func(job Job) {
				defer d.wg.Done()
				defer func() { <-d.gate }()
				if err := job.Run(ctx); err != nil {
					d.logger.Warn(ctx, "background job failed", "job", job.Name, "error", err)
				}
			}(job)
		}
	}
}

// Wait blocks until all in-flight jobs have finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
