package worker

import (
	"context"
	"time"

	"shortlink/pkg/logging"
)

// Scheduler submits periodic jobs through the dispatcher so periodic work
// shares the admission gate with request-driven work.
type Scheduler struct {
	dispatcher *Dispatcher
	pending    *PendingSet
	logger     *logging.Logger
}

func NewScheduler(dispatcher *Dispatcher, logger *logging.Logger) *Scheduler {
	return &Scheduler{
		dispatcher: dispatcher,
		pending:    &PendingSet{},
		logger:     logger,
	}
}

// RunPeriodic ticks at interval() and submits run under kind's scheduling
// flag. A tick that fires while a previous run is still scheduled or running
// is skipped, not queued. interval is re-read every tick so reloads take effect.
func (s *Scheduler) RunPeriodic(ctx context.Context, kind JobKind, interval func() time.Duration, run func(ctx context.Context) error) {
	ticker := time.NewTicker(interval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ticker.Reset(interval())
			if !s.pending.TryAcquire(kind) {
				continue
			}
			job := Job{
				Name: string(kind),
				Run: func(ctx context.Context) error {
					// Released even on failure so a failing batch can
					// never wedge the periodic task.
					defer s.pending.Release(kind)
					return run(ctx)
				},
			}
			if err := s.dispatcher.Submit(job); err != nil {
				s.pending.Release(kind)
				s.logger.Warn(ctx, "periodic job submit failed", "job", string(kind), "error", err)
			}
		}
	}
}
