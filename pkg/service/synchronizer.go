package service

import (
	"context"
	"fmt"

	"shortlink/pkg/cache"
	"shortlink/pkg/config"
	"shortlink/pkg/logging"
	"shortlink/pkg/storage"
)

// Synchronizer drains telemetry accumulated in the cache into the durable
// store and sweeps expired records. Each method is one periodic batch run;
// overlap guarding lives with the scheduler, not here.
type Synchronizer struct {
	store  storage.LinkStore
	visits storage.VisitStore
	cache  *cache.LinkCache
	cfg    *config.Store
	logger *logging.Logger
}

func NewSynchronizer(store storage.LinkStore, visits storage.VisitStore, linkCache *cache.LinkCache, cfg *config.Store, logger *logging.Logger) *Synchronizer {
	return &Synchronizer{
		store:  store,
		visits: visits,
		cache:  linkCache,
		cfg:    cfg,
		logger: logger,
	}
}

// SyncClicks folds click counters into links.click_count. Counters are reset
// to 0 after the add, never deleted, so a concurrent increment cannot race a
// re-create. Interrupting between add and reset double-counts nothing on the
// next run because the reset already happened for applied keys; keys not yet
// applied are simply picked up again.
func (s *Synchronizer) SyncClicks(ctx context.Context) error {
	batch := int64(s.cfg.Snapshot().SyncBatchSize)
	var cursor uint64
	for {
		codes, next, err := s.cache.ScanClickCounters(ctx, cursor, batch)
		if err != nil {
			return fmt.Errorf("scan click counters: %w", err)
		}
		for _, code := range codes {
			n, err := s.cache.ClickCount(ctx, code)
			if err != nil {
				s.logger.Warn(ctx, "click counter read failed", "code", code, "error", err)
				continue
			}
			if n <= 0 {
				continue
			}
			if err := s.store.AddClicks(ctx, code, n); err != nil {
				s.logger.Warn(ctx, "click count apply failed", "code", code, "error", err)
				continue
			}
			if err := s.cache.ResetClickCount(ctx, code); err != nil {
				s.logger.Warn(ctx, "click counter reset failed", "code", code, "error", err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// DrainVisits moves visit events from the stream into visit_logs in arrival
// order. Insert before delete: a crash between the two duplicates a durable
// row at worst, it never loses the event.
func (s *Synchronizer) DrainVisits(ctx context.Context) error {
	batch := int64(s.cfg.Snapshot().SyncBatchSize)
	for {
		entries, err := s.cache.ReadVisits(ctx, batch)
		if err != nil {
			return fmt.Errorf("read visit stream: %w", err)
		}
		if len(entries) == 0 {
			return nil
		}
		for _, entry := range entries {
			row := storage.VisitLog{
				ShortCode: entry.Event.ShortCode,
				LongURL:   entry.Event.LongURL,
				IP:        entry.Event.IP,
				UserAgent: entry.Event.UserAgent,
				Referer:   entry.Event.Referer,
				VisitTime: entry.Event.VisitTime,
			}
			if err := s.visits.InsertVisit(ctx, &row); err != nil {
				return fmt.Errorf("insert visit log: %w", err)
			}
			if err := s.cache.DeleteVisit(ctx, entry.ID); err != nil {
				return fmt.Errorf("delete visit entry %s: %w", entry.ID, err)
			}
		}
	}
}

// PurgeExpired deletes records past their expire_at. The cache is left
// alone; stale entries fall out on their own TTL.
func (s *Synchronizer) PurgeExpired(ctx context.Context) error {
	n, err := s.store.DeleteExpired(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		s.logger.Info(ctx, "expired links purged", "count", n)
	}
	return nil
}
