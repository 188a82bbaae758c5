package worker

import "sync"

// JobKind identifies a periodic job for overlap guarding.
type JobKind string

const (
	KindSyncClicks   JobKind = "sync_clicks"
	KindDrainVisits  JobKind = "drain_visits"
	KindPurgeExpired JobKind = "purge_expired"
)

// PendingSet guards periodic jobs against overlapping runs: a kind stays in
// the set from scheduling until the run completes, success or failure.
type PendingSet struct {
	m sync.Map
}

// TryAcquire atomically inserts kind and reports whether it was absent.
func (p *PendingSet) TryAcquire(kind JobKind) bool {
	_, loaded := p.m.LoadOrStore(kind, struct{}{})
	return !loaded
}

func (p *PendingSet) Release(kind JobKind) {
	p.m.Delete(kind)
}
