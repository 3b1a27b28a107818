package calendar

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// MergeResult describes what a merge changed, so the notification scheduler
// can recompute exactly the affected triggers.
type MergeResult struct {
	Added      []Event
	Updated    []Event
	RemovedIDs []string
}

// Store is the in-memory ordered cache of calendar events and the single
// source of truth for both the UI and the notification scheduler.
//
// Readers get an immutable snapshot via an atomic pointer load and never
// contend with writers; merges build a fresh slice and swap it in.
type Store struct {
	retention time.Duration

	writeMu  sync.Mutex
	snapshot atomic.Pointer[[]Event]
}

// NewStore creates a store. Events whose end time is more than retention in
// the past are pruned on each merge.
func NewStore(retention time.Duration) *Store {
	s := &Store{retention: retention}
	empty := []Event{}
	s.snapshot.Store(&empty)
	return s
}

// Snapshot returns the current point-in-time event sequence, sorted
// ascending by start time with ID as tiebreaker. Callers must not mutate it.
func (s *Store) Snapshot() []Event {
	return *s.snapshot.Load()
}

// ApplyMerge folds a provider fetch into the store and atomically publishes
// the resulting snapshot. Only the sync engine calls this.
func (s *Store) ApplyMerge(fetch *FetchResult, now time.Time) MergeResult {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	current := s.Snapshot()
	byID := make(map[string]Event, len(current))
	for _, ev := range current {
		byID[ev.ID] = ev
	}

	var result MergeResult
	seen := make(map[string]bool, len(fetch.Events))
	for _, ev := range fetch.Events {
		seen[ev.ID] = true
		prev, known := byID[ev.ID]
		switch {
		case !known:
			result.Added = append(result.Added, ev)
		case prev.Changed(ev):
			result.Updated = append(result.Updated, ev)
		default:
			continue
		}
		byID[ev.ID] = ev
	}

	// A full fetch is authoritative: anything it omits is gone remotely.
	if fetch.Full {
		for id := range byID {
			if !seen[id] {
				delete(byID, id)
				result.RemovedIDs = append(result.RemovedIDs, id)
			}
		}
	}
	for _, id := range fetch.Removed {
		if _, known := byID[id]; known {
			delete(byID, id)
			result.RemovedIDs = append(result.RemovedIDs, id)
		}
	}

	// Prune events that ended beyond the retention window.
	cutoff := now.Add(-s.retention)
	for id, ev := range byID {
		if ev.End.Before(cutoff) {
			delete(byID, id)
			result.RemovedIDs = append(result.RemovedIDs, id)
		}
	}

	next := make([]Event, 0, len(byID))
	for _, ev := range byID {
		next = append(next, ev)
	}
	sort.Slice(next, func(i, j int) bool {
		if !next[i].Start.Equal(next[j].Start) {
			return next[i].Start.Before(next[j].Start)
		}
		return next[i].ID < next[j].ID
	})
	s.snapshot.Store(&next)

	return result
}
