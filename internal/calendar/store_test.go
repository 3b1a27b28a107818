package calendar

import (
	"testing"
	"time"
)

func testEvent(id, title string, start time.Time, etag string) Event {
	return Event{
		ID:    id,
		Title: title,
		Start: start,
		End:   start.Add(30 * time.Minute),
		Etag:  etag,
	}
}

func snapshotIDs(events []Event) []string {
	ids := make([]string, len(events))
	for i, ev := range events {
		ids[i] = ev.ID
	}
	return ids
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Merges never produce duplicate IDs and the snapshot is always sorted by
// start time, with ID breaking ties.
func TestApplyMerge_SortedAndUnique(t *testing.T) {
	now := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	store := NewStore(time.Hour)

	store.ApplyMerge(&FetchResult{
		Full: true,
		Events: []Event{
			testEvent("c", "Late", now.Add(3*time.Hour), "v1"),
			testEvent("b", "Tie 2", now.Add(1*time.Hour), "v1"),
			testEvent("a", "Tie 1", now.Add(1*time.Hour), "v1"),
		},
	}, now)

	// Re-sending the same events must not duplicate anything.
	result := store.ApplyMerge(&FetchResult{
		Full: true,
		Events: []Event{
			testEvent("a", "Tie 1", now.Add(1*time.Hour), "v1"),
			testEvent("b", "Tie 2", now.Add(1*time.Hour), "v1"),
			testEvent("c", "Late", now.Add(3*time.Hour), "v1"),
		},
	}, now)

	if len(result.Added)+len(result.Updated)+len(result.RemovedIDs) != 0 {
		t.Errorf("Expected an identical merge to be a no-op, got %+v", result)
	}

	got := snapshotIDs(store.Snapshot())
	want := []string{"a", "b", "c"}
	if !equalIDs(got, want) {
		t.Errorf("Expected snapshot order %v, got %v", want, got)
	}
}

func TestApplyMerge_EtagChangeIsUpdate(t *testing.T) {
	now := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	store := NewStore(time.Hour)

	store.ApplyMerge(&FetchResult{
		Full:   true,
		Events: []Event{testEvent("a", "Standup", now.Add(time.Hour), "v1")},
	}, now)

	moved := testEvent("a", "Standup", now.Add(2*time.Hour), "v2")
	result := store.ApplyMerge(&FetchResult{
		Full:   true,
		Events: []Event{moved},
	}, now)

	if len(result.Updated) != 1 || result.Updated[0].ID != "a" {
		t.Fatalf("Expected event a to be reported updated, got %+v", result)
	}

	snapshot := store.Snapshot()
	if len(snapshot) != 1 || !snapshot[0].Start.Equal(moved.Start) {
		t.Errorf("Expected the replacement value in the snapshot, got %+v", snapshot)
	}
}

// Without etags the merge falls back to structural comparison.
func TestApplyMerge_NoEtagStructuralFallback(t *testing.T) {
	now := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	store := NewStore(time.Hour)

	store.ApplyMerge(&FetchResult{
		Full:   true,
		Events: []Event{testEvent("a", "Standup", now.Add(time.Hour), "")},
	}, now)

	// Identical resend: no update reported.
	result := store.ApplyMerge(&FetchResult{
		Full:   true,
		Events: []Event{testEvent("a", "Standup", now.Add(time.Hour), "")},
	}, now)
	if len(result.Updated) != 0 {
		t.Errorf("Expected no update for an identical event, got %+v", result.Updated)
	}

	// Changed title: reported as update.
	result = store.ApplyMerge(&FetchResult{
		Full:   true,
		Events: []Event{testEvent("a", "Standup (moved)", now.Add(time.Hour), "")},
	}, now)
	if len(result.Updated) != 1 {
		t.Errorf("Expected one update for a changed event, got %+v", result.Updated)
	}
}

// A full fetch omitting a known event removes it.
func TestApplyMerge_FullFetchRemovesOmitted(t *testing.T) {
	now := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	store := NewStore(time.Hour)

	store.ApplyMerge(&FetchResult{
		Full: true,
		Events: []Event{
			testEvent("a", "Keep", now.Add(time.Hour), "v1"),
			testEvent("b", "Drop", now.Add(2*time.Hour), "v1"),
		},
	}, now)

	result := store.ApplyMerge(&FetchResult{
		Full:   true,
		Events: []Event{testEvent("a", "Keep", now.Add(time.Hour), "v1")},
	}, now)

	if len(result.RemovedIDs) != 1 || result.RemovedIDs[0] != "b" {
		t.Fatalf("Expected b to be removed, got %v", result.RemovedIDs)
	}
	if got := snapshotIDs(store.Snapshot()); !equalIDs(got, []string{"a"}) {
		t.Errorf("Expected snapshot [a], got %v", got)
	}
}

// A delta fetch removes only tombstoned IDs, never the omitted remainder.
func TestApplyMerge_DeltaTombstones(t *testing.T) {
	now := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	store := NewStore(time.Hour)

	store.ApplyMerge(&FetchResult{
		Full: true,
		Events: []Event{
			testEvent("a", "Keep", now.Add(time.Hour), "v1"),
			testEvent("b", "Drop", now.Add(2*time.Hour), "v1"),
		},
	}, now)

	result := store.ApplyMerge(&FetchResult{
		Removed: []string{"b", "unknown"},
	}, now)

	if len(result.RemovedIDs) != 1 || result.RemovedIDs[0] != "b" {
		t.Fatalf("Expected only b to be removed, got %v", result.RemovedIDs)
	}
	if got := snapshotIDs(store.Snapshot()); !equalIDs(got, []string{"a"}) {
		t.Errorf("Expected snapshot [a], got %v", got)
	}
}

func TestApplyMerge_RetentionPrune(t *testing.T) {
	now := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	store := NewStore(time.Hour)

	recentlyOver := testEvent("recent", "Recently over", now.Add(-time.Hour), "v1")
	longOver := testEvent("old", "Long over", now.Add(-3*time.Hour), "v1")

	result := store.ApplyMerge(&FetchResult{
		Full: true,
		Events: []Event{
			recentlyOver,
			longOver,
			testEvent("future", "Future", now.Add(time.Hour), "v1"),
		},
	}, now)

	// longOver ended more than the retention window ago.
	if len(result.RemovedIDs) != 1 || result.RemovedIDs[0] != "old" {
		t.Fatalf("Expected old to be pruned, got %v", result.RemovedIDs)
	}
	if got := snapshotIDs(store.Snapshot()); !equalIDs(got, []string{"recent", "future"}) {
		t.Errorf("Expected snapshot [recent future], got %v", got)
	}
}

// Snapshots are point-in-time: a merge never mutates a slice a reader
// already holds.
func TestSnapshot_Immutable(t *testing.T) {
	now := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	store := NewStore(time.Hour)

	store.ApplyMerge(&FetchResult{
		Full:   true,
		Events: []Event{testEvent("a", "Before", now.Add(time.Hour), "v1")},
	}, now)
	before := store.Snapshot()

	store.ApplyMerge(&FetchResult{
		Full:   true,
		Events: []Event{testEvent("a", "After", now.Add(time.Hour), "v2")},
	}, now)

	if before[0].Title != "Before" {
		t.Errorf("Expected the earlier snapshot to be untouched, got %q", before[0].Title)
	}
	if after := store.Snapshot(); after[0].Title != "After" {
		t.Errorf("Expected the new snapshot to carry the update, got %q", after[0].Title)
	}
}
