package notify

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/beekhof/calendar-notify/internal/calendar"
)

// Notification is one reminder request emitted by a tick.
type Notification struct {
	EventID string
	Title   string
	Body    string
}

// trigger tracks one pending (or already fired) reminder. dispatched only
// ever goes false -> true.
type trigger struct {
	eventID    string
	fireAt     time.Time
	dispatched bool
	etag       string

	// Event fields kept for change detection and message formatting.
	title    string
	start    time.Time
	allDay   bool
	location string
}

// Scheduler derives reminder fire-times from event store merges, tracks
// dispatch state, and emits notification requests through the bridge.
type Scheduler struct {
	bridge Bridge
	lead   time.Duration

	now func() time.Time // overridable in tests

	mu       sync.Mutex
	triggers map[string]*trigger
}

// NewScheduler creates a scheduler firing lead before each event's start.
func NewScheduler(bridge Bridge, lead time.Duration) *Scheduler {
	return &Scheduler{
		bridge:   bridge,
		lead:     lead,
		now:      time.Now,
		triggers: make(map[string]*trigger),
	}
}

// Upsert recomputes triggers for added or updated events.
func (s *Scheduler) Upsert(events []calendar.Event) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range events {
		s.recomputeLocked(ev, now)
	}
}

// Remove discards triggers unconditionally, dispatched or not. A removed
// event never re-fires.
func (s *Scheduler) Remove(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.triggers, id)
	}
}

func (s *Scheduler) recomputeLocked(ev calendar.Event, now time.Time) {
	// A trigger for a past event is discarded, never fired.
	if !ev.End.After(now) {
		delete(s.triggers, ev.ID)
		return
	}

	prev := s.triggers[ev.ID]
	if prev != nil && !prev.changed(ev) {
		return
	}

	next := &trigger{
		eventID:  ev.ID,
		fireAt:   ev.Start.Add(-s.lead),
		etag:     ev.Etag,
		title:    ev.Title,
		start:    ev.Start,
		allDay:   ev.AllDay,
		location: ev.Location,
	}

	if next.fireAt.Before(now) {
		if ev.Start.After(now) {
			// Inside the lead window already: send a "starting soon"
			// notice on the next tick instead of silently skipping it.
			next.fireAt = now
		} else {
			// The reminder moment is long gone. Suppress the stale
			// backfire.
			next.dispatched = true
		}
	}

	// A reminder that already went out stays dispatched as long as the
	// start is unchanged, so a cosmetic edit does not produce a duplicate
	// popup.
	if prev != nil && prev.dispatched && prev.start.Equal(ev.Start) {
		next.dispatched = true
	}

	s.triggers[ev.ID] = next
}

// changed reports whether ev is a different version than the trigger was
// computed from, via etag when present, structurally otherwise.
func (t *trigger) changed(ev calendar.Event) bool {
	if t.etag != "" || ev.Etag != "" {
		return t.etag != ev.Etag
	}
	return t.title != ev.Title ||
		!t.start.Equal(ev.Start) ||
		t.allDay != ev.AllDay ||
		t.location != ev.Location
}

// Tick fires every pending trigger whose fire time has been reached, in
// ascending fire-time order, and returns the emitted set. Idempotent for
// non-decreasing now: a dispatched trigger is never re-emitted. Delivery
// failures are logged and swallowed; the dispatched flag stands either way,
// since a duplicate popup is worse than a missed one.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) []Notification {
	s.mu.Lock()
	var due []*trigger
	for _, t := range s.triggers {
		if !t.dispatched && !t.fireAt.After(now) {
			due = append(due, t)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if !due[i].fireAt.Equal(due[j].fireAt) {
			return due[i].fireAt.Before(due[j].fireAt)
		}
		return due[i].eventID < due[j].eventID
	})

	var emitted []Notification
	for _, t := range due {
		t.dispatched = true
		emitted = append(emitted, Notification{
			EventID: t.eventID,
			Title:   t.title,
			Body:    t.body(),
		})
	}
	s.mu.Unlock()

	// Deliver outside the lock. Best effort only.
	for _, n := range emitted {
		if err := s.bridge.Notify(ctx, n.Title, n.Body); err != nil {
			log.Printf("Warning: failed to deliver notification for %s: %v", n.EventID, err)
		}
	}

	return emitted
}

// Pending returns the number of undispatched triggers.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.triggers {
		if !t.dispatched {
			n++
		}
	}
	return n
}

func (t *trigger) body() string {
	if t.allDay {
		return fmt.Sprintf("All day, %s", t.start.Local().Format("Mon Jan 2"))
	}
	body := fmt.Sprintf("Starts at %s", t.start.Local().Format("15:04"))
	if t.location != "" {
		body += ", " + t.location
	}
	return body
}
