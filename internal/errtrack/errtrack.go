// Package errtrack counts lifecycle-hook errors per object and reports
// when an object crosses its destruction threshold, the same
// counter-per-key shape the teacher keeps for per-client drop counts
// (internal/session/client.go's Dropped field), generalized to track an
// error kind and timestamp alongside the count.
package errtrack

import (
	"sync"
	"time"

	"github.com/ndrandal/marketsim/internal/object"
)

// Entry is the recorded error state for one object.
type Entry struct {
	Count     int
	LastKind  string
	LastAt    time.Time
}

// Tracker maps object id to its accumulated error state and invokes a
// callback once an object's count reaches the configured threshold.
type Tracker struct {
	mu        sync.Mutex
	entries   map[object.Id]*Entry
	threshold int

	// OnThreshold is called synchronously from Record when an object's
	// count first reaches the threshold. Set before use; not guarded by
	// the tracker's own mutex. It is called after Record has released
	// the lock.
	OnThreshold func(id object.Id)
}

// New creates a Tracker with the given per-object destruction threshold.
func New(threshold int) *Tracker {
	if threshold <= 0 {
		threshold = 3
	}
	return &Tracker{
		entries:   make(map[object.Id]*Entry),
		threshold: threshold,
	}
}

// Record increments id's error count and returns the new count. If the
// count reaches the threshold, OnThreshold is invoked (if set) after the
// counter is updated and the lock released.
func (t *Tracker) Record(id object.Id, kind string) int {
	t.mu.Lock()
	e, ok := t.entries[id]
	if !ok {
		e = &Entry{}
		t.entries[id] = e
	}
	e.Count++
	e.LastKind = kind
	e.LastAt = time.Now()
	count := e.Count
	threshold := t.threshold
	t.mu.Unlock()

	if count == threshold && t.OnThreshold != nil {
		t.OnThreshold(id)
	}
	return count
}

// Count returns the current error count for id, or 0 if none recorded.
func (t *Tracker) Count(id object.Id) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[id]; ok {
		return e.Count
	}
	return 0
}

// Clear resets id's error count, called on a successful Destroyed
// transition per spec.
func (t *Tracker) Clear(id object.Id) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, id)
}

// Threshold returns the configured destruction threshold.
func (t *Tracker) Threshold() int {
	return t.threshold
}

// Stats summarizes error counts across all tracked objects, used by
// Lifecycle Manager's getSystemOverview().
type Stats struct {
	TrackedObjects int
	TotalErrors    int
}

// Snapshot returns aggregate error statistics.
func (t *Tracker) Snapshot() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := Stats{TrackedObjects: len(t.entries)}
	for _, e := range t.entries {
		s.TotalErrors += e.Count
	}
	return s
}
