package errtrack

import (
	"testing"

	"github.com/ndrandal/marketsim/internal/object"
)

func TestRecordIncrements(t *testing.T) {
	tr := New(3)
	id := object.Id(1)
	if got := tr.Record(id, "tick"); got != 1 {
		t.Fatalf("first Record = %d, want 1", got)
	}
	if got := tr.Record(id, "tick"); got != 2 {
		t.Fatalf("second Record = %d, want 2", got)
	}
	if got := tr.Count(id); got != 2 {
		t.Fatalf("Count = %d, want 2", got)
	}
}

func TestThresholdCallback(t *testing.T) {
	tr := New(3)
	var notified object.Id
	calls := 0
	tr.OnThreshold = func(id object.Id) {
		notified = id
		calls++
	}

	id := object.Id(42)
	tr.Record(id, "tick")
	tr.Record(id, "tick")
	if calls != 0 {
		t.Fatalf("callback fired early: %d calls", calls)
	}
	tr.Record(id, "tick")
	if calls != 1 {
		t.Fatalf("callback calls = %d, want 1", calls)
	}
	if notified != id {
		t.Fatalf("callback id = %d, want %d", notified, id)
	}

	// further errors past threshold must not re-fire the callback
	tr.Record(id, "tick")
	if calls != 1 {
		t.Fatalf("callback refired past threshold: %d calls", calls)
	}
}

func TestDefaultThreshold(t *testing.T) {
	tr := New(0)
	if tr.Threshold() != 3 {
		t.Fatalf("default threshold = %d, want 3", tr.Threshold())
	}
}

func TestClearResetsCount(t *testing.T) {
	tr := New(3)
	id := object.Id(7)
	tr.Record(id, "tick")
	tr.Record(id, "tick")
	tr.Clear(id)
	if got := tr.Count(id); got != 0 {
		t.Fatalf("Count after Clear = %d, want 0", got)
	}
}

func TestCountUnknownIsZero(t *testing.T) {
	tr := New(3)
	if got := tr.Count(object.Id(999)); got != 0 {
		t.Fatalf("Count of unknown id = %d, want 0", got)
	}
}

func TestSnapshotAggregates(t *testing.T) {
	tr := New(5)
	tr.Record(object.Id(1), "tick")
	tr.Record(object.Id(1), "tick")
	tr.Record(object.Id(2), "tick")

	s := tr.Snapshot()
	if s.TrackedObjects != 2 {
		t.Fatalf("TrackedObjects = %d, want 2", s.TrackedObjects)
	}
	if s.TotalErrors != 3 {
		t.Fatalf("TotalErrors = %d, want 3", s.TotalErrors)
	}
}
