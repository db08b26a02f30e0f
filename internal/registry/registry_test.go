package registry

import (
	"testing"

	"github.com/ndrandal/marketsim/internal/marketerr"
	"github.com/ndrandal/marketsim/internal/object"
)

type fakeHooks struct{}

func (fakeHooks) BeginPlay() error     { return nil }
func (fakeHooks) Tick(dt float64) error { return nil }
func (fakeHooks) EndPlay() error       { return nil }

func TestInsertStartsReady(t *testing.T) {
	r := New()
	r.Insert(1, fakeHooks{})
	e, ok := r.Get(1)
	if !ok {
		t.Fatal("expected entry to be found")
	}
	if e.State != object.Ready {
		t.Fatalf("state = %v, want Ready", e.State)
	}
}

func TestInsertDuplicatePanics(t *testing.T) {
	r := New()
	r.Insert(1, fakeHooks{})
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate insert")
		}
	}()
	r.Insert(1, fakeHooks{})
}

func TestTransitionMovesBetweenStateIndexes(t *testing.T) {
	r := New()
	r.Insert(1, fakeHooks{})
	if err := r.Transition(1, object.Active); err != nil {
		t.Fatalf("expected Ready->Active to succeed, got %v", err)
	}
	if r.Count(object.Ready) != 0 {
		t.Fatalf("Ready count = %d, want 0", r.Count(object.Ready))
	}
	if r.Count(object.Active) != 1 {
		t.Fatalf("Active count = %d, want 1", r.Count(object.Active))
	}
}

func TestTransitionRejectsIllegalMove(t *testing.T) {
	r := New()
	r.Insert(1, fakeHooks{})
	err := r.Transition(1, object.Destroyed)
	if err == nil {
		t.Fatal("expected Ready->Destroyed to be rejected")
	}
	if merr, ok := marketerr.As(err); !ok || merr.Code != marketerr.IllegalTransition {
		t.Fatalf("expected IllegalTransition, got %v", err)
	}
}

func TestTransitionUnknownIdFails(t *testing.T) {
	r := New()
	err := r.Transition(99, object.Active)
	if err == nil {
		t.Fatal("expected transition of unknown id to fail")
	}
	if merr, ok := marketerr.As(err); !ok || merr.Code != marketerr.UnknownObject {
		t.Fatalf("expected UnknownObject, got %v", err)
	}
}

func TestRemoveDeletesFromBothIndexes(t *testing.T) {
	r := New()
	r.Insert(1, fakeHooks{})
	r.Remove(1)
	if _, ok := r.Get(1); ok {
		t.Fatal("expected entry to be gone after Remove")
	}
	if r.Total() != 0 {
		t.Fatalf("Total = %d, want 0", r.Total())
	}
}

func TestSnapshotSortedAscendingById(t *testing.T) {
	r := New()
	r.Insert(3, fakeHooks{})
	r.Insert(1, fakeHooks{})
	r.Insert(2, fakeHooks{})

	snap := r.Snapshot(object.Ready)
	if len(snap) != 3 {
		t.Fatalf("snapshot len = %d, want 3", len(snap))
	}
	for i := 1; i < len(snap); i++ {
		if snap[i].Id < snap[i-1].Id {
			t.Fatalf("snapshot not sorted ascending: %v", snap)
		}
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	r := New()
	r.Insert(1, fakeHooks{})
	snap := r.Snapshot(object.Ready)
	r.Transition(1, object.Active)
	if snap[0].State != object.Ready {
		t.Fatal("snapshot entry mutated after later transition")
	}
}

func TestEventListenerReceivesLifecycle(t *testing.T) {
	r := New()
	var events []Event
	r.OnEvent(func(ev Event) { events = append(events, ev) })

	r.Insert(1, fakeHooks{})
	r.Transition(1, object.Active)
	r.Transition(1, object.Destroying)
	r.Transition(1, object.Destroyed)
	r.Remove(1)

	if len(events) != 5 {
		t.Fatalf("got %d events, want 5", len(events))
	}
	if events[0].Kind != Created {
		t.Fatalf("events[0].Kind = %v, want Created", events[0].Kind)
	}
	if events[len(events)-1].Kind != Removed {
		t.Fatalf("last event kind = %v, want Removed", events[len(events)-1].Kind)
	}
}

func TestCountAndTotal(t *testing.T) {
	r := New()
	r.Insert(1, fakeHooks{})
	r.Insert(2, fakeHooks{})
	r.Transition(1, object.Active)

	if r.Total() != 2 {
		t.Fatalf("Total = %d, want 2", r.Total())
	}
	if r.Count(object.Ready) != 1 {
		t.Fatalf("Ready count = %d, want 1", r.Count(object.Ready))
	}
	if r.Count(object.Active) != 1 {
		t.Fatalf("Active count = %d, want 1", r.Count(object.Active))
	}
}
