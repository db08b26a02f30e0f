package clock

import (
	"testing"
	"time"
)

func TestNowAtAnchorEqualsStart(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := New(start)
	if got := c.Now(start); !got.Equal(start) {
		t.Fatalf("Now at anchor = %v, want %v", got, start)
	}
}

func TestNowAdvancesAtDefaultRate(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := New(start)
	later := start.Add(10 * time.Second)
	got := c.Now(later)
	want := start.Add(10 * time.Second)
	if !got.Equal(want) {
		t.Fatalf("Now = %v, want %v", got, want)
	}
}

func TestAccelerationScalesElapsedTime(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := New(start)
	if err := c.SetAcceleration(2.0, start); err != nil {
		t.Fatalf("SetAcceleration: %v", err)
	}
	later := start.Add(5 * time.Second)
	got := c.Now(later)
	want := start.Add(10 * time.Second)
	if !got.Equal(want) {
		t.Fatalf("Now at 2x = %v, want %v", got, want)
	}
}

func TestSetAccelerationIsContinuous(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := New(start)

	mid := start.Add(10 * time.Second)
	before := c.Now(mid)

	if err := c.SetAcceleration(10.0, mid); err != nil {
		t.Fatalf("SetAcceleration: %v", err)
	}
	immediatelyAfter := c.Now(mid)
	if !before.Equal(immediatelyAfter) {
		t.Fatalf("discontinuity at acceleration change: before=%v after=%v", before, immediatelyAfter)
	}

	later := mid.Add(1 * time.Second)
	got := c.Now(later)
	want := mid.Add(10 * time.Second)
	if !got.Equal(want) {
		t.Fatalf("Now after accel change = %v, want %v", got, want)
	}
}

func TestSetAccelerationRejectsOutOfRange(t *testing.T) {
	start := time.Now()
	c := New(start)

	if err := c.SetAcceleration(0.05, start); err != ErrInvalidAcceleration {
		t.Fatalf("expected ErrInvalidAcceleration for 0.05, got %v", err)
	}
	if err := c.SetAcceleration(1001, start); err != ErrInvalidAcceleration {
		t.Fatalf("expected ErrInvalidAcceleration for 1001, got %v", err)
	}
	if err := c.SetAcceleration(MinAcceleration, start); err != nil {
		t.Fatalf("MinAcceleration should be valid, got %v", err)
	}
	if err := c.SetAcceleration(MaxAcceleration, start); err != nil {
		t.Fatalf("MaxAcceleration should be valid, got %v", err)
	}
}

func TestAccelerationGetterReflectsLastSet(t *testing.T) {
	start := time.Now()
	c := New(start)
	if got := c.Acceleration(); got != 1.0 {
		t.Fatalf("initial acceleration = %v, want 1.0", got)
	}
	c.SetAcceleration(5.0, start)
	if got := c.Acceleration(); got != 5.0 {
		t.Fatalf("acceleration after set = %v, want 5.0", got)
	}
}
