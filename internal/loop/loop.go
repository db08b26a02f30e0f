// Package loop implements the fixed-frequency tick scheduler that
// drives every runtime object through its lifecycle hooks. Grounded on
// cmd/feedsim/main.go's per-symbol ticker goroutines
// (symbolRunner/stressRunner), generalized from "one ticker per symbol"
// to "one scheduler goroutine per market instance driving every live
// object in that instance's registry".
package loop

import (
	"fmt"
	"sync"
	"time"

	"github.com/ndrandal/marketsim/internal/errtrack"
	"github.com/ndrandal/marketsim/internal/object"
	"github.com/ndrandal/marketsim/internal/registry"
)

const (
	MinFPS = 1
	MaxFPS = 120
)

// Stats is the performance snapshot exposed by getSystemOverview/debug
// endpoints: EMA-smoothed actual FPS plus the last frame's duration.
type Stats struct {
	FrameNumber    uint64
	ActualFPS      float64
	TickDurationMs float64
	Overruns       uint64
}

// emaWindow is the number of frames the actualFPS EMA smooths over.
const emaWindow = 60

// Loop is a single scheduler: it owns one registry and ticks it at a
// configurable frequency until stopped. Not safe to Start from more
// than one goroutine concurrently; intended for exactly one scheduler
// goroutine per market instance, matching the "no cross-instance
// threading" concurrency model.
type Loop struct {
	mu      sync.Mutex
	reg     *registry.Registry
	errs    *errtrack.Tracker
	fps     int
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	stats      Stats
	emaAlpha   float64
	frame      uint64
	lastTick   time.Time
}

// ErrIllegalState is returned by Start/Stop when the loop is already in
// the requested state.
type ErrIllegalState struct {
	Op string
}

func (e *ErrIllegalState) Error() string {
	return fmt.Sprintf("loop: illegal state for %s", e.Op)
}

// New creates a Loop over reg, ticking objects and reporting hook
// errors to errs. fps is clamped into [MinFPS, MaxFPS].
func New(reg *registry.Registry, errs *errtrack.Tracker, fps int) *Loop {
	if fps < MinFPS {
		fps = MinFPS
	}
	if fps > MaxFPS {
		fps = MaxFPS
	}
	return &Loop{
		reg:      reg,
		errs:     errs,
		fps:      fps,
		emaAlpha: 2.0 / float64(emaWindow+1),
	}
}

// SetFPS validates and stores a new target frequency. It takes effect
// at the next frame boundary; the in-flight frame completes at the old
// cadence.
func (l *Loop) SetFPS(fps int) error {
	if fps < MinFPS || fps > MaxFPS {
		return fmt.Errorf("loop: fps %d out of range [%d,%d]", fps, MinFPS, MaxFPS)
	}
	l.mu.Lock()
	l.fps = fps
	l.mu.Unlock()
	return nil
}

// FPS returns the currently configured target frequency.
func (l *Loop) FPS() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fps
}

// Running reports whether the loop is currently ticking.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// Snapshot returns the current performance stats.
func (l *Loop) Snapshot() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

// Start launches the scheduler goroutine. Starting an already-running
// loop fails with ErrIllegalState.
func (l *Loop) Start() error {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return &ErrIllegalState{Op: "start"}
	}
	l.running = true
	l.stopCh = make(chan struct{})
	l.doneCh = make(chan struct{})
	l.lastTick = time.Now()
	l.mu.Unlock()

	go l.run()
	return nil
}

// Stop signals the scheduler goroutine to exit after its current frame
// and waits for it to do so. Stopping an already-stopped loop fails
// with ErrIllegalState.
func (l *Loop) Stop() error {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return &ErrIllegalState{Op: "stop"}
	}
	stopCh := l.stopCh
	doneCh := l.doneCh
	l.mu.Unlock()

	close(stopCh)
	<-doneCh

	l.mu.Lock()
	l.running = false
	l.mu.Unlock()
	return nil
}

func (l *Loop) run() {
	defer close(l.doneCh)

	for {
		l.mu.Lock()
		stopCh := l.stopCh
		l.mu.Unlock()

		select {
		case <-stopCh:
			return
		default:
		}

		l.tickOnce()
	}
}

func (l *Loop) tickOnce() {
	l.mu.Lock()
	fps := l.fps
	now := time.Now()
	nominal := time.Second / time.Duration(fps)
	delta := now.Sub(l.lastTick)
	if delta < nominal {
		delta = nominal
	}
	l.lastTick = now
	l.frame++
	frame := l.frame
	l.mu.Unlock()

	deltaSeconds := delta.Seconds()

	// Ready -> Active: begin-play runs exactly once.
	for _, e := range l.reg.Snapshot(object.Ready) {
		if err := l.reg.Transition(e.Id, object.Active); err != nil {
			continue
		}
		if err := e.Hooks.BeginPlay(); err != nil {
			l.reportError(e.Id, "beginPlay", err)
		}
	}

	// Active: tick hook.
	for _, e := range l.reg.Snapshot(object.Active) {
		if err := e.Hooks.Tick(deltaSeconds); err != nil {
			l.reportError(e.Id, "tick", err)
		}
	}

	// Destroying: end-play, then terminal transition. Errors here are
	// reported but the object still reaches Destroyed (best-effort
	// cleanup).
	for _, e := range l.reg.Snapshot(object.Destroying) {
		if err := e.Hooks.EndPlay(); err != nil {
			l.reportError(e.Id, "endPlay", err)
		}
		l.reg.Transition(e.Id, object.Destroyed)
	}

	// Compact: Destroyed objects never survive past the frame that
	// produced them.
	for _, e := range l.reg.Snapshot(object.Destroyed) {
		l.reg.Remove(e.Id)
		l.errs.Clear(e.Id)
	}

	tickDuration := time.Since(now)
	l.recordStats(frame, deltaSeconds, tickDuration, nominal)
	l.pace(now, nominal, tickDuration)
}

func (l *Loop) reportError(id object.Id, kind string, err error) {
	count := l.errs.Record(id, kind)
	if count >= l.errs.Threshold() {
		l.reg.Transition(id, object.Destroying)
	}
}

func (l *Loop) recordStats(frame uint64, deltaSeconds float64, tickDuration, nominal time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	instFPS := 0.0
	if deltaSeconds > 0 {
		instFPS = 1.0 / deltaSeconds
	}
	if l.stats.ActualFPS == 0 {
		l.stats.ActualFPS = instFPS
	} else {
		l.stats.ActualFPS = l.emaAlpha*instFPS + (1-l.emaAlpha)*l.stats.ActualFPS
	}
	l.stats.FrameNumber = frame
	l.stats.TickDurationMs = float64(tickDuration) / float64(time.Millisecond)
	if tickDuration > nominal {
		l.stats.Overruns++
	}
}

// pace sleeps until the next frame boundary, unless the tick already
// overran the nominal interval.
func (l *Loop) pace(frameStart time.Time, nominal, tickDuration time.Duration) {
	deadline := frameStart.Add(nominal)
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return
	}
	timer := time.NewTimer(remaining)
	defer timer.Stop()

	l.mu.Lock()
	stopCh := l.stopCh
	l.mu.Unlock()

	select {
	case <-timer.C:
	case <-stopCh:
	}
}
