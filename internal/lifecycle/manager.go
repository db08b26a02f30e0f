// Package lifecycle composes the id generator, error tracker, object
// registry, and tick loop behind a small facade, the way the teacher's
// internal/api.Server composes its market engine, order books, and
// session manager behind a handful of methods.
package lifecycle

import (
	"sync"

	"github.com/ndrandal/marketsim/internal/errtrack"
	"github.com/ndrandal/marketsim/internal/ids"
	"github.com/ndrandal/marketsim/internal/loop"
	"github.com/ndrandal/marketsim/internal/marketerr"
	"github.com/ndrandal/marketsim/internal/object"
	"github.com/ndrandal/marketsim/internal/registry"
)

// Factory constructs a new object.Hooks for a given type and argument
// bundle. Registered factories are the only supported way to create
// objects; the manager never lets a caller insert into the registry
// directly.
type Factory func(args any) (object.Hooks, error)

// Overview is the snapshot returned by GetSystemOverview.
type Overview struct {
	IsRunning      bool
	FPS            int
	ActualFPS      float64
	TickDurationMs float64
	FrameNumber    uint64
	TotalObjects   int
	CountByState   map[string]int
	ErrorStats     errtrack.Stats
}

// Manager is the single entry point for creating, destroying, pausing,
// and resuming runtime objects for one market instance, and for
// starting/stopping that instance's tick loop.
type Manager struct {
	mu        sync.RWMutex
	reg       *registry.Registry
	errs      *errtrack.Tracker
	gen       *ids.Generator
	lp        *loop.Loop
	factories map[string]Factory
}

// New creates a Manager with its own registry, error tracker, id
// generator, and tick loop at the given fps and error threshold.
func New(fps int, errorThreshold int) *Manager {
	reg := registry.New()
	errs := errtrack.New(errorThreshold)
	m := &Manager{
		reg:       reg,
		errs:      errs,
		gen:       ids.NewGenerator(),
		lp:        loop.New(reg, errs, fps),
		factories: make(map[string]Factory),
	}
	errs.OnThreshold = func(id object.Id) {
		reg.Transition(id, object.Destroying)
	}
	return m
}

// RegisterFactory installs the constructor used for a given type name.
// Must be called before any Create(typeName, ...) for that type.
func (m *Manager) RegisterFactory(typeName string, f Factory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.factories[typeName] = f
}

// Start begins ticking. Strict: starting an already-running manager
// fails with IllegalState.
func (m *Manager) Start() error {
	if err := m.lp.Start(); err != nil {
		return marketerr.New(marketerr.IllegalState, "loop already running")
	}
	return nil
}

// Stop halts ticking. Strict: stopping an already-stopped manager
// fails with IllegalState.
func (m *Manager) Stop() error {
	if err := m.lp.Stop(); err != nil {
		return marketerr.New(marketerr.IllegalState, "loop not running")
	}
	return nil
}

// SetFPS validates and applies a new tick frequency, effective at the
// next frame boundary.
func (m *Manager) SetFPS(fps int) error {
	if err := m.lp.SetFPS(fps); err != nil {
		return marketerr.Withf(marketerr.ValidationFailed, "%v", err)
	}
	return nil
}

// Create constructs an object via its registered factory and inserts it
// into the registry in the Ready state, returning its id.
func (m *Manager) Create(typeName string, args any) (object.Id, error) {
	m.mu.RLock()
	f, ok := m.factories[typeName]
	m.mu.RUnlock()
	if !ok {
		return 0, marketerr.Withf(marketerr.ValidationFailed, "no factory registered for type %q", typeName)
	}

	hooks, err := f(args)
	if err != nil {
		return 0, err
	}

	id := m.gen.Next()
	m.reg.Insert(id, hooks)
	return id, nil
}

// Destroy transitions id to Destroying; its endPlay hook runs on the
// next tick and it reaches Destroyed shortly after.
func (m *Manager) Destroy(id object.Id) error {
	return m.reg.Transition(id, object.Destroying)
}

// DestroyAll requests destruction of every live object. Callers await
// completion by polling Overview until TotalObjects reaches zero.
func (m *Manager) DestroyAll() {
	for _, state := range []object.State{object.Ready, object.Active, object.Paused} {
		for _, e := range m.reg.Snapshot(state) {
			m.reg.Transition(e.Id, object.Destroying)
		}
	}
}

// Pause transitions id from Active to Paused.
func (m *Manager) Pause(id object.Id) error {
	return m.reg.Transition(id, object.Paused)
}

// Resume transitions id from Paused back to Active.
func (m *Manager) Resume(id object.Id) error {
	return m.reg.Transition(id, object.Active)
}

// Registry exposes the underlying registry for components (push bus,
// time-series manager) that need weak id-based references into it.
func (m *Manager) Registry() *registry.Registry {
	return m.reg
}

// GetSystemOverview returns a point-in-time snapshot of loop and
// registry health.
func (m *Manager) GetSystemOverview() Overview {
	stats := m.lp.Snapshot()
	counts := map[string]int{
		object.Ready.String():      m.reg.Count(object.Ready),
		object.Active.String():     m.reg.Count(object.Active),
		object.Paused.String():     m.reg.Count(object.Paused),
		object.Destroying.String(): m.reg.Count(object.Destroying),
		object.Destroyed.String():  m.reg.Count(object.Destroyed),
	}
	return Overview{
		IsRunning:      m.lp.Running(),
		FPS:            m.lp.FPS(),
		ActualFPS:      stats.ActualFPS,
		TickDurationMs: stats.TickDurationMs,
		FrameNumber:    stats.FrameNumber,
		TotalObjects:   m.reg.Total(),
		CountByState:   counts,
		ErrorStats:     m.errs.Snapshot(),
	}
}
