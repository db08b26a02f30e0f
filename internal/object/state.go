// Package object defines the lifecycle vocabulary shared by every runtime
// entity the simulator schedules: the state machine, the hook interface
// ticked objects must implement, and the transition table the registry
// enforces.
package object

import "fmt"

// State is a runtime object's position in its lifecycle.
type State int

const (
	Ready State = iota
	Active
	Paused
	Destroying
	Destroyed
)

func (s State) String() string {
	switch s {
	case Ready:
		return "Ready"
	case Active:
		return "Active"
	case Paused:
		return "Paused"
	case Destroying:
		return "Destroying"
	case Destroyed:
		return "Destroyed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// CanTransition reports whether moving from 'from' to 'to' is legal per
// spec: Ready->Active (automatic), Active<->Paused (by command), any
// non-terminal->Destroying (by command or error threshold), and
// Destroying->Destroyed (after cleanup).
func CanTransition(from, to State) bool {
	switch from {
	case Ready:
		return to == Active || to == Destroying
	case Active:
		return to == Paused || to == Destroying
	case Paused:
		return to == Active || to == Destroying
	case Destroying:
		return to == Destroyed
	case Destroyed:
		return false
	default:
		return false
	}
}

// Hooks is implemented by every entity the Tick Loop drives. BeginPlay runs
// exactly once on the frame an object transitions Ready->Active. Tick runs
// once per frame while Active. EndPlay runs exactly once, after the object
// is scheduled for Destroying and before it becomes Destroyed.
type Hooks interface {
	BeginPlay() error
	Tick(deltaSeconds float64) error
	EndPlay() error
}

// Id is the stable integer identity every runtime object carries.
type Id uint64
