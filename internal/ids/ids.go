// Package ids hands out monotonic integer identities for runtime objects,
// the same atomic-counter shape the teacher uses for order references and
// trade match numbers (internal/orderbook/order.go).
package ids

import (
	"sync/atomic"

	"github.com/ndrandal/marketsim/internal/object"
)

// Generator issues unique, monotonically increasing ids starting at 1.
// Safe for concurrent use; never rolls back a handout.
type Generator struct {
	counter uint64
}

// NewGenerator returns a Generator whose next id is 1.
func NewGenerator() *Generator {
	return &Generator{}
}

// Next returns the next id in sequence.
func (g *Generator) Next() object.Id {
	return object.Id(atomic.AddUint64(&g.counter, 1))
}

// Reset rewinds the counter to 0 so the next id is 1. Tests only.
func (g *Generator) Reset() {
	atomic.StoreUint64(&g.counter, 0)
}

// Peek returns the most recently issued id without allocating a new one.
func (g *Generator) Peek() object.Id {
	return object.Id(atomic.LoadUint64(&g.counter))
}
