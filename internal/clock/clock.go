// Package clock implements the simulated clock each market instance
// runs on: wall-clock anchored, with an adjustable acceleration factor
// that can be changed at runtime without discontinuity. Shaped after
// the small stateful utility types the teacher builds around a guarded
// struct field (internal/engine/random.go's RNG holds its PCG state
// behind a mutex the same way).
package clock

import (
	"errors"
	"sync"
	"time"
)

// ErrInvalidAcceleration is returned when SetAcceleration is asked for a
// factor outside [0.1, 1000].
var ErrInvalidAcceleration = errors.New("clock: acceleration must be in [0.1, 1000]")

const (
	MinAcceleration = 0.1
	MaxAcceleration = 1000.0
)

// Clock tracks simulated time as a function of wall-clock time and an
// acceleration factor. Changing the factor re-anchors both sides so
// simulated time never jumps.
type Clock struct {
	mu           sync.Mutex
	wallAnchor   time.Time
	simAnchor    time.Time
	acceleration float64
}

// New creates a Clock anchored at the given wall-clock time, with its
// simulated time starting at the same instant and acceleration 1.0.
func New(start time.Time) *Clock {
	return &Clock{
		wallAnchor:   start,
		simAnchor:    start,
		acceleration: 1.0,
	}
}

// Now returns the current simulated time, extrapolated from the last
// anchor point by elapsed wall-clock time scaled by acceleration.
func (c *Clock) Now(wallNow time.Time) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	elapsed := wallNow.Sub(c.wallAnchor)
	scaled := time.Duration(float64(elapsed) * c.acceleration)
	return c.simAnchor.Add(scaled)
}

// Acceleration returns the current acceleration factor.
func (c *Clock) Acceleration() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.acceleration
}

// SetAcceleration changes the acceleration factor effective from
// wallNow onward. The simulated time at wallNow under the old factor
// becomes the new anchor, so Now() is continuous across the change.
func (c *Clock) SetAcceleration(factor float64, wallNow time.Time) error {
	if factor < MinAcceleration || factor > MaxAcceleration {
		return ErrInvalidAcceleration
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	elapsed := wallNow.Sub(c.wallAnchor)
	scaled := time.Duration(float64(elapsed) * c.acceleration)
	c.simAnchor = c.simAnchor.Add(scaled)
	c.wallAnchor = wallNow
	c.acceleration = factor
	return nil
}
