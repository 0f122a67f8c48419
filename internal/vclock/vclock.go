// Package vclock implements the vector clocks that back happens-before
// tracking for the data-race detector.
//
// Each guest thread owns one clock component. A thread "releases" its current
// point when it publishes data (the point gets attached to the data), and
// "acquires" a stored point when it observes data, merging that history into
// its own clock. Two operations are concurrent exactly when neither clock
// dominates the other.
package vclock

import "sync"

// ThreadID identifies a guest thread. Components of a VClock are indexed by it.
type ThreadID int32

// VClock is a vector clock. The zero value is the empty clock.
type VClock struct {
	ticks []uint64
}

// Get returns the component for the given thread.
func (c *VClock) Get(t ThreadID) uint64 {
	if int(t) >= len(c.ticks) {
		return 0
	}
	return c.ticks[t]
}

// Join merges other into c, taking the component-wise maximum.
func (c *VClock) Join(other *VClock) {
	if other == nil {
		return
	}
	if len(other.ticks) > len(c.ticks) {
		grown := make([]uint64, len(other.ticks))
		copy(grown, c.ticks)
		c.ticks = grown
	}
	for i, v := range other.ticks {
		if v > c.ticks[i] {
			c.ticks[i] = v
		}
	}
}

// Clone returns an independent copy of c.
func (c *VClock) Clone() *VClock {
	out := &VClock{}
	if len(c.ticks) > 0 {
		out.ticks = make([]uint64, len(c.ticks))
		copy(out.ticks, c.ticks)
	}
	return out
}

// Dominates reports whether every component of other is <= the matching
// component of c. An event with clock c happens-after one with clock other
// iff c dominates other and the clocks differ.
func (c *VClock) Dominates(other *VClock) bool {
	if other == nil {
		return true
	}
	for i, v := range other.ticks {
		if v == 0 {
			continue
		}
		if i >= len(c.ticks) || c.ticks[i] < v {
			return false
		}
	}
	return true
}

func (c *VClock) tick(t ThreadID) {
	if int(t) >= len(c.ticks) {
		grown := make([]uint64, int(t)+1)
		copy(grown, c.ticks)
		c.ticks = grown
	}
	c.ticks[t]++
}

// Registry tracks the current clock of every guest thread and provides the
// ambient acquire/release operations the emulated synchronization primitives
// use. When race detection is disabled, Release returns nil and Acquire is a
// no-op, so callers skip clock bookkeeping entirely.
type Registry struct {
	mu      sync.Mutex
	enabled bool
	threads map[ThreadID]*VClock
}

// NewRegistry creates a registry with race detection enabled.
func NewRegistry() *Registry {
	return &Registry{enabled: true, threads: make(map[ThreadID]*VClock)}
}

// NewDisabledRegistry creates a registry that records nothing.
func NewDisabledRegistry() *Registry {
	return &Registry{threads: make(map[ThreadID]*VClock)}
}

func (r *Registry) clockOf(t ThreadID) *VClock {
	c, ok := r.threads[t]
	if !ok {
		c = &VClock{}
		r.threads[t] = c
	}
	return c
}

// Acquire merges the observed clock into thread t's clock, making every
// operation that contributed to c happen-before t's subsequent operations.
func (r *Registry) Acquire(t ThreadID, c *VClock) {
	if c == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.enabled {
		return
	}
	r.clockOf(t).Join(c)
}

// Release advances thread t's own component to mark the release event, then
// captures the resulting point for attachment to published data. Returns nil
// when race detection is disabled.
func (r *Registry) Release(t ThreadID) *VClock {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.enabled {
		return nil
	}
	cur := r.clockOf(t)
	cur.tick(t)
	return cur.Clone()
}

// Snapshot returns a copy of thread t's current clock.
func (r *Registry) Snapshot(t ThreadID) *VClock {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clockOf(t).Clone()
}
