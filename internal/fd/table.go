// Package fd implements the guest descriptor table: the arena that owns
// descriptor identities and hands out liveness-checked references to the
// descriptions behind them.
//
// A Description is one emulated kernel object (a socketpair endpoint, say).
// Several descriptor numbers may share one description through Dup; the
// description is closed when its last number is closed. A WeakRef never keeps
// a description alive: once the last number is gone, Upgrade fails, which is
// how peers detect half-close without reference counting of their own.
package fd

import (
	"sync"

	"github.com/badumbatish/miri/internal/poll"
	"github.com/badumbatish/miri/internal/vclock"
)

// ID is a guest descriptor number.
type ID uint32

// Sys is the slice of the machine a description sees during one call: the
// ambient causal-clock operations of the calling guest thread.
type Sys interface {
	// AcquireClock fences the calling thread to happen-after the given
	// clock point.
	AcquireClock(c *vclock.VClock)

	// ReleaseClock captures the calling thread's outgoing point for
	// attachment to published data. Nil when race detection is off.
	ReleaseClock() *vclock.VClock
}

// Description is the capability set every emulated descriptor implements.
type Description interface {
	// Name returns a constant tag for diagnostics ("socketpair").
	Name() string

	// Readiness computes the current readiness bits. Pure query.
	Readiness() poll.Ready

	// Read transfers up to len(p) bytes out of the object.
	Read(sys Sys, p []byte) (int, error)

	// Write transfers up to len(p) bytes into the object.
	Write(sys Sys, p []byte) (int, error)

	// Close runs once, when the last descriptor number for this
	// description is closed.
	Close() error
}

// record is one live description plus the bookkeeping the table needs: how
// many descriptor numbers still point at it, and whether it is still live
// (weak upgrades check this).
type record struct {
	desc Description
	id   uint32 // description identity, stable across dup
	refs int
	live bool
}

// Table is the descriptor arena. All mutation happens under mu; the table
// never calls into a Description while holding it, since descriptions take
// their own locks and may re-enter the table (weak upgrades, notifications).
type Table struct {
	mu       sync.Mutex
	nextFd   ID
	nextDesc uint32
	entries  map[ID]*record
	observer poll.Observer
}

// NewTable creates an empty descriptor table.
func NewTable() *Table {
	return &Table{entries: make(map[ID]*record)}
}

// SetObserver registers the polling subsystem's readiness hook. Pass nil to
// detach.
func (t *Table) SetObserver(o poll.Observer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.observer = o
}

// Insert registers a new description and returns its first descriptor number.
// Numbers ascend in creation order.
func (t *Table) Insert(d Description) ID {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextFd
	t.nextFd++
	t.entries[id] = &record{desc: d, id: t.nextDesc, refs: 1, live: true}
	t.nextDesc++
	return id
}

// Get returns a strong reference to the description behind fd.
func (t *Table) Get(fd ID) (*Ref, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.entries[fd]
	if !ok {
		return nil, false
	}
	return &Ref{t: t, rec: rec}, true
}

// Dup allocates a new descriptor number sharing fd's description.
func (t *Table) Dup(fd ID) (ID, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.entries[fd]
	if !ok {
		return 0, false
	}
	id := t.nextFd
	t.nextFd++
	rec.refs++
	t.entries[id] = rec
	return id, true
}

// Close removes the descriptor number. When it was the last number for its
// description, the description is marked dead (weak upgrades now fail) and
// its Close hook runs. Returns ErrBadFd for unknown numbers.
func (t *Table) Close(fd ID) error {
	t.mu.Lock()
	rec, ok := t.entries[fd]
	if !ok {
		t.mu.Unlock()
		return ErrBadFd
	}
	delete(t.entries, fd)
	rec.refs--
	last := rec.refs == 0
	if last {
		rec.live = false
	}
	t.mu.Unlock()

	if last {
		return rec.desc.Close()
	}
	return nil
}

// Len reports the number of live descriptor numbers.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Ref is a strong reference to a live description.
type Ref struct {
	t   *Table
	rec *record
}

// Description returns the referenced description.
func (r *Ref) Description() Description { return r.rec.desc }

// DescID returns the description identity, stable across Dup.
func (r *Ref) DescID() uint32 { return r.rec.id }

// Downgrade produces a liveness-checked reference that does not keep the
// description alive.
func (r *Ref) Downgrade() WeakRef {
	return WeakRef{t: r.t, rec: r.rec}
}

// NotifyReadiness recomputes the description's readiness bits and pushes them
// to the table's observer, synchronously. Call with no table or buffer locks
// held: the readiness query may re-enter both.
func (r *Ref) NotifyReadiness() {
	ready := r.rec.desc.Readiness()
	r.t.mu.Lock()
	obs := r.t.observer
	r.t.mu.Unlock()
	if obs != nil {
		obs.ReadinessChanged(r.rec.id, ready)
	}
}

// WeakRef is a non-owning reference to a description. The zero value never
// upgrades.
type WeakRef struct {
	t   *Table
	rec *record
}

// Upgrade returns a strong reference while the description is still live, or
// reports that it is gone.
func (w WeakRef) Upgrade() (*Ref, bool) {
	if w.t == nil {
		return nil, false
	}
	w.t.mu.Lock()
	defer w.t.mu.Unlock()
	if w.rec == nil || !w.rec.live {
		return nil, false
	}
	return &Ref{t: w.t, rec: w.rec}, true
}
