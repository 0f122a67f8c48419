// Package trace records the emulated syscall stream for debugging dumps.
package trace

import (
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"github.com/badumbatish/miri/internal/shared/id"
)

// Event is one emulated syscall as the recorder saw it.
type Event struct {
	Seq    uint64    `json:"seq"`
	Time   time.Time `json:"time"`
	Thread int32     `json:"thread"`
	Op     string    `json:"op"`
	Fd     uint32    `json:"fd,omitempty"`
	Bytes  int       `json:"bytes,omitempty"`
	Error  string    `json:"error,omitempty"`
}

// Recorder accumulates events in memory up to a fixed limit, oldest dropped
// first. The zero limit means unbounded.
type Recorder struct {
	mu     sync.Mutex
	id     id.TraceID
	seq    uint64
	limit  int
	events []Event
}

// NewRecorder creates a recorder keeping at most limit events.
func NewRecorder(limit int) *Recorder {
	return &Recorder{id: id.NewTraceID(), limit: limit}
}

// ID returns the trace-session identity.
func (r *Recorder) ID() id.TraceID { return r.id }

// Record appends one event, stamping sequence and time.
func (r *Recorder) Record(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev.Seq = r.seq
	r.seq++
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	r.events = append(r.events, ev)
	if r.limit > 0 && len(r.events) > r.limit {
		r.events = r.events[len(r.events)-r.limit:]
	}
}

// Events returns a snapshot of the recorded events in order.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// DumpJSON serializes the recorded events for a debugging dump.
func (r *Recorder) DumpJSON() ([]byte, error) {
	return sonic.Marshal(r.Events())
}
