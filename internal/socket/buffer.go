package socket

import (
	"sync"

	"github.com/badumbatish/miri/internal/vclock"
)

// DefaultBufferCapacity bounds each direction of a pair, in bytes. The number
// matches the default kernel socket buffer size; it is a tunable, not a
// protocol constant.
const DefaultBufferCapacity = 212992

// buffer is one direction of a pair: a bounded FIFO byte queue owned by the
// endpoint that reads from it. The clock accumulates the causal history of
// every write still relevant to the current contents; hasWriter turns false
// forever once the writing endpoint closes, at which point an empty queue
// means end-of-file rather than would-block.
type buffer struct {
	mu        sync.Mutex
	data      []byte
	clock     vclock.VClock
	hasWriter bool
	capacity  int
}

func newBuffer(capacity int) *buffer {
	return &buffer{hasWriter: true, capacity: capacity}
}

// handle is the liveness-checked reference the writing endpoint holds to the
// peer's buffer. The owning (reading) endpoint invalidates it on close, which
// is how "all readers gone" becomes observable as a broken pipe.
type handle struct {
	mu  sync.Mutex
	buf *buffer
}

func newHandle(b *buffer) *handle {
	return &handle{buf: b}
}

func (h *handle) upgrade() (*buffer, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.buf, h.buf != nil
}

func (h *handle) invalidate() {
	h.mu.Lock()
	h.buf = nil
	h.mu.Unlock()
}
