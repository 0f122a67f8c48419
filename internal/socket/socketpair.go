// Package socket emulates the Unix socketpair primitive: two connected
// stream endpoints exchanging bytes through a pair of bounded buffers, with
// vector-clock bookkeeping so the race detector sees a happens-before edge
// from every write to every read that may observe it.
//
// Operations are synchronous and never suspend. A blocking-mode endpoint that
// would have to wait fails with a descriptive unsupported error instead;
// non-blocking endpoints report would-block, exactly as a real descriptor
// does.
package socket

import (
	"github.com/badumbatish/miri/internal/fd"
	"github.com/badumbatish/miri/internal/poll"
)

// Guest-facing socket constants, as the linux ABI defines them.
const (
	AFUnix  = 1
	AFLocal = AFUnix // synonym; both accepted in case a target splits them

	SockStream   = 0o1
	SockNonblock = 0o4000
	SockCloexec  = 0o2000000
)

// Pair is one endpoint of a connected socketpair. It owns the buffer it reads
// from and holds non-owning references to the peer's buffer (for writing) and
// to the peer endpoint itself (for readiness notification on close). The
// cross-wiring is cycle-safe because one direction of each link is weak.
type Pair struct {
	readBuf *buffer

	// readHandle is the peer's window onto readBuf; invalidated when this
	// endpoint closes so peer writes start failing with a broken pipe.
	readHandle *handle

	// writeTarget resolves to the peer's buffer while any read end over
	// there is still open.
	writeTarget *handle

	peer     fd.WeakRef
	nonblock bool
}

var _ fd.Description = (*Pair)(nil)

// Name implements fd.Description.
func (p *Pair) Name() string { return "socketpair" }

// Readiness computes the endpoint's current readiness bits: readable while
// its own buffer holds data, writable while the peer's buffer resolves and
// has spare room, peer-closed once the peer descriptor is fully destroyed.
// A destroyed peer forces readable on even with nothing buffered, so pollers
// waiting only on readability still observe the hang-up.
func (p *Pair) Readiness() poll.Ready {
	var ready poll.Ready

	p.readBuf.mu.Lock()
	ready.Readable = len(p.readBuf.data) != 0
	p.readBuf.mu.Unlock()

	if wb, ok := p.writeTarget.upgrade(); ok {
		wb.mu.Lock()
		if wb.capacity-len(wb.data) != 0 {
			ready.Writable = true
		}
		wb.mu.Unlock()
	}

	if _, ok := p.peer.Upgrade(); !ok {
		ready.PeerClosed = true
		ready.Readable = true
	}
	return ready
}

// Read dequeues up to len(b) bytes from the endpoint's own buffer.
//
// A zero-length request succeeds immediately with 0. An empty buffer whose
// writers are all gone reports end-of-file as a successful zero-byte read; an
// empty buffer with a live writer is would-block (non-blocking mode) or an
// unsupported blocking wait. A non-empty buffer first fences the calling
// thread against the buffer's accumulated clock, then transfers what it can.
func (p *Pair) Read(sys fd.Sys, b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}

	rb := p.readBuf
	rb.mu.Lock()
	if len(rb.data) == 0 {
		hasWriter := rb.hasWriter
		rb.mu.Unlock()
		if !hasWriter {
			// No writer left and nothing buffered: end-of-file.
			return 0, nil
		}
		if p.nonblock {
			return 0, fd.ErrWouldBlock
		}
		return 0, fd.Unsupportedf("socketpair read: blocking isn't supported yet")
	}

	// Synchronize with every write that contributed to the current
	// contents. Coarser than byte provenance, by the documented trade-off.
	sys.AcquireClock(&rb.clock)

	n := copy(b, rb.data)
	rb.data = rb.data[n:]
	if len(rb.data) == 0 {
		rb.data = nil
	}
	rb.mu.Unlock()

	// The freed space may have made the peer writable. Notify outside the
	// buffer lock: the readiness query inspects this same buffer.
	if peer, ok := p.peer.Upgrade(); ok {
		peer.NotifyReadiness()
	}
	return n, nil
}

// Write enqueues up to len(b) bytes into the peer's buffer, reporting how
// many fit. Zero-length writes succeed immediately. An unresolvable peer
// buffer means every read end is closed: broken pipe. A full buffer is
// would-block or an unsupported blocking wait. Otherwise the writer's
// released clock point is joined into the buffer's clock (accumulating, so
// earlier unread writes keep their causal history) and a full or partial
// transfer happens.
func (p *Pair) Write(sys fd.Sys, b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}

	wb, ok := p.writeTarget.upgrade()
	if !ok {
		return 0, fd.ErrBrokenPipe
	}

	wb.mu.Lock()
	available := wb.capacity - len(wb.data)
	if available == 0 {
		wb.mu.Unlock()
		if p.nonblock {
			return 0, fd.ErrWouldBlock
		}
		return 0, fd.Unsupportedf("socketpair write: blocking isn't supported yet")
	}

	if c := sys.ReleaseClock(); c != nil {
		wb.clock.Join(c)
	}

	n := min(len(b), available)
	wb.data = append(wb.data, b[:n]...)
	wb.mu.Unlock()

	// New data may have made the peer readable.
	if peer, ok := p.peer.Upgrade(); ok {
		peer.NotifyReadiness()
	}
	return n, nil
}

// Close runs when the last descriptor number for this endpoint is closed. It
// tells the peer's read buffer it lost its writer (so the peer reads
// end-of-file once drained), withdraws the peer's write window onto our own
// buffer, and pokes the peer's readiness, whose peer-closed bit is now set.
// Close never fails.
func (p *Pair) Close() error {
	if wb, ok := p.writeTarget.upgrade(); ok {
		wb.mu.Lock()
		wb.hasWriter = false
		wb.mu.Unlock()
	}

	p.readHandle.invalidate()

	if peer, ok := p.peer.Upgrade(); ok {
		peer.NotifyReadiness()
	}
	return nil
}
