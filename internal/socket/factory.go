package socket

import (
	"github.com/badumbatish/miri/internal/fd"
)

// PairConfig carries the knobs the factory needs from machine configuration.
type PairConfig struct {
	// Capacity bounds each direction's buffer, in bytes. Zero means
	// DefaultBufferCapacity.
	Capacity int

	// TargetOS is the guest target ("linux", "macos", ...). SOCK_NONBLOCK
	// and SOCK_CLOEXEC exist only on linux; on other targets they are
	// unrecognized type bits.
	TargetOS string
}

// NewPair validates socketpair(2) arguments, builds two cross-wired endpoints
// and registers them with the descriptor table. The returned descriptor
// numbers ascend in creation order. No I/O happens here.
//
// Only the local/unix domain, the stream type (optionally or'd with the
// non-blocking and close-on-exec flags on linux targets) and protocol 0 are
// emulated; anything else fails with a descriptive unsupported error.
// Close-on-exec is accepted and ignored: exec is the descriptor table's
// concern, not this core's.
func NewPair(table *fd.Table, cfg PairConfig, domain, typ, protocol int32) (fd.ID, fd.ID, error) {
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = DefaultBufferCapacity
	}

	nonblock := false

	// Strip the type flags we support; whatever remains is unsupported.
	if typ&SockStream == SockStream {
		typ &^= SockStream
	}
	if cfg.TargetOS == "linux" {
		if typ&SockNonblock == SockNonblock {
			nonblock = true
			typ &^= SockNonblock
		}
		if typ&SockCloexec == SockCloexec {
			typ &^= SockCloexec
		}
	}

	if domain != AFUnix && domain != AFLocal {
		return 0, 0, fd.Unsupportedf(
			"socketpair: domain %#x is unsupported, only AF_UNIX and AF_LOCAL are allowed", domain)
	}
	if typ != 0 {
		return 0, 0, fd.Unsupportedf(
			"socketpair: type %#x is unsupported, only SOCK_STREAM, SOCK_CLOEXEC and SOCK_NONBLOCK are allowed", typ)
	}
	if protocol != 0 {
		return 0, 0, fd.Unsupportedf(
			"socketpair: socket protocol %d is unsupported, only 0 is allowed", protocol)
	}

	buf1 := newBuffer(capacity)
	buf2 := newBuffer(capacity)
	h1 := newHandle(buf1)
	h2 := newHandle(buf2)

	pair0 := &Pair{
		readBuf:     buf2,
		readHandle:  h2,
		writeTarget: h1,
		nonblock:    nonblock,
	}
	pair1 := &Pair{
		readBuf:     buf1,
		readHandle:  h1,
		writeTarget: h2,
		nonblock:    nonblock,
	}

	sv0 := table.Insert(pair0)
	sv1 := table.Insert(pair1)

	// Wire each endpoint to the other's descriptor for close notification.
	ref0, _ := table.Get(sv0)
	ref1, _ := table.Get(sv1)
	pair0.peer = ref1.Downgrade()
	pair1.peer = ref0.Downgrade()

	return sv0, sv1, nil
}
