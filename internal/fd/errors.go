package fd

import (
	"errors"
	"fmt"
)

// Guest-visible I/O conditions. These surface to the emulated program as the
// errno a real system would produce; they are not emulator faults. End-of-file
// is not among them: it is reported as a successful zero-byte read.
var (
	// ErrWouldBlock reports a non-blocking operation that found no data or
	// no space (EAGAIN / EWOULDBLOCK).
	ErrWouldBlock = errors.New("resource temporarily unavailable")

	// ErrBrokenPipe reports a write whose every reader is gone (EPIPE).
	ErrBrokenPipe = errors.New("broken pipe")

	// ErrBadFd reports an operation on a descriptor number with no live
	// table entry (EBADF).
	ErrBadFd = errors.New("bad file descriptor")
)

// UnsupportedError reports an emulation gap: the guest used a configuration
// or mode this core does not model (unsupported socket domain, blocking I/O,
// and so on). It aborts the emulated call with a descriptive message and is
// never retried.
type UnsupportedError struct {
	Msg string
}

func (e *UnsupportedError) Error() string { return e.Msg }

// Unsupportedf builds an UnsupportedError from a format string.
func Unsupportedf(format string, args ...any) error {
	return &UnsupportedError{Msg: fmt.Sprintf(format, args...)}
}

// IsUnsupported reports whether err is an emulation-gap failure.
func IsUnsupported(err error) bool {
	var ue *UnsupportedError
	return errors.As(err, &ue)
}
