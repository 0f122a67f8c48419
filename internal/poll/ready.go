// Package poll defines the readiness vocabulary shared between descriptor
// implementations and the event-polling subsystem.
package poll

// Ready is the set of readiness bits a descriptor reports. It corresponds to
// the EPOLLIN / EPOLLOUT / EPOLLRDHUP triple the poll emulation consumes.
type Ready struct {
	// Readable is set when a read would return data immediately. It is also
	// forced on when PeerClosed is set, even with no buffered data, so
	// pollers waiting only on readability observe the hang-up.
	Readable bool

	// Writable is set when a write could transfer at least one byte.
	Writable bool

	// PeerClosed is set when the peer descriptor has been fully destroyed.
	PeerClosed bool
}

// Observer receives synchronous readiness-change notifications. The polling
// subsystem registers one with the descriptor table; descriptor operations
// that may change readiness (reads freeing space, writes adding data, closes)
// trigger it immediately, never batched.
type Observer interface {
	ReadinessChanged(id uint32, ready Ready)
}
