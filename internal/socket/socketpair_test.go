package socket

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/badumbatish/miri/internal/fd"
	"github.com/badumbatish/miri/internal/poll"
	"github.com/badumbatish/miri/internal/vclock"
)

// testSys binds a clock registry to one guest thread, standing in for the
// machine during direct endpoint calls.
type testSys struct {
	reg *vclock.Registry
	tid vclock.ThreadID
}

func (s testSys) AcquireClock(c *vclock.VClock) { s.reg.Acquire(s.tid, c) }

func (s testSys) ReleaseClock() *vclock.VClock { return s.reg.Release(s.tid) }

type env struct {
	table *fd.Table
	reg   *vclock.Registry
	a, b  fd.ID
}

func (e *env) sys(tid vclock.ThreadID) testSys {
	return testSys{reg: e.reg, tid: tid}
}

func (e *env) desc(t *testing.T, fdn fd.ID) fd.Description {
	t.Helper()
	ref, ok := e.table.Get(fdn)
	require.True(t, ok, "descriptor %d should be live", fdn)
	return ref.Description()
}

func (e *env) read(t *testing.T, fdn fd.ID, n int) (int, []byte, error) {
	t.Helper()
	buf := make([]byte, n)
	got, err := e.desc(t, fdn).Read(e.sys(0), buf)
	return got, buf[:got], err
}

func (e *env) write(t *testing.T, fdn fd.ID, data []byte) (int, error) {
	t.Helper()
	return e.desc(t, fdn).Write(e.sys(0), data)
}

func newEnv(t *testing.T, capacity int, typ int32) *env {
	t.Helper()
	table := fd.NewTable()
	cfg := PairConfig{Capacity: capacity, TargetOS: "linux"}
	a, b, err := NewPair(table, cfg, AFUnix, typ, 0)
	require.NoError(t, err)
	return &env{table: table, reg: vclock.NewRegistry(), a: a, b: b}
}

func newNonblockEnv(t *testing.T, capacity int) *env {
	return newEnv(t, capacity, SockStream|SockNonblock)
}

func TestNewPairValidation(t *testing.T) {
	tests := []struct {
		name     string
		targetOS string
		domain   int32
		typ      int32
		protocol int32
		wantErr  string
	}{
		{"inet domain", "linux", 2, SockStream, 0, "domain"},
		{"dgram type bit", "linux", AFUnix, SockStream | 0o2, 0, "type"},
		{"nonblock on non-linux", "macos", AFUnix, SockStream | SockNonblock, 0, "type"},
		{"cloexec on non-linux", "macos", AFUnix, SockStream | SockCloexec, 0, "type"},
		{"nonzero protocol", "linux", AFUnix, SockStream, 6, "protocol"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := fd.NewTable()
			cfg := PairConfig{TargetOS: tt.targetOS}
			_, _, err := NewPair(table, cfg, tt.domain, tt.typ, tt.protocol)
			require.Error(t, err)
			assert.True(t, fd.IsUnsupported(err), "want unsupported error, got %v", err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Equal(t, 0, table.Len(), "failed creation must not leak descriptors")
		})
	}
}

func TestNewPairAccepted(t *testing.T) {
	tests := []struct {
		name     string
		targetOS string
		typ      int32
	}{
		{"plain stream", "linux", SockStream},
		{"stream on macos", "macos", SockStream},
		{"nonblock", "linux", SockStream | SockNonblock},
		{"cloexec ignored", "linux", SockStream | SockCloexec},
		{"all flags", "linux", SockStream | SockNonblock | SockCloexec},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := fd.NewTable()
			a, b, err := NewPair(table, PairConfig{TargetOS: tt.targetOS}, AFUnix, tt.typ, 0)
			require.NoError(t, err)
			assert.Less(t, a, b, "descriptor numbers ascend in creation order")
			assert.Equal(t, 2, table.Len())
		})
	}
}

func TestZeroLengthTransfersAlwaysSucceed(t *testing.T) {
	e := newNonblockEnv(t, 4)

	// Empty buffer: zero-length read is not would-block.
	n, _, err := e.read(t, e.b, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// Full buffer: zero-length write is not would-block.
	_, err = e.write(t, e.a, []byte("full"))
	require.NoError(t, err)
	n, err = e.write(t, e.a, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// Even against a closed peer.
	require.NoError(t, e.table.Close(e.b))
	n, err = e.write(t, e.a, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	n, _, err = e.read(t, e.a, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestZeroLengthReadSkipsClockAcquire(t *testing.T) {
	e := newNonblockEnv(t, 64)

	_, err := e.desc(t, e.a).Write(testSys{reg: e.reg, tid: 1}, []byte("data"))
	require.NoError(t, err)

	before := e.reg.Snapshot(2)
	_, err = e.desc(t, e.b).Read(testSys{reg: e.reg, tid: 2}, nil)
	require.NoError(t, err)
	after := e.reg.Snapshot(2)

	assert.Zero(t, after.Get(1), "zero-length read must not synchronize")
	assert.True(t, before.Dominates(after) && after.Dominates(before))
}

func TestPartialReadScenario(t *testing.T) {
	e := newNonblockEnv(t, 0)

	n, err := e.write(t, e.a, []byte("0123456789"))
	require.NoError(t, err)
	require.Equal(t, 10, n)

	n, got, err := e.read(t, e.b, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, []byte("01234"), got)

	n, got, err = e.read(t, e.b, 10)
	require.NoError(t, err)
	assert.Equal(t, 5, n, "only the remaining bytes come back")
	assert.Equal(t, []byte("56789"), got)

	_, _, err = e.read(t, e.b, 10)
	assert.ErrorIs(t, err, fd.ErrWouldBlock, "drained buffer with live writer")
}

func TestPartialWriteAtCapacity(t *testing.T) {
	e := newNonblockEnv(t, 8)

	n, err := e.write(t, e.a, []byte("0123456789ab"))
	require.NoError(t, err)
	assert.Equal(t, 8, n, "write tops out at available space")

	_, err = e.write(t, e.a, []byte("x"))
	assert.ErrorIs(t, err, fd.ErrWouldBlock, "full buffer in non-blocking mode")

	// A read frees space; the writer can continue.
	n, got, err := e.read(t, e.b, 3)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	assert.Equal(t, []byte("012"), got)

	n, err = e.write(t, e.a, []byte("xyz"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, got, err = e.read(t, e.b, 16)
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	assert.True(t, bytes.Equal([]byte("34567xyz"), got), "FIFO order preserved across partial transfers")
}

func TestEOFAfterWriterClose(t *testing.T) {
	e := newNonblockEnv(t, 0)

	_, err := e.write(t, e.a, []byte("tail"))
	require.NoError(t, err)
	require.NoError(t, e.table.Close(e.a))

	// Buffered data still drains first.
	n, got, err := e.read(t, e.b, 16)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []byte("tail"), got)

	// Then end-of-file, repeatedly, never would-block.
	for i := 0; i < 2; i++ {
		n, _, err = e.read(t, e.b, 16)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	}
}

func TestEOFOnEmptyBufferAfterClose(t *testing.T) {
	e := newNonblockEnv(t, 0)
	require.NoError(t, e.table.Close(e.a))

	n, _, err := e.read(t, e.b, 8)
	require.NoError(t, err, "EOF is a successful zero read, not would-block")
	assert.Equal(t, 0, n)
}

func TestBrokenPipeAfterReaderClose(t *testing.T) {
	e := newNonblockEnv(t, 0)
	require.NoError(t, e.table.Close(e.b))

	n, err := e.write(t, e.a, []byte("x"))
	assert.ErrorIs(t, err, fd.ErrBrokenPipe)
	assert.Equal(t, 0, n, "zero bytes transferred on broken pipe")
}

func TestBlockingModeUnsupported(t *testing.T) {
	e := newEnv(t, 4, SockStream)

	_, _, err := e.read(t, e.b, 8)
	require.Error(t, err)
	assert.True(t, fd.IsUnsupported(err), "blocking read must fail loudly, got %v", err)

	_, err = e.write(t, e.a, []byte("full"))
	require.NoError(t, err)
	_, err = e.write(t, e.a, []byte("more"))
	require.Error(t, err)
	assert.True(t, fd.IsUnsupported(err), "blocking write must fail loudly, got %v", err)

	// EOF and broken pipe are still plain I/O outcomes in blocking mode.
	require.NoError(t, e.table.Close(e.b))
	_, err = e.write(t, e.a, []byte("x"))
	assert.ErrorIs(t, err, fd.ErrBrokenPipe)
}

func TestReadiness(t *testing.T) {
	e := newNonblockEnv(t, 4)

	a := e.desc(t, e.a).(*Pair)
	b := e.desc(t, e.b).(*Pair)

	ready := b.Readiness()
	assert.Equal(t, poll.Ready{Writable: true}, ready, "fresh endpoint: space, no data, peer live")

	_, err := e.write(t, e.a, []byte("hi"))
	require.NoError(t, err)
	assert.Equal(t, poll.Ready{Readable: true, Writable: true}, b.Readiness())

	// Fill b's buffer completely: a loses writability.
	_, err = e.write(t, e.a, []byte("!!"))
	require.NoError(t, err)
	ready = a.Readiness()
	assert.False(t, ready.Readable)
	assert.False(t, ready.Writable, "peer buffer full")
}

func TestReadinessHalfCloseForcesReadable(t *testing.T) {
	e := newNonblockEnv(t, 0)
	require.NoError(t, e.table.Close(e.a))

	ready := e.desc(t, e.b).Readiness()
	assert.True(t, ready.PeerClosed)
	assert.True(t, ready.Readable, "hang-up reports through the readable bit even with an empty buffer")
	assert.False(t, ready.Writable, "no live reader on the other side")
}

func TestDupWriterKeepsPipeOpen(t *testing.T) {
	e := newNonblockEnv(t, 0)

	dup, ok := e.table.Dup(e.a)
	require.True(t, ok)

	// Closing one of two write-side descriptors is not a half-close.
	require.NoError(t, e.table.Close(e.a))
	_, _, err := e.read(t, e.b, 4)
	assert.ErrorIs(t, err, fd.ErrWouldBlock, "writer still live through the dup")

	ready := e.desc(t, e.b).Readiness()
	assert.False(t, ready.PeerClosed)

	// Last write-side descriptor gone: now it is EOF.
	require.NoError(t, e.table.Close(dup))
	n, _, err := e.read(t, e.b, 4)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestWriteReadEstablishesHappensBefore(t *testing.T) {
	e := newNonblockEnv(t, 0)
	const writer, reader = 1, 2

	_, err := e.desc(t, e.a).Write(testSys{reg: e.reg, tid: writer}, []byte("w"))
	require.NoError(t, err)

	buf := make([]byte, 1)
	_, err = e.desc(t, e.b).Read(testSys{reg: e.reg, tid: reader}, buf)
	require.NoError(t, err)

	readerClock := e.reg.Snapshot(reader)
	assert.NotZero(t, readerClock.Get(writer), "reader happens-after the write")
}

func TestClockAccumulatesAcrossWriters(t *testing.T) {
	e := newNonblockEnv(t, 0)
	const w1, w2, reader = 1, 2, 3

	// Two writes from different threads before any read. The second join
	// must not erase the first writer's history.
	_, err := e.desc(t, e.a).Write(testSys{reg: e.reg, tid: w1}, []byte("a"))
	require.NoError(t, err)
	_, err = e.desc(t, e.a).Write(testSys{reg: e.reg, tid: w2}, []byte("b"))
	require.NoError(t, err)

	buf := make([]byte, 2)
	n, err := e.desc(t, e.b).Read(testSys{reg: e.reg, tid: reader}, buf)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	readerClock := e.reg.Snapshot(reader)
	assert.NotZero(t, readerClock.Get(w1), "first writer's history survives accumulation")
	assert.NotZero(t, readerClock.Get(w2))
}

// recordingObserver captures synchronous readiness notifications.
type recordingObserver struct {
	ids   []uint32
	ready []poll.Ready
}

func (o *recordingObserver) ReadinessChanged(id uint32, ready poll.Ready) {
	o.ids = append(o.ids, id)
	o.ready = append(o.ready, ready)
}

func TestPeerNotifiedOnWriteReadClose(t *testing.T) {
	e := newNonblockEnv(t, 0)
	obs := &recordingObserver{}
	e.table.SetObserver(obs)

	_, err := e.write(t, e.a, []byte("ping"))
	require.NoError(t, err)
	require.Len(t, obs.ready, 1, "write notifies the peer immediately")
	assert.True(t, obs.ready[0].Readable, "poller sees the new data synchronously")

	_, _, err = e.read(t, e.b, 4)
	require.NoError(t, err)
	require.Len(t, obs.ready, 2, "read notifies the peer that space freed up")
	assert.True(t, obs.ready[1].Writable)

	require.NoError(t, e.table.Close(e.b))
	require.Len(t, obs.ready, 3, "close notifies the survivor")
	assert.True(t, obs.ready[2].PeerClosed)
	assert.True(t, obs.ready[2].Readable)
}
