// Package kernel assembles the emulated machine: the descriptor table, the
// per-thread causal clocks and the syscall-shaped entry points the
// surrounding interpreter dispatches to. Argument marshalling from guest
// memory stays with the interpreter; everything here takes native arguments.
package kernel

import (
	"errors"

	"go.uber.org/zap"

	"github.com/badumbatish/miri/internal/config"
	"github.com/badumbatish/miri/internal/fd"
	"github.com/badumbatish/miri/internal/logging"
	"github.com/badumbatish/miri/internal/monitoring"
	"github.com/badumbatish/miri/internal/shared/id"
	"github.com/badumbatish/miri/internal/socket"
	"github.com/badumbatish/miri/internal/trace"
	"github.com/badumbatish/miri/internal/vclock"
)

// Machine is one emulated guest machine.
type Machine struct {
	fds     *fd.Table
	clocks  *vclock.Registry
	pairCfg socket.PairConfig

	log     *logging.Logger
	metrics *monitoring.Metrics
	tracer  *trace.Recorder
}

// Option customizes a Machine.
type Option func(*Machine)

// WithMetrics attaches a metrics collector.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(mc *Machine) { mc.metrics = m }
}

// WithTracer attaches a syscall trace recorder.
func WithTracer(t *trace.Recorder) Option {
	return func(mc *Machine) { mc.tracer = t }
}

// New builds a machine from configuration.
func New(cfg *config.Config, log *logging.Logger, opts ...Option) *Machine {
	if log == nil {
		log = logging.NewNop()
	}
	clocks := vclock.NewDisabledRegistry()
	if cfg.Machine.RaceDetection {
		clocks = vclock.NewRegistry()
	}
	m := &Machine{
		fds:    fd.NewTable(),
		clocks: clocks,
		pairCfg: socket.PairConfig{
			Capacity: cfg.Machine.SocketBufferCapacity,
			TargetOS: cfg.Machine.TargetOS,
		},
		log: log.Named("kernel"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// FDs exposes the descriptor table, e.g. for the polling subsystem to hook
// its readiness observer.
func (m *Machine) FDs() *fd.Table { return m.fds }

// Clocks exposes the per-thread clock registry.
func (m *Machine) Clocks() *vclock.Registry { return m.clocks }

// sysView is the fd.Sys a description sees for one call: the ambient clock
// operations bound to the calling guest thread.
type sysView struct {
	m   *Machine
	tid vclock.ThreadID
}

func (s sysView) AcquireClock(c *vclock.VClock) { s.m.clocks.Acquire(s.tid, c) }

func (s sysView) ReleaseClock() *vclock.VClock { return s.m.clocks.Release(s.tid) }

// Socketpair emulates socketpair(2) for the calling thread, returning the two
// new descriptor numbers in ascending creation order.
func (m *Machine) Socketpair(tid vclock.ThreadID, domain, typ, protocol int32) (fd.ID, fd.ID, error) {
	sv0, sv1, err := socket.NewPair(m.fds, m.pairCfg, domain, typ, protocol)
	if err != nil {
		m.count("socketpair", err)
		m.record(tid, trace.Event{Op: "socketpair", Error: err.Error()})
		return 0, 0, err
	}

	pairID := id.NewPairID()
	m.log.Debug("socketpair created",
		zap.String("pair", pairID.String()),
		zap.Uint32("fd0", uint32(sv0)),
		zap.Uint32("fd1", uint32(sv1)),
	)
	if m.metrics != nil {
		m.metrics.PairsTotal.Inc()
		m.metrics.DescriptorsLive.Set(float64(m.fds.Len()))
	}
	m.count("socketpair", nil)
	m.record(tid, trace.Event{Op: "socketpair", Fd: uint32(sv0)})
	m.record(tid, trace.Event{Op: "socketpair", Fd: uint32(sv1)})
	return sv0, sv1, nil
}

// Read emulates read(2) on a descriptor.
func (m *Machine) Read(tid vclock.ThreadID, fdn fd.ID, b []byte) (int, error) {
	ref, ok := m.fds.Get(fdn)
	if !ok {
		m.count("read", fd.ErrBadFd)
		return 0, fd.ErrBadFd
	}
	n, err := ref.Description().Read(sysView{m: m, tid: tid}, b)
	m.count("read", err)
	m.record(tid, trace.Event{Op: "read", Fd: uint32(fdn), Bytes: n, Error: errString(err)})
	if err == nil && m.metrics != nil {
		m.metrics.BytesRead.Add(float64(n))
	}
	return n, err
}

// Write emulates write(2) on a descriptor.
func (m *Machine) Write(tid vclock.ThreadID, fdn fd.ID, b []byte) (int, error) {
	ref, ok := m.fds.Get(fdn)
	if !ok {
		m.count("write", fd.ErrBadFd)
		return 0, fd.ErrBadFd
	}
	n, err := ref.Description().Write(sysView{m: m, tid: tid}, b)
	m.count("write", err)
	m.record(tid, trace.Event{Op: "write", Fd: uint32(fdn), Bytes: n, Error: errString(err)})
	if err == nil && m.metrics != nil {
		m.metrics.BytesWritten.Add(float64(n))
	}
	return n, err
}

// Close emulates close(2) on a descriptor number. Closing the last number of
// a description tears the description down, which is what peers observe as
// half-close.
func (m *Machine) Close(tid vclock.ThreadID, fdn fd.ID) error {
	err := m.fds.Close(fdn)
	m.count("close", err)
	m.record(tid, trace.Event{Op: "close", Fd: uint32(fdn), Error: errString(err)})
	if m.metrics != nil {
		m.metrics.DescriptorsLive.Set(float64(m.fds.Len()))
	}
	return err
}

// Dup emulates dup(2): a new descriptor number sharing the description.
func (m *Machine) Dup(tid vclock.ThreadID, fdn fd.ID) (fd.ID, error) {
	nfd, ok := m.fds.Dup(fdn)
	if !ok {
		m.count("dup", fd.ErrBadFd)
		return 0, fd.ErrBadFd
	}
	m.count("dup", nil)
	m.record(tid, trace.Event{Op: "dup", Fd: uint32(nfd)})
	if m.metrics != nil {
		m.metrics.DescriptorsLive.Set(float64(m.fds.Len()))
	}
	return nfd, nil
}

func (m *Machine) count(name string, err error) {
	if m.metrics == nil {
		return
	}
	switch {
	case err == nil:
		m.metrics.RecordSyscall(name, monitoring.OutcomeOK)
	case fd.IsUnsupported(err):
		m.metrics.RecordSyscall(name, monitoring.OutcomeUnsupported)
	default:
		m.metrics.RecordSyscall(name, monitoring.OutcomeError)
		if errors.Is(err, fd.ErrWouldBlock) {
			m.metrics.WouldBlockTotal.Inc()
		}
		if errors.Is(err, fd.ErrBrokenPipe) {
			m.metrics.BrokenPipeTotal.Inc()
		}
	}
}

func (m *Machine) record(tid vclock.ThreadID, ev trace.Event) {
	if m.tracer == nil {
		return
	}
	ev.Thread = int32(tid)
	m.tracer.Record(ev)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
