// Package monitoring exposes Prometheus metrics for the emulated syscall
// surface.
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics the machine records.
type Metrics struct {
	// Syscall metrics
	SyscallsTotal *prometheus.CounterVec // name, outcome
	BytesRead     prometheus.Counter
	BytesWritten  prometheus.Counter

	// Guest-visible I/O conditions
	WouldBlockTotal prometheus.Counter
	BrokenPipeTotal prometheus.Counter

	// Descriptor metrics
	DescriptorsLive prometheus.Gauge
	PairsTotal      prometheus.Counter
}

// Outcome labels for SyscallsTotal.
const (
	OutcomeOK          = "ok"
	OutcomeError       = "error"
	OutcomeUnsupported = "unsupported"
)

// NewMetrics creates a metrics collector registered against reg, or the
// default registerer when reg is nil. Tests pass their own registry to avoid
// duplicate registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		SyscallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "miri_syscalls_total",
				Help: "Total number of emulated syscalls",
			},
			[]string{"name", "outcome"},
		),
		BytesRead: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "miri_socket_bytes_read_total",
				Help: "Bytes dequeued by socket reads",
			},
		),
		BytesWritten: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "miri_socket_bytes_written_total",
				Help: "Bytes enqueued by socket writes",
			},
		),
		WouldBlockTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "miri_socket_would_block_total",
				Help: "Non-blocking operations that found no data or space",
			},
		),
		BrokenPipeTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "miri_socket_broken_pipe_total",
				Help: "Writes that failed because every reader was gone",
			},
		),
		DescriptorsLive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "miri_descriptors_live",
				Help: "Currently live guest descriptor numbers",
			},
		),
		PairsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "miri_socketpairs_total",
				Help: "Socketpairs created since start",
			},
		),
	}
}

// RecordSyscall counts one emulated syscall with its outcome.
func (m *Metrics) RecordSyscall(name, outcome string) {
	m.SyscallsTotal.WithLabelValues(name, outcome).Inc()
}
