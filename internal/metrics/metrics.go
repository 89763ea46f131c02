// Package metrics exposes run-level prometheus instrumentation for the
// orchestration engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every engine metric on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	InstructionsDispatched *prometheus.CounterVec
	CyclesCompleted        *prometheus.CounterVec
	RendezvousWait         *prometheus.HistogramVec
	DeadlockReleases       prometheus.Counter
	ScansCompleted         *prometheus.CounterVec
	DeviceFaults           *prometheus.CounterVec
}

// New creates the engine metrics on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		InstructionsDispatched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "flowctl",
				Subsystem: "recipe",
				Name:      "instructions_dispatched_total",
				Help:      "Recipe instructions dispatched into device actions",
			},
			[]string{"flowcell", "opcode"},
		),
		CyclesCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "flowctl",
				Subsystem: "recipe",
				Name:      "cycles_completed_total",
				Help:      "Full recipe traversals completed",
			},
			[]string{"flowcell"},
		),
		RendezvousWait: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "flowctl",
				Subsystem: "sync",
				Name:      "rendezvous_wait_seconds",
				Help:      "Time a flowcell spent blocked waiting for its partner",
				Buckets:   prometheus.ExponentialBuckets(0.1, 4, 8),
			},
			[]string{"flowcell"},
		),
		DeadlockReleases: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "flowctl",
				Subsystem: "sync",
				Name:      "deadlock_releases_total",
				Help:      "Forced gate releases after all flowcells blocked",
			},
		),
		ScansCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "flowctl",
				Subsystem: "imaging",
				Name:      "scans_completed_total",
				Help:      "Section scans completed",
			},
			[]string{"flowcell"},
		),
		DeviceFaults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "flowctl",
				Subsystem: "devices",
				Name:      "faults_total",
				Help:      "Device faults surfaced by the instrument facade",
			},
			[]string{"flowcell", "opcode"},
		),
	}

	m.registry.MustRegister(
		m.InstructionsDispatched,
		m.CyclesCompleted,
		m.RendezvousWait,
		m.DeadlockReleases,
		m.ScansCompleted,
		m.DeviceFaults,
	)
	return m
}

// Handler serves the registry in prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
