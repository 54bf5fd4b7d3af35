package core

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Warm-up outcome label values.
const (
	outcomeReady   = "ready"
	outcomeFailed  = "failed"
	outcomeTimeout = "timeout"
	outcomeSpawn   = "spawn_error"
)

// Metrics are the pool's Prometheus collectors.
type Metrics struct {
	warmups         *prometheus.CounterVec
	warmDuration    prometheus.Histogram
	slots           *prometheus.GaugeVec
	acquireTimeouts prometheus.Counter
	acquireWait     prometheus.Histogram
	crashes         prometheus.Counter
}

// NewMetrics creates the pool collectors and registers them with reg. A nil
// reg leaves them unregistered, which keeps independent pools in one process
// from colliding.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		warmups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prealloc_warmups_total",
				Help: "Warm-up passes by outcome",
			},
			[]string{"outcome"}, // "ready", "failed", "timeout", "spawn_error"
		),
		warmDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "prealloc_warmup_duration_seconds",
			Help:    "Duration of successful warm-up passes as reported by the worker",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		slots: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "prealloc_slots",
				Help: "Current slots by state",
			},
			[]string{"state"},
		),
		acquireTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "prealloc_acquire_timeouts_total",
			Help: "Acquire calls that gave up before a warm worker was available",
		}),
		acquireWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "prealloc_acquire_wait_seconds",
			Help:    "Time successful Acquire calls waited for a warm worker",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
		crashes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "prealloc_idle_crashes_total",
			Help: "Warm idle workers that exited before being handed out",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.warmups, m.warmDuration, m.slots, m.acquireTimeouts, m.acquireWait, m.crashes)
	}
	return m
}

// setSlotCounts publishes the per-state gauge. Every non-terminal state is
// written so states that emptied drop to zero.
func (m *Metrics) setSlotCounts(counts map[SlotState]int) {
	for _, st := range []SlotState{SlotForking, SlotWarming, SlotWarmIdle, SlotSpecializing} {
		m.slots.WithLabelValues(st.String()).Set(float64(counts[st]))
	}
}
