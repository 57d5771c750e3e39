// Package metrics collects and exposes Prometheus metrics for the
// authorization pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder is the surface the gate and services report into.
type Recorder interface {
	RecordDecision(outcome string, reason string)
	RecordVerifyLatency(strategy string, duration time.Duration)
	RecordSessionEvent(event string)
}

// Collector implements Recorder on Prometheus.
type Collector struct {
	decisions     *prometheus.CounterVec
	verifyLatency *prometheus.HistogramVec
	sessionEvents *prometheus.CounterVec
}

var _ Recorder = (*Collector)(nil)

// NewCollector registers the metrics on the given registry.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gymguard_authz_decisions_total",
			Help: "Authorization gate decisions by outcome and denial reason.",
		}, []string{"outcome", "reason"}),
		verifyLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gymguard_credential_verify_seconds",
			Help:    "Credential verification latency by strategy.",
			Buckets: prometheus.DefBuckets,
		}, []string{"strategy"}),
		sessionEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gymguard_session_events_total",
			Help: "Session registry events (register, revoke, cascade).",
		}, []string{"event"}),
	}

	reg.MustRegister(c.decisions, c.verifyLatency, c.sessionEvents)
	return c
}

func (c *Collector) RecordDecision(outcome, reason string) {
	c.decisions.WithLabelValues(outcome, reason).Inc()
}

func (c *Collector) RecordVerifyLatency(strategy string, duration time.Duration) {
	c.verifyLatency.WithLabelValues(strategy).Observe(duration.Seconds())
}

func (c *Collector) RecordSessionEvent(event string) {
	c.sessionEvents.WithLabelValues(event).Inc()
}

// Noop is a Recorder that discards everything, for tests.
type Noop struct{}

func (Noop) RecordDecision(string, string) {}

func (Noop) RecordVerifyLatency(string, time.Duration) {}

func (Noop) RecordSessionEvent(string) {}
