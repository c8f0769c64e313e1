// Package metrics exposes Prometheus counters for the discovery agent.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "reel_scout"

type Metrics struct {
	itemsProcessed     *prometheus.CounterVec
	relevantItems      *prometheus.CounterVec
	classifierFailures prometheus.Counter
	profilesAbandoned  prometheus.Counter
	checkpoints        prometheus.Counter
	payloadsDropped    *prometheus.CounterVec
	phase              *prometheus.GaugeVec
}

// New registers the agent collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		itemsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_processed_total",
			Help:      "Content items classified, by phase.",
		}, []string{"phase"}),
		relevantItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relevant_items_total",
			Help:      "Content items judged relevant, by phase.",
		}, []string{"phase"}),
		classifierFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifier_failures_total",
			Help:      "Oracle calls that failed or returned malformed output.",
		}),
		profilesAbandoned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "profiles_abandoned_total",
			Help:      "Profiles left early by the abandonment heuristic or as unavailable.",
		}),
		checkpoints: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkpoints_total",
			Help:      "Session checkpoints written.",
		}),
		payloadsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payloads_dropped_total",
			Help:      "Intercepted payloads discarded, by reason.",
		}, []string{"reason"}),
		phase: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "phase",
			Help:      "1 for the phase the orchestrator is currently in.",
		}, []string{"phase"}),
	}
	reg.MustRegister(m.itemsProcessed, m.relevantItems, m.classifierFailures,
		m.profilesAbandoned, m.checkpoints, m.payloadsDropped, m.phase)
	return m
}

func (m *Metrics) ItemProcessed(phase string, relevant bool) {
	if m == nil {
		return
	}
	m.itemsProcessed.WithLabelValues(phase).Inc()
	if relevant {
		m.relevantItems.WithLabelValues(phase).Inc()
	}
}

func (m *Metrics) ClassifierFailed() {
	if m == nil {
		return
	}
	m.classifierFailures.Inc()
}

func (m *Metrics) ProfileAbandoned() {
	if m == nil {
		return
	}
	m.profilesAbandoned.Inc()
}

func (m *Metrics) CheckpointWritten() {
	if m == nil {
		return
	}
	m.checkpoints.Inc()
}

func (m *Metrics) PayloadDropped(reason string) {
	if m == nil {
		return
	}
	m.payloadsDropped.WithLabelValues(reason).Inc()
}

// SetPhase marks phase as current and clears the previous one.
func (m *Metrics) SetPhase(prev, next string) {
	if m == nil {
		return
	}
	if prev != "" {
		m.phase.WithLabelValues(prev).Set(0)
	}
	m.phase.WithLabelValues(next).Set(1)
}
