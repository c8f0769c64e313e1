package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Counters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ItemProcessed("reels", true)
	m.ItemProcessed("reels", false)
	m.PayloadDropped("parse_panic")
	m.SetPhase("", "reels")
	m.SetPhase("reels", "profile_bio")

	assert.InDelta(t, 2, testutil.ToFloat64(m.itemsProcessed.WithLabelValues("reels")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.relevantItems.WithLabelValues("reels")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.payloadsDropped.WithLabelValues("parse_panic")), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(m.phase.WithLabelValues("reels")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.phase.WithLabelValues("profile_bio")), 0)
}

func TestMetrics_NilIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ItemProcessed("reels", true)
		m.ClassifierFailed()
		m.ProfileAbandoned()
		m.CheckpointWritten()
		m.PayloadDropped("x")
		m.SetPhase("a", "b")
	})
}
