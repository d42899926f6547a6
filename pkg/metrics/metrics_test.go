package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncActivation("activated")
		m.ObserveStep("avatar", time.Second)
		m.IncCitizenIDs()
		m.IncModeration("warn")
		m.ObserveScore(7)
		m.RetryHook("load", 1, nil)
		m.IncJob("http", "activation")
	})
}

func TestCounters(t *testing.T) {
	m := NewWithRegisterer(prometheus.NewRegistry())

	m.IncActivation("activated")
	m.IncActivation("activated")
	m.RetryHook("commit", 1, nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ActivationOutcome.WithLabelValues("activated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RetryAttempts.WithLabelValues("commit")))
}
