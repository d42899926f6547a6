// Package metrics 激活与审核流程的 Prometheus 指标
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 所有方法在 nil 接收者上都是空操作，测试中可直接传 nil
type Metrics struct {
	ActivationOutcome *prometheus.CounterVec
	ActivationStep    *prometheus.HistogramVec
	CitizenIDsIssued  prometheus.Counter

	ModerationOutcome *prometheus.CounterVec
	ModerationScore   prometheus.Histogram

	RetryAttempts *prometheus.CounterVec
	JobsReceived  *prometheus.CounterVec
}

// New 注册到默认注册表
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer 注册到指定注册表
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ActivationOutcome: f.NewCounterVec(prometheus.CounterOpts{
			Name: "citizen_activation_outcomes_total",
			Help: "Activation job outcomes",
		}, []string{"outcome"}), // activated, failed, duplicate, skipped

		ActivationStep: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "citizen_activation_step_duration_seconds",
			Help:    "Duration of each activation step",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"step"}),

		CitizenIDsIssued: f.NewCounter(prometheus.CounterOpts{
			Name: "citizen_ids_issued_total",
			Help: "Citizen IDs allocated by committed activations",
		}),

		ModerationOutcome: f.NewCounterVec(prometheus.CounterOpts{
			Name: "citizen_moderation_outcomes_total",
			Help: "Moderation job outcomes",
		}, []string{"outcome"}), // passed, warn, ban, already_handled

		ModerationScore: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "citizen_moderation_score",
			Help:    "Classifier score distribution",
			Buckets: prometheus.LinearBuckets(1, 1, 10),
		}),

		RetryAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "citizen_store_retry_attempts_total",
			Help: "Failed store attempts seen by the retry wrapper",
		}, []string{"operation"}),

		JobsReceived: f.NewCounterVec(prometheus.CounterOpts{
			Name: "citizen_jobs_received_total",
			Help: "Jobs received by transport and kind",
		}, []string{"transport", "kind"}),
	}
}

func (m *Metrics) IncActivation(outcome string) {
	if m != nil {
		m.ActivationOutcome.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) ObserveStep(step string, d time.Duration) {
	if m != nil {
		m.ActivationStep.WithLabelValues(step).Observe(d.Seconds())
	}
}

func (m *Metrics) IncCitizenIDs() {
	if m != nil {
		m.CitizenIDsIssued.Inc()
	}
}

func (m *Metrics) IncModeration(outcome string) {
	if m != nil {
		m.ModerationOutcome.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) ObserveScore(score int) {
	if m != nil {
		m.ModerationScore.Observe(float64(score))
	}
}

// RetryHook 适配 retry.Policy.OnAttempt
func (m *Metrics) RetryHook(name string, _ int, _ error) {
	if m != nil {
		m.RetryAttempts.WithLabelValues(name).Inc()
	}
}

func (m *Metrics) IncJob(transport, kind string) {
	if m != nil {
		m.JobsReceived.WithLabelValues(transport, kind).Inc()
	}
}
