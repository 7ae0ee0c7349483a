package triage

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the triage subsystem.
type Metrics struct {
	SubmitsTotal     *prometheus.CounterVec
	VerdictsTotal    *prometheus.CounterVec
	ProcessDuration  prometheus.Histogram
	StageDuration    *prometheus.HistogramVec
	UrgencyScore     prometheus.Histogram
	NeedsTotal       *prometheus.CounterVec
	MatchesTotal     *prometheus.CounterVec
	NERFailuresTotal prometheus.Counter
	StoreErrorsTotal prometheus.Counter
	NotifyTotal      *prometheus.CounterVec
	NotifyDuration   *prometheus.HistogramVec
}

// NewMetrics registers and returns triage metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SubmitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lifeline_submits_total",
			Help: "Total message submissions by result.",
		}, []string{"result"}),
		VerdictsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lifeline_verdicts_total",
			Help: "Verdicts produced by alert flag and location confidence.",
		}, []string{"alert", "confidence"}),
		ProcessDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "lifeline_triage_duration_seconds",
			Help:    "Duration of a full triage run in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms .. ~8s
		}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lifeline_triage_stage_duration_seconds",
			Help:    "Duration of each triage stage in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms .. ~4s
		}, []string{"stage"}),
		UrgencyScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "lifeline_urgency_score",
			Help:    "Distribution of urgency scores.",
			Buckets: prometheus.LinearBuckets(0, 10, 11), // 0 .. 100
		}),
		NeedsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lifeline_needs_total",
			Help: "Needs detected by category.",
		}, []string{"category"}),
		MatchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lifeline_resource_matches_total",
			Help: "Resources matched by category.",
		}, []string{"category"}),
		NERFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lifeline_ner_failures_total",
			Help: "Entity recognition calls that failed or timed out.",
		}),
		StoreErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lifeline_store_errors_total",
			Help: "Verdicts that could not be persisted.",
		}),
		NotifyTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lifeline_notify_total",
			Help: "Alert notifications by notifier and status.",
		}, []string{"notifier", "status"}),
		NotifyDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lifeline_notify_duration_seconds",
			Help:    "Duration of alert notifications in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms .. ~5s
		}, []string{"notifier"}),
	}

	reg.MustRegister(
		m.SubmitsTotal,
		m.VerdictsTotal,
		m.ProcessDuration,
		m.StageDuration,
		m.UrgencyScore,
		m.NeedsTotal,
		m.MatchesTotal,
		m.NERFailuresTotal,
		m.StoreErrorsTotal,
		m.NotifyTotal,
		m.NotifyDuration,
	)

	return m
}

// Hooks returns an EngineHooks that updates the corresponding metrics.
func (m *Metrics) Hooks() EngineHooks {
	return EngineHooks{
		OnStage: func(stage string, seconds float64) {
			m.StageDuration.WithLabelValues(stage).Observe(seconds)
		},
		OnNERFailure: func() {
			m.NERFailuresTotal.Inc()
		},
		OnComplete: func(v *Verdict, seconds float64) {
			alert := "false"
			if v.Alert {
				alert = "true"
			}
			m.VerdictsTotal.WithLabelValues(alert, string(v.LocationConfidence)).Inc()
			m.ProcessDuration.Observe(seconds)
			m.UrgencyScore.Observe(float64(v.UrgencyScore))
			for _, n := range v.Needs {
				m.NeedsTotal.WithLabelValues(string(n)).Inc()
			}
			for _, mr := range v.MatchedResources {
				m.MatchesTotal.WithLabelValues(string(mr.Type)).Inc()
			}
		},
	}
}
