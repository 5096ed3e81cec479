package harness

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics are registered on a registry private to one Driver, so that
// several drivers in a process (and in tests) do not collide.
type metrics struct {
	registry *prometheus.Registry

	casesTotal *prometheus.CounterVec
	replayTime *prometheus.HistogramVec
}

func newMetrics() *metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &metrics{
		registry: reg,
		casesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ethconform_cases_total",
				Help: "Count of finished test cases by outcome.",
			},
			[]string{"outcome"},
		),
		replayTime: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ethconform_replay_duration_seconds",
				Help:    "Time spent decoding and replaying one test case.",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
			},
			[]string{"tag"},
		),
	}
}

func (m *metrics) observe(res CaseResult) {
	m.casesTotal.WithLabelValues(string(res.Outcome)).Inc()
	if res.Outcome == OutcomeSkip {
		return
	}
	tag := res.Tag.String()
	if tag == "" {
		tag = "none"
	}
	m.replayTime.WithLabelValues(tag).Observe(res.Duration.Seconds())
}
