package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the pipeline's Prometheus instruments. Register once per
// process with NewMetrics and share the instance across orchestrators.
type Metrics struct {
	runs          *prometheus.CounterVec
	runDuration   prometheus.Histogram
	stageDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers the pipeline instruments on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "researchd",
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Research runs by outcome and failed stage.",
		}, []string{"outcome", "failed_stage"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "researchd",
			Subsystem: "pipeline",
			Name:      "run_duration_seconds",
			Help:      "End to end research run duration.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "researchd",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Per stage duration.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}, []string{"stage"}),
	}
	reg.MustRegister(m.runs, m.runDuration, m.stageDuration)
	return m
}

func (m *Metrics) observeRun(outcome, failedStage string, d time.Duration) {
	m.runs.WithLabelValues(outcome, failedStage).Inc()
	m.runDuration.Observe(d.Seconds())
}

func (m *Metrics) observeStage(stage string, d time.Duration) {
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}
