package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trends_sheet_runs_total",
			Help: "Total pipeline runs by final status",
		},
		[]string{"job", "status"},
	)

	keywordOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trends_sheet_keyword_outcomes_total",
			Help: "Total keyword fetch outcomes",
		},
		[]string{"job", "outcome"},
	)

	runDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trends_sheet_run_duration_seconds",
			Help:    "Duration of pipeline runs",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 3600},
		},
		[]string{"job"},
	)

	initOnce sync.Once
)

// Init registers the collectors with the default registry.
// Must be called once at startup.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(runsTotal, keywordOutcomesTotal, runDuration)
	})
}

func RecordRun(job, status string, duration time.Duration) {
	runsTotal.WithLabelValues(job, status).Inc()
	runDuration.WithLabelValues(job).Observe(duration.Seconds())
}

// RecordOutcome counts one keyword outcome by its label (success, empty,
// rate_limited or other).
func RecordOutcome(job, outcome string) {
	keywordOutcomesTotal.WithLabelValues(job, outcome).Inc()
}
