package expiry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	armedTimersGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "imagehost_scheduler_armed_timers",
		Help: "Expiry timers currently armed",
	})

	timersFiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "imagehost_scheduler_timers_fired_total",
		Help: "Expiry timers that fired and published an expired event",
	})

	sweepRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "imagehost_sweeper_runs_total",
		Help: "Sweeper passes by outcome",
	}, []string{"outcome"})

	sweepDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "imagehost_sweeper_deleted_total",
		Help: "Expired images removed from the store",
	})

	sweepStorageFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "imagehost_sweeper_storage_failures_total",
		Help: "Blob paths the sweeper failed to delete",
	})

	sweepDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "imagehost_sweeper_duration_seconds",
		Help:    "Sweeper pass duration in seconds",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	})

	opensTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "imagehost_open_triggers_total",
		Help: "Open-trigger calls by outcome",
	}, []string{"outcome"})
)
