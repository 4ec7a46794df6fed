package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsFinishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qbank_generation_jobs_finished_total",
		Help: "Generation attempts by resulting status.",
	}, []string{"status"})

	jobDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "qbank_generation_job_duration_seconds",
		Help:    "Wall-clock time of one generation attempt.",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	})

	ticksSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qbank_worker_ticks_skipped_total",
		Help: "Poll ticks skipped because a job was still in flight.",
	})

	watchdogFiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qbank_worker_watchdog_fired_total",
		Help: "Jobs flipped to timeout by the watchdog.",
	})

	jobsRequeuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qbank_generation_jobs_requeued_total",
		Help: "Attempts handed back to the queue because the worker stopped.",
	})

	staleRecoveredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qbank_generation_jobs_stale_recovered_total",
		Help: "Attempts left running by a previous process and timed out on startup.",
	})
)
