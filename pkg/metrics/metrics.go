package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ranking_pages_total",
			Help: "Pages processed per sub-process",
		},
		[]string{"process"},
	)

	RowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ranking_rows_total",
			Help: "Rows read per sub-process",
		},
		[]string{"process"},
	)

	LockSkipsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ranking_worker_lock_skips_total",
			Help: "Sub-process invocations skipped because an exclusive process held the worker lock",
		},
		[]string{"process"},
	)

	RetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ranking_deadlock_retries_total",
			Help: "Statements retried after a deadlock",
		},
		[]string{"process"},
	)

	ProcessDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ranking_process_duration_seconds",
			Help:    "Sub-process duration",
			Buckets: []float64{.1, .5, 1, 5, 15, 60, 300, 900, 3600},
		},
		[]string{"process", "status"},
	)

	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ranking_runs_total",
			Help: "Award period runs by final status",
		},
		[]string{"status"},
	)
)
