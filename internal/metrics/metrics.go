// Package metrics exposes the Prometheus instruments shared by the HTTP
// layer and the task lifecycle manager.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestsTotal counts requests by method, route and status class.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "yourank",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency per route.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "yourank",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// AnalysesSubmitted counts accepted submissions by type and mode.
	AnalysesSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "yourank",
			Name:      "analyses_submitted_total",
			Help:      "Analyses accepted for execution.",
		},
		[]string{"type", "mode"},
	)

	// TasksCompleted counts async tasks that reached completed.
	TasksCompleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "yourank",
			Name:      "tasks_completed_total",
			Help:      "Async tasks finished successfully.",
		},
	)

	// TasksFailed counts async tasks by failure reason
	// (provider_error, submission_error, timeout, cancelled).
	TasksFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "yourank",
			Name:      "tasks_failed_total",
			Help:      "Async tasks that ended in failure.",
		},
		[]string{"reason"},
	)

	// TasksProcessing tracks poll loops currently running.
	TasksProcessing = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "yourank",
			Name:      "tasks_processing",
			Help:      "Async tasks currently in the processing state.",
		},
	)
)
