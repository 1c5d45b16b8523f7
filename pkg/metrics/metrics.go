// Package metrics exposes Prometheus instrumentation for the queue, the
// pipeline, and the HTTP API.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Queue metrics
	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nexus_queue_depth",
			Help: "Current depth of each priority tier",
		},
		[]string{"tier"},
	)

	DeadLetterDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "nexus_dead_letter_depth",
			Help: "Current length of the dead-letter list",
		},
	)

	OnlineWorkers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "nexus_workers_online",
			Help: "Number of workers with a live heartbeat",
		},
	)

	// Task metrics
	TasksCompleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "nexus_tasks_completed_total",
			Help: "Total number of research tasks completed",
		},
	)

	TasksFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexus_tasks_failed_total",
			Help: "Total number of research tasks failed, by error category",
		},
		[]string{"category"},
	)

	// Pipeline metrics
	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nexus_stage_duration_seconds",
			Help:    "Duration of pipeline stage executions in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
		[]string{"stage", "status"},
	)

	StageRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexus_stage_retries_total",
			Help: "Total number of in-pipeline stage retries",
		},
		[]string{"stage"},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexus_api_requests_total",
			Help: "Total number of API requests by method, route, and status",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nexus_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

func init() {
	prometheus.MustRegister(QueueDepth)
	prometheus.MustRegister(DeadLetterDepth)
	prometheus.MustRegister(OnlineWorkers)
	prometheus.MustRegister(TasksCompleted)
	prometheus.MustRegister(TasksFailed)
	prometheus.MustRegister(StageDuration)
	prometheus.MustRegister(StageRetries)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
}

// Handler returns the Prometheus exposition handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
