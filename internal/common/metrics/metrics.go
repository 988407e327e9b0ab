// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)
)

var (
	NotificationEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_events_total",
			Help: "Trigger events handled by the notifier, by result",
		},
		[]string{"event_type", "result"},
	)

	NotificationDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_deliveries_total",
			Help: "Settled delivery tokens by outcome",
		},
		[]string{"transport", "outcome"},
	)

	NotificationSendAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_send_attempts_total",
			Help: "Transport calls made by the dispatcher",
		},
		[]string{"transport"},
	)

	TokensInvalidated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notification_tokens_invalidated_total",
			Help: "Delivery tokens cleared from identity records",
		},
	)

	DispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notification_dispatch_duration_seconds",
			Help:    "Duration of a dispatch round including retries",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"transport"},
	)

	FeedMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "document_feed_messages_total",
			Help: "Document change messages received, by handling result",
		},
		[]string{"result"},
	)
)
