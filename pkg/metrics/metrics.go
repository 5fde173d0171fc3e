package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FetchAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dealwatch_fetch_attempts_total",
		Help: "Fetch attempts per source, labelled by the classified outcome",
	}, []string{"source", "outcome"})

	FetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dealwatch_fetch_duration_seconds",
		Help:    "Duration of a full fetch including retries",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 12),
	}, []string{"source"})

	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dealwatch_notifications_total",
		Help: "Notifications by kind and delivery status",
	}, []string{"kind", "status"})

	TaskFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dealwatch_task_failures_total",
		Help: "Orchestrator tasks that ended in an unexpected fault",
	}, []string{"source"})

	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dealwatch_cache_lookups_total",
		Help: "Product cache lookups",
	}, []string{"result"})

	DroppedLogs = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dealwatch_log_records_dropped_total",
		Help: "Log records dropped because the funnel stayed full",
	})
)
