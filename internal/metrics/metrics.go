// Package metrics defines the Prometheus collectors for the alerting core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion metrics.
	EntriesIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logtrap_entries_ingested_total",
			Help: "Total number of log entries accepted for ingestion",
		},
		[]string{"source"}, // source: http, kafka
	)

	IngestRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logtrap_ingest_rejected_total",
			Help: "Total number of entries rejected at the ingestion boundary",
		},
		[]string{"source", "reason"},
	)

	IngestBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "logtrap_ingest_batch_size",
			Help:    "Size of entry batches received on the push API",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
	)

	// Pipeline metrics.
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "logtrap_pipeline_queue_depth",
			Help: "Current number of entries waiting for evaluation",
		},
	)

	QueueRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "logtrap_pipeline_queue_rejected_total",
			Help: "Entry notifications dropped because the evaluation queue was full",
		},
	)

	EntriesEvaluated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "logtrap_entries_evaluated_total",
			Help: "Total number of entries run through trap evaluation",
		},
	)

	EvaluationFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "logtrap_evaluation_failures_total",
			Help: "Entry evaluations that failed and were swallowed by the pipeline",
		},
	)

	PanicsRecovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logtrap_panics_recovered_total",
			Help: "Total number of panics recovered",
		},
		[]string{"component"},
	)

	// Alerting metrics.
	TrapsFired = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logtrap_traps_fired_total",
			Help: "Total number of trap matches",
		},
		[]string{"trap_type"},
	)

	AlertsFired = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logtrap_alerts_fired_total",
			Help: "Total number of alert history rows created",
		},
		[]string{"severity"},
	)

	AlertsThrottled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "logtrap_alerts_throttled_total",
			Help: "Alert firings suppressed by the per-rule throttle window",
		},
	)

	// Delivery metrics.
	Deliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logtrap_deliveries_total",
			Help: "Outbound notification deliveries by channel type and outcome",
		},
		[]string{"channel_type", "status"}, // status: ok, error, rate_limited
	)

	DeliveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "logtrap_delivery_duration_seconds",
			Help:    "Time taken to deliver a notification",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"channel_type"},
	)
)
