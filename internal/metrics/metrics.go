// Package metrics exposes Prometheus metrics for pipeline self-observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Execution metrics
	ExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otelflow_pipeline_executions_total",
			Help: "Total number of pipeline executions by final status",
		},
		[]string{"status"},
	)

	ExecutionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "otelflow_pipeline_executions_active",
			Help: "Number of pipeline executions currently in flight",
		},
	)

	ExecutionsRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "otelflow_pipeline_executions_rejected_total",
			Help: "Total number of submissions rejected at capacity",
		},
	)

	// Stage metrics
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "otelflow_pipeline_stage_duration_seconds",
			Help:    "Duration of each pipeline stage in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	StageErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otelflow_pipeline_stage_errors_total",
			Help: "Total number of stage errors by stage",
		},
		[]string{"stage"},
	)

	// Sampling metrics
	SamplingKept = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otelflow_sampling_kept_total",
			Help: "Total number of items kept by sampling per signal type",
		},
		[]string{"signal"},
	)

	SamplingDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otelflow_sampling_dropped_total",
			Help: "Total number of items dropped by sampling per signal type",
		},
		[]string{"signal"},
	)

	// Delivery metrics
	DeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otelflow_sink_deliveries_total",
			Help: "Total number of sink deliveries by backend and status",
		},
		[]string{"backend", "status"},
	)

	DeliveredBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otelflow_sink_delivered_bytes_total",
			Help: "Total bytes delivered per backend",
		},
		[]string{"backend"},
	)

	DeliveryRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otelflow_sink_delivery_retries_total",
			Help: "Total number of delivery retries per backend",
		},
		[]string{"backend"},
	)
)
