package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus instruments for the relay.
type Metrics struct {
	registry *prometheus.Registry

	// DeliveriesTotal counts webhook delivery attempts by outcome.
	DeliveriesTotal *prometheus.CounterVec

	// DeliveryDuration tracks webhook request latency in seconds.
	DeliveryDuration prometheus.Histogram

	// SkippedTotal counts candidates dropped before delivery.
	SkippedTotal *prometheus.CounterVec

	// TapRequestsTotal counts requests seen by the tap by verdict.
	TapRequestsTotal *prometheus.CounterVec

	// HealthProbesTotal counts endpoint health probes by outcome.
	HealthProbesTotal *prometheus.CounterVec

	// FailedQueueDepth tracks the current number of parked records.
	FailedQueueDepth prometheus.Gauge
}

// New creates a Metrics instance backed by its own registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		DeliveriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webhook_deliveries_total",
				Help: "Total number of webhook delivery attempts",
			},
			[]string{"outcome"}, // "success", "retry", "parked"
		),
		DeliveryDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "webhook_delivery_duration_seconds",
				Help:    "Duration of webhook requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		SkippedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_skipped_total",
				Help: "Total number of candidates skipped before delivery",
			},
			[]string{"reason"}, // "invalid", "duplicate"
		),
		TapRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tap_requests_total",
				Help: "Total number of requests seen by the traffic tap",
			},
			[]string{"verdict"}, // "captured", "blocked", "passed"
		),
		HealthProbesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "health_probes_total",
				Help: "Total number of webhook health probes",
			},
			[]string{"outcome"}, // "ok", "error"
		),
		FailedQueueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "failed_queue_depth",
				Help: "Current number of records in the failed queue",
			},
		),
	}
}

// Handler returns an HTTP handler exposing the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
