// Package metrics defines the Prometheus metric collectors used across the
// service and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	IngestTotal          *prometheus.CounterVec
	IngestFailuresTotal  *prometheus.CounterVec
	IngestDuration       prometheus.Histogram
	UploadBytes          prometheus.Histogram
	EnrichmentTotal      *prometheus.CounterVec
	EnrichmentDuration   prometheus.Histogram
	DeletesTotal         *prometheus.CounterVec
	GatewayQueriesTotal  *prometheus.CounterVec
	GatewayQueryDuration prometheus.Histogram
	GatewayCacheHits     prometheus.Counter
	GatewayCacheMisses   prometheus.Counter
	EventsPublishedTotal *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		IngestTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "documents_ingested_total",
				Help: "Total documents ingested by enrichment outcome (enriched, degraded, skipped).",
			},
			[]string{"outcome"},
		),
		IngestFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "document_ingest_failures_total",
				Help: "Total ingestion failures by pipeline stage (validate, upload, persist).",
			},
			[]string{"stage"},
		),
		IngestDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "document_ingest_duration_seconds",
				Help:    "End-to-end ingestion latency in seconds, enrichment included.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
		),
		UploadBytes: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "document_upload_bytes",
				Help:    "Size distribution of uploaded files in bytes.",
				Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
			},
		),
		EnrichmentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "document_enrichment_total",
				Help: "Total enrichment attempts by result (ok, export_failed, analyze_failed, update_failed).",
			},
			[]string{"result"},
		),
		EnrichmentDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "document_enrichment_duration_seconds",
				Help:    "Enrichment stage latency in seconds (text export plus analysis).",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
		),
		DeletesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "documents_deleted_total",
				Help: "Total document deletions by drive outcome (drive_ok, drive_failed, no_drive_file).",
			},
			[]string{"drive"},
		),
		GatewayQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_queries_total",
				Help: "Total SQL gateway queries by result (ok, rejected, error).",
			},
			[]string{"result"},
		),
		GatewayQueryDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "gateway_query_duration_seconds",
				Help:    "SQL gateway query execution latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5, 10},
			},
		),
		GatewayCacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gateway_cache_hits_total",
				Help: "Total gateway query cache hits.",
			},
		),
		GatewayCacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gateway_cache_misses_total",
				Help: "Total gateway query cache misses.",
			},
		),
		EventsPublishedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "document_events_published_total",
				Help: "Total document lifecycle events published by status (ok, failed).",
			},
			[]string{"status"},
		),
	}

	prometheus.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.IngestTotal,
		m.IngestFailuresTotal,
		m.IngestDuration,
		m.UploadBytes,
		m.EnrichmentTotal,
		m.EnrichmentDuration,
		m.DeletesTotal,
		m.GatewayQueriesTotal,
		m.GatewayQueryDuration,
		m.GatewayCacheHits,
		m.GatewayCacheMisses,
		m.EventsPublishedTotal,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
