// Package metrics provides Prometheus metrics for Pinpoint
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for Pinpoint
type Metrics struct {
	// HTTP request metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Upstream (Wikidata, Commons) metrics
	UpstreamRequestsTotal   *prometheus.CounterVec
	UpstreamRequestDuration *prometheus.HistogramVec

	// Store metrics
	StoreOperationsTotal   *prometheus.CounterVec
	StoreOperationDuration *prometheus.HistogramVec
	DatasetsTotal          prometheus.Gauge
	RecordsFetchedTotal    *prometheus.CounterVec

	// Map shape cache metrics
	MapCacheLookupsTotal *prometheus.CounterVec

	// Server metrics
	ServerUptimeSeconds prometheus.Gauge
	ServerStartTime     time.Time
}

// NewMetrics creates all Prometheus metrics and registers them with reg.
// A nil reg registers with the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	m := &Metrics{
		ServerStartTime: time.Now(),
	}

	m.HTTPRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pinpoint_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	m.HTTPRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pinpoint_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	m.HTTPRequestsInFlight = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "pinpoint_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	m.UpstreamRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pinpoint_upstream_requests_total",
			Help: "Total number of requests to Wikidata and map shape hosts",
		},
		[]string{"endpoint", "status"},
	)

	// SPARQL queries routinely take tens of seconds
	m.UpstreamRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pinpoint_upstream_request_duration_seconds",
			Help:    "Duration of upstream requests in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"endpoint"},
	)

	m.StoreOperationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pinpoint_store_operations_total",
			Help: "Total number of dataset store operations",
		},
		[]string{"operation", "status"},
	)

	m.StoreOperationDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pinpoint_store_operation_duration_seconds",
			Help:    "Duration of dataset store operations in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"operation"},
	)

	m.DatasetsTotal = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "pinpoint_datasets_total",
			Help: "Number of datasets in the store",
		},
	)

	m.RecordsFetchedTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pinpoint_records_fetched_total",
			Help: "Total number of normalized records fetched from Wikidata",
		},
		[]string{"dataset_type"},
	)

	m.MapCacheLookupsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pinpoint_mapcache_lookups_total",
			Help: "Total number of map shape cache lookups by result",
		},
		[]string{"result"},
	)

	m.ServerUptimeSeconds = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "pinpoint_server_uptime_seconds",
			Help: "Server uptime in seconds",
		},
	)

	return m
}

// RunUptime updates the server uptime metric until stop is closed
func (m *Metrics) RunUptime(stop <-chan struct{}) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.ServerUptimeSeconds.Set(time.Since(m.ServerStartTime).Seconds())
		}
	}
}

// RecordHTTPRequest records an HTTP request with its status code class
func (m *Metrics) RecordHTTPRequest(method, route, status string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordUpstreamRequest records a call to an external endpoint
func (m *Metrics) RecordUpstreamRequest(endpoint, status string, duration time.Duration) {
	m.UpstreamRequestsTotal.WithLabelValues(endpoint, status).Inc()
	m.UpstreamRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordStoreOperation records a dataset store operation
func (m *Metrics) RecordStoreOperation(operation, status string, duration time.Duration) {
	m.StoreOperationsTotal.WithLabelValues(operation, status).Inc()
	m.StoreOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordMapCacheLookup counts a cache lookup ("hit", "miss" or "error")
func (m *Metrics) RecordMapCacheLookup(result string) {
	m.MapCacheLookupsTotal.WithLabelValues(result).Inc()
}

// RecordFetchedRecords adds n normalized records of the given dataset type
func (m *Metrics) RecordFetchedRecords(datasetType string, n int) {
	m.RecordsFetchedTotal.WithLabelValues(datasetType).Add(float64(n))
}

// UpdateStoreStats updates dataset store statistics
func (m *Metrics) UpdateStoreStats(datasetCount int) {
	m.DatasetsTotal.Set(float64(datasetCount))
}
