// Package metrics exposes the Prometheus registry used by the scraper.
// All metrics are defined in their respective packages (client, cache,
// scheduler, scrape, output) and registered via promauto.
//
// This package provides the HTTP handler and a reference of every metric.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the scraper.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer paired with Registry.
var Gatherer = prometheus.DefaultGatherer

// Handler returns the /metrics HTTP handler for Gatherer.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - fx_requests_total{method, status} (Counter): Requests by method and HTTP status ("error" for transport failures)
//   - fx_request_duration_seconds{method} (Histogram): Request duration by method
//   - fx_errors_total{class} (Counter): Failed attempts by class (timeout, server, client, status, network)
//
// Retry Metrics (pkg/client):
//   - fx_retries_total{error_class} (Counter): Retry attempts by error class
//   - fx_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - fx_retry_exhausted_total{error_class} (Counter): Requests that reached max_attempts
//
// Scheduler Metrics (pkg/scheduler):
//   - fx_scheduler_tasks_total{scheduler, outcome} (Counter): Finished tasks
//   - fx_scheduler_in_flight{scheduler} (Gauge): Tasks currently running
//   - fx_scheduler_drains_total{scheduler} (Counter): Completed drain waves
//
// Scrape Metrics (pkg/scrape):
//   - fx_entities_total{outcome} (Counter): Currencies by outcome (written, no_data, failed)
//   - fx_rows_written_total (Counter): Data rows handed to the sink
//   - fx_entity_pages (Histogram): Result pages per currency
//   - fx_entity_duration_seconds (Histogram): Time per currency
//
// Output Metrics (pkg/output):
//   - fx_sink_writes_total{sink, outcome} (Counter): Table writes
//   - fx_sink_rows_total{sink} (Counter): Rows persisted
//
// Cache Metrics (pkg/cache):
//   - fx_cache_hits_total (Counter): Document cache hits
//   - fx_cache_misses_total (Counter): Document cache misses
//   - fx_cache_errors_total{operation} (Counter): Cache operation errors
//
// Example Prometheus Queries:
//
//   # Retry pressure
//   sum(rate(fx_retries_total[5m])) by (error_class)
//
//   # Failed currencies
//   increase(fx_entities_total{outcome="failed"}[1h])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(fx_request_duration_seconds_bucket[5m]))
//
//   # Cache Hit Rate
//   sum(rate(fx_cache_hits_total[5m])) /
//   (sum(rate(fx_cache_hits_total[5m])) + sum(rate(fx_cache_misses_total[5m])))
