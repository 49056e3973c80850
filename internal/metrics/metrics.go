// Package metrics exposes Prometheus collectors for the script census run.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fetchAttemptsTotal          *prometheus.CounterVec
	fetchBytesTotal             prometheus.Counter
	fetchDurationSeconds        *prometheus.HistogramVec
	scriptTagsPerPage           prometheus.Histogram
	storeWritesTotal            *prometheus.CounterVec
	unexpectedWorkerErrorsTotal prometheus.Counter
	activeWorkers               prometheus.Gauge
	rateLimitDelaySeconds       prometheus.Histogram
	robotsFallbacksTotal        prometheus.Counter
	httpRequestsTotal           *prometheus.CounterVec
	httpRequestDurationSeconds  *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		fetchAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scriptcensus_fetch_attempts_total",
				Help: "Total number of fetch attempts, labeled by outcome status.",
			},
			[]string{"status"},
		)

		fetchBytesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "scriptcensus_fetch_bytes_total",
				Help: "Total number of response body bytes read.",
			},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scriptcensus_fetch_duration_seconds",
				Help:    "Histogram of fetch attempt latencies, labeled by outcome status.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"status"},
		)

		scriptTagsPerPage = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "scriptcensus_script_tags_per_page",
				Help:    "Distribution of <script> tag counts on successfully fetched pages.",
				Buckets: []float64{0, 1, 2, 5, 10, 20, 50, 100},
			},
		)

		storeWritesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scriptcensus_store_writes_total",
				Help: "Total number of result store upserts, labeled by result.",
			},
			[]string{"result"},
		)

		unexpectedWorkerErrorsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "scriptcensus_unexpected_worker_errors_total",
				Help: "Total number of URLs skipped because of an unclassified worker error.",
			},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "scriptcensus_active_workers",
				Help: "Number of workers currently processing a URL.",
			},
		)

		rateLimitDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "scriptcensus_rate_limit_delay_seconds",
				Help:    "Time fetches spent waiting on the per-host rate limiter.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
		)

		robotsFallbacksTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "scriptcensus_robots_fallbacks_total",
				Help: "Number of robots.txt probes that timed out and were treated as allow-all.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveFetch records one fetch attempt.
func ObserveFetch(status string, duration time.Duration, bytesRead int) {
	Init()
	fetchAttemptsTotal.WithLabelValues(status).Inc()
	fetchDurationSeconds.WithLabelValues(status).Observe(duration.Seconds())
	if bytesRead > 0 {
		fetchBytesTotal.Add(float64(bytesRead))
	}
}

// ObserveScriptCount records the script tag count of a successful page.
func ObserveScriptCount(n int) {
	Init()
	scriptTagsPerPage.Observe(float64(n))
}

// ObserveStoreWrite records an upsert outcome ("ok" or "error").
func ObserveStoreWrite(result string) {
	Init()
	storeWritesTotal.WithLabelValues(result).Inc()
}

// ObserveUnexpectedWorkerError increments the skipped-URL counter.
func ObserveUnexpectedWorkerError() {
	Init()
	unexpectedWorkerErrorsTotal.Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	activeWorkers.Dec()
}

// ObserveRateLimitDelay records how long a fetch waited for its host's token.
func ObserveRateLimitDelay(d time.Duration) {
	Init()
	rateLimitDelaySeconds.Observe(d.Seconds())
}

// ObserveRobotsFallback counts a robots.txt probe that fell back to allow-all.
func ObserveRobotsFallback() {
	Init()
	robotsFallbacksTotal.Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
