// Package obs holds process-wide observability helpers.
package obs

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	resolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenant_resolutions_total",
			Help: "Tenant resolution attempts by terminal outcome.",
		},
		[]string{"outcome"},
	)

	poolsCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tenant_pools_created_total",
		Help: "Connection pools created, one per distinct signature.",
	})

	poolsEvictedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenant_pools_evicted_total",
			Help: "Connection pools removed from the cache, by cause.",
		},
		[]string{"cause"},
	)

	activePools = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tenant_pools_active",
		Help: "Connection pools currently cached.",
	})
)

var registerOnce sync.Once

// Init registers all metrics on the default registry. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequestsTotal,
			httpRequestDuration,
			resolutionsTotal,
			poolsCreatedTotal,
			poolsEvictedTotal,
			activePools,
		)
	})
}

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveResolution records one terminal resolver outcome ("resolved",
// "unknown_tenant", "tenant_suspended", ...).
func ObserveResolution(outcome string) {
	resolutionsTotal.WithLabelValues(outcome).Inc()
}

// PoolCreated / PoolEvicted / SetActivePools are called by the pool cache.
func PoolCreated() { poolsCreatedTotal.Inc() }

func PoolEvicted(cause string) { poolsEvictedTotal.WithLabelValues(cause).Inc() }

func SetActivePools(n int) { activePools.Set(float64(n)) }

// Instrument wraps an HTTP handler with request count and latency metrics.
// The route pattern should be used as path where available to bound cardinality.
func Instrument(path string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		status := strconv.Itoa(sw.code)
		httpRequestDuration.WithLabelValues(r.Method, path, status).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
	})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
