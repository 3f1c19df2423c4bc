// Package metrics exposes Prometheus counters for the HTTP surface, the click
// recorder and the link cache.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "linkstat"

// unmatchedRoute labels requests the mux did not route, so arbitrary paths
// cannot blow up label cardinality.
const unmatchedRoute = "unmatched"

// Metrics owns a private registry. Each instance registers its own
// collectors, so tests can build as many as they like.
type Metrics struct {
	factory promauto.Factory
	handler http.Handler

	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	cache    *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		factory: factory,
		handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),

		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"route"}),
		cache: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "link_cache_lookups_total",
			Help:      "Link cache lookups by result (hit, miss, error).",
		}, []string{"result"}),
	}
}

// Middleware records one sample per request. It must sit inside every
// middleware that replaces the request, since the mux fills r.Pattern on the
// request it receives.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		route := r.Pattern
		if route == "" {
			route = unmatchedRoute
		}
		m.requests.WithLabelValues(r.Method, route, strconv.Itoa(sw.status)).Inc()
		m.duration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// CacheResult counts one cache lookup outcome.
func (m *Metrics) CacheResult(result string) {
	m.cache.WithLabelValues(result).Inc()
}

// ObserveRecorder exports the click recorder's running totals. Call it once
// per recorder; stats is read on every scrape.
func (m *Metrics) ObserveRecorder(stats func() (recorded, failed, dropped int64)) {
	counter := func(name, help string, pick func(recorded, failed, dropped int64) int64) {
		m.factory.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, func() float64 {
			return float64(pick(stats()))
		})
	}

	counter("clicks_recorded_total", "Clicks written to the store.",
		func(r, _, _ int64) int64 { return r })
	counter("clicks_failed_total", "Clicks the store rejected or timed out on.",
		func(_, f, _ int64) int64 { return f })
	counter("clicks_dropped_total", "Clicks discarded because the queue was full.",
		func(_, _, d int64) int64 { return d })
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return m.handler
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
