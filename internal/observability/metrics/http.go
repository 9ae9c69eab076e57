package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/medical-rag-assistant/internal/core/domain"
)

var knownPaths = map[string]struct{}{
	"/upload":  {},
	"/query":   {},
	"/healthz": {},
	"/metrics": {},
}

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	inFlight prometheus.Gauge

	queries   *prometheus.CounterVec
	queryTime *prometheus.HistogramVec
	retrieved prometheus.Histogram
	fallbacks prometheus.Counter
	skipped   *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	reg, f := newRegistry(service)
	return &HTTPServerMetrics{
		registry: reg,
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "path", "status"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		inFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Requests currently being served.",
		}),
		queries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "requests_total",
			Help:      "Handled queries by routed intent and outcome.",
		}, []string{"intent", "status"}),
		queryTime: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "duration_seconds",
			Help:      "End-to-end query latency by intent.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}, []string{"intent"}),
		retrieved: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rag",
			Name:      "retrieved_chunks",
			Help:      "Chunks placed into the context of one answered question.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		}),
		fallbacks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "classifier_fallback_total",
			Help:      "Queries routed by the fallback because the classifier reply was unrecognized.",
		}),
		skipped: newSkippedCounter(f),
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return handlerFor(m.registry)
}

// Middleware records request count, latency and concurrency. Paths outside
// the public routes are collapsed to "other" to bound label cardinality.
func (m *HTTPServerMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if _, ok := knownPaths[path]; !ok {
			path = "other"
		}
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		m.inFlight.Inc()
		start := time.Now()
		defer func() {
			m.inFlight.Dec()
			m.latency.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
			m.requests.WithLabelValues(r.Method, path, strconv.Itoa(sw.status)).Inc()
		}()

		next.ServeHTTP(sw, r)
	})
}

// RecordQuery counts one handled query. Intent is empty when classification failed.
func (m *HTTPServerMetrics) RecordQuery(intent, status string, elapsed time.Duration) {
	intent = orUnknown(intent)
	m.queries.WithLabelValues(intent, orUnknown(status)).Inc()
	m.queryTime.WithLabelValues(intent).Observe(elapsed.Seconds())
}

func (m *HTTPServerMetrics) RecordQueryStats(stats domain.QueryStats, intent domain.Intent) {
	if stats.FallbackApplied {
		m.fallbacks.Inc()
	}
	if intent == domain.IntentQA {
		m.retrieved.Observe(float64(stats.RetrievedChunks))
	}
	addSkipped(m.skipped, stats.SkipReasons)
}

func orUnknown(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
