package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// WorkerMetrics tracks background pre-indexing of uploaded documents.
type WorkerMetrics struct {
	registry *prometheus.Registry

	jobs     *prometheus.CounterVec
	jobTime  *prometheus.HistogramVec
	inFlight prometheus.Gauge
	chunks   prometheus.Counter
	skipped  *prometheus.CounterVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	reg, f := newRegistry(service)
	return &WorkerMetrics{
		registry: reg,
		jobs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "document_index_total",
			Help:      "Uploaded documents pre-indexed by outcome.",
		}, []string{"status"}),
		jobTime: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "document_index_duration_seconds",
			Help:      "Time spent loading, chunking and embedding one document.",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 180, 300},
		}, []string{"status"}),
		inFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "document_index_in_flight",
			Help:      "Indexing jobs currently running.",
		}),
		chunks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "chunks_indexed_total",
			Help:      "Chunks written to the vector index.",
		}),
		skipped: newSkippedCounter(f),
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return handlerFor(m.registry)
}

func (m *WorkerMetrics) StartDocument() {
	m.inFlight.Inc()
}

func (m *WorkerMetrics) FinishDocument(elapsed time.Duration, chunks int, skipped map[string]int, err error) {
	m.inFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}
	m.jobs.WithLabelValues(status).Inc()
	m.jobTime.WithLabelValues(status).Observe(elapsed.Seconds())
	if chunks > 0 {
		m.chunks.Add(float64(chunks))
	}
	addSkipped(m.skipped, skipped)
}
