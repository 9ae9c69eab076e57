// Package metrics exposes Prometheus collectors for the api and worker
// processes. Each process owns a private registry and every series carries a
// constant service label.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mra"

func newRegistry(service string) (*prometheus.Registry, promauto.Factory) {
	reg := prometheus.NewRegistry()
	labelled := prometheus.WrapRegistererWith(prometheus.Labels{"service": service}, reg)
	return reg, promauto.With(labelled)
}

func handlerFor(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

func newSkippedCounter(f promauto.Factory) *prometheus.CounterVec {
	return f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "skipped_documents_total",
		Help:      "Documents skipped during ingestion by reason.",
	}, []string{"reason"})
}

func addSkipped(c *prometheus.CounterVec, skipped map[string]int) {
	for reason, n := range skipped {
		if n > 0 {
			c.WithLabelValues(reason).Add(float64(n))
		}
	}
}
