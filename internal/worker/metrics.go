package worker

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dunamismax/staffcut/internal/pipeline"
)

type metrics struct {
	registry      *prometheus.Registry
	batchesTotal  *prometheus.CounterVec
	batchDuration *prometheus.HistogramVec
	activeBatches prometheus.Gauge
	webhookErrors *prometheus.CounterVec
	pipeline      *pipeline.Metrics
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &metrics{
		registry: registry,
		batchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "staffcut_worker_batches_total",
			Help: "Total worker batches by source type and final status.",
		}, []string{"source_type", "status"}),
		batchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "staffcut_worker_batch_duration_seconds",
			Help:    "Total handling duration for each worker batch, webhook included.",
			Buckets: prometheus.DefBuckets,
		}, []string{"source_type", "status"}),
		activeBatches: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "staffcut_worker_active_batches",
			Help: "Current number of batches being normalized by the worker.",
		}),
		webhookErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "staffcut_worker_webhook_failures_total",
			Help: "Total webhook deliveries that failed after all attempts.",
		}, []string{"event"}),
		pipeline: pipeline.NewMetrics(registry),
	}

	registry.MustRegister(
		m.batchesTotal,
		m.batchDuration,
		m.activeBatches,
		m.webhookErrors,
	)
	return m
}

func (m *metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
