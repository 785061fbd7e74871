package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Submission results for staffcut_api_batches_submitted_total.
const (
	submissionQueued      = "queued"
	submissionRejected    = "rejected"
	submissionRateLimited = "rate_limited"
	submissionFailed      = "failed"
)

type metrics struct {
	registry         *prometheus.Registry
	requestTotal     *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	batchesSubmitted *prometheus.CounterVec
	pagesAdmitted    *prometheus.CounterVec
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &metrics{
		registry: registry,
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "staffcut_api_requests_total",
			Help: "Total HTTP requests handled by the API, by ServeMux pattern.",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "staffcut_api_request_duration_seconds",
			Help:    "API request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		batchesSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "staffcut_api_batches_submitted_total",
			Help: "Batch submissions by source type and result.",
		}, []string{"source_type", "result"}),
		pagesAdmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "staffcut_api_pages_admitted_total",
			Help: "Pages charged to the rate limiter by queued batches.",
		}, []string{"source_type"}),
	}
	registry.MustRegister(
		m.requestTotal,
		m.requestDuration,
		m.batchesSubmitted,
		m.pagesAdmitted,
	)
	return m
}

func (m *metrics) metricsHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *metrics) observeRequest(method, route string, status int, elapsed time.Duration) {
	m.requestTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (m *metrics) observeSubmission(sourceType, result string) {
	m.batchesSubmitted.WithLabelValues(sourceType, result).Inc()
}
