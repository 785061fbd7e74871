package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records batch outcomes. A nil *Metrics is valid and records nothing.
type Metrics struct {
	batchesTotal     *prometheus.CounterVec
	batchDuration    *prometheus.HistogramVec
	stageDuration    *prometheus.HistogramVec
	imagesTotal      prometheus.Counter
	outputBytesTotal prometheus.Counter
	sourceBytesTotal prometheus.Counter
	extentWidth      prometheus.Gauge
	extentHeight     prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		batchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "staffcut_batches_total",
			Help: "Total batches processed by final status.",
		}, []string{"status"}),
		batchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "staffcut_batch_duration_seconds",
			Help:    "Wall time of each batch from listing to the last write.",
			Buckets: prometheus.DefBuckets,
		}, []string{"status"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "staffcut_stage_duration_seconds",
			Help:    "Wall time of each pipeline stage.",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
		imagesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "staffcut_images_normalized_total",
			Help: "Total cutouts written.",
		}),
		outputBytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "staffcut_output_bytes_total",
			Help: "Total encoded bytes written, background included.",
		}),
		sourceBytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "staffcut_source_bytes_total",
			Help: "Total source bytes read by successful batches.",
		}),
		extentWidth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "staffcut_last_extent_width_pixels",
			Help: "Canvas width of the most recent successful batch.",
		}),
		extentHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "staffcut_last_extent_height_pixels",
			Help: "Canvas height of the most recent successful batch.",
		}),
	}

	reg.MustRegister(
		m.batchesTotal,
		m.batchDuration,
		m.stageDuration,
		m.imagesTotal,
		m.outputBytesTotal,
		m.sourceBytesTotal,
		m.extentWidth,
		m.extentHeight,
	)
	return m
}

func (m *Metrics) observeBatch(status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.batchesTotal.WithLabelValues(status).Inc()
	m.batchDuration.WithLabelValues(status).Observe(elapsed.Seconds())
}

func (m *Metrics) observeResult(result Result) {
	if m == nil {
		return
	}
	m.imagesTotal.Add(float64(len(result.Outputs)))
	bytes := result.Background.Bytes
	for _, output := range result.Outputs {
		bytes += output.Bytes
	}
	m.outputBytesTotal.Add(float64(bytes))
	m.sourceBytesTotal.Add(float64(result.SourceBytes))
	m.extentWidth.Set(float64(result.Extent.W))
	m.extentHeight.Set(float64(result.Extent.H))
}

// timeStage starts a stage timer; call the returned func when the stage ends.
func (m *Metrics) timeStage(stage string) func() {
	if m == nil {
		return func() {}
	}
	timer := prometheus.NewTimer(m.stageDuration.WithLabelValues(stage))
	return func() { timer.ObserveDuration() }
}
