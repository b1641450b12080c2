package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	registry *prometheus.Registry

	writeTotal    *prometheus.CounterVec
	writeDuration *prometheus.HistogramVec
	writeInFlight prometheus.Gauge
	transcriptLag *prometheus.HistogramVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	writeTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "transcript_write_total",
			Help:      "Total transcript entries written by status.",
		},
		[]string{"service", "status"},
	)
	writeDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "transcript_write_duration_seconds",
			Help:      "Transcript write duration in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	writeInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "transcript_write_in_flight",
			Help:      "Number of in-flight transcript writes.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	transcriptLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "transcript_lag_seconds",
			Help:      "Delay between the chat turn and its transcript write.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"service"},
	)

	registry.MustRegister(writeTotal, writeDuration, writeInFlight, transcriptLag)

	return &WorkerMetrics{
		registry:      registry,
		writeTotal:    writeTotal,
		writeDuration: writeDuration,
		writeInFlight: writeInFlight,
		transcriptLag: transcriptLag,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartWrite() {
	m.writeInFlight.Inc()
}

func (m *WorkerMetrics) FinishWrite(service string, duration time.Duration, err error) {
	m.writeInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.writeTotal.WithLabelValues(service, status).Inc()
	m.writeDuration.WithLabelValues(service, status).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveTranscriptLag(service string, lag time.Duration) {
	if lag < 0 {
		return
	}
	m.transcriptLag.WithLabelValues(service).Observe(lag.Seconds())
}
