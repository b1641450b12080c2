package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dviz"

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	turnsTotal            *prometheus.CounterVec
	turnDuration          *prometheus.HistogramVec
	rewriteFallbacksTotal *prometheus.CounterVec
	detectedHitsTotal     *prometheus.CounterVec
	droppedFiltersTotal   *prometheus.CounterVec
	searchResults         *prometheus.HistogramVec
	searchFailuresTotal   *prometheus.CounterVec
	rerankFallbacksTotal  *prometheus.CounterVec
	describeFailuresTotal *prometheus.CounterVec
	breakerState          *prometheus.GaugeVec
}

// TurnObservation is what the HTTP adapter reports after each chat turn.
type TurnObservation struct {
	Mode            string
	Facets          []string
	DroppedFilters  int
	ResultCount     int
	RewriteFallback bool
	SearchFailed    bool
	RerankFallback  bool
	DescribeFailed  bool
	Duration        time.Duration
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	turnsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "turn",
			Name:      "total",
			Help:      "Total completed chat turns by mode.",
		},
		[]string{"service", "mode"},
	)
	turnDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "turn",
			Name:      "duration_seconds",
			Help:      "Chat turn duration in seconds by mode.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 40},
		},
		[]string{"service", "mode"},
	)
	rewriteFallbacksTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rewrite",
			Name:      "fallbacks_total",
			Help:      "Turns that kept the original query because rewriting failed.",
		},
		[]string{"service"},
	)
	detectedHitsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detect",
			Name:      "hits_total",
			Help:      "Detected facet hits by facet.",
		},
		[]string{"service", "facet"},
	)
	droppedFiltersTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "dropped_filters_total",
			Help:      "Filter hits dropped because their value could not be normalized.",
		},
		[]string{"service"},
	)
	searchResults := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "results",
			Help:      "Distribution of displayed results per turn.",
			Buckets:   []float64{0, 1, 5, 10, 20, 30, 50},
		},
		[]string{"service", "mode"},
	)
	searchFailuresTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "failures_total",
			Help:      "Turns whose backend query failed.",
		},
		[]string{"service", "mode"},
	)
	rerankFallbacksTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rerank",
			Name:      "fallbacks_total",
			Help:      "Turns whose re-ranking fell back to distance filtering.",
		},
		[]string{"service", "mode"},
	)
	describeFailuresTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "describe",
			Name:      "failures_total",
			Help:      "Image analyses that failed by mode.",
		},
		[]string{"service", "mode"},
	)
	breakerState := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "breaker_state",
			Help:      "Circuit breaker state by operation (0 closed, 1 half-open, 2 open).",
		},
		[]string{"service", "operation"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		turnsTotal,
		turnDuration,
		rewriteFallbacksTotal,
		detectedHitsTotal,
		droppedFiltersTotal,
		searchResults,
		searchFailuresTotal,
		rerankFallbacksTotal,
		describeFailuresTotal,
		breakerState,
	)

	return &HTTPServerMetrics{
		registry:              registry,
		requestTotal:          requestTotal,
		requestDuration:       requestDuration,
		requestInFlight:       requestInFlight,
		turnsTotal:            turnsTotal,
		turnDuration:          turnDuration,
		rewriteFallbacksTotal: rewriteFallbacksTotal,
		detectedHitsTotal:     detectedHitsTotal,
		droppedFiltersTotal:   droppedFiltersTotal,
		searchResults:         searchResults,
		searchFailuresTotal:   searchFailuresTotal,
		rerankFallbacksTotal:  rerankFallbacksTotal,
		describeFailuresTotal: describeFailuresTotal,
		breakerState:          breakerState,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/sessions/") && strings.HasSuffix(path, "/turns"):
		return "/v1/sessions/{session_id}/turns"
	case strings.HasPrefix(path, "/v1/sessions/"):
		return "/v1/sessions/{session_id}"
	case strings.HasPrefix(path, "/v1/images/"):
		return "/v1/images/{image_id}"
	case strings.HasPrefix(path, "/mcp"):
		return "/mcp"
	default:
		return path
	}
}

func (m *HTTPServerMetrics) RecordTurn(service string, obs TurnObservation) {
	mode := obs.Mode
	if mode == "" {
		mode = "unknown"
	}
	m.turnsTotal.WithLabelValues(service, mode).Inc()
	m.turnDuration.WithLabelValues(service, mode).Observe(obs.Duration.Seconds())
	m.searchResults.WithLabelValues(service, mode).Observe(float64(obs.ResultCount))

	for _, facet := range obs.Facets {
		m.detectedHitsTotal.WithLabelValues(service, facet).Inc()
	}
	if obs.DroppedFilters > 0 {
		m.droppedFiltersTotal.WithLabelValues(service).Add(float64(obs.DroppedFilters))
	}
	if obs.RewriteFallback {
		m.rewriteFallbacksTotal.WithLabelValues(service).Inc()
	}
	if obs.SearchFailed {
		m.searchFailuresTotal.WithLabelValues(service, mode).Inc()
	}
	if obs.RerankFallback {
		m.rerankFallbacksTotal.WithLabelValues(service, mode).Inc()
	}
	if obs.DescribeFailed {
		m.describeFailuresTotal.WithLabelValues(service, mode).Inc()
	}
}

// RecordBreakerState maps gobreaker state names onto the breaker_state gauge.
func (m *HTTPServerMetrics) RecordBreakerState(service, operation, state string) {
	value := 0.0
	switch state {
	case "half-open":
		value = 1
	case "open":
		value = 2
	}
	m.breakerState.WithLabelValues(service, operation).Set(value)
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}
