package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTPCollector exposes Prometheus metrics for inbound HTTP requests.
type HTTPCollector struct {
	registry        *prometheus.Registry
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
}

// NewHTTPCollector constructs a collector with default histograms/counters.
func NewHTTPCollector() (*HTTPCollector, error) {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ghostarr",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Latency distribution for inbound HTTP requests.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ghostarr",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of inbound HTTP requests.",
	}, []string{"method", "path", "status"})

	if err := registry.Register(requestDuration); err != nil {
		return nil, err
	}

	if err := registry.Register(requestTotal); err != nil {
		return nil, err
	}

	return &HTTPCollector{
		registry:        registry,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
	}, nil
}

// Handler returns an HTTP handler for exposing Prometheus metrics.
func (c *HTTPCollector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler to record HTTP metrics.
func (c *HTTPCollector) InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(rw.status)
		path := r.URL.Path

		c.requestTotal.WithLabelValues(r.Method, path, status).Inc()
		c.requestDuration.WithLabelValues(r.Method, path, status).Observe(duration)
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// GenerationCollector tracks newsletter generation runs. All methods
// are nil-safe so callers can run without metrics in tests.
type GenerationCollector struct {
	runsTotal   *prometheus.CounterVec
	runDuration *prometheus.HistogramVec
	active      prometheus.Gauge
}

// NewGenerationCollector registers the generation metrics on the same
// registry as the HTTP metrics.
func NewGenerationCollector(httpCollector *HTTPCollector) (*GenerationCollector, error) {
	runsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ghostarr",
		Subsystem: "generation",
		Name:      "runs_total",
		Help:      "Total newsletter generation runs by terminal status.",
	}, []string{"status"})

	runDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ghostarr",
		Subsystem: "generation",
		Name:      "run_duration_seconds",
		Help:      "Wall time of newsletter generation runs.",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"status"})

	active := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "ghostarr",
		Subsystem: "generation",
		Name:      "active",
		Help:      "Number of generations currently running.",
	})

	for _, c := range []prometheus.Collector{runsTotal, runDuration, active} {
		if err := httpCollector.registry.Register(c); err != nil {
			return nil, err
		}
	}

	return &GenerationCollector{
		runsTotal:   runsTotal,
		runDuration: runDuration,
		active:      active,
	}, nil
}

// ObserveRun records one finished run.
func (c *GenerationCollector) ObserveRun(status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.runsTotal.WithLabelValues(status).Inc()
	c.runDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// SetActive updates the running-generations gauge.
func (c *GenerationCollector) SetActive(n int) {
	if c == nil {
		return
	}
	c.active.Set(float64(n))
}
