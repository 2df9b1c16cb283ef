package observability

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type serviceMetrics struct {
	requests *prometheus.CounterVec
	errors   *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

var (
	serviceMetricsOnce sync.Once
	serviceRegistry    *serviceMetrics
)

// Service returns the lazily-initialised metrics registry used to record HTTP
// API activity.
func Service() *serviceMetrics {
	serviceMetricsOnce.Do(func() {
		serviceRegistry = &serviceMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "sdx",
				Subsystem: "api",
				Name:      "requests_total",
				Help:      "Total HTTP API requests segmented by route, method, and outcome.",
			}, []string{"route", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "sdx",
				Subsystem: "api",
				Name:      "errors_total",
				Help:      "Total HTTP API errors segmented by route, method, and status code.",
			}, []string{"route", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "sdx",
				Subsystem: "api",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for HTTP API handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route", "method"}),
		}
		prometheus.MustRegister(
			serviceRegistry.requests,
			serviceRegistry.errors,
			serviceRegistry.latency,
		)
	})
	return serviceRegistry
}

// Observe records the outcome of an API request. The status code should be the
// HTTP status that was ultimately written to the response writer.
func (m *serviceMetrics) Observe(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	route = normalizeLabel(route)
	method = normalizeLabel(method)
	outcome := "ok"
	if status >= 400 {
		outcome = "error"
		m.errors.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	}
	m.requests.WithLabelValues(route, method, outcome).Inc()
	m.latency.WithLabelValues(route, method).Observe(duration.Seconds())
}

func normalizeLabel(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "unknown"
	}
	return v
}
