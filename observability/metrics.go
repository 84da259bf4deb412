package observability

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

type registryMetrics struct {
	operations      *prometheus.CounterVec
	latency         *prometheus.HistogramVec
	rollbacks       prometheus.Counter
	height          prometheus.Gauge
	totalRegistered prometheus.Gauge
	published       *prometheus.CounterVec
	sinkFailures    *prometheus.CounterVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	registryMetricsOnce sync.Once
	registryRegistry    *registryMetrics
)

// ModuleMetrics returns the lazily-initialised module metrics registry used to
// record RPC module activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "jid",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Total JSON-RPC requests segmented by module and method.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "jid",
				Subsystem: "rpc",
				Name:      "errors_total",
				Help:      "Total JSON-RPC errors segmented by module, method, and status code.",
			}, []string{"module", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "jid",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "jid",
				Subsystem: "rpc",
				Name:      "throttles_total",
				Help:      "Count of requests rejected due to throttling policies.",
			}, []string{"module", "reason"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
			moduleRegistry.throttles,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of a module request. The status code should be
// the HTTP status that was ultimately written to the response writer.
func (m *moduleMetrics) Observe(module, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(module, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied module and
// reason. Reasons should be stable strings such as "rate_limit".
func (m *moduleMetrics) RecordThrottle(module, reason string) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(module, reason).Inc()
}

// RegistryMetrics returns the collectors tracking registry invocations.
func RegistryMetrics() *registryMetrics {
	registryMetricsOnce.Do(func() {
		registryRegistry = &registryMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "jid",
				Subsystem: "registry",
				Name:      "operations_total",
				Help:      "Registry invocations segmented by operation and result code.",
			}, []string{"operation", "code"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "jid",
				Subsystem: "registry",
				Name:      "operation_duration_seconds",
				Help:      "Latency of registry invocations including commit.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			rollbacks: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "jid",
				Subsystem: "registry",
				Name:      "rollbacks_total",
				Help:      "Invocations whose writes were discarded.",
			}),
			height: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "jid",
				Subsystem: "registry",
				Name:      "state_height",
				Help:      "Number of committed state transitions.",
			}),
			totalRegistered: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "jid",
				Subsystem: "registry",
				Name:      "registrations_total",
				Help:      "Historical count of successful registrations.",
			}),
			published: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "jid",
				Subsystem: "events",
				Name:      "published_total",
				Help:      "Committed notifications by type.",
			}, []string{"type"}),
			sinkFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "jid",
				Subsystem: "events",
				Name:      "sink_failures_total",
				Help:      "Committed batches a sink failed to accept.",
			}, []string{"sink"}),
		}
		prometheus.MustRegister(
			registryRegistry.operations,
			registryRegistry.latency,
			registryRegistry.rollbacks,
			registryRegistry.height,
			registryRegistry.totalRegistered,
			registryRegistry.published,
			registryRegistry.sinkFailures,
		)
	})
	return registryRegistry
}

// Observe records a finished invocation. An empty code marks success.
func (m *registryMetrics) Observe(operation, code string, duration time.Duration) {
	if m == nil {
		return
	}
	if operation == "" {
		operation = "unknown"
	}
	if code == "" {
		code = "ok"
	}
	m.operations.WithLabelValues(operation, code).Inc()
	m.latency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordRollback counts an invocation whose writes were discarded.
func (m *registryMetrics) RecordRollback() {
	if m == nil {
		return
	}
	m.rollbacks.Inc()
}

// SetHeight publishes the committed state height.
func (m *registryMetrics) SetHeight(height uint64) {
	if m == nil {
		return
	}
	m.height.Set(float64(height))
}

// SetTotalRegistered publishes the registration counter.
func (m *registryMetrics) SetTotalRegistered(total uint64) {
	if m == nil {
		return
	}
	m.totalRegistered.Set(float64(total))
}

// RecordPublished counts one committed notification.
func (m *registryMetrics) RecordPublished(eventType string) {
	if m == nil {
		return
	}
	if eventType == "" {
		eventType = "unknown"
	}
	m.published.WithLabelValues(eventType).Inc()
}

// RecordSinkFailure counts a batch the named sink rejected. The commit
// itself is not undone.
func (m *registryMetrics) RecordSinkFailure(sink string) {
	if m == nil {
		return
	}
	if sink == "" {
		sink = "unknown"
	}
	m.sinkFailures.WithLabelValues(sink).Inc()
}
