// Package metrics is a Prometheus-backed instrumentation surface for the
// reply loop, grounded on the teacher's pkg/observability/metrics.go
// (Metrics struct with nil-receiver no-op methods, CounterVec/HistogramVec
// per concern, namespaced registry + promhttp.Handler), trimmed from its
// agent/memory/session/HTTP/RAG subsystems down to the three this domain
// actually has: provider calls, tool calls, and loop turns.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects loop/provider/tool counters and histograms. A nil
// *Metrics is valid and every method on it is a no-op, so instrumentation
// call sites never need a nil check before calling in.
type Metrics struct {
	registry *prometheus.Registry

	loopTurns    *prometheus.CounterVec
	loopDuration *prometheus.HistogramVec

	providerCalls    *prometheus.CounterVec
	providerDuration *prometheus.HistogramVec
	providerTokens   *prometheus.CounterVec
	providerErrors   *prometheus.CounterVec

	toolCalls    *prometheus.CounterVec
	toolDuration *prometheus.HistogramVec
	toolErrors   *prometheus.CounterVec
}

// New builds a Metrics instance registered under the given namespace (e.g.
// "goosecore"). Pass "" for no namespace prefix.
func New(namespace string) *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.loopTurns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "loop", Name: "turns_total",
		Help: "Total number of Reply turns completed.",
	}, []string{"mode"})
	m.loopDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "loop", Name: "turn_duration_seconds",
		Help: "Wall-clock duration of one Reply turn.", Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"mode"})

	m.providerCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "provider", Name: "calls_total",
		Help: "Total number of provider.Complete calls.",
	}, []string{"provider", "model"})
	m.providerDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "provider", Name: "call_duration_seconds",
		Help: "provider.Complete call duration.", Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"provider", "model"})
	m.providerTokens = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "provider", Name: "tokens_total",
		Help: "Total tokens consumed, split by direction.",
	}, []string{"provider", "model", "direction"})
	m.providerErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "provider", Name: "errors_total",
		Help: "Total provider.Complete errors, by kind.",
	}, []string{"provider", "model", "kind"})

	m.toolCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "tool", Name: "calls_total",
		Help: "Total number of tool dispatches.",
	}, []string{"tool"})
	m.toolDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "tool", Name: "call_duration_seconds",
		Help: "Tool dispatch duration.", Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
	}, []string{"tool"})
	m.toolErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "tool", Name: "errors_total",
		Help: "Total tool dispatch errors.",
	}, []string{"tool"})

	m.registry.MustRegister(
		m.loopTurns, m.loopDuration,
		m.providerCalls, m.providerDuration, m.providerTokens, m.providerErrors,
		m.toolCalls, m.toolDuration, m.toolErrors,
	)
	return m
}

func (m *Metrics) RecordLoopTurn(mode string, d time.Duration) {
	if m == nil {
		return
	}
	m.loopTurns.WithLabelValues(mode).Inc()
	m.loopDuration.WithLabelValues(mode).Observe(d.Seconds())
}

func (m *Metrics) RecordProviderCall(providerName, model string, d time.Duration, inputTokens, outputTokens int) {
	if m == nil {
		return
	}
	m.providerCalls.WithLabelValues(providerName, model).Inc()
	m.providerDuration.WithLabelValues(providerName, model).Observe(d.Seconds())
	if inputTokens > 0 {
		m.providerTokens.WithLabelValues(providerName, model, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		m.providerTokens.WithLabelValues(providerName, model, "output").Add(float64(outputTokens))
	}
}

func (m *Metrics) RecordProviderError(providerName, model, kind string) {
	if m == nil {
		return
	}
	m.providerErrors.WithLabelValues(providerName, model, kind).Inc()
}

func (m *Metrics) RecordToolCall(tool string, d time.Duration) {
	if m == nil {
		return
	}
	m.toolCalls.WithLabelValues(tool).Inc()
	m.toolDuration.WithLabelValues(tool).Observe(d.Seconds())
}

func (m *Metrics) RecordToolError(tool string) {
	if m == nil {
		return
	}
	m.toolErrors.WithLabelValues(tool).Inc()
}

// Handler serves the registry in Prometheus text exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
