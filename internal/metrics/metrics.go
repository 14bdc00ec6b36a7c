// Package metrics exposes Prometheus instrumentation for the adapters.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors shared by both adapter servers.
type Metrics struct {
	registry *prometheus.Registry

	ToolCalls        *prometheus.CounterVec
	ToolDuration     *prometheus.HistogramVec
	TokenRefreshes   *prometheus.CounterVec
	ReconnectTotal   prometheus.Counter
	ReconnectFailed  prometheus.Counter
	UpstreamInFlight prometheus.Gauge
}

// New creates a Metrics set registered on its own registry, so tests and
// multiple server instances never collide on the global default.
func New(adapter string) *Metrics {
	reg := prometheus.NewRegistry()
	labels := prometheus.Labels{"adapter": adapter}

	m := &Metrics{
		registry: reg,
		ToolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "mcp_tool_calls_total",
			Help:        "Tool invocations by tool name and outcome.",
			ConstLabels: labels,
		}, []string{"tool", "outcome"}),
		ToolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "mcp_tool_duration_seconds",
			Help:        "Tool handler latency.",
			ConstLabels: labels,
			Buckets:     []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 180},
		}, []string{"tool"}),
		TokenRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "mcp_token_refreshes_total",
			Help:        "Upstream token fetches by outcome.",
			ConstLabels: labels,
		}, []string{"outcome"}),
		ReconnectTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "mcp_keepalive_reconnects_total",
			Help:        "Reconnect attempts made by the keepalive monitor.",
			ConstLabels: labels,
		}),
		ReconnectFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "mcp_keepalive_reconnect_failures_total",
			Help:        "Reconnect attempts that did not restore the session.",
			ConstLabels: labels,
		}),
		UpstreamInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "mcp_upstream_requests_in_flight",
			Help:        "Upstream requests currently in flight.",
			ConstLabels: labels,
		}),
	}

	reg.MustRegister(
		m.ToolCalls,
		m.ToolDuration,
		m.TokenRefreshes,
		m.ReconnectTotal,
		m.ReconnectFailed,
		m.UpstreamInFlight,
	)
	return m
}

// Handler returns the /metrics HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveCall records one finished tool call.
func (m *Metrics) ObserveCall(tool, outcome string, seconds float64) {
	m.ToolCalls.WithLabelValues(tool, outcome).Inc()
	m.ToolDuration.WithLabelValues(tool).Observe(seconds)
}
