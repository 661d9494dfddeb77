// Package metrics exposes Prometheus instruments for the matchmaking flow.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/woozymasta/matchmaker/internal/models"
)

const namespace = "matchmaker"

// Metrics bundles the collectors on a private registry. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry          *prometheus.Registry
	connectResults    *prometheus.CounterVec
	provisionDuration *prometheus.HistogramVec
	reapedServers     prometheus.Counter
	corrections       *prometheus.CounterVec
}

// New creates and registers every collector.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		connectResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connect_results_total",
			Help:      "Connect attempts by result and mode.",
		}, []string{"result", "mode"}),
		provisionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provision_duration_seconds",
			Help:      "Latency of provisioning backend calls.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"outcome"}),
		reapedServers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reaped_servers_total",
			Help:      "Server records removed because their node was unreachable.",
		}),
		corrections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_messages_total",
			Help:      "Messages received from dedicated servers by kind.",
		}, []string{"kind"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.connectResults,
		m.provisionDuration,
		m.reapedServers,
		m.corrections,
	)

	return m
}

// Gauge registers a gauge read from fn on every scrape.
func (m *Metrics) Gauge(name, help string, fn func() float64) {
	if m == nil {
		return
	}

	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, fn))
}

// ObserveConnect counts a finished connect attempt.
func (m *Metrics) ObserveConnect(result models.ConnectResult, quickplay bool) {
	if m == nil {
		return
	}

	mode := "direct"
	if quickplay {
		mode = "quickplay"
	}
	m.connectResults.WithLabelValues(result.String(), mode).Inc()
}

// ObserveProvision records one provisioning backend call.
func (m *Metrics) ObserveProvision(d time.Duration, ok bool) {
	if m == nil {
		return
	}

	outcome := "failure"
	if ok {
		outcome = "success"
	}
	m.provisionDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// ServerReaped counts a lazily evicted server record.
func (m *Metrics) ServerReaped() {
	if m == nil {
		return
	}

	m.reapedServers.Inc()
}

// BusMessage counts a message received from the bus.
func (m *Metrics) BusMessage(kind string) {
	if m == nil {
		return
	}

	m.corrections.WithLabelValues(kind).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
