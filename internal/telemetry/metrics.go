package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dshills/exthost/internal/host"
	"github.com/dshills/exthost/internal/protocol"
	"github.com/dshills/exthost/internal/router"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "exthost"

// Metrics collects host metrics on its own registry. It observes the
// router and receives host events.
type Metrics struct {
	reg *prometheus.Registry

	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	providerErrors   *prometheus.CounterVec
	providerDuration *prometheus.HistogramVec
	documentEvents   *prometheus.CounterVec
	registrations    prometheus.Gauge
	extTelemetry     *prometheus.CounterVec
	messagesDropped  *prometheus.CounterVec
}

var (
	_ router.Observer = (*Metrics)(nil)
	_ host.Metrics    = (*Metrics)(nil)
)

// NewMetrics creates the collectors and registers them, together with the
// Go runtime and process collectors, on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{reg: prometheus.NewRegistry()}

	m.requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "requests_total",
		Help:      "Routed feature requests by method and status.",
	}, []string{"method", "status"})

	m.requestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "request_duration_seconds",
		Help:      "Time to answer a routed feature request.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method"})

	m.providerErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "provider_errors_total",
		Help:      "Provider calls that failed, by method, provider and status.",
	}, []string{"method", "provider", "status"})

	m.providerDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "provider_duration_seconds",
		Help:      "Time a single provider took to answer.",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"method", "provider"})

	m.documentEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "document_events_total",
		Help:      "Document lifecycle events by kind.",
	}, []string{"kind"})

	m.registrations = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "registrations",
		Help:      "Active capability registrations.",
	})

	m.extTelemetry = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "extension_telemetry_events_total",
		Help:      "telemetry/event notifications by extension and event name.",
	}, []string{"extension", "event"})

	m.messagesDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "extension_messages_dropped_total",
		Help:      "Log and telemetry messages dropped by the rate limit.",
	}, []string{"extension"})

	m.reg.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.providerErrors,
		m.providerDuration,
		m.documentEvents,
		m.registrations,
		m.extTelemetry,
		m.messagesDropped,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// status classifies an error for the status label.
func status(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled), errors.Is(err, protocol.ErrRequestCancelled):
		return "cancelled"
	default:
		return "error"
	}
}

func (m *Metrics) ProviderDone(method, provider string, elapsed time.Duration, err error) {
	m.providerDuration.WithLabelValues(method, provider).Observe(elapsed.Seconds())
	if err != nil {
		m.providerErrors.WithLabelValues(method, provider, status(err)).Inc()
	}
}

func (m *Metrics) RequestDone(method string, _ int, elapsed time.Duration, err error) {
	m.requestsTotal.WithLabelValues(method, status(err)).Inc()
	m.requestDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

func (m *Metrics) DocumentEvent(kind string) {
	m.documentEvents.WithLabelValues(kind).Inc()
}

func (m *Metrics) Registrations(n int) {
	m.registrations.Set(float64(n))
}

func (m *Metrics) ExtensionTelemetry(ext, name string) {
	m.extTelemetry.WithLabelValues(ext, name).Inc()
}

func (m *Metrics) MessageDropped(ext string) {
	m.messagesDropped.WithLabelValues(ext).Inc()
}
