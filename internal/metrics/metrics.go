// Package metrics exposes Prometheus counters for conversions, vendor calls and gate contention.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels
const (
	OutcomeOK       = "ok"
	OutcomeFallback = "fallback"
	OutcomeError    = "error"
)

// Metrics holds the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	conversions      *prometheus.CounterVec
	providerCalls    *prometheus.CounterVec
	providerDuration *prometheus.HistogramVec
	gateRejections   prometheus.Counter
	sinkUploads      *prometheus.CounterVec
}

// New creates collectors on a private registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		conversions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pastemark_conversions_total",
			Help: "Image conversions by requested format and outcome",
		}, []string{"format", "outcome"}),
		providerCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pastemark_provider_calls_total",
			Help: "Vendor AI calls by vendor, task and outcome",
		}, []string{"vendor", "task", "outcome"}),
		providerDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pastemark_provider_call_duration_seconds",
			Help:    "Time taken by vendor AI calls",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
		}, []string{"vendor", "task"}),
		gateRejections: factory.NewCounter(prometheus.CounterOpts{
			Name: "pastemark_gate_rejections_total",
			Help: "Operations rejected because another one was running",
		}),
		sinkUploads: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pastemark_sink_uploads_total",
			Help: "Remote sink uploads by sink and outcome",
		}, []string{"sink", "outcome"}),
	}
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveConversion records one image conversion
func (m *Metrics) ObserveConversion(format, outcome string) {
	if m == nil {
		return
	}
	m.conversions.WithLabelValues(format, outcome).Inc()
}

// ObserveProviderCall records one vendor call and its latency
func (m *Metrics) ObserveProviderCall(vendor, task string, start time.Time, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	m.providerCalls.WithLabelValues(vendor, task, outcome).Inc()
	m.providerDuration.WithLabelValues(vendor, task).Observe(time.Since(start).Seconds())
}

// ObserveGateRejection records a busy rejection
func (m *Metrics) ObserveGateRejection() {
	if m == nil {
		return
	}
	m.gateRejections.Inc()
}

// ObserveSinkUpload records one sink upload
func (m *Metrics) ObserveSinkUpload(sink string, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	m.sinkUploads.WithLabelValues(sink, outcome).Inc()
}
