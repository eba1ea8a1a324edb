package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder records server metrics
type Recorder interface {
	// RecordSOAPRequest records one dispatched SOAP request. outcome is
	// "success", "fault" or "rejected".
	RecordSOAPRequest(service, action, outcome string, duration time.Duration)
	// RecordAuth records an authentication decision.
	RecordAuth(result, reason string)
	// RecordHTTPRequest records a request at the transport layer.
	RecordHTTPRequest(method, route string, status int, duration time.Duration)
	RecordRateLimited(route string)
	RecordAuditDropped()
}

// Ensure Metrics implements Recorder interface at compile time
var _ Recorder = (*Metrics)(nil)

// Metrics holds all Prometheus metrics for the server
type Metrics struct {
	registry *prometheus.Registry

	SOAPRequestsTotal   *prometheus.CounterVec
	SOAPRequestDuration *prometheus.HistogramVec
	AuthDecisionsTotal  *prometheus.CounterVec

	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	RateLimitedTotal     *prometheus.CounterVec

	AuditEventsDroppedTotal prometheus.Counter
}

// Init returns a Prometheus recorder when enabled, or a no-op recorder.
func Init(enabled bool) Recorder {
	if !enabled {
		return NewNoopMetrics()
	}
	return New(prometheus.NewRegistry())
}

// New registers all metrics with reg, along with the Go and process collectors.
func New(reg *prometheus.Registry) *Metrics {
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		SOAPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "onvif_soap_requests_total",
				Help: "Total number of SOAP requests by service, action and outcome",
			},
			[]string{"service", "action", "outcome"}, // outcome: success, fault, rejected
		),
		SOAPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "onvif_soap_request_duration_seconds",
				Help:    "SOAP request processing time",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"service"},
		),
		AuthDecisionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "onvif_auth_decisions_total",
				Help: "Total number of UsernameToken authentication decisions",
			},
			[]string{"result", "reason"}, // result: accepted, rejected, anonymous, error
		),

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		HTTPRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Current number of HTTP requests being served",
			},
		),
		RateLimitedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_rate_limited_total",
				Help: "Total number of requests refused by the rate limiter",
			},
			[]string{"route"},
		),

		AuditEventsDroppedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "onvif_audit_events_dropped_total",
				Help: "Audit events dropped because the event bus was full",
			},
		),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) RecordSOAPRequest(service, action, outcome string, duration time.Duration) {
	m.SOAPRequestsTotal.WithLabelValues(service, action, outcome).Inc()
	m.SOAPRequestDuration.WithLabelValues(service).Observe(duration.Seconds())
}

func (m *Metrics) RecordAuth(result, reason string) {
	m.AuthDecisionsTotal.WithLabelValues(result, reason).Inc()
}

func (m *Metrics) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, statusLabel(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func (m *Metrics) RecordRateLimited(route string) {
	m.RateLimitedTotal.WithLabelValues(route).Inc()
}

func (m *Metrics) RecordAuditDropped() {
	m.AuditEventsDroppedTotal.Inc()
}
