// Package metrics provides Prometheus metrics for mentorchat.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector the service exports. Each instance owns its
// registry so several servers can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	MessagesAppendedTotal     *prometheus.CounterVec
	ConversationsCreatedTotal prometheus.Counter
	RateLimitedTotal          *prometheus.CounterVec
	UploadsTotal              *prometheus.CounterVec
	WebsocketConnections      prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mentorchat_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mentorchat_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		MessagesAppendedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mentorchat_messages_appended_total",
				Help: "Total number of chat messages appended",
			},
			[]string{"kind"},
		),
		ConversationsCreatedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "mentorchat_conversations_created_total",
				Help: "Total number of conversations created",
			},
		),
		RateLimitedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mentorchat_rate_limited_total",
				Help: "Total number of requests rejected by the rate guard",
			},
			[]string{"scope"},
		),
		UploadsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mentorchat_uploads_total",
				Help: "Total number of media uploads by kind and result",
			},
			[]string{"kind", "result"},
		),
		WebsocketConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "mentorchat_websocket_connections",
				Help: "Number of open websocket connections",
			},
		),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// The methods below accept a nil receiver so components can run without
// metrics.

func (m *Metrics) MessageAppended(kind string) {
	if m == nil {
		return
	}
	m.MessagesAppendedTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) ConversationCreated() {
	if m == nil {
		return
	}
	m.ConversationsCreatedTotal.Inc()
}

func (m *Metrics) RateLimited(scope string) {
	if m == nil {
		return
	}
	m.RateLimitedTotal.WithLabelValues(scope).Inc()
}

func (m *Metrics) Upload(kind, result string) {
	if m == nil {
		return
	}
	m.UploadsTotal.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) WebsocketOpened() {
	if m == nil {
		return
	}
	m.WebsocketConnections.Inc()
}

func (m *Metrics) WebsocketClosed() {
	if m == nil {
		return
	}
	m.WebsocketConnections.Dec()
}
