// Package metrics exposes the daemon's Prometheus collectors. A nil *Metrics is valid and
// records nothing, so components can be built without it in tests.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "wppcrm"

// Metrics groups the collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	webhookRows       *prometheus.CounterVec
	gatewaySends      *prometheus.CounterVec
	messagesPersisted *prometheus.CounterVec
	realtimeClients   prometheus.Gauge
	gatewayUp         prometheus.Gauge
}

// New registers every collector, plus the Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		webhookRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_rows_total",
			Help:      "Inbound webhook payloads by outcome.",
		}, []string{"outcome"}),
		gatewaySends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_sends_total",
			Help:      "Outbound gateway calls by result category.",
		}, []string{"category"}),
		messagesPersisted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_persisted_total",
			Help:      "Message rows written to the store by source.",
		}, []string{"source"}),
		realtimeClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "realtime_clients",
			Help:      "Connected realtime feed subscribers.",
		}),
		gatewayUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "gateway_up",
			Help:      "1 when the outbound gateway is expected to accept sends.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.webhookRows, m.gatewaySends, m.messagesPersisted, m.realtimeClients, m.gatewayUp,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Webhook outcomes.
const (
	WebhookAccepted = "accepted"
	WebhookRejected = "rejected"
	WebhookDegraded = "degraded"
	WebhookFailed   = "failed"
)

func (m *Metrics) WebhookRow(outcome string) {
	if m != nil {
		m.webhookRows.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) GatewaySend(category string) {
	if m == nil {
		return
	}
	if category == "" {
		category = "ok"
	}
	m.gatewaySends.WithLabelValues(category).Inc()
}

func (m *Metrics) MessagePersisted(source string) {
	if m == nil {
		return
	}
	if source == "" {
		source = "unknown"
	}
	m.messagesPersisted.WithLabelValues(source).Inc()
}

func (m *Metrics) RealtimeClients(delta float64) {
	if m != nil {
		m.realtimeClients.Add(delta)
	}
}

// DropCounter is anything that counts deliveries it had to skip, such as the event bus.
type DropCounter interface {
	Dropped() uint64
}

// WatchDrops exports src's drop count as wppcrm_bus_dropped_events_total, read at scrape time.
func (m *Metrics) WatchDrops(src DropCounter) {
	if m == nil || src == nil {
		return
	}
	m.registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bus_dropped_events_total",
		Help:      "Events not delivered because a subscriber buffer was full.",
	}, func() float64 { return float64(src.Dropped()) }))
}

func (m *Metrics) GatewayUp(up bool) {
	if m == nil {
		return
	}
	if up {
		m.gatewayUp.Set(1)
		return
	}
	m.gatewayUp.Set(0)
}
