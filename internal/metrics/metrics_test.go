package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matheus3301/wppcrm/internal/bus"
)

func TestCounters(t *testing.T) {
	m := New()
	m.WebhookRow(WebhookAccepted)
	m.WebhookRow(WebhookAccepted)
	m.WebhookRow(WebhookRejected)
	m.GatewaySend("")
	m.GatewaySend("invalid_number")
	m.MessagePersisted("")
	m.RealtimeClients(2)
	m.RealtimeClients(-1)
	m.GatewayUp(true)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.webhookRows.WithLabelValues(WebhookAccepted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.gatewaySends.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.messagesPersisted.WithLabelValues("unknown")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.realtimeClients))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.gatewayUp))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.GatewaySend("not_connected")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `wppcrm_gateway_sends_total{category="not_connected"} 1`))
}

func TestWatchDropsReadsBus(t *testing.T) {
	m := New()
	b := bus.New()
	m.WatchDrops(b)

	_, unsub := b.Subscribe(bus.KindMessageInserted, 1)
	defer unsub()
	for range 3 {
		b.Publish(bus.NewEvent(bus.KindMessageInserted, nil))
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "wppcrm_bus_dropped_events_total 2")
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.WebhookRow(WebhookFailed)
	m.GatewaySend("x")
	m.MessagePersisted("x")
	m.RealtimeClients(1)
	m.GatewayUp(false)
	m.WatchDrops(nil)
	assert.Nil(t, m.Registry())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 404, rec.Code)
}
