package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.EventPublished("SOS", true)
	m.EventPublished("SOS", true)
	m.EventPublished("SOS", false)
	m.ReconnectAttempt(false)
	m.Heartbeat(true)
	m.Edge("red", "activate")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.events.WithLabelValues("SOS", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.events.WithLabelValues("SOS", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reconnectAttempts.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.heartbeats.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.edges.WithLabelValues("red", "activate")))
}

func TestGauges(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.SetConnected(true)
	m.SetEmergency(true)
	m.SetBattery(42)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.connected))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.emergency))
	assert.Equal(t, 42.0, testutil.ToFloat64(m.battery))

	m.SetConnected(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.connected))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.EventPublished("SOS", true)
	m.ReconnectAttempt(true)
	m.Heartbeat(true)
	m.Edge("red", "activate")
	m.SetConnected(true)
	m.SetEmergency(true)
	m.SetBattery(1)
}

func TestRegisteredNames(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.EventPublished("ASSIST", true)
	m.ReconnectAttempt(true)
	m.Heartbeat(true)
	m.Edge("yellow", "release")

	families, err := reg.Gather()
	assert.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "callbutton_events_total")
	assert.Contains(t, names, "callbutton_reconnect_attempts_total")
	assert.Contains(t, names, "callbutton_mqtt_connected")
	assert.Contains(t, names, "callbutton_battery_percent")
}
