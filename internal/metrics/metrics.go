// Package metrics exposes the daemon's Prometheus collectors.
//
// All methods are safe on a nil *Metrics so components can run without
// instrumentation in tests.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "callbutton"

// Metrics holds the daemon's collectors.
type Metrics struct {
	events            *prometheus.CounterVec
	reconnectAttempts *prometheus.CounterVec
	heartbeats        *prometheus.CounterVec
	edges             *prometheus.CounterVec
	connected         prometheus.Gauge
	emergency         prometheus.Gauge
	battery           prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Button events by type and publish result.",
		}, []string{"type", "result"}),
		reconnectAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnect_attempts_total",
			Help:      "MQTT connect attempts by result.",
		}, []string{"result"}),
		heartbeats: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "heartbeats_total",
			Help:      "ONLINE heartbeats by publish result.",
		}, []string{"result"}),
		edges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "input_edges_total",
			Help:      "Accepted input transitions.",
		}, []string{"input", "edge"}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mqtt_connected",
			Help:      "1 while the MQTT link is up.",
		}),
		emergency: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "emergency_active",
			Help:      "1 while an SOS is outstanding.",
		}),
		battery: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "battery_percent",
			Help:      "Last reported battery level.",
		}),
	}
	reg.MustRegister(m.events, m.reconnectAttempts, m.heartbeats, m.edges, m.connected, m.emergency, m.battery)
	return m
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// EventPublished counts a publish attempt for an event type.
func (m *Metrics) EventPublished(eventType string, ok bool) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(eventType, result(ok)).Inc()
}

// ReconnectAttempt counts a connect attempt.
func (m *Metrics) ReconnectAttempt(ok bool) {
	if m == nil {
		return
	}
	m.reconnectAttempts.WithLabelValues(result(ok)).Inc()
}

// Heartbeat counts a heartbeat publish.
func (m *Metrics) Heartbeat(ok bool) {
	if m == nil {
		return
	}
	m.heartbeats.WithLabelValues(result(ok)).Inc()
}

// Edge counts an accepted input transition.
func (m *Metrics) Edge(input, edge string) {
	if m == nil {
		return
	}
	m.edges.WithLabelValues(input, edge).Inc()
}

// SetConnected records the link state.
func (m *Metrics) SetConnected(connected bool) {
	if m == nil {
		return
	}
	m.connected.Set(boolGauge(connected))
}

// SetEmergency records the emergency flag.
func (m *Metrics) SetEmergency(active bool) {
	if m == nil {
		return
	}
	m.emergency.Set(boolGauge(active))
}

// SetBattery records the battery level.
func (m *Metrics) SetBattery(percent int) {
	if m == nil {
		return
	}
	m.battery.Set(float64(percent))
}
