package mqtt

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/sweeney/callbutton/internal/clock"
	"github.com/sweeney/callbutton/internal/metrics"
)

// DefaultReconnectMs is the minimum spacing between connect attempts.
const DefaultReconnectMs = 5000

// Indicator is driven on when a connection is established.
type Indicator interface {
	SetConnected(on bool)
}

// ManagerConfig configures the connection manager.
type ManagerConfig struct {
	ClientID    string
	StatusTopic string
	ReconnectMs uint32
}

// Manager owns the transport and rate-limits reconnection.
type Manager struct {
	transport Transport
	cfg       ManagerConfig
	indicator Indicator
	metrics   *metrics.Metrics
	log       *logrus.Entry

	attempted   bool
	lastAttempt clock.Millis
	attempts    int
	connects    int
}

// NewManager creates a connection manager. indicator and m may be nil.
func NewManager(t Transport, cfg ManagerConfig, indicator Indicator, m *metrics.Metrics, log *logrus.Entry) *Manager {
	if cfg.ReconnectMs == 0 {
		cfg.ReconnectMs = DefaultReconnectMs
	}
	return &Manager{
		transport: t,
		cfg:       cfg,
		indicator: indicator,
		metrics:   m,
		log:       log,
	}
}

// IsConnected reports whether the link is up.
func (m *Manager) IsConnected() bool {
	return m.transport.IsConnected()
}

// Attempts returns the number of connect attempts made.
func (m *Manager) Attempts() int {
	return m.attempts
}

// Connects returns the number of successful connects, each of which
// announced ONLINE.
func (m *Manager) Connects() int {
	return m.connects
}

// EnsureConnected returns true if the link is up. Otherwise it makes at most
// one connect attempt per reconnect interval; the first attempt is made
// immediately. A successful connect announces ONLINE on the status topic.
// Failures are logged and retried on the next eligible call.
func (m *Manager) EnsureConnected(now clock.Millis) bool {
	if m.transport.IsConnected() {
		return true
	}
	if m.attempted && !clock.Elapsed(now, m.lastAttempt, m.cfg.ReconnectMs) {
		return false
	}

	m.attempted = true
	m.lastAttempt = now
	m.attempts++

	m.log.Info("attempting MQTT connection")
	if err := m.transport.Connect(m.cfg.ClientID, m.will()); err != nil {
		m.metrics.ReconnectAttempt(false)
		m.log.WithError(err).Warnf("connect failed, retrying in %dms", m.cfg.ReconnectMs)
		return false
	}
	m.metrics.ReconnectAttempt(true)
	m.connects++
	m.log.Info("connected")

	if err := m.PublishOnline(); err != nil {
		m.log.WithError(err).Error("announce online")
	}
	if m.indicator != nil {
		m.indicator.SetConnected(true)
	}
	return true
}

// PublishOnline publishes the retained ONLINE status. Used on connect and
// as the heartbeat.
func (m *Manager) PublishOnline() error {
	return m.publishStatus(PayloadOnline)
}

// Publish sends a message on the managed link.
func (m *Manager) Publish(topic string, qos byte, retained bool, payload []byte) error {
	return m.transport.Publish(topic, qos, retained, payload)
}

// Pump services the transport once.
func (m *Manager) Pump() {
	m.transport.Pump()
}

// Close announces OFFLINE, as the will would, and disconnects.
func (m *Manager) Close() error {
	var err error
	if m.transport.IsConnected() {
		err = m.publishStatus(PayloadOffline)
		m.transport.Disconnect()
	}
	if m.indicator != nil {
		m.indicator.SetConnected(false)
	}
	return err
}

func (m *Manager) will() Will {
	return Will{
		Topic:    m.cfg.StatusTopic,
		Payload:  PayloadOffline,
		QoS:      QoSStatus,
		Retained: true,
	}
}

func (m *Manager) publishStatus(payload string) error {
	if err := m.transport.Publish(m.cfg.StatusTopic, QoSStatus, true, []byte(payload)); err != nil {
		return errors.Wrapf(err, "publish %s", payload)
	}
	return nil
}
