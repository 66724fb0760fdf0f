package mqtt

import (
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// PahoOptions configures the broker connection.
type PahoOptions struct {
	Broker         string
	Username       string
	Password       string
	KeepAlive      time.Duration
	ConnectTimeout time.Duration
	PublishTimeout time.Duration
}

// PahoTransport is a Transport backed by an actual MQTT broker.
//
// Reconnection is left to the Manager, so paho's own auto-reconnect is
// disabled. paho callbacks run on paho's goroutines and only hand
// notifications over to Pump.
type PahoTransport struct {
	opts    PahoOptions
	client  paho.Client
	lost    chan error
	inbound chan paho.Message
	log     *logrus.Entry
}

// NewPahoTransport creates an unconnected transport.
func NewPahoTransport(opts PahoOptions, log *logrus.Entry) *PahoTransport {
	if opts.KeepAlive <= 0 {
		opts.KeepAlive = 15 * time.Second
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 3 * time.Second
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = 2 * time.Second
	}
	return &PahoTransport{
		opts:    opts,
		lost:    make(chan error, 1),
		inbound: make(chan paho.Message, 16),
		log:     log,
	}
}

// Connect opens a new session with the given last will.
func (t *PahoTransport) Connect(clientID string, will Will) error {
	if t.client != nil {
		t.client.Disconnect(0)
		t.client = nil
	}

	opts := paho.NewClientOptions().
		AddBroker(t.opts.Broker).
		SetClientID(clientID).
		SetUsername(t.opts.Username).
		SetPassword(t.opts.Password).
		SetKeepAlive(t.opts.KeepAlive).
		SetConnectTimeout(t.opts.ConnectTimeout).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetWill(will.Topic, will.Payload, will.QoS, will.Retained).
		SetConnectionLostHandler(t.onConnectionLost).
		SetDefaultPublishHandler(t.onMessage)

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(t.opts.ConnectTimeout) {
		client.Disconnect(0)
		return errors.New("connection timeout")
	}
	if err := token.Error(); err != nil {
		return errors.Wrap(err, "connect to broker")
	}

	t.client = client
	return nil
}

// Publish sends a message and waits for it to be handed to the broker.
func (t *PahoTransport) Publish(topic string, qos byte, retained bool, payload []byte) error {
	if !t.IsConnected() {
		return ErrNotConnected
	}

	token := t.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(t.opts.PublishTimeout) {
		return errors.Errorf("publish %s timeout", topic)
	}
	if err := token.Error(); err != nil {
		return errors.Wrapf(err, "publish %s", topic)
	}
	return nil
}

// IsConnected reports whether the session is open right now.
func (t *PahoTransport) IsConnected() bool {
	return t.client != nil && t.client.IsConnectionOpen()
}

// Pump logs link notifications queued by paho callbacks.
func (t *PahoTransport) Pump() {
	for {
		select {
		case err := <-t.lost:
			t.log.WithError(err).Warn("connection lost")
		case msg := <-t.inbound:
			t.log.WithFields(logrus.Fields{
				"topic":   msg.Topic(),
				"payload": string(msg.Payload()),
			}).Debug("inbound message ignored")
		default:
			return
		}
	}
}

// Disconnect closes the session. The broker does not publish the will.
func (t *PahoTransport) Disconnect() {
	if t.client == nil {
		return
	}
	t.client.Disconnect(250)
	t.client = nil
}

func (t *PahoTransport) onConnectionLost(_ paho.Client, err error) {
	select {
	case t.lost <- err:
	default:
	}
}

func (t *PahoTransport) onMessage(_ paho.Client, msg paho.Message) {
	select {
	case t.inbound <- msg:
	default:
	}
}
