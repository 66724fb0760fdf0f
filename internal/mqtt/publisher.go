package mqtt

import (
	"github.com/pkg/errors"

	"github.com/sweeney/callbutton/internal/clock"
	"github.com/sweeney/callbutton/internal/logic"
	"github.com/sweeney/callbutton/internal/metrics"
)

// EventPublisher publishes button events on the device's event topic.
// Delivery is best effort: a failed publish is reported to the caller and
// never queued or retried.
type EventPublisher struct {
	manager  *Manager
	deviceID string
	topic    string
	metrics  *metrics.Metrics
}

// NewEventPublisher creates a publisher for deviceID on topic. m may be nil.
func NewEventPublisher(manager *Manager, deviceID, topic string, m *metrics.Metrics) *EventPublisher {
	return &EventPublisher{
		manager:  manager,
		deviceID: deviceID,
		topic:    topic,
		metrics:  m,
	}
}

// Topic returns the expanded event topic.
func (p *EventPublisher) Topic() string {
	return p.topic
}

// PublishEvent ensures a connection and publishes the event.
func (p *EventPublisher) PublishEvent(now clock.Millis, event logic.Event) error {
	err := p.publish(now, event)
	p.metrics.EventPublished(string(event.Type), err == nil)
	return err
}

func (p *EventPublisher) publish(now clock.Millis, event logic.Event) error {
	if !p.manager.EnsureConnected(now) {
		return ErrNotConnected
	}

	payload, err := FormatPayload(p.deviceID, event)
	if err != nil {
		return err
	}

	if err := p.manager.Publish(p.topic, QoSEvent, false, payload); err != nil {
		return errors.Wrap(err, "publish event")
	}
	return nil
}
