package main

import (
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sweeney/callbutton/internal/battery"
	"github.com/sweeney/callbutton/internal/clock"
	"github.com/sweeney/callbutton/internal/gpio"
	"github.com/sweeney/callbutton/internal/logic"
	"github.com/sweeney/callbutton/internal/metrics"
	"github.com/sweeney/callbutton/internal/mqtt"
	"github.com/sweeney/callbutton/internal/status"
)

// controller owns every piece of device state and runs one loop iteration
// at a time. Only the loop goroutine touches it.
type controller struct {
	clock      clock.Source
	wall       func() time.Time
	reader     gpio.Reader
	leds       gpio.Writer
	battery    battery.Source
	manager    *mqtt.Manager
	publisher  *mqtt.EventPublisher
	device     *logic.Device
	indicators *logic.Indicators
	tracker    *status.Tracker
	metrics    *metrics.Metrics
	log        *logrus.Entry

	level   int
	active  []bool
	written map[gpio.LED]bool
}

func newController(
	src clock.Source,
	reader gpio.Reader,
	leds gpio.Writer,
	batt battery.Source,
	manager *mqtt.Manager,
	publisher *mqtt.EventPublisher,
	device *logic.Device,
	indicators *logic.Indicators,
	tracker *status.Tracker,
	m *metrics.Metrics,
	log *logrus.Entry,
) *controller {
	return &controller{
		clock:      src,
		wall:       time.Now,
		reader:     reader,
		leds:       leds,
		battery:    batt,
		manager:    manager,
		publisher:  publisher,
		device:     device,
		indicators: indicators,
		tracker:    tracker,
		metrics:    m,
		log:        log,
		level:      battery.DefaultLevel,
		active:     make([]bool, len(device.Channels())),
		written:    make(map[gpio.LED]bool),
	}
}

// iterate runs one pass: connection, pump, indicators, inputs, heartbeat.
func (c *controller) iterate() {
	now := c.clock.Now()
	connects := c.manager.Connects()

	if !c.manager.IsConnected() {
		c.indicators.SetConnected(false)
		c.manager.EnsureConnected(now)
	}

	c.manager.Pump()

	c.readBattery()
	out := c.indicators.Update(now, c.level, c.device.Emergency())
	c.writeLEDs(out)

	c.scanInputs(now)

	// A connect made here or by an event publish already announced ONLINE.
	if c.manager.Connects() != connects {
		c.device.ResetHeartbeat(now)
	}
	if c.device.HeartbeatDue(now, c.manager.IsConnected()) {
		c.heartbeat()
	}

	c.updateStatus(out)
}

func (c *controller) readBattery() {
	level, err := c.battery.Level()
	if err != nil {
		c.log.WithError(err).Debug("battery read failed, keeping last level")
		return
	}
	c.level = level
}

func ledLevels(out logic.Outputs) map[gpio.LED]bool {
	return map[gpio.LED]bool{
		gpio.LEDConnection: out.Connection,
		gpio.LEDBattery:    out.Battery,
		gpio.LEDEmergency:  out.Emergency,
	}
}

// writeLEDs drives only the outputs whose level changed.
func (c *controller) writeLEDs(out logic.Outputs) {
	levels := ledLevels(out)
	for _, led := range gpio.LEDs {
		on := levels[led]
		if prev, ok := c.written[led]; ok && prev == on {
			continue
		}
		if err := c.leds.Set(led, on); err != nil {
			c.log.WithError(err).Warnf("set %s led", led)
			continue
		}
		c.written[led] = on
	}
}

func (c *controller) scanInputs(now clock.Millis) {
	levels, err := c.reader.Read()
	if err != nil {
		c.log.WithError(err).Error("gpio read")
		return
	}

	channels := c.device.Channels()
	for i, ch := range channels {
		c.active[i] = ch.Active()
	}

	events := c.device.Scan(levels, now, c.level)

	for i, ch := range channels {
		if ch.Active() == c.active[i] {
			continue
		}
		edge := logic.EdgeRelease
		if ch.Active() {
			edge = logic.EdgeActivate
		}
		c.metrics.Edge(ch.Name, edge.String())
		c.log.WithField("input", ch.Name).Debugf("edge: %s", edge)
	}

	for _, ev := range events {
		log := c.log.WithFields(logrus.Fields{
			"input":   ev.Input,
			"type":    ev.Type,
			"status":  ev.Status,
			"battery": ev.Battery,
		})
		log.Info("button event")

		err := c.publisher.PublishEvent(now, ev)
		if err != nil {
			log.WithError(err).Error("event dropped")
		}
		if c.tracker != nil {
			c.tracker.RecordEvent(ev, c.wall(), err)
		}
	}
}

func (c *controller) heartbeat() {
	err := c.manager.PublishOnline()
	c.metrics.Heartbeat(err == nil)
	if err != nil {
		c.log.WithError(err).Error("heartbeat publish")
		return
	}
	c.log.Debug("heartbeat")

	if c.tracker != nil {
		if info := readNetworkInfo(); info != nil {
			c.tracker.SetNetwork(info)
		}
	}
}

func (c *controller) updateStatus(out logic.Outputs) {
	connected := c.manager.IsConnected()
	emergency := c.device.Emergency()

	c.metrics.SetConnected(connected)
	c.metrics.SetEmergency(emergency)
	c.metrics.SetBattery(c.level)

	if c.tracker == nil {
		return
	}
	channels := c.device.Channels()
	inputs := make([]status.InputState, len(channels))
	for i, ch := range channels {
		inputs[i] = status.InputState{Name: ch.Name, Role: ch.Role, Active: ch.Active()}
	}
	c.tracker.Update(inputs, emergency, c.level, out, c.device.EventCountsSnapshot())
	c.tracker.SetMQTT(connected, c.manager.Attempts())
}

// shutdown turns the LEDs off and closes the link with a retained OFFLINE.
func (c *controller) shutdown() {
	for _, led := range gpio.LEDs {
		if err := c.leds.Set(led, false); err != nil {
			c.log.WithError(err).Warnf("clear %s led", led)
		}
		c.written[led] = false
	}

	if err := c.manager.Close(); err != nil {
		c.log.WithError(err).Error("failed to publish offline status")
	} else {
		c.log.Info("disconnected")
	}
	c.metrics.SetConnected(false)
	if c.tracker != nil {
		c.tracker.SetMQTT(false, c.manager.Attempts())
	}
}

func runLoop(c *controller, tick <-chan time.Time, sig <-chan os.Signal) error {
	for {
		select {
		case s := <-sig:
			c.log.Infof("received %v, shutting down", s)
			c.shutdown()
			return nil

		case <-tick:
			c.iterate()
		}
	}
}
