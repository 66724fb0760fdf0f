package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/callbutton/internal/clock"
	"github.com/sweeney/callbutton/internal/config"
	"github.com/sweeney/callbutton/internal/gpio"
	"github.com/sweeney/callbutton/internal/logging"
	"github.com/sweeney/callbutton/internal/logic"
	"github.com/sweeney/callbutton/internal/metrics"
	"github.com/sweeney/callbutton/internal/mqtt"
	"github.com/sweeney/callbutton/internal/status"
)

// TestEnvVarNames verifies the env var constants match what pi-helper writes
// to /run/pi-helper.env. If pi-helper changes its var names, this test fails
// and we update the constants.
func TestEnvVarNames(t *testing.T) {
	want := map[string]string{
		"NETWORK_TYPE":        envNetworkType,
		"NETWORK_IP":          envNetworkIP,
		"NETWORK_STATUS":      envNetworkStatus,
		"NETWORK_GATEWAY":     envNetworkGateway,
		"NETWORK_WIFI_STATUS": envNetworkWifiStatus,
		"NETWORK_WIFI_SSID":   envNetworkWifiSSID,
	}
	for canonical, got := range want {
		assert.Equal(t, canonical, got)
	}
}

func TestReadNetworkInfoAllSet(t *testing.T) {
	t.Setenv(envNetworkType, "wifi")
	t.Setenv(envNetworkIP, "192.168.1.100")
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkGateway, "192.168.1.1")
	t.Setenv(envNetworkWifiStatus, "connected")
	t.Setenv(envNetworkWifiSSID, "Ward3")

	info := readNetworkInfo()
	require.NotNil(t, info)
	assert.Equal(t, &status.NetworkInfo{
		Type:       "wifi",
		IP:         "192.168.1.100",
		Status:     "connected",
		Gateway:    "192.168.1.1",
		WifiStatus: "connected",
		SSID:       "Ward3",
	}, info)
}

func TestReadNetworkInfoNoneSet(t *testing.T) {
	t.Setenv(envNetworkStatus, "")
	assert.Nil(t, readNetworkInfo())
}

func TestReadNetworkInfoPartial(t *testing.T) {
	t.Setenv(envNetworkStatus, "connected")

	info := readNetworkInfo()
	require.NotNil(t, info)
	assert.Equal(t, "connected", info.Status)
	assert.Empty(t, info.Type)
	assert.Empty(t, info.SSID)
}

// --- controller tests ---

const testDevice = "AA:BB:CC:DD:EE:FF"

var (
	statusTopic = "status/" + testDevice
	eventTopic  = "event/" + testDevice
)

// Channel order matches config.DefaultInputs.
const (
	idxSOS = iota
	idxAssist
	idxConfirm
	idxAccept
)

// idle returns raw levels with every button released: red is active-high,
// the others are pulled up.
func idle() []bool {
	return []bool{false, true, true, true}
}

// press returns raw levels with the button at idx held.
func press(idx int) []bool {
	l := idle()
	l[idx] = !l[idx]
	return l
}

type fakeBattery struct {
	level int
	err   error
}

func (b *fakeBattery) Level() (int, error) {
	return b.level, b.err
}

// stepClock advances by step on every call. Only called from the loop goroutine.
type stepClock struct {
	t    clock.Millis
	step uint32
}

func (s *stepClock) Now() clock.Millis {
	t := s.t
	s.t += clock.Millis(s.step)
	return t
}

type harness struct {
	clk       *clock.Fake
	reader    *gpio.FakeReader
	leds      *gpio.FakeWriter
	battery   *fakeBattery
	transport *mqtt.FakeTransport
	tracker   *status.Tracker
	device    *logic.Device
	c         *controller
}

var wallTime = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := &config.Config{Inputs: config.DefaultInputs(), Timing: config.Timing{Debounce: 50 * time.Millisecond}}
	channels, err := buildChannels(cfg)
	require.NoError(t, err)

	h := &harness{
		clk:       clock.NewFake(0),
		reader:    gpio.NewFakeReader([][]bool{idle()}),
		leds:      gpio.NewFakeWriter(),
		battery:   &fakeBattery{level: 85},
		transport: mqtt.NewFakeTransport(),
		tracker:   status.NewTracker(wallTime, status.Config{DeviceID: testDevice}),
	}

	m := metrics.New(prometheus.NewRegistry())
	indicators := logic.NewIndicators()
	manager := mqtt.NewManager(h.transport, mqtt.ManagerConfig{
		ClientID:    "callbutton-test",
		StatusTopic: statusTopic,
		ReconnectMs: mqtt.DefaultReconnectMs,
	}, indicators, m, logging.Discard())
	publisher := mqtt.NewEventPublisher(manager, testDevice, eventTopic, m)
	h.device = logic.NewDevice(channels, logic.StatusPending, logic.DefaultHeartbeatMs, h.clk.Now())

	h.c = newController(h.clk, h.reader, h.leds, h.battery, manager, publisher, h.device, indicators, h.tracker, m, logging.Discard())
	h.c.wall = func() time.Time { return wallTime }
	return h
}

// at runs one iteration at time ms with the given raw levels.
func (h *harness) at(ms uint32, levels []bool) {
	h.clk.T = clock.Millis(ms)
	h.reader.Samples = [][]bool{levels}
	h.reader.Reset()
	h.c.iterate()
}

// idleUntil runs idle iterations every 10ms from (from, to].
func (h *harness) idleUntil(from, to uint32) {
	for ms := from + 10; ms <= to; ms += 10 {
		h.at(ms, idle())
	}
}

func (h *harness) statusPayloads() []string {
	var out []string
	for _, m := range h.transport.OnTopic(statusTopic) {
		out = append(out, string(m.Payload))
	}
	return out
}

func TestBootConnectsAndAnnouncesOnline(t *testing.T) {
	h := newHarness(t)
	h.at(0, idle())

	require.Len(t, h.transport.Connects, 1)
	assert.Equal(t, "callbutton-test", h.transport.Connects[0].ClientID)
	assert.Equal(t, mqtt.Will{Topic: statusTopic, Payload: "OFFLINE", QoS: 1, Retained: true}, h.transport.Connects[0].Will)

	online := h.transport.OnTopic(statusTopic)
	require.Len(t, online, 1)
	assert.Equal(t, "ONLINE", string(online[0].Payload))
	assert.True(t, online[0].Retained)
	assert.Equal(t, byte(1), online[0].QoS)

	assert.True(t, h.leds.State[gpio.LEDConnection])
	assert.True(t, h.leds.State[gpio.LEDBattery])
	assert.False(t, h.leds.State[gpio.LEDEmergency])
	assert.Empty(t, h.transport.OnTopic(eventTopic))

	snap := h.tracker.Snapshot()
	assert.True(t, snap.MQTTConnected)
	assert.Equal(t, 1, snap.ReconnectAttempts)
}

func TestSOSThenConfirm(t *testing.T) {
	h := newHarness(t)
	h.at(0, idle())
	h.idleUntil(0, 990)

	h.at(1000, press(idxSOS))
	events := h.transport.OnTopic(eventTopic)
	require.Len(t, events, 1)
	assert.JSONEq(t, `{"device_mac":"AA:BB:CC:DD:EE:FF","event_type":"SOS","status":"PENDING","battery_level":85}`, string(events[0].Payload))
	assert.False(t, events[0].Retained)
	assert.Equal(t, byte(0), events[0].QoS)
	assert.True(t, h.device.Emergency())

	// The emergency LED follows on the next pass and blinks at 200ms.
	h.at(1010, press(idxSOS))
	assert.True(t, h.leds.State[gpio.LEDEmergency])
	h.at(1209, idle())
	assert.True(t, h.leds.State[gpio.LEDEmergency])
	h.at(1210, idle())
	assert.False(t, h.leds.State[gpio.LEDEmergency])
	h.idleUntil(1210, 1990)

	h.at(2000, press(idxConfirm))
	events = h.transport.OnTopic(eventTopic)
	require.Len(t, events, 2)
	assert.JSONEq(t, `{"device_mac":"AA:BB:CC:DD:EE:FF","event_type":"GREEN_BTN","status":"TRIGGERED","battery_level":85}`, string(events[1].Payload))
	assert.False(t, h.device.Emergency())

	h.at(2010, press(idxConfirm))
	assert.False(t, h.leds.State[gpio.LEDEmergency])
	h.at(2500, idle())
	assert.False(t, h.leds.State[gpio.LEDEmergency])

	snap := h.tracker.Snapshot()
	assert.Equal(t, logic.EventCounts{SOS: 1, Green: 1}, snap.Counts)
	require.NotNil(t, snap.LastEvent)
	assert.Equal(t, logic.EventGreen, snap.LastEvent.Type)
	assert.True(t, snap.LastEvent.Published)
}

func TestHeldButtonPublishesOnce(t *testing.T) {
	h := newHarness(t)
	h.at(0, idle())
	for ms := uint32(1000); ms <= 3000; ms += 10 {
		h.at(ms, press(idxAssist))
	}
	events := h.transport.OnTopic(eventTopic)
	require.Len(t, events, 1)
	assert.Contains(t, string(events[0].Payload), `"event_type":"ASSIST"`)
	assert.False(t, h.device.Emergency())
}

func TestBounceProducesSingleEvent(t *testing.T) {
	h := newHarness(t)
	h.at(0, idle())

	h.at(1000, press(idxAccept))
	h.at(1010, idle())
	h.at(1020, press(idxAccept))
	h.at(1030, idle())
	h.at(1040, press(idxAccept))
	h.at(1100, press(idxAccept))

	events := h.transport.OnTopic(eventTopic)
	require.Len(t, events, 1)
	assert.Contains(t, string(events[0].Payload), `"event_type":"BLUE_BTN"`)
}

func TestDisconnectAndReconnect(t *testing.T) {
	h := newHarness(t)
	h.at(0, idle())
	h.idleUntil(0, 10000)
	require.True(t, h.leds.State[gpio.LEDConnection])

	h.transport.ConnectError = errors.New("broker down")
	h.transport.Drop()
	require.Len(t, h.transport.WillsFired, 1)
	assert.Equal(t, "OFFLINE", string(h.transport.WillsFired[0].Payload))
	assert.True(t, h.transport.WillsFired[0].Retained)

	// First pass after the drop: LED off, one attempt (last was 10s ago).
	h.at(10010, idle())
	assert.False(t, h.leds.State[gpio.LEDConnection])
	assert.Len(t, h.transport.Connects, 2)

	// No further attempt inside the reconnect interval.
	h.idleUntil(10010, 15000)
	assert.Len(t, h.transport.Connects, 2)
	h.at(15010, idle())
	assert.Len(t, h.transport.Connects, 3)

	// Heartbeat due at 30000 is skipped while the link is down.
	h.idleUntil(15010, 34000)
	assert.Equal(t, []string{"ONLINE"}, h.statusPayloads())
	assert.Len(t, h.transport.Connects, 6) // 20010, 25010, 30010

	h.transport.ConnectError = nil
	h.idleUntil(34000, 35010)
	assert.Len(t, h.transport.Connects, 7)
	assert.True(t, h.leds.State[gpio.LEDConnection])
	assert.Equal(t, []string{"ONLINE", "ONLINE"}, h.statusPayloads())

	// The reconnect restarts the heartbeat timer.
	h.idleUntil(35010, 65000)
	assert.Equal(t, []string{"ONLINE", "ONLINE"}, h.statusPayloads())
	h.at(65010, idle())
	assert.Equal(t, []string{"ONLINE", "ONLINE", "ONLINE"}, h.statusPayloads())
}

// droppingReader loses the broker link the next time inputs are read.
type droppingReader struct {
	gpio.Reader
	transport *mqtt.FakeTransport
	armed     bool
}

func (r *droppingReader) Read() ([]bool, error) {
	if r.armed {
		r.armed = false
		r.transport.Drop()
	}
	return r.Reader.Read()
}

func TestReconnectByEventPublishRestartsHeartbeat(t *testing.T) {
	h := newHarness(t)
	reader := &droppingReader{Reader: h.reader, transport: h.transport}
	h.c.reader = reader
	h.at(0, idle())

	// The link drops after the connection check, so the SOS publish is what
	// reconnects. Its ONLINE stands in for the heartbeat due at 30000.
	reader.armed = true
	h.at(30000, press(idxSOS))

	assert.Len(t, h.transport.Connects, 2)
	assert.Equal(t, []string{"ONLINE", "ONLINE"}, h.statusPayloads())
	events := h.transport.OnTopic(eventTopic)
	require.Len(t, events, 1)
	assert.Contains(t, string(events[0].Payload), `"event_type":"SOS"`)

	h.idleUntil(30000, 59990)
	assert.Len(t, h.statusPayloads(), 2)
	h.at(60000, idle())
	assert.Len(t, h.statusPayloads(), 3)
}

func TestEventDroppedWhileDisconnected(t *testing.T) {
	h := newHarness(t)
	h.at(0, idle())

	h.transport.ConnectError = errors.New("broker down")
	h.transport.Drop()
	h.at(100, idle()) // last attempt was at 0; next allowed at 5000

	h.at(1000, press(idxSOS))
	assert.True(t, h.device.Emergency(), "local state still follows the button")
	last := h.tracker.Snapshot().LastEvent
	require.NotNil(t, last)
	assert.False(t, last.Published)
	assert.Equal(t, mqtt.ErrNotConnected.Error(), last.Error)

	h.transport.ConnectError = nil
	h.idleUntil(1000, 6000)
	assert.True(t, h.transport.IsConnected())
	assert.Empty(t, h.transport.OnTopic(eventTopic), "dropped events are not replayed")
}

func TestHeartbeatWhileConnected(t *testing.T) {
	h := newHarness(t)
	h.at(0, idle())

	h.idleUntil(0, 29990)
	assert.Equal(t, []string{"ONLINE"}, h.statusPayloads())
	h.at(30000, idle())
	assert.Equal(t, []string{"ONLINE", "ONLINE"}, h.statusPayloads())
	h.idleUntil(30000, 60000)
	assert.Len(t, h.statusPayloads(), 3)

	for _, m := range h.transport.OnTopic(statusTopic) {
		assert.True(t, m.Retained)
	}
}

func TestHeartbeatRefreshesNetworkInfo(t *testing.T) {
	h := newHarness(t)
	h.at(0, idle())
	assert.Nil(t, h.tracker.Snapshot().Network)

	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkWifiSSID, "Ward3")
	h.at(30000, idle())

	net := h.tracker.Snapshot().Network
	require.NotNil(t, net)
	assert.Equal(t, "Ward3", net.SSID)
}

func TestLowBatteryBlinksLED(t *testing.T) {
	h := newHarness(t)
	h.battery.level = 10
	h.at(0, idle())
	h.idleUntil(0, 2000)

	writes := h.leds.WritesFor(gpio.LEDBattery)
	assert.GreaterOrEqual(t, len(writes), 4)
	for i := 1; i < len(writes); i++ {
		assert.NotEqual(t, writes[i-1], writes[i], "only changes are written")
	}

	h.at(2010, press(idxAssist))
	events := h.transport.OnTopic(eventTopic)
	require.Len(t, events, 1)
	assert.Contains(t, string(events[0].Payload), `"battery_level":10`)
}

func TestBatteryAtThresholdIsSteady(t *testing.T) {
	h := newHarness(t)
	h.battery.level = logic.LowBatteryPercent
	h.at(0, idle())
	h.idleUntil(0, 3000)
	assert.Equal(t, []bool{true}, h.leds.WritesFor(gpio.LEDBattery))
}

func TestBatteryReadErrorKeepsLastLevel(t *testing.T) {
	h := newHarness(t)
	h.battery.level = 42
	h.at(0, idle())

	h.battery.err = errors.New("no fuel gauge")
	h.at(1000, press(idxSOS))

	events := h.transport.OnTopic(eventTopic)
	require.Len(t, events, 1)
	assert.Contains(t, string(events[0].Payload), `"battery_level":42`)
}

func TestLEDsWrittenOnlyOnChange(t *testing.T) {
	h := newHarness(t)
	h.at(0, idle())
	h.idleUntil(0, 1000)

	assert.Equal(t, []bool{true}, h.leds.WritesFor(gpio.LEDConnection))
	assert.Equal(t, []bool{true}, h.leds.WritesFor(gpio.LEDBattery))
	assert.Equal(t, []bool{false}, h.leds.WritesFor(gpio.LEDEmergency))
}

func TestGPIOReadErrorSkipsInputsOnly(t *testing.T) {
	h := newHarness(t)
	h.reader.ReadError = errors.New("gpio fault")
	h.clk.T = 0
	h.c.iterate()
	h.clk.T = 30000
	h.c.iterate()

	assert.True(t, h.transport.IsConnected())
	assert.Equal(t, []string{"ONLINE", "ONLINE"}, h.statusPayloads())
	assert.Equal(t, 2, h.transport.Pumps)

	// Recovers once reads succeed again.
	h.reader.ReadError = nil
	h.at(31000, press(idxSOS))
	assert.Len(t, h.transport.OnTopic(eventTopic), 1)
}

func TestPublishErrorDoesNotStopLoop(t *testing.T) {
	h := newHarness(t)
	h.at(0, idle())
	h.transport.PublishError = errors.New("write timeout")

	h.at(1000, press(idxSOS))
	assert.True(t, h.device.Emergency())
	assert.False(t, h.tracker.Snapshot().LastEvent.Published)

	h.transport.PublishError = nil
	h.at(1100, idle())
	h.at(1200, press(idxConfirm))
	assert.Len(t, h.transport.OnTopic(eventTopic), 1)
	assert.False(t, h.device.Emergency())
}

func TestTimingAcrossCounterOverflow(t *testing.T) {
	h := newHarness(t)
	start := ^uint32(0) - 25000
	h.clk.T = clock.Millis(start)
	h.device.ResetHeartbeat(h.clk.T)
	h.at(start, idle())
	require.Equal(t, []string{"ONLINE"}, h.statusPayloads())

	// Heartbeat falls due 30s later, after the counter has wrapped.
	for ms := start + 10; ms != start+30000; ms += 10 {
		h.at(ms, idle())
	}
	assert.Len(t, h.statusPayloads(), 1)
	h.at(start+30000, idle())
	assert.Len(t, h.statusPayloads(), 2)
}

// --- runLoop tests ---

// runRunLoop drives runLoop for nTicks and then delivers signal.
func runRunLoop(t *testing.T, c *controller, nTicks int, signal os.Signal) error {
	t.Helper()
	tick := make(chan time.Time)
	sig := make(chan os.Signal, 1)

	errCh := make(chan error, 1)
	go func() {
		errCh <- runLoop(c, tick, sig)
	}()

	for i := 0; i < nTicks; i++ {
		tick <- time.Time{}
	}
	sig <- signal

	return <-errCh
}

func TestRunLoopShutdownSIGTERM(t *testing.T) {
	h := newHarness(t)
	h.c.clock = &stepClock{step: 10}

	require.NoError(t, runRunLoop(t, h.c, 5, syscall.SIGTERM))

	assert.Equal(t, []string{"ONLINE", "OFFLINE"}, h.statusPayloads())
	assert.Equal(t, 1, h.transport.Disconnects)
	assert.Empty(t, h.transport.WillsFired)
	for _, led := range gpio.LEDs {
		assert.False(t, h.leds.State[led], "%s led", led)
	}
	assert.False(t, h.tracker.Snapshot().MQTTConnected)
}

func TestRunLoopShutdownSIGINTWhileDisconnected(t *testing.T) {
	h := newHarness(t)
	h.c.clock = &stepClock{step: 10}
	h.transport.ConnectError = errors.New("broker down")

	require.NoError(t, runRunLoop(t, h.c, 3, syscall.SIGINT))

	assert.Empty(t, h.transport.Published)
	assert.Equal(t, 0, h.transport.Disconnects)
}

func TestRunLoopPublishesPress(t *testing.T) {
	h := newHarness(t)
	h.c.clock = &stepClock{step: 10}
	h.reader.Samples = [][]bool{idle(), idle(), press(idxSOS), press(idxSOS), press(idxSOS)}

	require.NoError(t, runRunLoop(t, h.c, 5, syscall.SIGTERM))

	events := h.transport.OnTopic(eventTopic)
	require.Len(t, events, 1)
	assert.Contains(t, string(events[0].Payload), `"event_type":"SOS"`)
	assert.True(t, h.device.Emergency())
}

func TestRunLoopNoTicks(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, runRunLoop(t, h.c, 0, syscall.SIGTERM))
	assert.Empty(t, h.transport.Connects)
}

// --- command tests ---

func TestPrintState(t *testing.T) {
	cfg := &config.Config{Inputs: config.DefaultInputs()}
	reader := gpio.NewFakeReader([][]bool{press(idxSOS)})

	var buf bytes.Buffer
	require.NoError(t, printState(&buf, cfg, reader, &fakeBattery{level: 64}))
	assert.Equal(t, "red (sos): ACTIVE\nyellow (assist): IDLE\ngreen (confirm): IDLE\nblue (accept): IDLE\nbattery: 64%\n", buf.String())
}

func TestPrintStateReadError(t *testing.T) {
	cfg := &config.Config{Inputs: config.DefaultInputs()}
	reader := gpio.NewFakeReader(nil)
	assert.Error(t, printState(&bytes.Buffer{}, cfg, reader, &fakeBattery{}))
}

func TestBuildChannelsRejectsUnknownRole(t *testing.T) {
	cfg := &config.Config{Inputs: []config.Input{{Name: "x", Role: "purple", Pin: 4}}}
	_, err := buildChannels(cfg)
	assert.Error(t, err)
}

func TestBuildChannelsUsesDebounce(t *testing.T) {
	cfg := &config.Config{
		Inputs: []config.Input{{Name: "red", Role: "sos", Pin: 17}},
		Timing: config.Timing{Debounce: 100 * time.Millisecond},
	}
	channels, err := buildChannels(cfg)
	require.NoError(t, err)
	require.Len(t, channels, 1)

	ch := channels[0]
	_, ok := ch.Poll(true, 0)
	require.True(t, ok)
	_, ok = ch.Poll(false, 99)
	assert.False(t, ok)
	_, ok = ch.Poll(false, 100)
	assert.True(t, ok)
}

func TestConfigCommand(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "callbutton.yaml")
	require.NoError(t, os.WriteFile(file, []byte("broker: tcp://file:1883\npassword: secret\ndevice_id: TEST-1\n"), 0o600))

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"config", "--config", file, "--broker", "tcp://flag:1883", "--heartbeat", "1m"})
	require.NoError(t, cmd.Execute())

	s := out.String()
	assert.Contains(t, s, "broker: tcp://flag:1883")
	assert.Contains(t, s, "device_id: TEST-1")
	assert.Contains(t, s, "heartbeat: 1m0s")
	assert.Contains(t, s, "********")
	assert.NotContains(t, s, "secret")
}

func TestConfigCommandInvalid(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"config", "--config", filepath.Join(t.TempDir(), "missing.yaml")})
	assert.Error(t, cmd.Execute())
}
