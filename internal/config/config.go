// Package config loads the daemon's provisioning: broker, identity, pin
// layout and timing. Values come from a YAML file, CALLBUTTON_* environment
// variables and command-line flags, in increasing precedence.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"

	"github.com/sweeney/callbutton/internal/battery"
	"github.com/sweeney/callbutton/internal/gpio"
	"github.com/sweeney/callbutton/internal/logic"
	"github.com/sweeney/callbutton/internal/mqtt"
)

// EnvPrefix prefixes environment overrides, e.g. CALLBUTTON_BROKER.
const EnvPrefix = "CALLBUTTON"

// DefaultFile is read when no --config is given, if it exists.
const DefaultFile = "/etc/callbutton.yaml"

// Config is the full daemon configuration.
type Config struct {
	Broker       string  `mapstructure:"broker" yaml:"broker"`
	Username     string  `mapstructure:"username" yaml:"username,omitempty"`
	Password     string  `mapstructure:"password" yaml:"password,omitempty"`
	ClientID     string  `mapstructure:"client_id" yaml:"client_id,omitempty"`
	DeviceID     string  `mapstructure:"device_id" yaml:"device_id,omitempty"`
	Interface    string  `mapstructure:"interface" yaml:"interface,omitempty"`
	Topics       Topics  `mapstructure:"topics" yaml:"topics"`
	GPIO         GPIO    `mapstructure:"gpio" yaml:"gpio"`
	Inputs       []Input `mapstructure:"inputs" yaml:"inputs"`
	AssistStatus string  `mapstructure:"assist_status" yaml:"assist_status"`
	Battery      Battery `mapstructure:"battery" yaml:"battery"`
	Timing       Timing  `mapstructure:"timing" yaml:"timing"`
	Startup      Startup `mapstructure:"startup" yaml:"startup"`
	HTTP         string  `mapstructure:"http" yaml:"http"`
	LogLevel     string  `mapstructure:"log_level" yaml:"log_level"`
}

// Topics holds topic templates; {device} is replaced by the device id.
type Topics struct {
	Status string `mapstructure:"status" yaml:"status"`
	Event  string `mapstructure:"event" yaml:"event"`
}

// GPIO holds the chip and LED pin layout.
type GPIO struct {
	Chip string `mapstructure:"chip" yaml:"chip"`
	LEDs LEDs   `mapstructure:"leds" yaml:"leds"`
}

// LEDs holds BCM pins for each indicator; -1 means not fitted.
type LEDs struct {
	Connection int `mapstructure:"connection" yaml:"connection"`
	Battery    int `mapstructure:"battery" yaml:"battery"`
	Emergency  int `mapstructure:"emergency" yaml:"emergency"`
}

// Input is one button.
type Input struct {
	Name      string `mapstructure:"name" yaml:"name"`
	Role      string `mapstructure:"role" yaml:"role"`
	Pin       int    `mapstructure:"pin" yaml:"pin"`
	ActiveLow bool   `mapstructure:"active_low" yaml:"active_low"`
}

// Battery selects the battery level source.
type Battery struct {
	Source string `mapstructure:"source" yaml:"source"`
	Level  int    `mapstructure:"level" yaml:"level"`
	Path   string `mapstructure:"path" yaml:"path,omitempty"`
}

// Timing holds the loop intervals.
type Timing struct {
	Poll      time.Duration `mapstructure:"poll"`
	Debounce  time.Duration `mapstructure:"debounce"`
	Reconnect time.Duration `mapstructure:"reconnect"`
	Heartbeat time.Duration `mapstructure:"heartbeat"`
}

// MarshalYAML renders durations in their string form.
func (t Timing) MarshalYAML() (interface{}, error) {
	return yaml.MapSlice{
		{Key: "poll", Value: t.Poll.String()},
		{Key: "debounce", Value: t.Debounce.String()},
		{Key: "reconnect", Value: t.Reconnect.String()},
		{Key: "heartbeat", Value: t.Heartbeat.String()},
	}, nil
}

// Startup controls the bounded wait for the broker at boot.
type Startup struct {
	Retries  int           `mapstructure:"retries"`
	Interval time.Duration `mapstructure:"interval"`
	Timeout  time.Duration `mapstructure:"timeout"` // per dial attempt
}

// MarshalYAML renders durations in their string form.
func (s Startup) MarshalYAML() (interface{}, error) {
	return yaml.MapSlice{
		{Key: "retries", Value: s.Retries},
		{Key: "interval", Value: s.Interval.String()},
		{Key: "timeout", Value: s.Timeout.String()},
	}, nil
}

// SetDefaults registers every key with its default value.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("broker", "tcp://localhost:1883")
	v.SetDefault("username", "")
	v.SetDefault("password", "")
	v.SetDefault("client_id", "")
	v.SetDefault("device_id", "")
	v.SetDefault("interface", "")
	v.SetDefault("topics.status", mqtt.DefaultStatusTopic)
	v.SetDefault("topics.event", mqtt.DefaultEventTopic)
	v.SetDefault("gpio.chip", gpio.DefaultChip)
	v.SetDefault("gpio.leds.connection", gpio.DefaultPinLEDConnection)
	v.SetDefault("gpio.leds.battery", gpio.DefaultPinLEDBattery)
	v.SetDefault("gpio.leds.emergency", gpio.DefaultPinLEDEmergency)
	v.SetDefault("assist_status", string(logic.StatusPending))
	v.SetDefault("battery.source", battery.KindFixed)
	v.SetDefault("battery.level", battery.DefaultLevel)
	v.SetDefault("battery.path", "")
	v.SetDefault("timing.poll", 10*time.Millisecond)
	v.SetDefault("timing.debounce", logic.DefaultSettleMs*time.Millisecond)
	v.SetDefault("timing.reconnect", mqtt.DefaultReconnectMs*time.Millisecond)
	v.SetDefault("timing.heartbeat", logic.DefaultHeartbeatMs*time.Millisecond)
	v.SetDefault("startup.retries", 20)
	v.SetDefault("startup.interval", 500*time.Millisecond)
	v.SetDefault("startup.timeout", time.Second)
	v.SetDefault("http", ":80")
	v.SetDefault("log_level", "info")
}

// DefaultInputs is the four-button layout: red SOS wired active-high, the
// others to ground with pull-ups.
func DefaultInputs() []Input {
	return []Input{
		{Name: "red", Role: string(logic.RoleSOS), Pin: gpio.DefaultPinSOS},
		{Name: "yellow", Role: string(logic.RoleAssist), Pin: gpio.DefaultPinAssist, ActiveLow: true},
		{Name: "green", Role: string(logic.RoleConfirm), Pin: gpio.DefaultPinConfirm, ActiveLow: true},
		{Name: "blue", Role: string(logic.RoleAccept), Pin: gpio.DefaultPinAccept, ActiveLow: true},
	}
}

// Load reads configuration into v and decodes it. file may be empty, in
// which case DefaultFile is used if present.
func Load(v *viper.Viper, file string) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config %s", file)
		}
	} else {
		v.SetConfigFile(DefaultFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil && !isNotExist(err) {
			return nil, errors.Wrapf(err, "read config %s", DefaultFile)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	if len(c.Inputs) == 0 {
		c.Inputs = DefaultInputs()
	}
	for i := range c.Inputs {
		if c.Inputs[i].Name == "" {
			c.Inputs[i].Name = c.Inputs[i].Role
		}
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks the configuration for values the daemon cannot run with.
func (c *Config) Validate() error {
	if _, err := mqtt.BrokerAddress(c.Broker); err != nil {
		return errors.Wrap(err, "broker")
	}
	if c.Topics.Status == "" || c.Topics.Event == "" {
		return errors.New("topics: status and event templates are required")
	}
	if len(c.Inputs) == 0 {
		return errors.New("inputs: at least one input is required")
	}

	names := make(map[string]bool)
	pins := make(map[int]string)
	for _, in := range c.Inputs {
		if _, err := logic.ParseRole(in.Role); err != nil {
			return errors.Wrapf(err, "input %q", in.Name)
		}
		if in.Pin < 0 {
			return errors.Errorf("input %q: invalid pin %d", in.Name, in.Pin)
		}
		if names[in.Name] {
			return errors.Errorf("input %q: duplicate name", in.Name)
		}
		if other, ok := pins[in.Pin]; ok {
			return errors.Errorf("input %q: pin %d already used by %q", in.Name, in.Pin, other)
		}
		names[in.Name] = true
		pins[in.Pin] = in.Name
	}
	for led, pin := range c.LEDPins() {
		if pin == gpio.NoPin {
			continue
		}
		if pin < 0 {
			return errors.Errorf("led %s: invalid pin %d", led, pin)
		}
		if other, ok := pins[pin]; ok {
			return errors.Errorf("led %s: pin %d already used by %q", led, pin, other)
		}
		pins[pin] = string(led)
	}

	if _, err := logic.ParseStatus(c.AssistStatus); err != nil {
		return errors.Wrap(err, "assist_status")
	}
	if _, err := battery.New(c.Battery.Source, c.Battery.Level, c.Battery.Path); err != nil {
		return errors.Wrap(err, "battery")
	}
	if c.Battery.Level < 0 || c.Battery.Level > 100 {
		return errors.Errorf("battery: level %d outside 0-100", c.Battery.Level)
	}

	if c.Timing.Poll <= 0 {
		return errors.Errorf("timing: poll must be positive, got %v", c.Timing.Poll)
	}
	if c.Timing.Debounce < 0 || c.Timing.Heartbeat < 0 {
		return errors.New("timing: debounce and heartbeat must not be negative")
	}
	if c.Timing.Reconnect <= 0 {
		return errors.Errorf("timing: reconnect must be positive, got %v", c.Timing.Reconnect)
	}
	if c.Startup.Timeout <= 0 {
		return errors.Errorf("startup: timeout must be positive, got %v", c.Startup.Timeout)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrap(err, "log_level")
	}
	return nil
}

// InputLines returns the GPIO request for each input, in order.
func (c *Config) InputLines() []gpio.InputLine {
	lines := make([]gpio.InputLine, len(c.Inputs))
	for i, in := range c.Inputs {
		lines[i] = gpio.InputLine{Pin: in.Pin, PullUp: in.ActiveLow}
	}
	return lines
}

// LEDPins maps each indicator to its pin.
func (c *Config) LEDPins() map[gpio.LED]int {
	return map[gpio.LED]int{
		gpio.LEDConnection: c.GPIO.LEDs.Connection,
		gpio.LEDBattery:    c.GPIO.LEDs.Battery,
		gpio.LEDEmergency:  c.GPIO.LEDs.Emergency,
	}
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	if c.Password != "" {
		c.Password = "********"
	}
	c.Inputs = append([]Input(nil), c.Inputs...)
	return c
}

// YAML renders the configuration with secrets redacted.
func (c *Config) YAML() ([]byte, error) {
	data, err := yaml.Marshal(c.Redacted())
	if err != nil {
		return nil, errors.Wrap(err, "marshal config")
	}
	return data, nil
}

func isNotExist(err error) bool {
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return os.IsNotExist(pathErr)
	}
	return os.IsNotExist(err)
}
