// Command callbutton bridges GPIO call buttons to an MQTT backend.
package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sweeney/callbutton/internal/battery"
	"github.com/sweeney/callbutton/internal/clock"
	"github.com/sweeney/callbutton/internal/config"
	"github.com/sweeney/callbutton/internal/device"
	"github.com/sweeney/callbutton/internal/gpio"
	"github.com/sweeney/callbutton/internal/logging"
	"github.com/sweeney/callbutton/internal/logic"
	"github.com/sweeney/callbutton/internal/metrics"
	"github.com/sweeney/callbutton/internal/mqtt"
	"github.com/sweeney/callbutton/internal/status"
	"github.com/sweeney/callbutton/internal/web"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// flagKeys maps command-line flags to configuration keys.
var flagKeys = map[string]string{
	"broker":        "broker",
	"username":      "username",
	"password":      "password",
	"client-id":     "client_id",
	"device-id":     "device_id",
	"interface":     "interface",
	"assist-status": "assist_status",
	"battery-level": "battery.level",
	"poll":          "timing.poll",
	"debounce":      "timing.debounce",
	"reconnect":     "timing.reconnect",
	"heartbeat":     "timing.heartbeat",
	"http":          "http",
	"log-level":     "log_level",
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	var cfgFile string

	load := func() (*config.Config, error) {
		return config.Load(v, cfgFile)
	}

	runCmd := func(cmd *cobra.Command, args []string) error {
		cfg, err := load()
		if err != nil {
			return err
		}
		return run(cfg)
	}

	root := &cobra.Command{
		Use:          "callbutton",
		Short:        "Bridge GPIO call buttons to MQTT",
		SilenceUsage: true,
		RunE:         runCmd,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default "+config.DefaultFile+" if present)")
	flags.String("broker", "", "MQTT broker URL")
	flags.String("username", "", "MQTT username")
	flags.String("password", "", "MQTT password")
	flags.String("client-id", "", "MQTT client id (default derived from the device id)")
	flags.String("device-id", "", "device identifier (default MAC address)")
	flags.String("interface", "", "network interface whose MAC is the device id")
	flags.String("assist-status", "", "status published for assist calls (PENDING or ACKNOWLEDGED)")
	flags.Int("battery-level", 0, "fixed battery level in percent")
	flags.Duration("poll", 0, "GPIO polling interval")
	flags.Duration("debounce", 0, "input settle time")
	flags.Duration("reconnect", 0, "minimum time between MQTT connect attempts")
	flags.Duration("heartbeat", 0, "ONLINE heartbeat interval (0 to disable)")
	flags.String("http", "", "HTTP status address (empty to disable)")
	flags.String("log-level", "", "log level")
	for name, key := range flagKeys {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Run the daemon (default)",
			RunE:  runCmd,
		},
		&cobra.Command{
			Use:   "print-state",
			Short: "Print the current input levels and exit",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := load()
				if err != nil {
					return err
				}
				reader, err := gpio.NewRealReader(cfg.GPIO.Chip, cfg.InputLines())
				if err != nil {
					return errors.Wrap(err, "init gpio")
				}
				defer reader.Close()
				batt, err := battery.New(cfg.Battery.Source, cfg.Battery.Level, cfg.Battery.Path)
				if err != nil {
					return err
				}
				return printState(cmd.OutOrStdout(), cfg, reader, batt)
			},
		},
		&cobra.Command{
			Use:   "config",
			Short: "Print the effective configuration as YAML",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := load()
				if err != nil {
					return err
				}
				data, err := cfg.YAML()
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			},
		},
	)
	return root
}

// printState reads the inputs once and prints each one's logical state.
func printState(w io.Writer, cfg *config.Config, reader gpio.Reader, batt battery.Source) error {
	levels, err := reader.Read()
	if err != nil {
		return errors.Wrap(err, "read gpio")
	}
	for i, in := range cfg.Inputs {
		if i >= len(levels) {
			break
		}
		active := levels[i] != in.ActiveLow
		fmt.Fprintf(w, "%s (%s): %s\n", in.Name, in.Role, status.InputStateString(active))
	}
	level, err := batt.Level()
	if err != nil {
		return errors.Wrap(err, "read battery")
	}
	fmt.Fprintf(w, "battery: %d%%\n", level)
	return nil
}

// buildChannels creates one debounced channel per configured input.
func buildChannels(cfg *config.Config) ([]*logic.Channel, error) {
	settle := clock.Ms(cfg.Timing.Debounce)
	channels := make([]*logic.Channel, 0, len(cfg.Inputs))
	for _, in := range cfg.Inputs {
		role, err := logic.ParseRole(in.Role)
		if err != nil {
			return nil, errors.Wrapf(err, "input %q", in.Name)
		}
		channels = append(channels, logic.NewChannel(in.Name, role, in.ActiveLow, settle))
	}
	return channels, nil
}

func run(cfg *config.Config) error {
	logs := logging.NewLogrus(cfg.LogLevel, os.Stderr)
	log := logs.Get("main")

	deviceID, err := device.ID(cfg.DeviceID, cfg.Interface)
	if err != nil {
		return errors.Wrap(err, "device id")
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "callbutton-" + deviceID
	}
	statusTopic := mqtt.Topic(cfg.Topics.Status, deviceID)
	eventTopic := mqtt.Topic(cfg.Topics.Event, deviceID)

	// Initialize GPIO
	reader, err := gpio.NewRealReader(cfg.GPIO.Chip, cfg.InputLines())
	if err != nil {
		return errors.Wrap(err, "init gpio inputs")
	}
	defer reader.Close()

	leds, err := gpio.NewRealWriter(cfg.GPIO.Chip, cfg.LEDPins())
	if err != nil {
		return errors.Wrap(err, "init gpio leds")
	}
	defer leds.Close()

	batt, err := battery.New(cfg.Battery.Source, cfg.Battery.Level, cfg.Battery.Path)
	if err != nil {
		return err
	}
	assistStatus, err := logic.ParseStatus(cfg.AssistStatus)
	if err != nil {
		return err
	}
	channels, err := buildChannels(cfg)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	// Initialize status tracker (before the loop so snapshots are available)
	tracker := status.NewTracker(time.Now(), status.Config{
		DeviceID:    deviceID,
		Broker:      cfg.Broker,
		StatusTopic: statusTopic,
		EventTopic:  eventTopic,
		HTTPAddr:    cfg.HTTP,
		PollMs:      cfg.Timing.Poll.Milliseconds(),
		DebounceMs:  cfg.Timing.Debounce.Milliseconds(),
		ReconnectMs: cfg.Timing.Reconnect.Milliseconds(),
		HeartbeatMs: cfg.Timing.Heartbeat.Milliseconds(),
	})
	if info := readNetworkInfo(); info != nil {
		tracker.SetNetwork(info)
	}

	// Start HTTP status server
	if cfg.HTTP != "" {
		srv := web.New(cfg.HTTP, tracker, reg)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.WithError(err).Error("http server")
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Infof("http status server listening on %s", cfg.HTTP)
	}

	if err := mqtt.WaitForBroker(cfg.Broker, cfg.Startup.Retries, cfg.Startup.Interval, cfg.Startup.Timeout, net.DialTimeout, logs.Get("startup")); err != nil {
		log.WithError(err).Warn("broker unreachable at startup, continuing")
	}

	src := clock.NewMonotonic()
	indicators := logic.NewIndicators()
	transport := mqtt.NewPahoTransport(mqtt.PahoOptions{
		Broker:   cfg.Broker,
		Username: cfg.Username,
		Password: cfg.Password,
	}, logs.Get("paho"))
	manager := mqtt.NewManager(transport, mqtt.ManagerConfig{
		ClientID:    clientID,
		StatusTopic: statusTopic,
		ReconnectMs: clock.Ms(cfg.Timing.Reconnect),
	}, indicators, m, logs.Get("mqtt"))
	publisher := mqtt.NewEventPublisher(manager, deviceID, eventTopic, m)
	dev := logic.NewDevice(channels, assistStatus, clock.Ms(cfg.Timing.Heartbeat), src.Now())

	c := newController(src, reader, leds, batt, manager, publisher, dev, indicators, tracker, m, logs.Get("loop"))

	log.WithField("device", deviceID).Infof("started: poll=%v debounce=%v broker=%s heartbeat=%v",
		cfg.Timing.Poll, cfg.Timing.Debounce, cfg.Broker, cfg.Timing.Heartbeat)

	ticker := time.NewTicker(cfg.Timing.Poll)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(c, ticker.C, sigCh)
}
