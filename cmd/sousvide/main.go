// Command sousvide holds a water bath at a setpoint by switching a pump and a
// heater from MAX31855 thermocouple readings, and serves its state over HTTP,
// MQTT and InfluxDB.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/sweeney/sousvide/internal/config"
	"github.com/sweeney/sousvide/internal/control"
	"github.com/sweeney/sousvide/internal/gpio"
	"github.com/sweeney/sousvide/internal/max31855"
	"github.com/sweeney/sousvide/internal/metrics"
	"github.com/sweeney/sousvide/internal/mqtt"
	"github.com/sweeney/sousvide/internal/status"
	"github.com/sweeney/sousvide/internal/web"
)

// publishInterval is how often state is pushed to the tracker, MQTT and metrics.
const publishInterval = time.Second

func main() {
	cfgPath := flag.String("config", "/etc/sousvide.yaml", "Config file (.yaml or .toml)")
	httpAddr := flag.String("http", "", "HTTP address, overrides config (\"off\" disables)")
	broker := flag.String("broker", "", "MQTT broker address, overrides config (\"off\" disables)")
	printState := flag.Bool("print-state", false, "Print one thermocouple sample and exit")

	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	applyOverride(&cfg.HTTP.Addr, *httpAddr)
	applyOverride(&cfg.MQTT.Broker, *broker)

	logger, err := newLogger(cfg.Log)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, *printState, logger); err != nil {
		logger.Fatalf("fatal: %v", err)
	}
}

// applyOverride replaces *dst with a non-empty flag value; "off" clears it.
func applyOverride(dst *string, flagValue string) {
	switch flagValue {
	case "":
	case "off":
		*dst = ""
	default:
		*dst = flagValue
	}
}

func newLogger(cfg config.LogConfig) (*zap.SugaredLogger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	zcfg.Level = level

	l, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return l.Sugar(), nil
}

// thermocouple is a temperature source that owns a device handle.
type thermocouple interface {
	control.TemperatureSource
	Close() error
}

func openThermocouple(cfg config.ThermocoupleConfig) (thermocouple, error) {
	if cfg.Driver == "periph" {
		t, err := max31855.OpenSPI(cfg.Device, cfg.SPIHz)
		if err != nil {
			return nil, err
		}
		return t, nil
	}
	t, err := max31855.Open(cfg.Device)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func openPin(cfg config.GPIOConfig, port int) (gpio.Pin, error) {
	if cfg.Driver == "cdev" {
		p, err := gpio.OpenCdev(cfg.Chip, port, gpio.Out)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
	p, err := gpio.OpenSysfs(cfg.SysfsRoot, port, gpio.Out)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func thermocoupleLabel(cfg config.ThermocoupleConfig) string {
	if cfg.Device == "" {
		return cfg.Driver
	}
	return cfg.Driver + ":" + cfg.Device
}

func run(cfg *config.Config, printState bool, logger *zap.SugaredLogger) (err error) {
	source, err := openThermocouple(cfg.Thermocouple)
	if err != nil {
		return fmt.Errorf("open thermocouple: %w", err)
	}
	defer func() { err = multierr.Append(err, source.Close()) }()

	// Print state mode
	if printState {
		s, err := source.ReadSample()
		if err != nil {
			return fmt.Errorf("read thermocouple: %w", err)
		}
		fmt.Println(s)
		return nil
	}

	pump, err := openPin(cfg.GPIO, cfg.GPIO.PumpPin)
	if err != nil {
		return fmt.Errorf("open pump pin: %w", err)
	}
	defer func() { err = multierr.Append(err, pump.Close()) }()

	heater, err := openPin(cfg.GPIO, cfg.GPIO.HeaterPin)
	if err != nil {
		return fmt.Errorf("open heater pin: %w", err)
	}
	defer func() { err = multierr.Append(err, heater.Close()) }()

	ctl, err := control.New(source, pump, heater,
		control.WithLogger(logger),
		control.WithCalibration(control.OffsetCalibration(cfg.Control.CalibrationOffsetF)),
	)
	if err != nil {
		return err
	}
	if sp := cfg.Control.InitialSetpoint; sp != nil {
		ctl.ChangeSetpoint(*sp)
	}

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), status.Config{
		Thermocouple: thermocoupleLabel(cfg.Thermocouple),
		GPIO:         cfg.GPIO.Driver,
		PumpPin:      cfg.GPIO.PumpPin,
		HeaterPin:    cfg.GPIO.HeaterPin,
		CalibrationF: cfg.Control.CalibrationOffsetF,
		HeartbeatMs:  cfg.MQTT.Heartbeat.Milliseconds(),
		Broker:       cfg.MQTT.Broker,
		HTTPAddr:     cfg.HTTP.Addr,
		Influx:       cfg.Influx.Addr,
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	// Initialize MQTT
	var publisher mqtt.Publisher = discardPublisher{}
	var mqttStatus mqtt.ConnectionStatus = discardPublisher{}
	if cfg.MQTT.Broker != "" {
		p, err := mqtt.NewRealPublisher(mqtt.Options{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			TopicPrefix: cfg.MQTT.TopicPrefix,
		}, ctl, logger)
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		defer p.Close()
		publisher, mqttStatus = p, p
		tracker.SetMQTTConnected(p.IsConnected())
	}

	// Initialize metrics
	var recorder metrics.Recorder
	if cfg.Influx.Addr != "" {
		r, err := metrics.NewInfluxRecorder(metrics.Config{
			Addr:     cfg.Influx.Addr,
			Database: cfg.Influx.Database,
			Username: cfg.Influx.Username,
			Password: cfg.Influx.Password,
			Interval: cfg.Influx.Interval,
		})
		if err != nil {
			return fmt.Errorf("init influx: %w", err)
		}
		defer func() {
			if cerr := r.Close(); cerr != nil {
				logger.Errorf("influx: close: %v", cerr)
			}
		}()
		recorder = r
	}

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		logger.Errorf("failed to publish startup event: %v", err)
	}

	// Start HTTP status server
	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker, ctl)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Errorf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		logger.Infof("http status server listening on %s", cfg.HTTP.Addr)
	}

	logger.Infof("started: thermocouple=%s gpio=%s pump=%d heater=%d broker=%s heartbeat=%v",
		thermocoupleLabel(cfg.Thermocouple), cfg.GPIO.Driver, cfg.GPIO.PumpPin, cfg.GPIO.HeaterPin,
		cfg.MQTT.Broker, cfg.MQTT.Heartbeat)

	ticker := time.NewTicker(publishInterval)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	d := &daemon{
		ctl:        ctl,
		publisher:  publisher,
		mqttStatus: mqttStatus,
		tracker:    tracker,
		recorder:   recorder,
		heartbeat:  cfg.MQTT.Heartbeat,
		clock:      clock.New(),
		logger:     logger,
	}
	return d.runLoop(context.Background(), ticker.C, sigCh)
}

// discardPublisher stands in for MQTT when no broker is configured.
type discardPublisher struct{}

func (discardPublisher) Publish(control.Event) error          { return nil }
func (discardPublisher) PublishSystem(mqtt.SystemEvent) error { return nil }
func (discardPublisher) Close() error                         { return nil }
func (discardPublisher) IsConnected() bool                    { return false }
func (discardPublisher) BufferStats() mqtt.BufferStats        { return mqtt.BufferStats{} }

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
