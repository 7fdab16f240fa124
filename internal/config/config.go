// Package config loads the daemon configuration from YAML or TOML.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config represents the daemon configuration.
type Config struct {
	Thermocouple ThermocoupleConfig `yaml:"thermocouple" toml:"thermocouple"`
	GPIO         GPIOConfig         `yaml:"gpio" toml:"gpio"`
	Control      ControlConfig      `yaml:"control" toml:"control"`
	HTTP         HTTPConfig         `yaml:"http" toml:"http"`
	MQTT         MQTTConfig         `yaml:"mqtt" toml:"mqtt"`
	Influx       InfluxConfig       `yaml:"influx" toml:"influx"`
	Log          LogConfig          `yaml:"log" toml:"log"`
}

// ThermocoupleConfig selects the MAX31855 driver.
type ThermocoupleConfig struct {
	Driver string `yaml:"driver" toml:"driver"` // "spidev" or "periph"
	Device string `yaml:"device" toml:"device"` // spidev path, or periph port name ("" = first)
	SPIHz  int64  `yaml:"spi_hz" toml:"spi_hz"` // periph only
}

// GPIOConfig selects the output pin driver and pin numbers.
type GPIOConfig struct {
	Driver    string `yaml:"driver" toml:"driver"` // "sysfs" or "cdev"
	SysfsRoot string `yaml:"sysfs_root" toml:"sysfs_root"`
	Chip      string `yaml:"chip" toml:"chip"` // cdev only
	PumpPin   int    `yaml:"pump_pin" toml:"pump_pin"`
	HeaterPin int    `yaml:"heater_pin" toml:"heater_pin"`
}

// ControlConfig contains control loop parameters.
type ControlConfig struct {
	CalibrationOffsetF float64  `yaml:"calibration_offset_f" toml:"calibration_offset_f"`
	InitialSetpoint    *float64 `yaml:"initial_setpoint,omitempty" toml:"initial_setpoint,omitempty"`
}

// HTTPConfig contains the status server settings.
type HTTPConfig struct {
	Addr string `yaml:"addr" toml:"addr"` // "" disables the server
}

// MQTTConfig contains broker settings. An empty broker disables MQTT.
type MQTTConfig struct {
	Broker      string        `yaml:"broker" toml:"broker"`
	ClientID    string        `yaml:"client_id" toml:"client_id"`
	TopicPrefix string        `yaml:"topic_prefix" toml:"topic_prefix"`
	Heartbeat   time.Duration `yaml:"heartbeat" toml:"heartbeat"` // 0 disables heartbeats
}

// InfluxConfig contains InfluxDB settings. An empty addr disables metrics.
type InfluxConfig struct {
	Addr     string        `yaml:"addr" toml:"addr"`
	Database string        `yaml:"database" toml:"database"`
	Username string        `yaml:"username" toml:"username"`
	Password string        `yaml:"password" toml:"password"`
	Interval time.Duration `yaml:"interval" toml:"interval"`
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level       string `yaml:"level" toml:"level"`
	Development bool   `yaml:"development" toml:"development"`
}

// Default returns a configuration for a Raspberry Pi with the thermocouple
// on spidev0.0, the pump on GPIO 27 and the heater on GPIO 17.
func Default() *Config {
	return &Config{
		Thermocouple: ThermocoupleConfig{
			Driver: "spidev",
			Device: "/dev/spidev0.0",
			SPIHz:  1000000,
		},
		GPIO: GPIOConfig{
			Driver:    "sysfs",
			SysfsRoot: "/sys/class/gpio",
			Chip:      "gpiochip0",
			PumpPin:   27,
			HeaterPin: 17,
		},
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
		MQTT: MQTTConfig{
			ClientID:    "sousvide",
			TopicPrefix: "sousvide",
			Heartbeat:   15 * time.Minute,
		},
		Influx: InfluxConfig{
			Database: "sousvide",
			Interval: 10 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file, or TOML if the name ends in
// .toml. If the file doesn't exist or fields are missing, defaults are used.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if isTOML(filename) {
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg.ensureDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as YAML, or TOML if the name ends in .toml.
func (c *Config) Save(filename string) error {
	var data []byte
	if isTOML(filename) {
		var sb strings.Builder
		if err := toml.NewEncoder(&sb).Encode(c); err != nil {
			return fmt.Errorf("marshal config: %w", err)
		}
		data = []byte(sb.String())
	} else {
		var err error
		data, err = yaml.Marshal(c)
		if err != nil {
			return fmt.Errorf("marshal config: %w", err)
		}
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate rejects unknown driver names, invalid pins and non-finite
// temperatures.
func (c *Config) Validate() error {
	switch c.Thermocouple.Driver {
	case "spidev", "periph":
	default:
		return fmt.Errorf("unknown thermocouple driver %q", c.Thermocouple.Driver)
	}
	switch c.GPIO.Driver {
	case "sysfs", "cdev":
	default:
		return fmt.Errorf("unknown gpio driver %q", c.GPIO.Driver)
	}
	if c.GPIO.PumpPin < 0 || c.GPIO.HeaterPin < 0 {
		return fmt.Errorf("invalid gpio pins: pump %d, heater %d", c.GPIO.PumpPin, c.GPIO.HeaterPin)
	}
	if c.GPIO.PumpPin == c.GPIO.HeaterPin {
		return fmt.Errorf("pump and heater share gpio %d", c.GPIO.PumpPin)
	}
	if c.MQTT.Heartbeat < 0 {
		return fmt.Errorf("invalid heartbeat %v", c.MQTT.Heartbeat)
	}
	if !isFinite(c.Control.CalibrationOffsetF) {
		return fmt.Errorf("invalid calibration offset %v", c.Control.CalibrationOffsetF)
	}
	if sp := c.Control.InitialSetpoint; sp != nil && !isFinite(*sp) {
		return fmt.Errorf("invalid initial setpoint %v", *sp)
	}
	return nil
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// ensureDefaults fills fields left empty by a partial config file.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Thermocouple.Driver == "" {
		c.Thermocouple.Driver = def.Thermocouple.Driver
	}
	if c.Thermocouple.Driver == "spidev" && c.Thermocouple.Device == "" {
		c.Thermocouple.Device = def.Thermocouple.Device
	}
	if c.Thermocouple.SPIHz == 0 {
		c.Thermocouple.SPIHz = def.Thermocouple.SPIHz
	}

	if c.GPIO.Driver == "" {
		c.GPIO.Driver = def.GPIO.Driver
	}
	if c.GPIO.SysfsRoot == "" {
		c.GPIO.SysfsRoot = def.GPIO.SysfsRoot
	}
	if c.GPIO.Chip == "" {
		c.GPIO.Chip = def.GPIO.Chip
	}

	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = def.MQTT.ClientID
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = def.MQTT.TopicPrefix
	}

	if c.Influx.Database == "" {
		c.Influx.Database = def.Influx.Database
	}
	if c.Influx.Interval == 0 {
		c.Influx.Interval = def.Influx.Interval
	}

	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
}

func isTOML(filename string) bool {
	return strings.EqualFold(filepath.Ext(filename), ".toml")
}
