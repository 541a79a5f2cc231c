// Package config loads and validates the controller's YAML configuration.
package config

import (
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/boiler-controller/internal/pid"
)

// Defaults for optional keys.
const (
	DefaultPWMFrequency = 1.0 // Hz
	DefaultGPIOChip     = "gpiochip0"
	DefaultW1Dir        = "/sys/bus/w1/devices"
	DefaultMQTTClientID = "boiler-controller"
	DefaultLogLevel     = "info"
	DefaultLogFormat    = "text"
)

// Controller is the immutable per-run control configuration.
type Controller struct {
	SetPoint             float64
	Kp, Ki, Kd           float64
	MaxIntegral          float64
	MaxErrorAccumulation float64
	SamplePeriod         time.Duration
	PWMFrequency         float64 // Hz
	RetentionCapacity    int
}

// Gains returns the PID parameters.
func (c Controller) Gains() pid.Gains {
	return pid.Gains{
		SetPoint:             c.SetPoint,
		Kp:                   c.Kp,
		Ki:                   c.Ki,
		Kd:                   c.Kd,
		MaxIntegral:          c.MaxIntegral,
		MaxErrorAccumulation: c.MaxErrorAccumulation,
	}
}

// MQTT configures telemetry publishing. An empty Broker disables it.
type MQTT struct {
	Broker   string
	ClientID string
}

// Log configures logrus.
type Log struct {
	Level  string
	Format string // "text" or "json"
}

// Config is the validated configuration.
type Config struct {
	RelayPin     int // BCM numbering
	Controller   Controller
	DBPath       string
	SensorID     string // empty selects the first thermometer
	GPIOChip     string
	W1DevicesDir string
	HTTPAddr     string // empty disables the dashboard
	MQTT         MQTT
	Log          Log
}

// file mirrors the YAML keys. Pointers distinguish missing keys from zero.
type file struct {
	RelayPin             *int     `yaml:"relay_pin"`
	SetPoint             *float64 `yaml:"set_point"`
	Kp                   *float64 `yaml:"K_p"`
	Ki                   *float64 `yaml:"K_i"`
	Kd                   *float64 `yaml:"K_d"`
	MaxI                 *float64 `yaml:"max_i"`
	MaxErrorAccumulation *float64 `yaml:"max_error_accumulation"`
	DelayTime            *float64 `yaml:"delay_time"`
	MaxEntries           *int     `yaml:"max_entries"`
	DBPath               string   `yaml:"db_path"`
	PWMFrequency         *float64 `yaml:"pwm_frequency"`

	SensorID     string `yaml:"sensor_id"`
	GPIOChip     string `yaml:"gpio_chip"`
	W1DevicesDir string `yaml:"w1_devices_dir"`
	HTTPAddr     string `yaml:"http_addr"`
	MQTTBroker   string `yaml:"mqtt_broker"`
	MQTTClientID string `yaml:"mqtt_client_id"`
	LogLevel     string `yaml:"log_level"`
	LogFormat    string `yaml:"log_format"`
}

// Load reads and validates the configuration at path.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(b)
}

// Parse validates YAML configuration data.
func Parse(b []byte) (Config, error) {
	var f file
	if err := yaml.Unmarshal(b, &f); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return f.validate()
}

func (f file) validate() (Config, error) {
	if f.RelayPin == nil {
		return Config{}, fmt.Errorf("relay_pin is required")
	}
	if *f.RelayPin < 0 {
		return Config{}, fmt.Errorf("relay_pin must be >= 0")
	}

	required := []struct {
		name string
		v    *float64
	}{
		{"set_point", f.SetPoint},
		{"K_p", f.Kp},
		{"K_i", f.Ki},
		{"K_d", f.Kd},
		{"max_i", f.MaxI},
		{"max_error_accumulation", f.MaxErrorAccumulation},
		{"delay_time", f.DelayTime},
	}
	for _, r := range required {
		if r.v == nil {
			return Config{}, fmt.Errorf("%s is required", r.name)
		}
		if math.IsNaN(*r.v) || math.IsInf(*r.v, 0) {
			return Config{}, fmt.Errorf("%s must be finite", r.name)
		}
	}

	if *f.MaxI <= 0 {
		return Config{}, fmt.Errorf("max_i must be > 0")
	}
	if *f.MaxErrorAccumulation <= 0 {
		return Config{}, fmt.Errorf("max_error_accumulation must be > 0")
	}
	if *f.DelayTime <= 0 {
		return Config{}, fmt.Errorf("delay_time must be > 0")
	}

	if f.MaxEntries == nil {
		return Config{}, fmt.Errorf("max_entries is required")
	}
	if *f.MaxEntries < 1 {
		return Config{}, fmt.Errorf("max_entries must be >= 1")
	}
	if f.DBPath == "" {
		return Config{}, fmt.Errorf("db_path is required")
	}

	freq := DefaultPWMFrequency
	if f.PWMFrequency != nil {
		freq = *f.PWMFrequency
		if math.IsNaN(freq) || math.IsInf(freq, 0) || freq <= 0 {
			return Config{}, fmt.Errorf("pwm_frequency must be > 0")
		}
	}

	cfg := Config{
		RelayPin: *f.RelayPin,
		Controller: Controller{
			SetPoint:             *f.SetPoint,
			Kp:                   *f.Kp,
			Ki:                   *f.Ki,
			Kd:                   *f.Kd,
			MaxIntegral:          *f.MaxI,
			MaxErrorAccumulation: *f.MaxErrorAccumulation,
			SamplePeriod:         time.Duration(*f.DelayTime * float64(time.Second)),
			PWMFrequency:         freq,
			RetentionCapacity:    *f.MaxEntries,
		},
		DBPath:       f.DBPath,
		SensorID:     f.SensorID,
		GPIOChip:     f.GPIOChip,
		W1DevicesDir: f.W1DevicesDir,
		HTTPAddr:     f.HTTPAddr,
		MQTT: MQTT{
			Broker:   f.MQTTBroker,
			ClientID: f.MQTTClientID,
		},
		Log: Log{
			Level:  f.LogLevel,
			Format: f.LogFormat,
		},
	}

	if cfg.Controller.SamplePeriod <= 0 {
		return Config{}, fmt.Errorf("delay_time too small")
	}
	if cfg.GPIOChip == "" {
		cfg.GPIOChip = DefaultGPIOChip
	}
	if cfg.W1DevicesDir == "" {
		cfg.W1DevicesDir = DefaultW1Dir
	}
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = DefaultMQTTClientID
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
	if cfg.Log.Format != "text" && cfg.Log.Format != "json" {
		return Config{}, fmt.Errorf("log_format must be text or json")
	}

	return cfg, nil
}
