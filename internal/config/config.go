package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// MQTTConfig - broker connection and command-channel settings
type MQTTConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Broker    string `yaml:"broker"` // tcp://IP:PORT
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	ClientID  string `yaml:"client_id"`  // defaults to the derived device id
	BaseTopic string `yaml:"base_topic"` // topics are <base>/<deviceId>/in|out
	// Inbound command rate limiting
	CommandRateLimit float64 `yaml:"command_rate_limit"`
	CommandRateBurst int     `yaml:"command_rate_burst"`
}

// GPIOConfig - hardware pin assignment and polarity
type GPIOConfig struct {
	Chip      string `yaml:"chip"`
	RelayPin  int    `yaml:"relay_pin"`
	SwitchPin int    `yaml:"switch_pin"`
	// Reference wiring: relay board is active-low, switch closes to ground.
	RelayActiveLow  *bool `yaml:"relay_active_low"`
	SwitchActiveLow *bool `yaml:"switch_active_low"`
}

// WifiConfig - wireless interface used for link quality and device identity
type WifiConfig struct {
	Interface string `yaml:"interface"`
}

// TimingConfig - every protocol and loop interval, as duration strings
type TimingConfig struct {
	Settle         string `yaml:"settle"`          // fixture boot settle before the first pulse
	PulseWidth     string `yaml:"pulse_width"`     // off time and on time of one pulse
	SwitchPoll     string `yaml:"switch_poll"`     // local switch poll interval
	StatusInterval string `yaml:"status_interval"` // periodic status publish
	ReconnectDelay string `yaml:"reconnect_delay"` // fixed broker retry backoff
	LoopTick       string `yaml:"loop_tick"`       // idle sleep between loop iterations
}

// ServerConfig - local web dashboard
type ServerConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Port           string   `yaml:"port"`
	WebFilesDir    string   `yaml:"web_files_dir"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Config - root structure
type Config struct {
	MQTT   MQTTConfig   `yaml:"mqtt"`
	GPIO   GPIOConfig   `yaml:"gpio"`
	Wifi   WifiConfig   `yaml:"wifi"`
	Timing TimingConfig `yaml:"timing"`
	Server ServerConfig `yaml:"server"`

	// File system settings
	ShowsDir      string `yaml:"shows_dir"`
	SchedulesFile string `yaml:"schedules_file"`
}

// Load reads the file, parses the YAML and applies sanitizing, defaults and
// validation. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := &Config{}
			cfg.setDefaults()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to open config file '%s': %w", path, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode yaml: %w", err)
	}

	cfg.sanitize()
	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) sanitize() {
	c.MQTT.Broker = strings.TrimSpace(c.MQTT.Broker)
	c.MQTT.BaseTopic = strings.Trim(strings.TrimSpace(c.MQTT.BaseTopic), "/")
	c.GPIO.Chip = strings.TrimSpace(c.GPIO.Chip)
	c.Wifi.Interface = strings.TrimSpace(c.Wifi.Interface)
	c.Server.Port = strings.TrimSpace(c.Server.Port)
	c.ShowsDir = strings.TrimSpace(c.ShowsDir)
	c.SchedulesFile = strings.TrimSpace(c.SchedulesFile)
}

func (c *Config) setDefaults() {
	// MQTT defaults
	if c.MQTT.Broker == "" {
		c.MQTT.Broker = "tcp://localhost:1883"
	}
	if c.MQTT.BaseTopic == "" {
		c.MQTT.BaseTopic = "pool"
	}
	if c.MQTT.CommandRateLimit <= 0 {
		c.MQTT.CommandRateLimit = 5.0
	}
	if c.MQTT.CommandRateBurst <= 0 {
		c.MQTT.CommandRateBurst = 10
	}

	// GPIO defaults (reference wiring)
	if c.GPIO.Chip == "" {
		c.GPIO.Chip = "gpiochip0"
	}
	if c.GPIO.RelayPin == 0 {
		c.GPIO.RelayPin = 17
	}
	if c.GPIO.SwitchPin == 0 {
		c.GPIO.SwitchPin = 27
	}
	if c.GPIO.RelayActiveLow == nil {
		c.GPIO.RelayActiveLow = boolPtr(true)
	}
	if c.GPIO.SwitchActiveLow == nil {
		c.GPIO.SwitchActiveLow = boolPtr(true)
	}

	// Wifi defaults
	if c.Wifi.Interface == "" {
		c.Wifi.Interface = "wlan0"
	}

	// Timing defaults: the pulse timings are the fixture's decoder contract,
	// the rest are loop cadences.
	if c.Timing.Settle == "" {
		c.Timing.Settle = "500ms"
	}
	if c.Timing.PulseWidth == "" {
		c.Timing.PulseWidth = "250ms"
	}
	if c.Timing.SwitchPoll == "" {
		c.Timing.SwitchPoll = "200ms"
	}
	if c.Timing.StatusInterval == "" {
		c.Timing.StatusInterval = "60s"
	}
	if c.Timing.ReconnectDelay == "" {
		c.Timing.ReconnectDelay = "5s"
	}
	if c.Timing.LoopTick == "" {
		c.Timing.LoopTick = "20ms"
	}

	// Server defaults
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Server.WebFilesDir == "" {
		c.Server.WebFilesDir = "./web"
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"http://localhost:8080"}
	}

	// File defaults
	if c.ShowsDir == "" {
		c.ShowsDir = "shows"
	}
	if c.SchedulesFile == "" {
		c.SchedulesFile = "schedules.json"
	}
}

func (c *Config) validate() error {
	if c.GPIO.RelayPin == c.GPIO.SwitchPin {
		return fmt.Errorf("config error: relay_pin and switch_pin must differ")
	}
	for name, v := range map[string]string{
		"settle":          c.Timing.Settle,
		"pulse_width":     c.Timing.PulseWidth,
		"switch_poll":     c.Timing.SwitchPoll,
		"status_interval": c.Timing.StatusInterval,
		"reconnect_delay": c.Timing.ReconnectDelay,
		"loop_tick":       c.Timing.LoopTick,
	} {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config error: timing.%s: %w", name, err)
		}
		if d <= 0 {
			return fmt.Errorf("config error: timing.%s must be positive", name)
		}
	}
	return nil
}

// Duration parses a validated timing value.
func Duration(v string) time.Duration {
	d, _ := time.ParseDuration(v)
	return d
}

func boolPtr(b bool) *bool { return &b }
