package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Log             LogConfig        `yaml:"log"`
	Database        DatabaseConfig   `yaml:"database"`
	Controller      ControllerConfig `yaml:"controller"`
	API             APIConfig        `yaml:"api"`
	MQTT            MQTTConfig       `yaml:"mqtt"`
	Hue             HueConfig        `yaml:"hue"`
	Filters         map[uint8]string `yaml:"filters"` // Filter id -> inline Lua script
	Ledger          LedgerConfig     `yaml:"ledger"`
	EventBus        EventBusConfig   `yaml:"eventbus"`
	ShutdownTimeout Duration         `yaml:"shutdown_timeout"` // General shutdown timeout for graceful stops
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`
	JSON   bool   `yaml:"json"`
	Colors bool   `yaml:"colors"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ControllerConfig sizes the tables and paces the control loop
type ControllerConfig struct {
	TickInterval        Duration `yaml:"tick_interval"`
	FlushInterval       Duration `yaml:"flush_interval"`
	Timezone            string   `yaml:"timezone"`
	RuleCapacity        int      `yaml:"rule_capacity"`
	ScenarioCapacity    int      `yaml:"scenario_capacity"`
	ScheduleRegionBytes int      `yaml:"schedule_region_bytes"` // Schedule capacity = bytes / row size
	MaxAlarms           int      `yaml:"max_alarms"`
	CommandQueue        int      `yaml:"command_queue"`
}

// Location resolves the configured timezone
func (c *ControllerConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid controller timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// APIConfig contains HTTP command API settings
type APIConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// IsEnabled returns whether the API is enabled (default: true)
func (c *APIConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// MQTTConfig contains MQTT broker settings for notifications and command intake
type MQTTConfig struct {
	Enabled     bool     `yaml:"enabled"`
	Broker      string   `yaml:"broker"`
	ClientID    string   `yaml:"client_id"`
	Username    string   `yaml:"username"`
	Password    string   `yaml:"password"`
	TopicPrefix string   `yaml:"topic_prefix"`
	QoS         byte     `yaml:"qos"`
	Timeout     Duration `yaml:"timeout"`
}

// HueConfig contains Hue bridge connection settings
type HueConfig struct {
	Enabled      bool     `yaml:"enabled"`
	Bridge       string   `yaml:"bridge"`
	Token        string   `yaml:"token"`
	Rings        [3]int   `yaml:"rings"` // Light id per ring, 0 = unmapped
	RateLimitRPS float64  `yaml:"rate_limit_rps"`
	Timeout      Duration `yaml:"timeout"`
}

// LedgerConfig contains event ledger settings
type LedgerConfig struct {
	Enabled         *bool    `yaml:"enabled"`
	RetentionPeriod Duration `yaml:"retention_period"`
	CleanupInterval Duration `yaml:"cleanup_interval"`
}

// IsEnabled returns whether the ledger is enabled (default: true)
func (c *LedgerConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// EventBusConfig contains event bus settings
type EventBusConfig struct {
	Workers   int `yaml:"workers"`    // Number of worker goroutines (default: 4)
	QueueSize int `yaml:"queue_size"` // Event queue size (default: 100)
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse expands environment variables in data, decodes it and applies defaults
func Parse(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) setDefaults() {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./xlightd.sqlite"
	}

	// Controller defaults
	c := &cfg.Controller
	if c.TickInterval == 0 {
		c.TickInterval = Duration(time.Second)
	}
	if c.FlushInterval == 0 {
		c.FlushInterval = Duration(10 * time.Second)
	}
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	if c.RuleCapacity == 0 {
		c.RuleCapacity = 128
	}
	if c.ScenarioCapacity == 0 {
		c.ScenarioCapacity = 128
	}
	if c.ScheduleRegionBytes == 0 {
		c.ScheduleRegionBytes = 1024
	}
	if c.MaxAlarms == 0 {
		c.MaxAlarms = 64
	}
	if c.CommandQueue == 0 {
		c.CommandQueue = 32
	}

	// API defaults
	if cfg.API.Host == "" {
		cfg.API.Host = "0.0.0.0"
	}
	if cfg.API.Port == 0 {
		cfg.API.Port = 8080
	}

	// MQTT defaults
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "xlightd"
	}
	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = "xlight"
	}
	if cfg.MQTT.Timeout == 0 {
		cfg.MQTT.Timeout = Duration(10 * time.Second)
	}

	// Hue defaults
	if cfg.Hue.RateLimitRPS == 0 {
		cfg.Hue.RateLimitRPS = 5.0
	}
	if cfg.Hue.Timeout == 0 {
		cfg.Hue.Timeout = Duration(10 * time.Second)
	}

	// Ledger defaults
	if cfg.Ledger.RetentionPeriod == 0 {
		cfg.Ledger.RetentionPeriod = Duration(720 * time.Hour)
	}
	if cfg.Ledger.CleanupInterval == 0 {
		cfg.Ledger.CleanupInterval = Duration(24 * time.Hour)
	}

	// Event bus defaults
	if cfg.EventBus.Workers <= 0 {
		cfg.EventBus.Workers = 4
	}
	if cfg.EventBus.QueueSize <= 0 {
		cfg.EventBus.QueueSize = 100
	}

	// General shutdown timeout
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = Duration(5 * time.Second)
	}
}

func (cfg *Config) validate() error {
	c := cfg.Controller
	if c.RuleCapacity < 0 || c.ScenarioCapacity < 0 || c.ScheduleRegionBytes < 0 || c.MaxAlarms < 0 {
		return fmt.Errorf("controller capacities must not be negative")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if cfg.MQTT.Enabled && cfg.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
	}
	if cfg.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
	}
	if cfg.Hue.Enabled && (cfg.Hue.Bridge == "" || cfg.Hue.Token == "") {
		return fmt.Errorf("hue.bridge and hue.token are required when hue is enabled")
	}
	return nil
}

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	// Match ${VAR} or ${VAR:default}
	re := regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

	return re.ReplaceAllStringFunc(input, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}

// ExpandEnvString expands a single string with environment variables
func ExpandEnvString(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		return expandEnvVars(s)
	}
	return s
}
