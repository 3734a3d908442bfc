package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-ble/ble"
	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/blecentral/internal/central"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	LogLevel string        `yaml:"log_level" default:"info"`
	Backend  string        `yaml:"backend" default:"goble"`
	Central  CentralConfig `yaml:"central"`
}

// CentralConfig mirrors central.Options in a YAML-friendly shape.
type CentralConfig struct {
	ServiceUUID        string        `yaml:"service_uuid" default:"E20A39F4-73F5-4BC4-A12F-17D1AD07A961"`
	CharacteristicUUID string        `yaml:"characteristic_uuid" default:"08590F7E-DB05-467E-8757-72F6FAEB13D4"`
	RSSIThreshold      int           `yaml:"rssi_threshold" default:"-50"`
	AllowDuplicates    bool          `yaml:"allow_duplicates" default:"false"`
	MaxConnections     int           `yaml:"max_connections" default:"0"`
	ConnectTimeout     time.Duration `yaml:"connect_timeout" default:"0s"`
	StepTimeout        time.Duration `yaml:"step_timeout" default:"0s"`
	RearmNotifications bool          `yaml:"rearm_notifications" default:"true"`
	ScanRetryDelay     time.Duration `yaml:"scan_retry_delay" default:"1s"`
	EventBuffer        int           `yaml:"event_buffer" default:"256"`
	NotifyBuffer       int           `yaml:"notify_buffer" default:"128"`
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML file over the defaults. Fields missing from the file keep
// their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if _, err := c.Level(); err != nil {
		return err
	}

	switch strings.ToLower(c.Backend) {
	case "goble", "tinygo":
	default:
		return fmt.Errorf("backend must be \"goble\" or \"tinygo\", got %q", c.Backend)
	}

	if _, err := ble.Parse(c.Central.ServiceUUID); err != nil {
		return fmt.Errorf("central.service_uuid: %w", err)
	}
	if _, err := ble.Parse(c.Central.CharacteristicUUID); err != nil {
		return fmt.Errorf("central.characteristic_uuid: %w", err)
	}
	if c.Central.MaxConnections < 0 {
		return fmt.Errorf("central.max_connections must be >= 0, got %d", c.Central.MaxConnections)
	}
	if c.Central.ConnectTimeout < 0 || c.Central.StepTimeout < 0 || c.Central.ScanRetryDelay < 0 {
		return fmt.Errorf("central timeouts must not be negative")
	}
	if c.Central.EventBuffer <= 0 || c.Central.NotifyBuffer <= 0 {
		return fmt.Errorf("central.event_buffer and central.notify_buffer must be > 0")
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (logrus.Level, error) {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	level, err := c.Level()
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}

// CentralOptions converts the central section into manager options.
// Call Validate first; unparsable UUIDs fall back to the defaults.
func (c *Config) CentralOptions() central.Options {
	opts := central.DefaultOptions()
	if u, err := ble.Parse(c.Central.ServiceUUID); err == nil {
		opts.ServiceUUID = u
	}
	if u, err := ble.Parse(c.Central.CharacteristicUUID); err == nil {
		opts.CharacteristicUUID = u
	}
	opts.RSSIThreshold = c.Central.RSSIThreshold
	opts.AllowDuplicates = c.Central.AllowDuplicates
	opts.MaxConnections = c.Central.MaxConnections
	opts.ConnectTimeout = c.Central.ConnectTimeout
	opts.StepTimeout = c.Central.StepTimeout
	opts.RearmNotifications = c.Central.RearmNotifications
	opts.ScanRetryDelay = c.Central.ScanRetryDelay
	opts.EventBuffer = c.Central.EventBuffer
	opts.NotifyBuffer = c.Central.NotifyBuffer
	return opts
}

// YAML renders the effective configuration.
func (c *Config) YAML() (string, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encoding config: %w", err)
	}
	return string(data), nil
}
