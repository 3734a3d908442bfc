package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/blecentral/internal/central"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "goble", cfg.Backend)
	assert.Equal(t, -50, cfg.Central.RSSIThreshold)
	assert.False(t, cfg.Central.AllowDuplicates)
	assert.Zero(t, cfg.Central.MaxConnections)
	assert.Zero(t, cfg.Central.ConnectTimeout)
	assert.Zero(t, cfg.Central.StepTimeout)
	assert.True(t, cfg.Central.RearmNotifications)
	assert.Equal(t, time.Second, cfg.Central.ScanRetryDelay)
	assert.Equal(t, 256, cfg.Central.EventBuffer)
	assert.Equal(t, 128, cfg.Central.NotifyBuffer)
	assert.NoError(t, cfg.Validate())
}

func TestDefault_MatchesCentralDefaults(t *testing.T) {
	assert.Equal(t, central.DefaultOptions(), Default().CentralOptions())
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "blecentral.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_OverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
log_level: debug
backend: tinygo
central:
  rssi_threshold: -70
  max_connections: 3
  step_timeout: 5s
  rearm_notifications: false
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "tinygo", cfg.Backend)
	assert.Equal(t, -70, cfg.Central.RSSIThreshold)
	assert.Equal(t, 3, cfg.Central.MaxConnections)
	assert.Equal(t, 5*time.Second, cfg.Central.StepTimeout)
	assert.False(t, cfg.Central.RearmNotifications)

	// Untouched fields keep their defaults.
	assert.Equal(t, "E20A39F4-73F5-4BC4-A12F-17D1AD07A961", cfg.Central.ServiceUUID)
	assert.Equal(t, 256, cfg.Central.EventBuffer)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "reading config file")

	_, err = Load(writeConfig(t, "central: [not, a, map]"))
	assert.ErrorContains(t, err, "parsing config file")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"bad backend", func(c *Config) { c.Backend = "bluez" }, "backend"},
		{"bad service uuid", func(c *Config) { c.Central.ServiceUUID = "not-a-uuid" }, "central.service_uuid"},
		{"bad characteristic uuid", func(c *Config) { c.Central.CharacteristicUUID = "xyz" }, "central.characteristic_uuid"},
		{"negative max connections", func(c *Config) { c.Central.MaxConnections = -1 }, "max_connections"},
		{"negative timeout", func(c *Config) { c.Central.StepTimeout = -time.Second }, "timeouts"},
		{"zero buffer", func(c *Config) { c.Central.EventBuffer = 0 }, "buffer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestConfig_NewLogger(t *testing.T) {
	tests := []struct {
		name     string
		logLevel string
		expected logrus.Level
	}{
		{"debug", "debug", logrus.DebugLevel},
		{"info", "info", logrus.InfoLevel},
		{"warn", "warn", logrus.WarnLevel},
		{"error", "error", logrus.ErrorLevel},
		{"invalid falls back to info", "chatty", logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{LogLevel: tt.logLevel}

			logger := cfg.NewLogger()

			assert.Equal(t, tt.expected, logger.GetLevel())
			formatter, ok := logger.Formatter.(*logrus.TextFormatter)
			require.True(t, ok)
			assert.True(t, formatter.FullTimestamp)
			assert.Equal(t, time.RFC3339, formatter.TimestampFormat)
		})
	}
}

func TestConfig_CentralOptions(t *testing.T) {
	cfg := Default()
	cfg.Central.ServiceUUID = "180D"
	cfg.Central.AllowDuplicates = true
	cfg.Central.ConnectTimeout = 10 * time.Second

	opts := cfg.CentralOptions()

	assert.True(t, opts.ServiceUUID.Equal(ble.UUID16(0x180D)))
	assert.True(t, opts.CharacteristicUUID.Equal(central.DefaultCharacteristicUUID))
	assert.True(t, opts.AllowDuplicates)
	assert.Equal(t, 10*time.Second, opts.ConnectTimeout)
	assert.True(t, opts.RearmNotifications)
}

func TestConfig_YAMLRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Central.StepTimeout = 3 * time.Second

	out, err := cfg.YAML()
	require.NoError(t, err)
	assert.Contains(t, out, "backend: goble")
	assert.Contains(t, out, "step_timeout: 3s")

	var decoded Config
	require.NoError(t, yaml.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, *cfg, decoded)
}
