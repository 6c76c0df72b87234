package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
master:
  host: 192.168.0.50
  port_count: 8
poller:
  interval: 5s
  host_check:
    attempts: 5
    retry_delay: 2s
sensors:
  catalog: [AH002, AP011]
mqtt:
  enabled: true
  broker: tcp://localhost:1883
  qos: 1
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "192.168.0.50", cfg.Master.Host)
	assert.Equal(t, 8, cfg.Master.PortCount)
	assert.Equal(t, 8000*time.Millisecond, cfg.Master.Timeout)
	assert.Equal(t, 1, cfg.Master.CID)
	assert.Equal(t, 5*time.Second, cfg.Poller.Interval)
	assert.Equal(t, 5, cfg.Poller.HostCheck.Attempts)
	assert.Equal(t, 2*time.Second, cfg.Poller.HostCheck.RetryDelay)
	assert.False(t, cfg.Poller.StopOnFatal)
	assert.Equal(t, []string{"AH002", "AP011"}, cfg.Sensors.Catalog)
	assert.Equal(t, "Sensors", cfg.Sensors.ChannelPrefix)
	assert.True(t, cfg.MQTT.Enabled)
	assert.Equal(t, 1, cfg.MQTT.QoS)
	assert.Equal(t, "iolink", cfg.MQTT.TopicPrefix)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.False(t, cfg.Database.Enabled)
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "master:\n  host: al1370.local\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Master.PortCount)
	assert.Equal(t, 10*time.Second, cfg.Poller.Interval)
	assert.Equal(t, 3, cfg.Poller.HostCheck.Attempts)
	assert.Equal(t, []string{"AH002", "AT001", "AP011", "AS005_LIQU"}, cfg.Sensors.Catalog)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("IOLINK_MASTER_HOST", "10.0.0.7")
	t.Setenv("IOLINK_POLLER_INTERVAL", "1500ms")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.7", cfg.Master.Host)
	assert.Equal(t, 1500*time.Millisecond, cfg.Poller.Interval)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Master:  MasterConfig{Host: "h", PortCount: 4, Timeout: time.Second},
			Poller:  PollerConfig{Interval: time.Second, HostCheck: HostCheckConfig{Attempts: 3}},
			Sensors: SensorsConfig{Catalog: []string{"AH002"}},
		}
	}

	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"no host", func(c *Config) { c.Master.Host = "" }},
		{"no ports", func(c *Config) { c.Master.PortCount = 0 }},
		{"no timeout", func(c *Config) { c.Master.Timeout = 0 }},
		{"no interval", func(c *Config) { c.Poller.Interval = 0 }},
		{"no attempts", func(c *Config) { c.Poller.HostCheck.Attempts = 0 }},
		{"negative delay", func(c *Config) { c.Poller.HostCheck.RetryDelay = -time.Second }},
		{"empty catalog", func(c *Config) { c.Sensors.Catalog = nil }},
		{"mqtt without broker", func(c *Config) { c.MQTT.Enabled = true }},
		{"bad qos", func(c *Config) { c.MQTT.QoS = 3 }},
		{"db without host", func(c *Config) { c.Database.Enabled = true }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestDSN(t *testing.T) {
	db := DatabaseConfig{Host: "db", Port: 5432, Database: "iolink", User: "u", Password: "p"}
	assert.Equal(t, "postgres://u:p@db:5432/iolink?sslmode=disable", db.DSN())
}
