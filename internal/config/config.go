package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Master   MasterConfig   `mapstructure:"master"`
	Poller   PollerConfig   `mapstructure:"poller"`
	Sensors  SensorsConfig  `mapstructure:"sensors"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	MQTT     MQTTConfig     `mapstructure:"mqtt"`
	Log      LogConfig      `mapstructure:"log"`
}

// IO-Link master (south side)
type MasterConfig struct {
	Host      string        `mapstructure:"host"`
	Timeout   time.Duration `mapstructure:"timeout"`
	PortCount int           `mapstructure:"port_count"`
	CID       int           `mapstructure:"cid"`
}

type PollerConfig struct {
	Interval    time.Duration   `mapstructure:"interval"`
	HostCheck   HostCheckConfig `mapstructure:"host_check"`
	StopOnFatal bool            `mapstructure:"stop_on_fatal"`
}

type HostCheckConfig struct {
	Attempts   int           `mapstructure:"attempts"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

type SensorsConfig struct {
	Catalog       []string `mapstructure:"catalog"`
	IndexFile     string   `mapstructure:"index_file"`
	ChannelPrefix string   `mapstructure:"channel_prefix"`
}

type ServerConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	HTTPPort        int           `mapstructure:"http_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
}

// MQTT mirror of the state tree
type MQTTConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Broker       string        `mapstructure:"broker"`
	ClientID     string        `mapstructure:"client_id"`
	Username     string        `mapstructure:"username"`
	Password     string        `mapstructure:"password"`
	TopicPrefix  string        `mapstructure:"topic_prefix"`
	QoS          int           `mapstructure:"qos"`
	Retain       bool          `mapstructure:"retain"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type LogConfig struct {
	Development bool `mapstructure:"development"`
}

func setDefaults(v *viper.Viper) {
	// empty defaults make the keys visible to AutomaticEnv
	v.SetDefault("master.host", "")
	v.SetDefault("sensors.index_file", "")
	v.SetDefault("database.host", "")
	v.SetDefault("database.database", "")
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.client_id", "")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("log.development", false)

	v.SetDefault("master.timeout", "8000ms")
	v.SetDefault("master.port_count", 4)
	v.SetDefault("master.cid", 1)

	v.SetDefault("poller.interval", "10s")
	v.SetDefault("poller.host_check.attempts", 3)
	v.SetDefault("poller.host_check.retry_delay", "10s")
	v.SetDefault("poller.stop_on_fatal", false)

	v.SetDefault("sensors.catalog", []string{"AH002", "AT001", "AP011", "AS005_LIQU"})
	v.SetDefault("sensors.channel_prefix", "Sensors")

	v.SetDefault("server.enabled", true)
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.shutdown_timeout", "30s")

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.max_connections", 4)

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.topic_prefix", "iolink")
	v.SetDefault("mqtt.qos", 0)
	v.SetDefault("mqtt.write_timeout", "5s")
}

// Load liest die Konfiguration aus path. Ein leerer path nutzt nur Defaults
// und Environment (IOLINK_ Prefix, z.B. IOLINK_MASTER_HOST).
func Load(path string) (*Config, error) {
	// .env ist optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("IOLINK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks ranges and required fields
func (c *Config) Validate() error {
	if c.Master.Host == "" {
		return fmt.Errorf("config: master.host is required")
	}
	if c.Master.PortCount < 1 {
		return fmt.Errorf("config: master.port_count must be >= 1, got %d", c.Master.PortCount)
	}
	if c.Master.Timeout <= 0 {
		return fmt.Errorf("config: master.timeout must be > 0")
	}
	if c.Poller.Interval <= 0 {
		return fmt.Errorf("config: poller.interval must be > 0")
	}
	if c.Poller.HostCheck.Attempts < 1 {
		return fmt.Errorf("config: poller.host_check.attempts must be >= 1")
	}
	if c.Poller.HostCheck.RetryDelay < 0 {
		return fmt.Errorf("config: poller.host_check.retry_delay must be >= 0")
	}
	if len(c.Sensors.Catalog) == 0 {
		return fmt.Errorf("config: sensors.catalog must not be empty")
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("config: mqtt.broker is required when mqtt is enabled")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		return fmt.Errorf("config: mqtt.qos must be 0, 1 or 2")
	}
	if c.Database.Enabled && c.Database.Host == "" {
		return fmt.Errorf("config: database.host is required when database is enabled")
	}
	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Database)
}
