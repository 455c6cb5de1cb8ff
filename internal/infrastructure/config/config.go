package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the MyHOME bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Gateway   GatewayConfig   `yaml:"gateway"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Health    HealthConfig    `yaml:"health"`
}

// GatewayConfig contains the MyHOME gateway connection and dispatch settings.
type GatewayConfig struct {
	// Host is the gateway IP or hostname. Leave empty to use SSDP discovery.
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// Password is the numeric OPEN password. Empty if the gateway trusts the client IP.
	Password string `yaml:"password"`

	// MAC identifies the gateway and keys the device file. Filled in by
	// discovery when empty.
	MAC          string `yaml:"mac"`
	Name         string `yaml:"name"`
	Model        string `yaml:"model"`
	Firmware     string `yaml:"firmware"`
	Manufacturer string `yaml:"manufacturer"`

	// Workers is the number of command sessions draining the outbound queue (1-10).
	Workers int `yaml:"workers"`

	// QueueCap bounds the outbound queue. 0 means unbounded.
	QueueCap int `yaml:"queue_cap"`

	// SendRate limits frames per second per worker. 0 means unlimited.
	SendRate float64 `yaml:"send_rate"`

	// TestTimeout bounds the connectivity test (seconds).
	TestTimeout int `yaml:"test_timeout"`

	Reconnect ReconnectConfig `yaml:"reconnect"`

	// GenerateEvents enables CEN/CEN+ button events on the host bus.
	GenerateEvents bool `yaml:"generate_events"`

	// DevicesFile is the YAML device configuration file.
	DevicesFile string `yaml:"devices_file"`

	Discovery DiscoveryConfig `yaml:"discovery"`
}

// ReconnectConfig contains session reconnection settings (seconds).
type ReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// DiscoveryConfig contains SSDP discovery settings.
type DiscoveryConfig struct {
	Enabled bool `yaml:"enabled"`
	// Timeout is the M-SEARCH wait in seconds.
	Timeout int `yaml:"timeout"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// HealthConfig contains health reporting settings.
type HealthConfig struct {
	// Interval between MQTT health messages (seconds).
	Interval int `yaml:"interval"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: MYHOME_SECTION_KEY
// For example: MYHOME_GATEWAY_HOST, MYHOME_GATEWAY_PASSWORD
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Port:         20000,
			Manufacturer: "BTicino S.p.A.",
			Workers:      1,
			TestTimeout:  5,
			Reconnect: ReconnectConfig{
				InitialDelay: 5,
				MaxDelay:     120,
			},
			GenerateEvents: true,
			DevicesFile:    "/config/myhome.yaml",
			Discovery: DiscoveryConfig{
				Timeout: 3,
			},
		},
		Database: DatabaseConfig{
			Path:        "./data/myhome.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "myhome-bridge",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Health: HealthConfig{
			Interval: 30,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: MYHOME_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Gateway
	if v := os.Getenv("MYHOME_GATEWAY_HOST"); v != "" {
		cfg.Gateway.Host = v
	}
	if v := os.Getenv("MYHOME_GATEWAY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.Port = port
		}
	}
	if v := os.Getenv("MYHOME_GATEWAY_PASSWORD"); v != "" {
		cfg.Gateway.Password = v
	}
	if v := os.Getenv("MYHOME_GATEWAY_MAC"); v != "" {
		cfg.Gateway.MAC = v
	}
	if v := os.Getenv("MYHOME_GATEWAY_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.Workers = n
		}
	}
	if v := os.Getenv("MYHOME_DEVICES_FILE"); v != "" {
		cfg.Gateway.DevicesFile = v
	}

	// Database
	if v := os.Getenv("MYHOME_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("MYHOME_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("MYHOME_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("MYHOME_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("MYHOME_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("MYHOME_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("MYHOME_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Worker bounds.
const (
	minWorkers = 1
	maxWorkers = 10
)

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Gateway validation
	if c.Gateway.Host == "" && !c.Gateway.Discovery.Enabled {
		errs = append(errs, "gateway.host is required unless gateway.discovery.enabled is set")
	}
	if c.Gateway.Port < 1 || c.Gateway.Port > 65535 {
		errs = append(errs, "gateway.port must be between 1 and 65535")
	}
	if c.Gateway.Password != "" && !isNumeric(c.Gateway.Password) {
		errs = append(errs, "gateway.password must be numeric (OPEN password)")
	}
	if c.Gateway.Workers < minWorkers || c.Gateway.Workers > maxWorkers {
		errs = append(errs, fmt.Sprintf("gateway.workers must be between %d and %d", minWorkers, maxWorkers))
	}
	if c.Gateway.QueueCap < 0 {
		errs = append(errs, "gateway.queue_cap must not be negative")
	}
	if c.Gateway.SendRate < 0 {
		errs = append(errs, "gateway.send_rate must not be negative")
	}
	if c.Gateway.Reconnect.MaxDelay < c.Gateway.Reconnect.InitialDelay {
		errs = append(errs, "gateway.reconnect.max_delay must be >= initial_delay")
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// API validation
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func isNumeric(s string) bool {
	_, err := strconv.ParseUint(s, 10, 32)
	return err == nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// TestTimeoutDuration returns the gateway connectivity test timeout.
func (g GatewayConfig) TestTimeoutDuration() time.Duration {
	return time.Duration(g.TestTimeout) * time.Second
}

// ReconnectInitial returns the first reconnect delay.
func (g GatewayConfig) ReconnectInitial() time.Duration {
	return time.Duration(g.Reconnect.InitialDelay) * time.Second
}

// ReconnectMax returns the reconnect delay cap.
func (g GatewayConfig) ReconnectMax() time.Duration {
	return time.Duration(g.Reconnect.MaxDelay) * time.Second
}
