package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the Divoom bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site     SiteConfig     `yaml:"site"`
	Device   DeviceConfig   `yaml:"device"`
	Bridge   BridgeConfig   `yaml:"bridge"`
	Database DatabaseConfig `yaml:"database"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	API      APIConfig      `yaml:"api"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DeviceConfig describes the one display this process drives.
type DeviceConfig struct {
	// ID names the device in MQTT topics and history records.
	ID string `yaml:"id"`

	// Name is a human-readable label.
	Name string `yaml:"name"`

	// Address is the Bluetooth address, "AA:BB:CC:DD:EE:FF".
	Address string `yaml:"address"`

	// Type is the device family. Only "pixoo" is supported.
	Type string `yaml:"type"`

	// Transport is "rfcomm" (classic SPP) or "gatt" (BLE).
	Transport string `yaml:"transport"`

	// RFCOMMChannel is the serial-port channel. Default: 1.
	RFCOMMChannel int `yaml:"rfcomm_channel"`

	GATT GATTConfig `yaml:"gatt"`

	// EscapeFrames enables byte-stuffing for older firmware.
	EscapeFrames bool `yaml:"escape_frames"`

	// ConnectTimeout bounds a single connection attempt. Default: 10s.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// WriteTimeout bounds one command write. Default: 5s.
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// ReconnectTimeout bounds the implicit reconnect a command makes when
	// the link is down. Default: 5s.
	ReconnectTimeout time.Duration `yaml:"reconnect_timeout"`

	// MediaDir, when set, must be an existing directory.
	MediaDir string `yaml:"media_dir"`
}

// GATTConfig contains BLE characteristic settings.
type GATTConfig struct {
	ServiceUUID          string `yaml:"service_uuid"`
	CharacteristicUUID   string `yaml:"characteristic_uuid"`
	WriteWithoutResponse bool   `yaml:"write_without_response"`
}

// BridgeConfig contains MQTT bridge behaviour.
type BridgeConfig struct {
	// TopicPrefix is the first topic level. Default: "divoom".
	TopicPrefix string `yaml:"topic_prefix"`

	// CommandTimeout bounds one command, including any implicit reconnect.
	// Default: 15s.
	CommandTimeout time.Duration `yaml:"command_timeout"`

	// HealthInterval is how often health is published. Default: 30s.
	HealthInterval time.Duration `yaml:"health_interval"`

	// AutoConnect connects to the device at startup.
	AutoConnect bool `yaml:"auto_connect"`

	// AutoConnectAttempts bounds the startup connect retries. Default: 3.
	AutoConnectAttempts int `yaml:"auto_connect_attempts"`

	// HistoryRetention is how long state history is kept. 0 keeps it forever.
	HistoryRetention time.Duration `yaml:"history_retention"`
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

// CORSConfig contains Cross-Origin Resource Sharing settings.
// An empty AllowedOrigins list allows every origin.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
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

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: DIVOOM_SECTION_KEY
// For example: DIVOOM_DEVICE_ADDRESS, DIVOOM_MQTT_HOST
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
		Site: SiteConfig{
			ID:   "site-001",
			Name: "Home",
		},
		Device: DeviceConfig{
			ID:               "pixoo",
			Name:             "Pixoo",
			Type:             "pixoo",
			Transport:        "rfcomm",
			RFCOMMChannel:    1,
			ConnectTimeout:   10 * time.Second,
			WriteTimeout:     5 * time.Second,
			ReconnectTimeout: 5 * time.Second,
		},
		Bridge: BridgeConfig{
			TopicPrefix:         "divoom",
			CommandTimeout:      15 * time.Second,
			HealthInterval:      30 * time.Second,
			AutoConnect:         true,
			AutoConnectAttempts: 3,
			HistoryRetention:    30 * 24 * time.Hour,
		},
		Database: DatabaseConfig{
			Path:        "./data/divoom.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "divoom-bridge",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: DIVOOM_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Device
	if v := os.Getenv("DIVOOM_DEVICE_ADDRESS"); v != "" {
		cfg.Device.Address = v
	}
	if v := os.Getenv("DIVOOM_DEVICE_TRANSPORT"); v != "" {
		cfg.Device.Transport = v
	}
	if v := os.Getenv("DIVOOM_DEVICE_CHANNEL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Device.RFCOMMChannel = n
		}
	}

	// Database
	if v := os.Getenv("DIVOOM_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("DIVOOM_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("DIVOOM_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("DIVOOM_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("DIVOOM_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("DIVOOM_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("DIVOOM_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

var addressPattern = regexp.MustCompile(`^([0-9A-Fa-f]{2}[:-]){5}[0-9A-Fa-f]{2}$`)

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	errs = append(errs, c.Device.validate()...)

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if c.Bridge.AutoConnectAttempts < 0 {
		errs = append(errs, "bridge.auto_connect_attempts must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (d DeviceConfig) validate() []string {
	var errs []string

	if d.ID == "" {
		errs = append(errs, "device.id is required")
	} else if strings.ContainsAny(d.ID, "/#+") {
		errs = append(errs, "device.id must not contain MQTT wildcard or separator characters")
	}

	if d.Address == "" {
		errs = append(errs, "device.address is required (set DIVOOM_DEVICE_ADDRESS environment variable)")
	} else if !addressPattern.MatchString(d.Address) {
		errs = append(errs, fmt.Sprintf("device.address %q is not a Bluetooth address", d.Address))
	}

	if !strings.EqualFold(d.Type, "pixoo") {
		errs = append(errs, fmt.Sprintf("device.type %q is not supported (only pixoo)", d.Type))
	}

	switch strings.ToLower(d.Transport) {
	case "rfcomm":
		if d.RFCOMMChannel < 1 || d.RFCOMMChannel > 30 {
			errs = append(errs, "device.rfcomm_channel must be between 1 and 30")
		}
	case "gatt":
	default:
		errs = append(errs, fmt.Sprintf("device.transport %q must be rfcomm or gatt", d.Transport))
	}

	if d.MediaDir != "" {
		info, err := os.Stat(d.MediaDir)
		if err != nil || !info.IsDir() {
			errs = append(errs, fmt.Sprintf("device.media_dir %q is not an existing directory", d.MediaDir))
		}
	}

	return errs
}

// ReadTimeout returns the API read timeout as a Duration.
func (a APIConfig) ReadTimeout() time.Duration {
	return time.Duration(a.Timeouts.Read) * time.Second
}

// WriteTimeout returns the API write timeout as a Duration.
func (a APIConfig) WriteTimeout() time.Duration {
	return time.Duration(a.Timeouts.Write) * time.Second
}

// IdleTimeout returns the API idle timeout as a Duration.
func (a APIConfig) IdleTimeout() time.Duration {
	return time.Duration(a.Timeouts.Idle) * time.Second
}
