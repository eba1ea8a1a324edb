package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Device    DeviceConfig    `yaml:"device"`
	Auth      AuthConfig      `yaml:"auth"`
	Store     StoreConfig     `yaml:"store"`
	Redis     RedisConfig     `yaml:"redis"`
	Admin     AdminConfig     `yaml:"admin"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Logging   LoggingConfig   `yaml:"logging"`
	Profiles  []ProfileConfig `yaml:"profiles"`
}

// ServerConfig represents the HTTP transport settings
type ServerConfig struct {
	Port            int           `yaml:"port"`
	BindAddress     string        `yaml:"bind_address"`
	BaseURL         string        `yaml:"base_url,omitempty"` // derived from bind_address and port when empty
	MaxConnections  int           `yaml:"max_connections"`
	MaxRequestBytes int64         `yaml:"max_request_bytes"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	Discovery       bool          `yaml:"discovery"`
}

// DeviceConfig is reported by GetDeviceInformation and WS-Discovery
type DeviceConfig struct {
	Name            string `yaml:"name"`
	Manufacturer    string `yaml:"manufacturer"`
	Model           string `yaml:"model"`
	FirmwareVersion string `yaml:"firmware_version"`
	SerialNumber    string `yaml:"serial_number"`
	HardwareID      string `yaml:"hardware_id,omitempty"`
	PTZEnabled      bool   `yaml:"ptz_enabled"`
}

// AuthConfig represents WS-Security UsernameToken settings
type AuthConfig struct {
	Required           bool          `yaml:"required"`
	TimestampTolerance time.Duration `yaml:"timestamp_tolerance"`
	NonceCacheSize     int           `yaml:"nonce_cache_size"`
	NonceStore         string        `yaml:"nonce_store"` // memory or redis
	ExemptActions      []string      `yaml:"exempt_actions"`
	MaxUsers           int           `yaml:"max_users"`
	Users              []UserConfig  `yaml:"users"`
}

// UserConfig is a user seeded at startup
type UserConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Enabled  *bool  `yaml:"enabled,omitempty"` // defaults to true
}

// IsEnabled reports whether the user starts enabled.
func (u UserConfig) IsEnabled() bool {
	return u.Enabled == nil || *u.Enabled
}

// StoreConfig selects the credential store backend
type StoreConfig struct {
	Driver string `yaml:"driver"` // memory, sqlite or postgres
	// DSN is the database file for sqlite or the connection string for postgres
	DSN string `yaml:"dsn,omitempty"`
}

// RedisConfig is shared by the redis nonce store and rate limiter
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password,omitempty"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// AdminConfig protects the admin API. The API is disabled without a password.
type AdminConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password,omitempty"`
}

// Enabled reports whether the admin API is served.
func (a AdminConfig) Enabled() bool {
	return a.Password != ""
}

// RateLimitConfig limits SOAP requests per client IP
type RateLimitConfig struct {
	RequestsPerMinute int    `yaml:"requests_per_minute"` // 0 disables
	Store             string `yaml:"store"`               // memory or redis
}

// MetricsConfig enables the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// MQTTConfig configures the audit event publisher
type MQTTConfig struct {
	Broker   string `yaml:"broker"` // empty disables
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	QoS      byte   `yaml:"qos"`
}

// LoggingConfig configures the zap logger
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// ProfileConfig represents one media profile
type ProfileConfig struct {
	Token          string `yaml:"token"`
	Name           string `yaml:"name"`
	Fixed          bool   `yaml:"fixed"`
	Encoding       string `yaml:"encoding"`
	Width          int    `yaml:"width"`
	Height         int    `yaml:"height"`
	Quality        int    `yaml:"quality"`
	FrameRateLimit int    `yaml:"frame_rate_limit"`
	BitrateLimit   int    `yaml:"bitrate_limit"`
	RTSPURI        string `yaml:"rtsp_uri"`
	SnapshotURI    string `yaml:"snapshot_uri,omitempty"`
}

// Environment variables overriding secrets from the file
const (
	EnvConfigPath    = "ONVIF_CONFIG"
	EnvAdminPassword = "ONVIF_ADMIN_PASSWORD"
	EnvRedisPassword = "ONVIF_REDIS_PASSWORD"
	EnvMQTTPassword  = "ONVIF_MQTT_PASSWORD"
)

// LoadConfig loads configuration from a YAML file, applies environment
// overrides and fills defaults. Call Validate on the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML configuration and fills defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvAdminPassword); v != "" {
		c.Admin.Password = v
	}
	if v := os.Getenv(EnvRedisPassword); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv(EnvMQTTPassword); v != "" {
		c.MQTT.Password = v
	}
}
