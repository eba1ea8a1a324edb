package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var (
	// validTokenPattern restricts profile tokens to alphanumeric, hyphen, and underscore
	validTokenPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	// validActionPattern matches a SOAP operation local name
	validActionPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9]*$`)
)

// maxFieldLen matches the bound applied to inbound UsernameToken fields.
const maxFieldLen = 64

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.Auth.Validate(); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if c.Auth.NonceStore == "redis" || (c.RateLimit.RequestsPerMinute > 0 && c.RateLimit.Store == "redis") {
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required when a redis store is selected")
		}
	}
	if err := c.RateLimit.Validate(); err != nil {
		return fmt.Errorf("rate_limit: %w", err)
	}
	if err := c.MQTT.Validate(); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if c.Admin.Enabled() && c.Admin.Username == "" {
		return fmt.Errorf("admin.username is required when admin.password is set")
	}
	if !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /: %s", c.Metrics.Path)
	}

	if len(c.Profiles) == 0 {
		return fmt.Errorf("at least one profile must be configured")
	}
	tokens := make(map[string]bool)
	for i, p := range c.Profiles {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("profiles[%d] (%s): %w", i, p.Token, err)
		}
		if tokens[p.Token] {
			return fmt.Errorf("duplicate profile token: %s", p.Token)
		}
		tokens[p.Token] = true
	}

	return nil
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	if s.Port <= 0 || s.Port > 65535 {
		return fmt.Errorf("invalid port: %d (must be 1-65535)", s.Port)
	}
	if s.MaxConnections < 0 {
		return fmt.Errorf("max_connections must be >= 0")
	}
	if s.MaxRequestBytes < 1024 {
		return fmt.Errorf("max_request_bytes must be at least 1024")
	}
	if s.ReadTimeout < 0 || s.WriteTimeout < 0 || s.ShutdownTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	u, err := url.Parse(s.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("base_url must be an absolute http(s) URL: %s", s.BaseURL)
	}
	return nil
}

// Validate validates authentication configuration
func (a *AuthConfig) Validate() error {
	if a.TimestampTolerance < 0 {
		return fmt.Errorf("timestamp_tolerance must not be negative")
	}
	if a.NonceCacheSize < 1 {
		return fmt.Errorf("nonce_cache_size must be >= 1")
	}
	switch a.NonceStore {
	case "memory", "redis":
	default:
		return fmt.Errorf("invalid nonce_store: %s (must be memory or redis)", a.NonceStore)
	}
	for _, action := range a.ExemptActions {
		if !validActionPattern.MatchString(action) {
			return fmt.Errorf("invalid exempt action: %q", action)
		}
	}
	if a.MaxUsers < 0 {
		return fmt.Errorf("max_users must be >= 0")
	}
	if a.MaxUsers > 0 && len(a.Users) > a.MaxUsers {
		return fmt.Errorf("%d users configured but max_users is %d", len(a.Users), a.MaxUsers)
	}
	for i, u := range a.Users {
		if u.Username == "" || len(u.Username) > maxFieldLen {
			return fmt.Errorf("users[%d]: username must be 1-%d bytes", i, maxFieldLen)
		}
		if u.Password == "" || len(u.Password) > maxFieldLen {
			return fmt.Errorf("users[%d] (%s): password must be 1-%d bytes", i, u.Username, maxFieldLen)
		}
	}
	if a.Required && len(a.Users) == 0 {
		return fmt.Errorf("required is set but no users are configured")
	}
	return nil
}

// Validate validates the credential store selection
func (s *StoreConfig) Validate() error {
	switch s.Driver {
	case "memory":
	case "sqlite", "postgres":
		if s.DSN == "" {
			return fmt.Errorf("dsn is required for the %s driver", s.Driver)
		}
	default:
		return fmt.Errorf("unsupported driver: %s (must be memory, sqlite or postgres)", s.Driver)
	}
	return nil
}

// Validate validates rate limit configuration
func (r *RateLimitConfig) Validate() error {
	if r.RequestsPerMinute < 0 {
		return fmt.Errorf("requests_per_minute must be >= 0")
	}
	switch r.Store {
	case "memory", "redis":
	default:
		return fmt.Errorf("invalid store: %s (must be memory or redis)", r.Store)
	}
	return nil
}

// Validate validates MQTT configuration
func (m *MQTTConfig) Validate() error {
	if m.Broker == "" {
		return nil
	}
	if !strings.HasPrefix(m.Broker, "tcp://") && !strings.HasPrefix(m.Broker, "ssl://") &&
		!strings.HasPrefix(m.Broker, "ws://") && !strings.HasPrefix(m.Broker, "wss://") {
		return fmt.Errorf("broker must start with tcp://, ssl://, ws:// or wss://: %s", m.Broker)
	}
	if m.Topic == "" || strings.ContainsAny(m.Topic, "#+") {
		return fmt.Errorf("invalid topic: %q", m.Topic)
	}
	if m.QoS > 2 {
		return fmt.Errorf("qos must be 0, 1 or 2")
	}
	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	switch strings.ToLower(l.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid level: %s", l.Level)
	}
	switch l.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid format: %s (must be text or json)", l.Format)
	}
	return nil
}

// Validate validates a media profile
func (p *ProfileConfig) Validate() error {
	if p.Token == "" {
		return fmt.Errorf("token is required")
	}
	if !validTokenPattern.MatchString(p.Token) {
		return fmt.Errorf("invalid token: %s (only alphanumeric, hyphen, and underscore allowed)", p.Token)
	}
	switch strings.ToUpper(p.Encoding) {
	case "H264", "H265", "JPEG", "MPEG4":
	default:
		return fmt.Errorf("invalid encoding: %s", p.Encoding)
	}
	if p.Width <= 0 || p.Height <= 0 {
		return fmt.Errorf("width and height are required")
	}
	if p.RTSPURI == "" {
		return fmt.Errorf("rtsp_uri is required")
	}
	if !strings.HasPrefix(p.RTSPURI, "rtsp://") && !strings.HasPrefix(p.RTSPURI, "rtsps://") {
		return fmt.Errorf("rtsp_uri must start with rtsp:// or rtsps://: %s", p.RTSPURI)
	}
	return nil
}
