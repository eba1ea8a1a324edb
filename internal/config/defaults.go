package config

import (
	"fmt"
	"time"
)

// Defaults applied to unset fields
const (
	DefaultPort               = 8080
	DefaultBindAddress        = "0.0.0.0"
	DefaultMaxConnections     = 10
	DefaultMaxRequestBytes    = 64 * 1024
	DefaultTimeout            = 30 * time.Second
	DefaultShutdownTimeout    = 10 * time.Second
	DefaultTimestampTolerance = 300 * time.Second
	DefaultNonceCacheSize     = 100
	DefaultMaxUsers           = 10
	DefaultMetricsPath        = "/metrics"
	DefaultMQTTTopic          = "onvif/audit"
	DefaultRedisKeyPrefix     = "onvif:"
)

func (c *Config) applyDefaults() {
	s := &c.Server
	if s.Port == 0 {
		s.Port = DefaultPort
	}
	if s.BindAddress == "" {
		s.BindAddress = DefaultBindAddress
	}
	if s.MaxConnections == 0 {
		s.MaxConnections = DefaultMaxConnections
	}
	if s.MaxRequestBytes == 0 {
		s.MaxRequestBytes = DefaultMaxRequestBytes
	}
	if s.ReadTimeout == 0 {
		s.ReadTimeout = DefaultTimeout
	}
	if s.WriteTimeout == 0 {
		s.WriteTimeout = DefaultTimeout
	}
	if s.ShutdownTimeout == 0 {
		s.ShutdownTimeout = DefaultShutdownTimeout
	}
	if s.BaseURL == "" {
		host := s.BindAddress
		if host == "0.0.0.0" || host == "::" {
			host = "localhost"
		}
		s.BaseURL = fmt.Sprintf("http://%s:%d", host, s.Port)
	}

	d := &c.Device
	if d.Name == "" {
		d.Name = "onvif-server"
	}
	if d.Manufacturer == "" {
		d.Manufacturer = "Generic"
	}
	if d.Model == "" {
		d.Model = d.Name
	}
	if d.FirmwareVersion == "" {
		d.FirmwareVersion = "1.0.0"
	}
	if d.SerialNumber == "" {
		d.SerialNumber = "000000"
	}

	a := &c.Auth
	if a.TimestampTolerance == 0 {
		a.TimestampTolerance = DefaultTimestampTolerance
	}
	if a.NonceCacheSize == 0 {
		a.NonceCacheSize = DefaultNonceCacheSize
	}
	if a.NonceStore == "" {
		a.NonceStore = "memory"
	}
	if a.ExemptActions == nil {
		a.ExemptActions = []string{"GetSystemDateAndTime"}
	}
	if a.MaxUsers == 0 {
		a.MaxUsers = DefaultMaxUsers
	}

	if c.Store.Driver == "" {
		c.Store.Driver = "memory"
	}
	if c.Redis.KeyPrefix == "" {
		c.Redis.KeyPrefix = DefaultRedisKeyPrefix
	}
	if c.Admin.Username == "" {
		c.Admin.Username = "admin"
	}
	if c.RateLimit.Store == "" {
		c.RateLimit.Store = "memory"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
	if c.MQTT.Topic == "" {
		c.MQTT.Topic = DefaultMQTTTopic
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = c.Device.Name + "-audit"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}

	for i := range c.Profiles {
		p := &c.Profiles[i]
		if p.Name == "" {
			p.Name = p.Token
		}
		if p.Encoding == "" {
			p.Encoding = "H264"
		}
		if p.Quality == 0 {
			p.Quality = 5
		}
		if p.FrameRateLimit == 0 {
			p.FrameRateLimit = 30
		}
		if p.BitrateLimit == 0 {
			p.BitrateLimit = 4096
		}
		if p.SnapshotURI == "" {
			p.SnapshotURI = s.BaseURL + "/snapshot/" + p.Token + ".jpg"
		}
	}
}
