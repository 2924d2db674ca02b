package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultAppName           = "plantclient"
	DefaultListenInterval    = 10 * time.Second
	DefaultConnectTimeout    = 10 * time.Second
	DefaultLoginTimeout      = 10 * time.Second
	DefaultResponseTimeout   = 30 * time.Second
	DefaultHeartbeatInterval = 60 * time.Second
	DefaultQueueCapacity     = 256
	DefaultTemplateVersion   = "3.9"
	DefaultHandshakeTimeout  = 10 * time.Second
	DefaultPingInterval      = 30 * time.Second
	DefaultPingTimeout       = 90 * time.Second
	DefaultWriteTimeout      = 5 * time.Second
	DefaultInitialDelay      = 500 * time.Millisecond
	DefaultMultiplier        = 2.0
	DefaultMaxDelay          = 30 * time.Second
	DefaultAttemptTimeout    = 5 * time.Second
	DefaultFetchTimeout      = 30 * time.Second
	DefaultMaxCount          = 10000
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "text"
	DefaultDBPort            = 5432
	DefaultDBSSLMode         = "prefer"
	DefaultMaxConns          = 10
	DefaultMinConns          = 2
	DefaultBatchSize         = 1000
	DefaultFlushInterval     = 1 * time.Second
	DefaultSubjectPrefix     = "plant"
	DefaultHealthPort        = 8080
	DefaultHealthPath        = "/health"
)

func (c *Config) applyDefaults() {
	if c.Credentials.AppName == "" {
		c.Credentials.AppName = DefaultAppName
	}

	// Gateway defaults
	if c.Gateway.HandshakeTimeout == 0 {
		c.Gateway.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Gateway.PingInterval == 0 {
		c.Gateway.PingInterval = DefaultPingInterval
	}
	if c.Gateway.PingTimeout == 0 {
		c.Gateway.PingTimeout = DefaultPingTimeout
	}
	if c.Gateway.WriteTimeout == 0 {
		c.Gateway.WriteTimeout = DefaultWriteTimeout
	}

	// Session defaults
	if c.Session.ListenInterval == 0 {
		c.Session.ListenInterval = DefaultListenInterval
	}
	if c.Session.ConnectTimeout == 0 {
		c.Session.ConnectTimeout = DefaultConnectTimeout
	}
	if c.Session.LoginTimeout == 0 {
		c.Session.LoginTimeout = DefaultLoginTimeout
	}
	if c.Session.ResponseTimeout == 0 {
		c.Session.ResponseTimeout = DefaultResponseTimeout
	}
	if c.Session.HeartbeatInterval == 0 {
		c.Session.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.Session.QueueCapacity == 0 {
		c.Session.QueueCapacity = DefaultQueueCapacity
	}
	if c.Session.TemplateVersion == "" {
		c.Session.TemplateVersion = DefaultTemplateVersion
	}

	// Reconnect defaults
	if c.Reconnect.InitialDelay == 0 {
		c.Reconnect.InitialDelay = DefaultInitialDelay
	}
	if c.Reconnect.Multiplier == 0 {
		c.Reconnect.Multiplier = DefaultMultiplier
	}
	if c.Reconnect.MaxDelay == 0 {
		c.Reconnect.MaxDelay = DefaultMaxDelay
	}
	if c.Reconnect.Jitter == nil {
		jitter := true
		c.Reconnect.Jitter = &jitter
	}
	if c.Reconnect.AttemptTimeout == 0 {
		c.Reconnect.AttemptTimeout = DefaultAttemptTimeout
	}

	// History defaults
	if c.History.FetchTimeout == 0 {
		c.History.FetchTimeout = DefaultFetchTimeout
	}
	if c.History.MaxCount == 0 {
		c.History.MaxCount = DefaultMaxCount
	}

	// Logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}

	// Database defaults
	if c.Database.Port == 0 {
		c.Database.Port = DefaultDBPort
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = DefaultDBSSLMode
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = DefaultMaxConns
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = DefaultMinConns
	}

	// Writer defaults
	if c.Writer.BatchSize == 0 {
		c.Writer.BatchSize = DefaultBatchSize
	}
	if c.Writer.FlushInterval == 0 {
		c.Writer.FlushInterval = DefaultFlushInterval
	}

	if c.NATS.SubjectPrefix == "" {
		c.NATS.SubjectPrefix = DefaultSubjectPrefix
	}

	// Health defaults
	if c.Health.Port == 0 {
		c.Health.Port = DefaultHealthPort
	}
	if c.Health.Path == "" {
		c.Health.Path = DefaultHealthPath
	}
}
