package config

import "time"

// Config is the root configuration for plantd and barloader.
type Config struct {
	Credentials   CredentialsConfig   `yaml:"credentials" toml:"credentials"`
	Gateway       GatewayConfig       `yaml:"gateway" toml:"gateway"`
	Session       SessionConfig       `yaml:"session" toml:"session"`
	Reconnect     ReconnectConfig     `yaml:"reconnect" toml:"reconnect"`
	History       HistoryConfig       `yaml:"history" toml:"history"`
	Subscriptions SubscriptionsConfig `yaml:"subscriptions" toml:"subscriptions"`
	Logging       LoggingConfig       `yaml:"logging" toml:"logging"`
	Database      DBConfig            `yaml:"database" toml:"database"`
	Writer        WriterConfig        `yaml:"writer" toml:"writer"`
	NATS          NATSConfig          `yaml:"nats" toml:"nats"`
	Health        HealthConfig        `yaml:"health" toml:"health"`
}

// CredentialsConfig holds the venue login.
type CredentialsConfig struct {
	User       string `yaml:"user" toml:"user"`
	Password   string `yaml:"password" toml:"password"`
	SystemName string `yaml:"system_name" toml:"system_name"`
	AppName    string `yaml:"app_name" toml:"app_name"`
	AppVersion string `yaml:"app_version" toml:"app_version"`
}

// GatewayConfig holds the venue endpoints. Per-plant URLs override URL.
type GatewayConfig struct {
	URL              string        `yaml:"url" toml:"url"`
	TickerURL        string        `yaml:"ticker_url" toml:"ticker_url"`
	OrderURL         string        `yaml:"order_url" toml:"order_url"`
	HistoryURL       string        `yaml:"history_url" toml:"history_url"`
	PnLURL           string        `yaml:"pnl_url" toml:"pnl_url"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout" toml:"handshake_timeout"`
	PingInterval     time.Duration `yaml:"ping_interval" toml:"ping_interval"`
	PingTimeout      time.Duration `yaml:"ping_timeout" toml:"ping_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout" toml:"write_timeout"`
}

// SessionConfig holds per-plant session timing.
type SessionConfig struct {
	ListenInterval    time.Duration `yaml:"listen_interval" toml:"listen_interval"`
	ConnectTimeout    time.Duration `yaml:"connect_timeout" toml:"connect_timeout"`
	LoginTimeout      time.Duration `yaml:"login_timeout" toml:"login_timeout"`
	ResponseTimeout   time.Duration `yaml:"response_timeout" toml:"response_timeout"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval" toml:"heartbeat_interval"` // Used until login negotiates one
	QueueCapacity     int           `yaml:"queue_capacity" toml:"queue_capacity"`
	TemplateVersion   string        `yaml:"template_version" toml:"template_version"`
}

// ReconnectConfig holds the reconnection policy.
type ReconnectConfig struct {
	MaxRetries     int           `yaml:"max_retries" toml:"max_retries"` // 0 retries forever
	InitialDelay   time.Duration `yaml:"initial_delay" toml:"initial_delay"`
	Multiplier     float64       `yaml:"multiplier" toml:"multiplier"`
	MaxDelay       time.Duration `yaml:"max_delay" toml:"max_delay"`
	Jitter         *bool         `yaml:"jitter" toml:"jitter"`
	AttemptTimeout time.Duration `yaml:"attempt_timeout" toml:"attempt_timeout"`
}

// HistoryConfig holds history plant settings.
type HistoryConfig struct {
	FetchTimeout time.Duration `yaml:"fetch_timeout" toml:"fetch_timeout"`
	MaxCount     int           `yaml:"max_count" toml:"max_count"`
}

// SubscriptionsConfig lists the streams plantd opens at startup.
type SubscriptionsConfig struct {
	MarketData []MarketDataSubscription `yaml:"market_data" toml:"market_data"`
	TimeBars   []TimeBarSubscription    `yaml:"time_bars" toml:"time_bars"`
	PnL        bool                     `yaml:"pnl" toml:"pnl"` // Subscribe every account

	// PnLPollInterval refreshes every account summary on this interval in
	// addition to live updates. Zero disables polling.
	PnLPollInterval time.Duration `yaml:"pnl_poll_interval" toml:"pnl_poll_interval"`
}

// MarketDataSubscription is one symbol's trade and/or top-of-book stream.
type MarketDataSubscription struct {
	Symbol   string `yaml:"symbol" toml:"symbol"`
	Exchange string `yaml:"exchange" toml:"exchange"`
	Trades   bool   `yaml:"trades" toml:"trades"`
	BBO      bool   `yaml:"bbo" toml:"bbo"`
}

// TimeBarSubscription is one live bar stream.
type TimeBarSubscription struct {
	Symbol   string `yaml:"symbol" toml:"symbol"`
	Exchange string `yaml:"exchange" toml:"exchange"`
	Type     string `yaml:"type" toml:"type"` // second, minute, daily, weekly
	Period   int    `yaml:"period" toml:"period"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`   // debug, info, warn, error
	Format string `yaml:"format" toml:"format"` // text or json
}

// DBConfig holds the bar store connection.
type DBConfig struct {
	Host     string `yaml:"host" toml:"host"`
	Port     int    `yaml:"port" toml:"port"`
	Name     string `yaml:"name" toml:"name"`
	User     string `yaml:"user" toml:"user"`
	Password string `yaml:"password" toml:"password"`
	SSLMode  string `yaml:"ssl_mode" toml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns" toml:"max_conns"`
	MinConns int    `yaml:"min_conns" toml:"min_conns"`
}

// Enabled reports whether a bar store is configured.
func (db DBConfig) Enabled() bool {
	return db.Host != ""
}

// WriterConfig holds batch writer settings.
type WriterConfig struct {
	BatchSize     int           `yaml:"batch_size" toml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval" toml:"flush_interval"`
}

// NATSConfig holds the event bridge settings. An empty URL disables it.
type NATSConfig struct {
	URL           string `yaml:"url" toml:"url"`
	SubjectPrefix string `yaml:"subject_prefix" toml:"subject_prefix"`
	Name          string `yaml:"name" toml:"name"`
}

// HealthConfig holds the health endpoint settings.
type HealthConfig struct {
	Port int    `yaml:"port" toml:"port"`
	Path string `yaml:"path" toml:"path"`
}
