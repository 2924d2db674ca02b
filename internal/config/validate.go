package config

import (
	"errors"
	"fmt"

	"github.com/rickgao/plantclient/internal/model"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Credentials.User == "" {
		return errors.New("credentials.user is required")
	}
	if c.Credentials.Password == "" {
		return errors.New("credentials.password is required")
	}
	if c.Credentials.SystemName == "" {
		return errors.New("credentials.system_name is required")
	}

	if c.Gateway.URL == "" {
		for _, u := range []string{c.Gateway.TickerURL, c.Gateway.OrderURL, c.Gateway.HistoryURL, c.Gateway.PnLURL} {
			if u == "" {
				return errors.New("gateway.url is required unless every per-plant url is set")
			}
		}
	}

	if c.Session.ListenInterval <= 0 {
		return errors.New("session.listen_interval must be > 0")
	}
	if c.Session.QueueCapacity < 1 {
		return errors.New("session.queue_capacity must be >= 1")
	}

	if c.Reconnect.MaxRetries < 0 {
		return fmt.Errorf("reconnect.max_retries must be >= 0, got %d", c.Reconnect.MaxRetries)
	}
	if c.Reconnect.Multiplier < 1 {
		return fmt.Errorf("reconnect.multiplier must be >= 1, got %g", c.Reconnect.Multiplier)
	}
	if c.Reconnect.MaxDelay < c.Reconnect.InitialDelay {
		return fmt.Errorf("reconnect.max_delay (%v) cannot be below initial_delay (%v)", c.Reconnect.MaxDelay, c.Reconnect.InitialDelay)
	}

	for i, s := range c.Subscriptions.MarketData {
		if s.Symbol == "" || s.Exchange == "" {
			return fmt.Errorf("subscriptions.market_data[%d]: symbol and exchange are required", i)
		}
		if !s.Trades && !s.BBO {
			return fmt.Errorf("subscriptions.market_data[%d]: enable trades or bbo", i)
		}
	}
	for i, s := range c.Subscriptions.TimeBars {
		if s.Symbol == "" || s.Exchange == "" {
			return fmt.Errorf("subscriptions.time_bars[%d]: symbol and exchange are required", i)
		}
		if _, ok := model.ParseBarType(s.Type); !ok {
			return fmt.Errorf("subscriptions.time_bars[%d]: unknown bar type %q", i, s.Type)
		}
		if s.Period < 1 {
			return fmt.Errorf("subscriptions.time_bars[%d]: period must be >= 1", i)
		}
	}
	if c.Subscriptions.PnLPollInterval < 0 {
		return errors.New("subscriptions.pnl_poll_interval must not be negative")
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	if c.Database.Enabled() {
		if err := c.Database.validate("database"); err != nil {
			return err
		}
		if c.Writer.BatchSize < 1 {
			return errors.New("writer.batch_size must be >= 1")
		}
	}

	if c.Health.Port < 1 || c.Health.Port > 65535 {
		return fmt.Errorf("health.port must be between 1 and 65535, got %d", c.Health.Port)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
