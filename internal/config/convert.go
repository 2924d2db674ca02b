package config

import (
	"github.com/rickgao/plantclient/internal/client"
	"github.com/rickgao/plantclient/internal/history"
	"github.com/rickgao/plantclient/internal/model"
	"github.com/rickgao/plantclient/internal/plant"
	"github.com/rickgao/plantclient/internal/reconnect"
	"github.com/rickgao/plantclient/internal/transport"
)

// ReconnectPolicy builds the backoff curve.
func (r ReconnectConfig) ReconnectPolicy() reconnect.Policy {
	return reconnect.Exponential{
		Initial:    r.InitialDelay,
		Multiplier: r.Multiplier,
		Max:        r.MaxDelay,
		Jitter:     r.Jitter == nil || *r.Jitter,
	}
}

// Client converts the config into the client facade's config. appVersion
// is used when credentials.app_version is empty.
func (c *Config) Client(appVersion string) client.Config {
	creds := plant.Credentials{
		User:       c.Credentials.User,
		Password:   c.Credentials.Password,
		SystemName: c.Credentials.SystemName,
		AppName:    c.Credentials.AppName,
		AppVersion: c.Credentials.AppVersion,
	}
	if creds.AppVersion == "" {
		creds.AppVersion = appVersion
	}

	urls := make(map[plant.InfraType]string)
	for infra, u := range map[plant.InfraType]string{
		plant.TickerPlant:  c.Gateway.TickerURL,
		plant.OrderPlant:   c.Gateway.OrderURL,
		plant.HistoryPlant: c.Gateway.HistoryURL,
		plant.PnLPlant:     c.Gateway.PnLURL,
	} {
		if u != "" {
			urls[infra] = u
		}
	}

	tc := transport.DefaultConfig()
	tc.HandshakeTimeout = c.Gateway.HandshakeTimeout
	tc.PingInterval = c.Gateway.PingInterval
	tc.PingTimeout = c.Gateway.PingTimeout
	tc.WriteTimeout = c.Gateway.WriteTimeout

	return client.Config{
		URL:         c.Gateway.URL,
		URLs:        urls,
		Credentials: creds,
		Session: plant.Config{
			ListenInterval:    c.Session.ListenInterval,
			ConnectTimeout:    c.Session.ConnectTimeout,
			LoginTimeout:      c.Session.LoginTimeout,
			ResponseTimeout:   c.Session.ResponseTimeout,
			HeartbeatInterval: c.Session.HeartbeatInterval,
			QueueCapacity:     c.Session.QueueCapacity,
			TemplateVersion:   c.Session.TemplateVersion,
			Reconnect: reconnect.Config{
				MaxRetries:     c.Reconnect.MaxRetries,
				AttemptTimeout: c.Reconnect.AttemptTimeout,
				Policy:         c.Reconnect.ReconnectPolicy(),
			},
		},
		History: history.Config{
			FetchTimeout: c.History.FetchTimeout,
			MaxCount:     c.History.MaxCount,
		},
		Transport: tc,
	}
}

// UpdateBits returns the streams a market data subscription selects.
func (s MarketDataSubscription) UpdateBits() model.UpdateBits {
	var bits model.UpdateBits
	if s.Trades {
		bits |= model.LastTradeBits
	}
	if s.BBO {
		bits |= model.BBOBits
	}
	return bits
}

// BarType returns the parsed bar type; Validate rejects unknown names.
func (s TimeBarSubscription) BarType() model.BarType {
	t, _ := model.ParseBarType(s.Type)
	return t
}
