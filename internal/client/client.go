// Package client owns one plant per venue capability and the shared event
// registry, and fans connect and disconnect out to all of them.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/plantclient/internal/codec"
	"github.com/rickgao/plantclient/internal/events"
	"github.com/rickgao/plantclient/internal/history"
	"github.com/rickgao/plantclient/internal/model"
	"github.com/rickgao/plantclient/internal/order"
	"github.com/rickgao/plantclient/internal/plant"
	"github.com/rickgao/plantclient/internal/pnl"
	"github.com/rickgao/plantclient/internal/ticker"
	"github.com/rickgao/plantclient/internal/transport"
)

// Config configures a Client.
type Config struct {
	URL         string                     // Gateway URL shared by every plant
	URLs        map[plant.InfraType]string // Per-plant URL overrides
	Credentials plant.Credentials
	Session     plant.Config // Applied to every plant; InfraType is set per plant
	History     history.Config
	Transport   transport.Config // URL is set per plant
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Session:   plant.DefaultConfig(0),
		History:   history.DefaultConfig(),
		Transport: transport.DefaultConfig(),
	}
}

// URLFor returns the gateway URL the plant connects to.
func (c Config) URLFor(infra plant.InfraType) string {
	if u, ok := c.URLs[infra]; ok && u != "" {
		return u
	}
	return c.URL
}

// TransportFactory creates the transport for one connection to url.
type TransportFactory func(url string) transport.Transport

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithCodec sets the wire codec.
func WithCodec(cd codec.Codec) Option {
	return func(c *Client) {
		c.codec = cd
	}
}

// WithTransportFactory replaces the websocket transport.
func WithTransportFactory(f TransportFactory) Option {
	return func(c *Client) {
		c.newTransport = f
	}
}

// Events is the registry of every hook the plants publish to.
type Events struct {
	Tick                      *events.Event[model.Tick]
	BestBidOffer              *events.Event[model.BestBidOffer]
	TimeBar                   *events.Event[model.Bar]
	HistoricalBar             *events.Event[model.Bar]
	HistoricalTick            *events.Event[model.HistoricalTick]
	OrderNotification         *events.Event[model.OrderNotification]
	ExchangeOrderNotification *events.Event[model.ExchangeOrderNotification]
	BracketUpdate             *events.Event[model.BracketUpdate]
	InstrumentPnL             *events.Event[model.InstrumentPnL]
	AccountPnL                *events.Event[model.AccountPnL]
}

// NewEvents creates an empty registry.
func NewEvents(logger *slog.Logger) Events {
	return Events{
		Tick:                      events.New[model.Tick]("tick", logger),
		BestBidOffer:              events.New[model.BestBidOffer]("best_bid_offer", logger),
		TimeBar:                   events.New[model.Bar]("time_bar", logger),
		HistoricalBar:             events.New[model.Bar]("historical_bar", logger),
		HistoricalTick:            events.New[model.HistoricalTick]("historical_tick", logger),
		OrderNotification:         events.New[model.OrderNotification]("order_notification", logger),
		ExchangeOrderNotification: events.New[model.ExchangeOrderNotification]("exchange_order_notification", logger),
		BracketUpdate:             events.New[model.BracketUpdate]("bracket_update", logger),
		InstrumentPnL:             events.New[model.InstrumentPnL]("instrument_pnl", logger),
		AccountPnL:                events.New[model.AccountPnL]("account_pnl", logger),
	}
}

// Client is the venue facade.
type Client struct {
	cfg          Config
	logger       *slog.Logger
	codec        codec.Codec
	newTransport TransportFactory
	events       Events

	ticker  *ticker.Plant
	history *history.Plant
	order   *order.Plant
	pnl     *pnl.Plant
}

// member is the lifecycle every plant exposes.
type member interface {
	Connect(ctx context.Context) error
	Login(ctx context.Context) error
	Disconnect(ctx context.Context) error
	State() plant.State
	Stats() plant.Stats
}

// New builds a client and its plants. Nothing connects until ConnectAll.
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.URL == "" && len(cfg.URLs) == 0 {
		return nil, errors.New("client: gateway url is required")
	}

	c := &Client{
		cfg:    cfg,
		logger: slog.Default(),
		codec:  codec.NewProtoCodec(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.newTransport == nil {
		c.newTransport = func(url string) transport.Transport {
			tc := cfg.Transport
			tc.URL = url
			return transport.NewWebSocket(tc, c.logger)
		}
	}
	c.events = NewEvents(c.logger)

	c.ticker = ticker.New(c.base(plant.TickerPlant), ticker.Events{
		Tick:         c.events.Tick,
		BestBidOffer: c.events.BestBidOffer,
	})
	c.history = history.New(c.base(plant.HistoryPlant), cfg.History, history.Events{
		TimeBar:        c.events.TimeBar,
		HistoricalBar:  c.events.HistoricalBar,
		HistoricalTick: c.events.HistoricalTick,
	})
	c.order = order.New(c.base(plant.OrderPlant), order.Events{
		OrderNotification:         c.events.OrderNotification,
		ExchangeOrderNotification: c.events.ExchangeOrderNotification,
		BracketUpdate:             c.events.BracketUpdate,
	})
	c.pnl = pnl.New(c.base(plant.PnLPlant), c.order, pnl.Events{
		InstrumentPnL: c.events.InstrumentPnL,
		AccountPnL:    c.events.AccountPnL,
	})
	return c, nil
}

func (c *Client) base(infra plant.InfraType) *plant.Plant {
	pc := c.cfg.Session
	pc.InfraType = infra
	return plant.New(pc, c.cfg.Credentials, c.codec, c.newTransport(c.cfg.URLFor(infra)), c.logger)
}

func (c *Client) members() map[plant.InfraType]member {
	return map[plant.InfraType]member{
		plant.TickerPlant:  c.ticker,
		plant.HistoryPlant: c.history,
		plant.OrderPlant:   c.order,
		plant.PnLPlant:     c.pnl,
	}
}

// Events returns the event registry.
func (c *Client) Events() Events {
	return c.events
}

// Ticker returns the market data plant.
func (c *Client) Ticker() *ticker.Plant { return c.ticker }

// History returns the history plant.
func (c *Client) History() *history.Plant { return c.history }

// Order returns the order plant.
func (c *Client) Order() *order.Plant { return c.order }

// PnL returns the PnL plant.
func (c *Client) PnL() *pnl.Plant { return c.pnl }

// ConnectAll connects and logs in every plant concurrently. If any plant
// fails, the ones that succeeded are disconnected again.
func (c *Client) ConnectAll(ctx context.Context) error {
	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for infra, m := range c.members() {
		g.Go(func() error {
			if err := m.Connect(gctx); err != nil {
				return fmt.Errorf("%s plant: %w", infra, err)
			}
			if err := m.Login(gctx); err != nil {
				return fmt.Errorf("%s plant: %w", infra, err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		c.logger.Error("connect failed", "error", err)
		if derr := c.DisconnectAll(context.WithoutCancel(ctx)); derr != nil {
			c.logger.Warn("cleanup after failed connect", "error", derr)
		}
		return err
	}
	c.logger.Info("all plants logged in", "duration", time.Since(start))
	return nil
}

// DisconnectAll logs out and disconnects every plant, then waits for
// asynchronous event handlers to finish.
func (c *Client) DisconnectAll(ctx context.Context) error {
	var g errgroup.Group
	for infra, m := range c.members() {
		g.Go(func() error {
			if err := m.Disconnect(ctx); err != nil {
				return fmt.Errorf("%s plant: %w", infra, err)
			}
			return nil
		})
	}
	err := g.Wait()

	c.events.Tick.Wait()
	c.events.BestBidOffer.Wait()
	c.events.TimeBar.Wait()
	c.events.HistoricalBar.Wait()
	c.events.HistoricalTick.Wait()
	c.events.OrderNotification.Wait()
	c.events.ExchangeOrderNotification.Wait()
	c.events.BracketUpdate.Wait()
	c.events.InstrumentPnL.Wait()
	c.events.AccountPnL.Wait()
	return err
}

// States reports every plant's connection state.
func (c *Client) States() map[plant.InfraType]plant.State {
	out := make(map[plant.InfraType]plant.State, 4)
	for infra, m := range c.members() {
		out[infra] = m.State()
	}
	return out
}

// Stats reports every plant's counters.
func (c *Client) Stats() map[plant.InfraType]plant.Stats {
	out := make(map[plant.InfraType]plant.Stats, 4)
	for infra, m := range c.members() {
		out[infra] = m.Stats()
	}
	return out
}

// ListSystems asks the gateway which systems it serves, over a throwaway
// connection.
func (c *Client) ListSystems(ctx context.Context) ([]string, error) {
	conn := c.newTransport(c.cfg.URLFor(plant.TickerPlant))
	return plant.ListSystems(ctx, conn, c.codec, c.cfg.Session.LoginTimeout)
}
