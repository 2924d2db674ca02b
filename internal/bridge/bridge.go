// Package bridge republishes client events as JSON on NATS subjects.
//
// Subjects are <prefix>.<kind>.<key...>, for example plant.tick.CME.ESZ6 or
// plant.order.ACCT1. Tokens are sanitized so symbols never add levels.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/rickgao/plantclient/internal/client"
	"github.com/rickgao/plantclient/internal/config"
	"github.com/rickgao/plantclient/internal/events"
	"github.com/rickgao/plantclient/internal/model"
)

// Publisher sends one message. *nats.Conn implements it.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Connect dials NATS with reconnect handling that logs through logger.
func Connect(cfg config.NATSConfig, logger *slog.Logger) (*nats.Conn, error) {
	if logger == nil {
		logger = slog.Default()
	}
	name := cfg.Name
	if name == "" {
		name = "plantd"
	}

	nc, err := nats.Connect(cfg.URL,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			logger.Error("nats error", "error", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return nc, nil
}

// Stats counts bridge activity.
type Stats struct {
	Published int64
	Errors    int64
}

// Bridge forwards events to a Publisher.
type Bridge struct {
	pub    Publisher
	prefix string
	logger *slog.Logger

	published atomic.Int64
	errors    atomic.Int64
}

// New creates a bridge publishing under prefix.
func New(pub Publisher, prefix string, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	if prefix == "" {
		prefix = config.DefaultSubjectPrefix
	}
	return &Bridge{pub: pub, prefix: prefix, logger: logger.With("component", "bridge")}
}

// Attach subscribes to every event in ev and returns a function that
// detaches them again.
func (b *Bridge) Attach(ev client.Events) func() {
	unsubs := []func(){
		forward(b, ev.Tick, func(t model.Tick) string { return b.Subject("tick", t.Exchange, t.Symbol) }),
		forward(b, ev.BestBidOffer, func(q model.BestBidOffer) string { return b.Subject("bbo", q.Exchange, q.Symbol) }),
		forward(b, ev.TimeBar, func(bar model.Bar) string { return b.Subject("bar", bar.Exchange, bar.Symbol) }),
		forward(b, ev.HistoricalBar, func(bar model.Bar) string { return b.Subject("history.bar", bar.Exchange, bar.Symbol) }),
		forward(b, ev.HistoricalTick, func(t model.HistoricalTick) string { return b.Subject("history.tick", t.Exchange, t.Symbol) }),
		forward(b, ev.OrderNotification, func(n model.OrderNotification) string { return b.Subject("order", n.AccountID) }),
		forward(b, ev.ExchangeOrderNotification, func(n model.ExchangeOrderNotification) string { return b.Subject("fill", n.AccountID) }),
		forward(b, ev.BracketUpdate, func(u model.BracketUpdate) string { return b.Subject("bracket", u.BasketID) }),
		forward(b, ev.InstrumentPnL, func(p model.InstrumentPnL) string { return b.Subject("pnl.instrument", p.AccountID, p.Symbol) }),
		forward(b, ev.AccountPnL, func(p model.AccountPnL) string { return b.Subject("pnl.account", p.AccountID) }),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// Stats returns current counters.
func (b *Bridge) Stats() Stats {
	return Stats{Published: b.published.Load(), Errors: b.errors.Load()}
}

// Subject joins the prefix, kind and sanitized key tokens.
func (b *Bridge) Subject(kind string, keys ...string) string {
	parts := make([]string, 0, len(keys)+2)
	parts = append(parts, b.prefix, kind)
	for _, k := range keys {
		parts = append(parts, token(k))
	}
	return strings.Join(parts, ".")
}

func token(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t':
			return '_'
		}
		return r
	}, s)
}

func forward[T any](b *Bridge, ev *events.Event[T], subject func(T) string) func() {
	if ev == nil {
		return func() {}
	}
	return ev.Subscribe(func(_ context.Context, v T) error {
		return b.publish(subject(v), v)
	})
}

func (b *Bridge) publish(subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		b.errors.Add(1)
		return fmt.Errorf("marshal %s: %w", subject, err)
	}
	if err := b.pub.Publish(subject, data); err != nil {
		b.errors.Add(1)
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	b.published.Add(1)
	return nil
}
