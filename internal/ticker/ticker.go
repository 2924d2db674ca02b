// Package ticker implements the market data plant: symbol discovery and
// live trade and top-of-book streams.
package ticker

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rickgao/plantclient/internal/codec"
	"github.com/rickgao/plantclient/internal/events"
	"github.com/rickgao/plantclient/internal/model"
	"github.com/rickgao/plantclient/internal/plant"
)

// Channel names market data subscriptions in the plant's set.
const Channel = "market_data"

const (
	requestSubscribe   = 1
	requestUnsubscribe = 2
)

// Events are the hooks the ticker plant publishes to.
type Events struct {
	Tick         *events.Event[model.Tick]
	BestBidOffer *events.Event[model.BestBidOffer]
}

// SearchOptions narrow a symbol search.
type SearchOptions struct {
	Exchange       string
	ProductCode    string
	InstrumentType string
	Pattern        string // "EQUALS" or "CONTAINS"
}

// Plant is the market data plant.
type Plant struct {
	*plant.Plant
	ev Events
}

// New wraps base. Nil events are created.
func New(base *plant.Plant, ev Events) *Plant {
	if ev.Tick == nil {
		ev.Tick = events.New[model.Tick]("tick", base.Logger())
	}
	if ev.BestBidOffer == nil {
		ev.BestBidOffer = events.New[model.BestBidOffer]("best_bid_offer", base.Logger())
	}

	p := &Plant{Plant: base, ev: ev}
	base.Handle(codec.LastTrade, p.handleLastTrade)
	base.Handle(codec.BestBidOffer, p.handleBestBidOffer)
	base.Handle(codec.ResponseMarketDataUpdate, base.AckHandler("market data update"))
	base.OnReplay(Channel, func(sub plant.Subscription) (codec.Frame, error) {
		bits, err := strconv.Atoi(sub.Params)
		if err != nil {
			return codec.Frame{}, fmt.Errorf("market data update bits %q: %w", sub.Params, err)
		}
		return marketDataRequest(sub.Symbol, sub.Exchange, model.UpdateBits(bits), requestSubscribe), nil
	})
	return p
}

// Events returns the plant's hooks.
func (p *Plant) Events() Events {
	return p.ev
}

// ListExchanges returns the exchanges visible to the user.
func (p *Plant) ListExchanges(ctx context.Context) ([]model.Exchange, error) {
	frames, err := p.Collect(ctx, codec.NewFrame(codec.RequestListExchanges), plant.Reply(codec.ResponseListExchanges))
	if err != nil {
		return nil, err
	}
	out := make([]model.Exchange, 0, len(frames))
	for _, f := range frames {
		out = append(out, model.ExchangeFromFrame(f))
	}
	return out, nil
}

// SearchSymbols looks up instruments matching text.
func (p *Plant) SearchSymbols(ctx context.Context, text string, opts SearchOptions) ([]model.Instrument, error) {
	if text == "" {
		return nil, plant.Invalid("search symbols", "search text is required")
	}

	req := codec.NewFrame(codec.RequestSearchSymbols).With("search_text", text)
	if opts.Exchange != "" {
		req = req.With("exchange", opts.Exchange)
	}
	if opts.ProductCode != "" {
		req = req.With("product_code", opts.ProductCode)
	}
	if opts.InstrumentType != "" {
		req = req.With("instrument_type", opts.InstrumentType)
	}
	if opts.Pattern != "" {
		req = req.With("pattern", opts.Pattern)
	}

	frames, err := p.Collect(ctx, req, plant.Reply(codec.ResponseSearchSymbols))
	if err != nil {
		return nil, err
	}
	out := make([]model.Instrument, 0, len(frames))
	for _, f := range frames {
		out = append(out, model.InstrumentFromFrame(f))
	}
	return out, nil
}

// FrontMonthContract resolves a product to its current contract. It
// returns an empty string when the venue has no front month for it.
func (p *Plant) FrontMonthContract(ctx context.Context, symbol, exchange string) (string, error) {
	if symbol == "" || exchange == "" {
		return "", plant.Invalid("front month", "symbol and exchange are required")
	}

	req := codec.NewFrame(codec.RequestFrontMonth).
		With("symbol", symbol).
		With("exchange", exchange).
		With("need_updates", false)

	f, err := p.Request(ctx, req, plant.Reply(codec.ResponseFrontMonth))
	if err != nil {
		return "", err
	}
	return model.FrontMonthFromFrame(f).TradingSymbol, nil
}

// SubscribeMarketData starts the streams selected by bits. Subscribing to
// an active (symbol, exchange, bits) again is a no-op.
func (p *Plant) SubscribeMarketData(ctx context.Context, symbol, exchange string, bits model.UpdateBits) error {
	sub, err := subscription(symbol, exchange, bits)
	if err != nil {
		return err
	}
	added, err := p.Subscribe(ctx, sub, marketDataRequest(symbol, exchange, bits, requestSubscribe))
	if err != nil {
		return err
	}
	if !added {
		p.Logger().Debug("already subscribed", "symbol", symbol, "exchange", exchange)
		return nil
	}
	p.Logger().Info("subscribed to market data", "symbol", symbol, "exchange", exchange, "bits", int(bits))
	return nil
}

// UnsubscribeMarketData stops the streams selected by bits.
func (p *Plant) UnsubscribeMarketData(ctx context.Context, symbol, exchange string, bits model.UpdateBits) error {
	sub, err := subscription(symbol, exchange, bits)
	if err != nil {
		return err
	}
	if !p.Subscriptions().Remove(sub) {
		return nil
	}

	if err := p.Send(ctx, marketDataRequest(symbol, exchange, bits, requestUnsubscribe)); err != nil {
		return err
	}
	p.Logger().Info("unsubscribed from market data", "symbol", symbol, "exchange", exchange)
	return nil
}

func subscription(symbol, exchange string, bits model.UpdateBits) (plant.Subscription, error) {
	if symbol == "" || exchange == "" {
		return plant.Subscription{}, plant.Invalid("market data", "symbol and exchange are required")
	}
	if bits&(model.LastTradeBits|model.BBOBits) == 0 {
		return plant.Subscription{}, plant.Invalid("market data", "update bits %d select no stream", int(bits))
	}
	return plant.Subscription{
		Channel:  Channel,
		Symbol:   symbol,
		Exchange: exchange,
		Params:   strconv.Itoa(int(bits)),
	}, nil
}

func marketDataRequest(symbol, exchange string, bits model.UpdateBits, request int) codec.Frame {
	return codec.NewFrame(codec.RequestMarketDataUpdate).
		With("symbol", symbol).
		With("exchange", exchange).
		With("update_bits", int(bits)).
		With("request", request)
}

func (p *Plant) handleLastTrade(ctx context.Context, f codec.Frame) error {
	p.ev.Tick.Publish(ctx, model.TickFromFrame(f))
	return nil
}

func (p *Plant) handleBestBidOffer(ctx context.Context, f codec.Frame) error {
	p.ev.BestBidOffer.Publish(ctx, model.BestBidOfferFromFrame(f))
	return nil
}
