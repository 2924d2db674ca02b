// Package history implements the history plant: time bar and tick replay,
// and live time bar subscriptions.
//
// A replay is streamed as data frames followed by a terminator. Frames are
// accumulated per (symbol, kind) by the process loop; the caller waits for
// the terminator with a bounded wait and gets an empty result on timeout.
package history

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/plantclient/internal/codec"
	"github.com/rickgao/plantclient/internal/events"
	"github.com/rickgao/plantclient/internal/model"
	"github.com/rickgao/plantclient/internal/plant"
)

// Channel names live time bar subscriptions in the plant's set.
const Channel = "time_bar"

const (
	requestSubscribe   = 1
	requestUnsubscribe = 2

	tickBar        = 1
	tickBarRegular = 1

	directionFirst = 1
	orderForwards  = 1
)

// Config configures the history plant.
type Config struct {
	FetchTimeout time.Duration // Bound on a one-shot replay
	MaxCount     int           // Venue-side cap on returned records
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		FetchTimeout: 30 * time.Second,
		MaxCount:     10000,
	}
}

// Events are the hooks the history plant publishes to.
type Events struct {
	TimeBar        *events.Event[model.Bar] // Live bars
	HistoricalBar  *events.Event[model.Bar] // Replayed bars as they arrive
	HistoricalTick *events.Event[model.HistoricalTick]
}

type kind string

const (
	kindTimeBar kind = "time_bar"
	kindTick    kind = "tick"
)

type fetchKey struct {
	symbol string
	kind   kind
}

// fetch accumulates one replay.
type fetch struct {
	id    string
	key   fetchKey
	bars  []model.Bar
	ticks []model.HistoricalTick
	err   error
	done  chan struct{}
}

// Plant is the history plant.
type Plant struct {
	*plant.Plant
	cfg Config
	ev  Events

	mu    sync.Mutex
	byKey map[fetchKey]*fetch
	byID  map[string]*fetch
}

// New wraps base. Nil events are created.
func New(base *plant.Plant, cfg Config, ev Events) *Plant {
	def := DefaultConfig()
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = def.FetchTimeout
	}
	if cfg.MaxCount <= 0 {
		cfg.MaxCount = def.MaxCount
	}
	if ev.TimeBar == nil {
		ev.TimeBar = events.New[model.Bar]("time_bar", base.Logger())
	}
	if ev.HistoricalBar == nil {
		ev.HistoricalBar = events.New[model.Bar]("historical_bar", base.Logger())
	}
	if ev.HistoricalTick == nil {
		ev.HistoricalTick = events.New[model.HistoricalTick]("historical_tick", base.Logger())
	}

	p := &Plant{
		Plant: base,
		cfg:   cfg,
		ev:    ev,
		byKey: make(map[fetchKey]*fetch),
		byID:  make(map[string]*fetch),
	}
	base.Handle(codec.ResponseTimeBarReplay, p.handleTimeBarReplay)
	base.Handle(codec.ResponseTickBarReplay, p.handleTickReplay)
	base.Handle(codec.TimeBar, p.handleTimeBar)
	base.Handle(codec.ResponseTimeBarUpdate, base.AckHandler("time bar update"))
	base.OnReplay(Channel, func(sub plant.Subscription) (codec.Frame, error) {
		barType, period, err := parseParams(sub.Params)
		if err != nil {
			return codec.Frame{}, err
		}
		return timeBarUpdateRequest(sub.Symbol, sub.Exchange, barType, period, requestSubscribe), nil
	})
	return p
}

// Events returns the plant's hooks.
func (p *Plant) Events() Events {
	return p.ev
}

// GetHistoricalTimeBars replays bars ending in [start, end]. It returns an
// empty result when the venue does not finish within the fetch timeout.
func (p *Plant) GetHistoricalTimeBars(ctx context.Context, symbol, exchange string, start, end time.Time, barType model.BarType, period int) ([]model.Bar, error) {
	if err := validateRange("historical time bars", symbol, exchange, start, end); err != nil {
		return nil, err
	}
	if barType < model.SecondBar || barType > model.WeeklyBar {
		return nil, plant.Invalid("historical time bars", "unknown bar type %d", int(barType))
	}
	if period <= 0 {
		return nil, plant.Invalid("historical time bars", "period must be positive, got %d", period)
	}

	req := codec.NewFrame(codec.RequestTimeBarReplay).
		With("symbol", symbol).
		With("exchange", exchange).
		With("bar_type", int(barType)).
		With("bar_type_period", period).
		With("start_index", start.Unix()).
		With("finish_index", end.Unix()).
		With("user_max_count", p.cfg.MaxCount).
		With("direction", directionFirst).
		With("time_order", orderForwards)

	f, err := p.run(ctx, fetchKey{symbol: symbol, kind: kindTimeBar}, req)
	if err != nil || f == nil {
		return nil, err
	}
	return f.bars, nil
}

// GetHistoricalTickData replays ticks in [start, end] with the same
// timeout behavior as GetHistoricalTimeBars.
func (p *Plant) GetHistoricalTickData(ctx context.Context, symbol, exchange string, start, end time.Time) ([]model.HistoricalTick, error) {
	if err := validateRange("historical ticks", symbol, exchange, start, end); err != nil {
		return nil, err
	}

	req := codec.NewFrame(codec.RequestTickBarReplay).
		With("symbol", symbol).
		With("exchange", exchange).
		With("bar_type", tickBar).
		With("bar_sub_type", tickBarRegular).
		With("bar_type_specifier", "1").
		With("start_index", start.Unix()).
		With("finish_index", end.Unix()).
		With("user_max_count", p.cfg.MaxCount).
		With("direction", directionFirst).
		With("time_order", orderForwards)

	f, err := p.run(ctx, fetchKey{symbol: symbol, kind: kindTick}, req)
	if err != nil || f == nil {
		return nil, err
	}
	return f.ticks, nil
}

// run registers a fetch, sends req and waits for its terminator. A nil
// fetch with a nil error means the wait timed out.
func (p *Plant) run(ctx context.Context, key fetchKey, req codec.Frame) (*fetch, error) {
	f := &fetch{id: uuid.NewString(), key: key, done: make(chan struct{})}

	p.mu.Lock()
	if _, busy := p.byKey[key]; busy {
		p.mu.Unlock()
		return nil, plant.Invalid("historical "+string(key.kind), "a replay for %s is already in progress", key.symbol)
	}
	p.byKey[key] = f
	p.byID[f.id] = f
	p.mu.Unlock()

	defer p.forget(f)

	if err := p.Send(ctx, req.With(codec.FieldUserMsg, []string{f.id})); err != nil {
		return nil, err
	}

	timer := time.NewTimer(p.cfg.FetchTimeout)
	defer timer.Stop()

	select {
	case <-f.done:
		if f.err != nil {
			return nil, f.err
		}
		p.Logger().Debug("replay complete", "symbol", key.symbol, "kind", key.kind, "bars", len(f.bars), "ticks", len(f.ticks))
		return f, nil
	case <-timer.C:
		p.Logger().Warn("replay timed out, returning empty result", "symbol", key.symbol, "kind", key.kind, "timeout", p.cfg.FetchTimeout)
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Plant) forget(f *fetch) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.byKey[f.key] == f {
		delete(p.byKey, f.key)
	}
	delete(p.byID, f.id)
}

// lookup finds the fetch a replay frame belongs to, by user_msg first and
// then by (symbol, kind).
func (p *Plant) lookup(f codec.Frame, k kind) *fetch {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, id := range f.Strings(codec.FieldUserMsg) {
		if fe, ok := p.byID[id]; ok {
			return fe
		}
	}
	return p.byKey[fetchKey{symbol: f.String("symbol"), kind: k}]
}

func (p *Plant) handleTimeBarReplay(ctx context.Context, f codec.Frame) error {
	fe := p.lookup(f, kindTimeBar)
	if codec.IsTerminator(f) {
		if fe == nil {
			return fmt.Errorf("time bar replay finished for unknown request")
		}
		p.finish(fe, plant.ResponseError(f))
		return nil
	}

	bar := model.BarFromFrame(f)
	if fe != nil {
		p.mu.Lock()
		fe.bars = append(fe.bars, bar)
		p.mu.Unlock()
	}
	p.ev.HistoricalBar.Publish(ctx, bar)
	return nil
}

func (p *Plant) handleTickReplay(ctx context.Context, f codec.Frame) error {
	fe := p.lookup(f, kindTick)
	if codec.IsTerminator(f) {
		if fe == nil {
			return fmt.Errorf("tick replay finished for unknown request")
		}
		p.finish(fe, plant.ResponseError(f))
		return nil
	}

	tick := model.HistoricalTickFromFrame(f)
	if fe != nil {
		p.mu.Lock()
		fe.ticks = append(fe.ticks, tick)
		p.mu.Unlock()
	}
	p.ev.HistoricalTick.Publish(ctx, tick)
	return nil
}

func (p *Plant) finish(fe *fetch, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	select {
	case <-fe.done:
		return
	default:
	}
	fe.err = err
	close(fe.done)
}

func (p *Plant) handleTimeBar(ctx context.Context, f codec.Frame) error {
	p.ev.TimeBar.Publish(ctx, model.BarFromFrame(f))
	return nil
}

// SubscribeTimeBars starts live bars for symbol. Subscribing again is a
// no-op.
func (p *Plant) SubscribeTimeBars(ctx context.Context, symbol, exchange string, barType model.BarType, period int) error {
	sub, err := timeBarSubscription(symbol, exchange, barType, period)
	if err != nil {
		return err
	}
	added, err := p.Subscribe(ctx, sub, timeBarUpdateRequest(symbol, exchange, barType, period, requestSubscribe))
	if err != nil || !added {
		return err
	}
	p.Logger().Info("subscribed to time bars", "symbol", symbol, "exchange", exchange, "type", barType.String(), "period", period)
	return nil
}

// UnsubscribeTimeBars stops live bars for symbol.
func (p *Plant) UnsubscribeTimeBars(ctx context.Context, symbol, exchange string, barType model.BarType, period int) error {
	sub, err := timeBarSubscription(symbol, exchange, barType, period)
	if err != nil {
		return err
	}
	if !p.Subscriptions().Remove(sub) {
		return nil
	}
	return p.Send(ctx, timeBarUpdateRequest(symbol, exchange, barType, period, requestUnsubscribe))
}

func timeBarSubscription(symbol, exchange string, barType model.BarType, period int) (plant.Subscription, error) {
	if symbol == "" || exchange == "" {
		return plant.Subscription{}, plant.Invalid("time bars", "symbol and exchange are required")
	}
	if period <= 0 {
		return plant.Subscription{}, plant.Invalid("time bars", "period must be positive, got %d", period)
	}
	return plant.Subscription{
		Channel:  Channel,
		Symbol:   symbol,
		Exchange: exchange,
		Params:   fmt.Sprintf("%d:%d", int(barType), period),
	}, nil
}

// parseParams reverses the Params encoding of timeBarSubscription.
func parseParams(params string) (model.BarType, int, error) {
	var barType, period int
	if _, err := fmt.Sscanf(params, "%d:%d", &barType, &period); err != nil {
		return 0, 0, fmt.Errorf("time bar params %q: %w", params, err)
	}
	if period <= 0 {
		return 0, 0, fmt.Errorf("time bar params %q: period must be positive", params)
	}
	return model.BarType(barType), period, nil
}

func timeBarUpdateRequest(symbol, exchange string, barType model.BarType, period, request int) codec.Frame {
	return codec.NewFrame(codec.RequestTimeBarUpdate).
		With("symbol", symbol).
		With("exchange", exchange).
		With("bar_type", int(barType)).
		With("bar_type_period", period).
		With("request", request)
}

func validateRange(op, symbol, exchange string, start, end time.Time) error {
	if symbol == "" || exchange == "" {
		return plant.Invalid(op, "symbol and exchange are required")
	}
	if !end.After(start) {
		return plant.Invalid(op, "end %s is not after start %s", end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	return nil
}
