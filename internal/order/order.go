// Package order implements the order plant.
//
// Login loads the user's clearing ids, accounts and trade routes once and
// subscribes to order and bracket updates for every account. Orders are
// tracked by caller tag and basket id from the notifications that stream
// back, so cancel and modify usually need no lookup.
package order

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/rickgao/plantclient/internal/codec"
	"github.com/rickgao/plantclient/internal/events"
	"github.com/rickgao/plantclient/internal/model"
	"github.com/rickgao/plantclient/internal/plant"
)

// Channels name order plant subscriptions in the plant's set. Params holds
// the account id.
const (
	ChannelOrders   = "order_updates"
	ChannelBrackets = "bracket_updates"
)

const manualOrAutoAuto = 2

// Events are the hooks the order plant publishes to.
type Events struct {
	OrderNotification         *events.Event[model.OrderNotification]
	ExchangeOrderNotification *events.Event[model.ExchangeOrderNotification]
	BracketUpdate             *events.Event[model.BracketUpdate]
}

// Ack identifies a submitted order.
type Ack struct {
	OrderID  string
	BasketID string
}

// Plant is the order plant.
type Plant struct {
	*plant.Plant
	ev Events

	mu       sync.RWMutex
	info     model.LoginInfo
	accounts []model.Account
	routes   []model.TradeRoute
	tags     map[string]string                  // user_tag -> basket_id
	orders   map[string]model.OrderNotification // basket_id -> latest

	editMu sync.Mutex
	edits  map[string]*basketLock
}

// basketLock serializes edits to one basket. refs counts holders and
// waiters so the entry can go once the last one leaves.
type basketLock struct {
	mu   sync.Mutex
	refs int
}

// New wraps base. Nil events are created.
func New(base *plant.Plant, ev Events) *Plant {
	if ev.OrderNotification == nil {
		ev.OrderNotification = events.New[model.OrderNotification]("order_notification", base.Logger())
	}
	if ev.ExchangeOrderNotification == nil {
		ev.ExchangeOrderNotification = events.New[model.ExchangeOrderNotification]("exchange_order_notification", base.Logger())
	}
	if ev.BracketUpdate == nil {
		ev.BracketUpdate = events.New[model.BracketUpdate]("bracket_update", base.Logger())
	}

	p := &Plant{
		Plant:  base,
		ev:     ev,
		tags:   make(map[string]string),
		orders: make(map[string]model.OrderNotification),
		edits:  make(map[string]*basketLock),
	}
	base.Handle(codec.RithmicOrderNotification, p.handleOrderNotification)
	base.Handle(codec.ExchangeOrderNotification, p.handleExchangeNotification)
	base.Handle(codec.BracketUpdate, p.handleBracketUpdate)
	base.Handle(codec.ResponseOrderUpdates, base.AckHandler("order updates"))
	base.Handle(codec.ResponseBracketUpdates, base.AckHandler("bracket updates"))
	base.OnReplay(ChannelOrders, func(sub plant.Subscription) (codec.Frame, error) {
		return p.updatesRequest(codec.RequestOrderUpdates, sub.Params), nil
	})
	base.OnReplay(ChannelBrackets, func(sub plant.Subscription) (codec.Frame, error) {
		return p.updatesRequest(codec.RequestBracketUpdates, sub.Params), nil
	})
	base.OnLogin(p.resetOrders)
	return p
}

// Events returns the plant's hooks.
func (p *Plant) Events() Events {
	return p.ev
}

// Login logs in, loads account metadata and subscribes to order and
// bracket updates for every account.
func (p *Plant) Login(ctx context.Context) error {
	if err := p.Plant.Login(ctx); err != nil {
		return err
	}
	if err := p.loadMetadata(ctx); err != nil {
		return fmt.Errorf("load order metadata: %w", err)
	}

	for _, a := range p.Accounts() {
		for _, ch := range []struct {
			name     string
			template int32
		}{
			{ChannelOrders, codec.RequestOrderUpdates},
			{ChannelBrackets, codec.RequestBracketUpdates},
		} {
			sub := plant.Subscription{Channel: ch.name, Params: a.ID}
			if _, err := p.Subscribe(ctx, sub, p.updatesRequest(ch.template, a.ID)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *Plant) loadMetadata(ctx context.Context) error {
	f, err := p.Request(ctx, codec.NewFrame(codec.RequestLoginInfo), plant.Reply(codec.ResponseLoginInfo))
	if err != nil {
		return fmt.Errorf("login info: %w", err)
	}
	info := model.LoginInfoFromFrame(f)

	req := codec.NewFrame(codec.RequestAccountList).
		With("fcm_id", info.FCMID).
		With("ib_id", info.IBID).
		With("user_type", info.UserType)
	frames, err := p.Collect(ctx, req, plant.Reply(codec.ResponseAccountList))
	if err != nil {
		return fmt.Errorf("account list: %w", err)
	}
	accounts := make([]model.Account, 0, len(frames))
	for _, f := range frames {
		accounts = append(accounts, model.AccountFromFrame(f))
	}

	frames, err = p.Collect(ctx, codec.NewFrame(codec.RequestTradeRoutes).With("subscribe_for_updates", false), plant.Reply(codec.ResponseTradeRoutes))
	if err != nil {
		return fmt.Errorf("trade routes: %w", err)
	}
	routes := make([]model.TradeRoute, 0, len(frames))
	for _, f := range frames {
		routes = append(routes, model.TradeRouteFromFrame(f))
	}

	p.mu.Lock()
	p.info = info
	p.accounts = accounts
	p.routes = routes
	p.mu.Unlock()

	p.Logger().Info("order metadata loaded", "fcm_id", info.FCMID, "ib_id", info.IBID, "accounts", len(accounts), "trade_routes", len(routes))
	return nil
}

// LoginInfo returns the cached clearing ids.
func (p *Plant) LoginInfo() model.LoginInfo {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.info
}

// Accounts returns the cached accounts.
func (p *Plant) Accounts() []model.Account {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]model.Account(nil), p.accounts...)
}

// TradeRoutes returns the cached trade routes.
func (p *Plant) TradeRoutes() []model.TradeRoute {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]model.TradeRoute(nil), p.routes...)
}

// SelectAccount picks the account id names. An empty id is allowed only
// when there is exactly one account.
func SelectAccount(accounts []model.Account, id, op string) (model.Account, error) {
	if id == "" {
		switch len(accounts) {
		case 0:
			return model.Account{}, plant.Invalid(op, "no accounts available")
		case 1:
			return accounts[0], nil
		default:
			return model.Account{}, plant.Invalid(op, "%d accounts available, account id is required", len(accounts))
		}
	}
	for _, a := range accounts {
		if a.ID == id {
			return a, nil
		}
	}
	return model.Account{}, plant.Invalid(op, "unknown account %q", id)
}

func (p *Plant) account(id, op string) (model.Account, error) {
	return SelectAccount(p.Accounts(), id, op)
}

// route picks the default trade route for exchange, or the first one.
func (p *Plant) route(exchange, op string) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var first string
	for _, r := range p.routes {
		if r.Exchange != exchange {
			continue
		}
		if r.Default {
			return r.Route, nil
		}
		if first == "" {
			first = r.Route
		}
	}
	if first == "" {
		return "", plant.Invalid(op, "no trade route for exchange %s", exchange)
	}
	return first, nil
}

// clearing returns a frame carrying the account's clearing ids.
func (p *Plant) clearing(templateID int32, a model.Account) codec.Frame {
	fcm, ib := a.FCMID, a.IBID
	if fcm == "" || ib == "" {
		info := p.LoginInfo()
		fcm, ib = info.FCMID, info.IBID
	}
	return codec.NewFrame(templateID).
		With("fcm_id", fcm).
		With("ib_id", ib).
		With("account_id", a.ID)
}

func (p *Plant) updatesRequest(templateID int32, accountID string) codec.Frame {
	a := model.Account{ID: accountID}
	for _, acct := range p.Accounts() {
		if acct.ID == accountID {
			a = acct
			break
		}
	}
	return p.clearing(templateID, a)
}

// SubmitOrder builds the order variant req describes and submits it.
// Contract violations are reported before anything is sent.
func (p *Plant) SubmitOrder(ctx context.Context, req OrderRequest) (Ack, error) {
	o, err := NewOrder(req)
	if err != nil {
		return Ack{}, err
	}
	return p.Submit(ctx, o)
}

// Submit sends a validated order and returns its basket id.
func (p *Plant) Submit(ctx context.Context, o Order) (Ack, error) {
	if o == nil {
		return Ack{}, plant.Invalid("submit order", "order is nil")
	}
	if err := o.Validate(); err != nil {
		return Ack{}, err
	}

	c := o.common()
	acct, err := p.account(c.AccountID, "submit order")
	if err != nil {
		return Ack{}, err
	}
	route, err := p.route(c.Exchange, "submit order")
	if err != nil {
		return Ack{}, err
	}

	tag := c.OrderID
	if tag == "" {
		tag = uuid.NewString()
	}
	req, response := p.encode(o, acct, route, tag)

	frames, err := p.Collect(ctx, req, plant.Reply(response))
	if err != nil {
		return Ack{OrderID: tag}, err
	}

	ack := Ack{OrderID: tag}
	for _, f := range frames {
		if id := f.String("basket_id"); id != "" {
			ack.BasketID = id
			break
		}
	}
	if ack.BasketID != "" {
		p.mu.Lock()
		p.tags[tag] = ack.BasketID
		p.mu.Unlock()
	}

	p.Logger().Info("order submitted", "order_id", tag, "basket_id", ack.BasketID, "symbol", c.Symbol, "side", c.Side.String(), "quantity", c.Quantity, "price_type", o.priceType().String())
	return ack, nil
}

func (p *Plant) encode(o Order, a model.Account, route, tag string) (codec.Frame, int32) {
	c := o.common()
	duration := c.Duration
	if duration == 0 {
		duration = Day
	}

	template, response := codec.RequestNewOrder, codec.ResponseNewOrder
	if _, ok := o.(BracketOrder); ok {
		template, response = codec.RequestBracketOrder, codec.ResponseBracketOrder
	}

	f := p.clearing(template, a).
		With("symbol", c.Symbol).
		With("exchange", c.Exchange).
		With("quantity", c.Quantity).
		With("transaction_type", int(c.Side)).
		With("duration", int(duration)).
		With("price_type", int(o.priceType())).
		With("trade_route", route).
		With("manual_or_auto", manualOrAutoAuto).
		With("user_tag", tag)

	switch v := o.(type) {
	case LimitOrder:
		f = f.With("price", v.Price)
	case StopOrder:
		f = f.With("trigger_price", v.Trigger)
		if v.Limit.Valid {
			f = f.With("price", v.Limit.Decimal)
		}
	case BracketOrder:
		if v.Price.Valid {
			f = f.With("price", v.Price.Decimal)
		}
		f = f.With("bracket_type", v.bracketType())
		if v.TargetTicks > 0 {
			f = f.With("target_quantity", c.Quantity).With("target_ticks", v.TargetTicks)
		}
		if v.StopTicks > 0 {
			f = f.With("stop_quantity", c.Quantity).With("stop_ticks", v.StopTicks)
		}
	}
	return f, response
}

// ListOrders returns the venue's snapshot of the account's orders.
func (p *Plant) ListOrders(ctx context.Context, accountID string) ([]model.OrderNotification, error) {
	acct, err := p.account(accountID, "list orders")
	if err != nil {
		return nil, err
	}

	frames, err := p.Collect(ctx, p.clearing(codec.RequestShowOrders, acct), plant.Expect{
		Templates:     []int32{codec.RithmicOrderNotification},
		Match:         func(f codec.Frame) bool { return f.Bool("is_snapshot") },
		DoneTemplates: []int32{codec.ResponseShowOrders},
	})
	if err != nil {
		return nil, err
	}

	out := make([]model.OrderNotification, 0, len(frames))
	for _, f := range frames {
		n := model.OrderNotificationFromFrame(f)
		p.track(n)
		out = append(out, n)
	}
	return out, nil
}

// GetOrder finds an order by caller tag or basket id.
func (p *Plant) GetOrder(ctx context.Context, id, accountID string) (model.OrderNotification, error) {
	if id == "" {
		return model.OrderNotification{}, plant.Invalid("get order", "order id is required")
	}
	orders, err := p.ListOrders(ctx, accountID)
	if err != nil {
		return model.OrderNotification{}, err
	}
	for _, o := range orders {
		if o.UserTag == id || o.BasketID == id {
			return o, nil
		}
	}
	return model.OrderNotification{}, plant.Invalid("get order", "order %s not found", id)
}

// find returns the open order id names, from the notification cache when
// possible and otherwise from a fresh snapshot.
func (p *Plant) find(ctx context.Context, id, accountID, op string) (model.OrderNotification, error) {
	if id == "" {
		return model.OrderNotification{}, plant.Invalid(op, "order id is required")
	}

	p.mu.RLock()
	basket, ok := p.tags[id]
	if !ok {
		basket = id
	}
	cached, ok := p.orders[basket]
	p.mu.RUnlock()

	if ok && cached.AccountID != "" && cached.Open() {
		return cached, nil
	}

	orders, err := p.ListOrders(ctx, accountID)
	if err != nil {
		return model.OrderNotification{}, err
	}
	for _, o := range orders {
		if o.UserTag != id && o.BasketID != id {
			continue
		}
		if !o.Open() {
			return model.OrderNotification{}, plant.Invalid(op, "order %s is %s", id, o.Status)
		}
		return o, nil
	}
	return model.OrderNotification{}, plant.Invalid(op, "order %s not found", id)
}

// CancelOrder cancels the order with caller tag or basket id.
func (p *Plant) CancelOrder(ctx context.Context, id, accountID string) error {
	o, err := p.find(ctx, id, accountID, "cancel order")
	if err != nil {
		return err
	}
	acct, err := p.account(o.AccountID, "cancel order")
	if err != nil {
		return err
	}

	unlock := p.lockBasket(o.BasketID)
	defer unlock()

	req := p.clearing(codec.RequestCancelOrder, acct).
		With("basket_id", o.BasketID).
		With("manual_or_auto", manualOrAutoAuto)
	if _, err := p.Request(ctx, req, plant.Reply(codec.ResponseCancelOrder)); err != nil {
		return err
	}
	p.Logger().Info("order cancel sent", "order_id", o.UserTag, "basket_id", o.BasketID)
	return nil
}

// CancelAllOrders cancels every open order on the account.
func (p *Plant) CancelAllOrders(ctx context.Context, accountID string) error {
	acct, err := p.account(accountID, "cancel all orders")
	if err != nil {
		return err
	}
	_, err = p.Request(ctx, p.clearing(codec.RequestCancelAllOrders, acct), plant.Reply(codec.ResponseCancelAllOrders))
	return err
}

// ExitPosition flattens the account's position in symbol.
func (p *Plant) ExitPosition(ctx context.Context, symbol, exchange, accountID string) error {
	if symbol == "" || exchange == "" {
		return plant.Invalid("exit position", "symbol and exchange are required")
	}
	acct, err := p.account(accountID, "exit position")
	if err != nil {
		return err
	}
	route, err := p.route(exchange, "exit position")
	if err != nil {
		return err
	}

	req := p.clearing(codec.RequestExitPosition, acct).
		With("symbol", symbol).
		With("exchange", exchange).
		With("trade_route", route).
		With("manual_or_auto", manualOrAutoAuto)
	_, err = p.Request(ctx, req, plant.Reply(codec.ResponseExitPosition))
	return err
}

// lockBasket serializes edits to one basket.
func (p *Plant) lockBasket(basketID string) func() {
	p.editMu.Lock()
	l, ok := p.edits[basketID]
	if !ok {
		l = &basketLock{}
		p.edits[basketID] = l
	}
	l.refs++
	p.editMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		p.editMu.Lock()
		if l.refs--; l.refs == 0 {
			delete(p.edits, basketID)
		}
		p.editMu.Unlock()
	}
}

// resetOrders drops the notification cache. Notifications sent while the
// session was down are lost, so after a login lookups go back to the venue
// until fresh notifications arrive.
func (p *Plant) resetOrders(context.Context, plant.Sender) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	clear(p.tags)
	clear(p.orders)
	return nil
}

func (p *Plant) track(n model.OrderNotification) {
	if n.BasketID == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if n.UserTag != "" {
		p.tags[n.UserTag] = n.BasketID
	}
	prev, ok := p.orders[n.BasketID]
	if ok && n.Time.Before(prev.Time) {
		return
	}
	p.orders[n.BasketID] = n
}

func (p *Plant) handleOrderNotification(ctx context.Context, f codec.Frame) error {
	n := model.OrderNotificationFromFrame(f)
	p.track(n)
	p.ev.OrderNotification.Publish(ctx, n)
	return nil
}

func (p *Plant) handleExchangeNotification(ctx context.Context, f codec.Frame) error {
	n := model.ExchangeOrderNotificationFromFrame(f)
	if n.UserTag != "" && n.BasketID != "" {
		p.mu.Lock()
		p.tags[n.UserTag] = n.BasketID
		p.mu.Unlock()
	}
	p.ev.ExchangeOrderNotification.Publish(ctx, n)
	return nil
}

func (p *Plant) handleBracketUpdate(ctx context.Context, f codec.Frame) error {
	p.ev.BracketUpdate.Publish(ctx, model.BracketUpdateFromFrame(f))
	return nil
}
