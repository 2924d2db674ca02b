package order

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/rickgao/plantclient/internal/codec"
	"github.com/rickgao/plantclient/internal/model"
	"github.com/rickgao/plantclient/internal/plant"
)

// Modification changes an open order. Zero fields are left unchanged.
type Modification struct {
	OrderID      string // Caller tag or basket id
	AccountID    string
	Quantity     int64
	Price        decimal.NullDecimal
	TriggerPrice decimal.NullDecimal
	StopTicks    int64 // New stop leg offset
	TargetTicks  int64 // New target leg offset
}

func (m Modification) main() bool {
	return m.Quantity != 0 || m.Price.Valid || m.TriggerPrice.Valid
}

func (m Modification) bracket() bool {
	return m.StopTicks != 0 || m.TargetTicks != 0
}

// ModifyOrder amends an open order. Bracket legs are amended first, each
// after reading its current level, then the main order. Edits to one basket
// never overlap.
func (p *Plant) ModifyOrder(ctx context.Context, m Modification) error {
	const op = "modify order"
	if !m.main() && !m.bracket() {
		return plant.Invalid(op, "nothing to modify")
	}
	if m.Quantity < 0 || m.StopTicks < 0 || m.TargetTicks < 0 {
		return plant.Invalid(op, "quantity and ticks cannot be negative")
	}

	o, err := p.find(ctx, m.OrderID, m.AccountID, op)
	if err != nil {
		return err
	}
	if err := checkMainFields(o, m); err != nil {
		return err
	}
	acct, err := p.account(o.AccountID, op)
	if err != nil {
		return err
	}

	unlock := p.lockBasket(o.BasketID)
	defer unlock()

	if m.bracket() {
		if err := p.amendBracket(ctx, acct, o.BasketID, m); err != nil {
			return err
		}
	}
	if m.main() {
		if err := p.modifyMain(ctx, acct, o, m); err != nil {
			return err
		}
	}
	p.Logger().Info("order modified", "order_id", o.UserTag, "basket_id", o.BasketID)
	return nil
}

func checkMainFields(o model.OrderNotification, m Modification) error {
	const op = "modify order"
	if m.Price.Valid {
		switch o.PriceType {
		case model.PriceLimit, model.PriceStopLimit:
		default:
			return plant.Invalid(op, "%s order has no limit price", o.PriceType)
		}
		if !m.Price.Decimal.IsPositive() {
			return plant.Invalid(op, "price must be positive")
		}
	}
	if m.TriggerPrice.Valid {
		switch o.PriceType {
		case model.PriceStopMarket, model.PriceStopLimit:
		default:
			return plant.Invalid(op, "%s order has no trigger price", o.PriceType)
		}
		if !m.TriggerPrice.Decimal.IsPositive() {
			return plant.Invalid(op, "trigger price must be positive")
		}
	}
	return nil
}

// amendBracket reads the current legs before changing them: the venue
// amends a leg only when given its present level.
func (p *Plant) amendBracket(ctx context.Context, acct model.Account, basketID string, m Modification) error {
	const op = "modify order"

	var target, stop model.BracketLevel
	if m.TargetTicks > 0 {
		levels, err := p.ListBrackets(ctx, acct.ID)
		if err != nil {
			return err
		}
		var ok bool
		if target, ok = levelFor(levels, basketID); !ok {
			return plant.Invalid(op, "order %s has no target leg", basketID)
		}
	}
	if m.StopTicks > 0 {
		levels, err := p.ListBracketStops(ctx, acct.ID)
		if err != nil {
			return err
		}
		var ok bool
		if stop, ok = levelFor(levels, basketID); !ok {
			return plant.Invalid(op, "order %s has no stop leg", basketID)
		}
	}

	if m.TargetTicks > 0 {
		req := p.clearing(codec.RequestUpdateTargetLevel, acct).
			With("basket_id", basketID).
			With("level", target.Ticks).
			With("target_ticks", m.TargetTicks)
		if _, err := p.Request(ctx, req, plant.Reply(codec.ResponseUpdateTargetLevel)); err != nil {
			return err
		}
	}
	if m.StopTicks > 0 {
		req := p.clearing(codec.RequestUpdateStopLevel, acct).
			With("basket_id", basketID).
			With("level", stop.Ticks).
			With("stop_ticks", m.StopTicks)
		if _, err := p.Request(ctx, req, plant.Reply(codec.ResponseUpdateStopLevel)); err != nil {
			return err
		}
	}
	return nil
}

func (p *Plant) modifyMain(ctx context.Context, acct model.Account, o model.OrderNotification, m Modification) error {
	qty := o.Quantity
	if m.Quantity > 0 {
		qty = m.Quantity
	}

	req := p.clearing(codec.RequestModifyOrder, acct).
		With("basket_id", o.BasketID).
		With("symbol", o.Symbol).
		With("exchange", o.Exchange).
		With("quantity", qty).
		With("price_type", int(o.PriceType)).
		With("manual_or_auto", manualOrAutoAuto)

	switch o.PriceType {
	case model.PriceLimit, model.PriceStopLimit:
		price := o.Price
		if m.Price.Valid {
			price = m.Price.Decimal
		}
		req = req.With("price", price)
	}
	switch o.PriceType {
	case model.PriceStopMarket, model.PriceStopLimit:
		trigger := o.TriggerPrice
		if m.TriggerPrice.Valid {
			trigger = m.TriggerPrice.Decimal
		}
		req = req.With("trigger_price", trigger)
	}

	_, err := p.Request(ctx, req, plant.Reply(codec.ResponseModifyOrder))
	return err
}

// ListBrackets returns the target legs of the account's open brackets.
func (p *Plant) ListBrackets(ctx context.Context, accountID string) ([]model.BracketLevel, error) {
	acct, err := p.account(accountID, "list brackets")
	if err != nil {
		return nil, err
	}
	frames, err := p.Collect(ctx, p.clearing(codec.RequestShowBrackets, acct), plant.Reply(codec.ResponseShowBrackets))
	if err != nil {
		return nil, err
	}
	out := make([]model.BracketLevel, 0, len(frames))
	for _, f := range frames {
		out = append(out, model.TargetLevelFromFrame(f))
	}
	return out, nil
}

// ListBracketStops returns the stop legs of the account's open brackets.
func (p *Plant) ListBracketStops(ctx context.Context, accountID string) ([]model.BracketLevel, error) {
	acct, err := p.account(accountID, "list bracket stops")
	if err != nil {
		return nil, err
	}
	frames, err := p.Collect(ctx, p.clearing(codec.RequestShowBracketStops, acct), plant.Reply(codec.ResponseShowBracketStops))
	if err != nil {
		return nil, err
	}
	out := make([]model.BracketLevel, 0, len(frames))
	for _, f := range frames {
		out = append(out, model.StopLevelFromFrame(f))
	}
	return out, nil
}

func levelFor(levels []model.BracketLevel, basketID string) (model.BracketLevel, bool) {
	for _, l := range levels {
		if l.BasketID == basketID {
			return l, true
		}
	}
	return model.BracketLevel{}, false
}
