package order

import (
	"github.com/shopspring/decimal"

	"github.com/rickgao/plantclient/internal/model"
	"github.com/rickgao/plantclient/internal/plant"
)

// Duration is an order's time in force.
type Duration int

const (
	Day               Duration = 1
	GoodTillCancel    Duration = 2
	ImmediateOrCancel Duration = 3
	FillOrKill        Duration = 4
)

// Type selects the order variant in an OrderRequest.
type Type string

const (
	Market     Type = "MARKET"
	Limit      Type = "LIMIT"
	StopMarket Type = "STOP_MARKET"
	StopLimit  Type = "STOP_LIMIT"
)

// Bracket types understood by the venue. Static brackets keep fixed tick
// offsets from the fill price.
const (
	bracketStopOnly      = 4
	bracketTargetOnly    = 5
	bracketTargetAndStop = 6
)

// OrderRequest is the flat form of an order. NewOrder turns it into one of
// the Order variants.
type OrderRequest struct {
	OrderID      string // Caller tag; generated when empty
	AccountID    string // May be empty when the user has one account
	Symbol       string
	Exchange     string
	Quantity     int64
	Side         model.Side
	Type         Type
	Duration     Duration
	Price        decimal.NullDecimal // Limit price
	TriggerPrice decimal.NullDecimal // Stop trigger
	StopTicks    int64               // Bracket stop leg, ticks from entry
	TargetTicks  int64               // Bracket target leg, ticks from entry
}

// Common holds the fields every order variant shares.
type Common struct {
	OrderID   string
	AccountID string
	Symbol    string
	Exchange  string
	Quantity  int64
	Side      model.Side
	Duration  Duration
}

// Order is one of MarketOrder, LimitOrder, StopOrder or BracketOrder.
type Order interface {
	common() Common
	priceType() model.PriceType
	Validate() error
}

// MarketOrder executes at the best available price.
type MarketOrder struct {
	Common
}

// LimitOrder rests at Price.
type LimitOrder struct {
	Common
	Price decimal.Decimal
}

// StopOrder triggers at Trigger, then works as a market order or, when
// Limit is set, as a limit order.
type StopOrder struct {
	Common
	Trigger decimal.Decimal
	Limit   decimal.NullDecimal
}

// BracketOrder enters at market or at Price and attaches stop and/or
// target legs.
type BracketOrder struct {
	Common
	Price       decimal.NullDecimal
	StopTicks   int64
	TargetTicks int64
}

func (o MarketOrder) common() Common  { return o.Common }
func (o LimitOrder) common() Common   { return o.Common }
func (o StopOrder) common() Common    { return o.Common }
func (o BracketOrder) common() Common { return o.Common }

func (MarketOrder) priceType() model.PriceType { return model.PriceMarket }
func (LimitOrder) priceType() model.PriceType  { return model.PriceLimit }

func (o StopOrder) priceType() model.PriceType {
	if o.Limit.Valid {
		return model.PriceStopLimit
	}
	return model.PriceStopMarket
}

func (o BracketOrder) priceType() model.PriceType {
	if o.Price.Valid {
		return model.PriceLimit
	}
	return model.PriceMarket
}

func (o MarketOrder) Validate() error {
	return o.Common.validate()
}

func (o LimitOrder) Validate() error {
	if err := o.Common.validate(); err != nil {
		return err
	}
	if !o.Price.IsPositive() {
		return plant.Invalid("submit order", "limit order requires a positive price")
	}
	return nil
}

func (o StopOrder) Validate() error {
	if err := o.Common.validate(); err != nil {
		return err
	}
	if !o.Trigger.IsPositive() {
		return plant.Invalid("submit order", "stop order requires a positive trigger price")
	}
	if o.Limit.Valid && !o.Limit.Decimal.IsPositive() {
		return plant.Invalid("submit order", "stop limit price must be positive")
	}
	return nil
}

func (o BracketOrder) Validate() error {
	if err := o.Common.validate(); err != nil {
		return err
	}
	if o.Price.Valid && !o.Price.Decimal.IsPositive() {
		return plant.Invalid("submit order", "bracket entry price must be positive")
	}
	if o.StopTicks < 0 || o.TargetTicks < 0 {
		return plant.Invalid("submit order", "bracket ticks cannot be negative")
	}
	if o.StopTicks == 0 && o.TargetTicks == 0 {
		return plant.Invalid("submit order", "bracket order requires stop or target ticks")
	}
	return nil
}

func (o BracketOrder) bracketType() int {
	switch {
	case o.StopTicks > 0 && o.TargetTicks > 0:
		return bracketTargetAndStop
	case o.StopTicks > 0:
		return bracketStopOnly
	default:
		return bracketTargetOnly
	}
}

func (c Common) validate() error {
	if c.Symbol == "" || c.Exchange == "" {
		return plant.Invalid("submit order", "symbol and exchange are required")
	}
	if c.Quantity <= 0 {
		return plant.Invalid("submit order", "quantity must be positive, got %d", c.Quantity)
	}
	if c.Side != model.Buy && c.Side != model.Sell {
		return plant.Invalid("submit order", "side must be BUY or SELL")
	}
	if c.Duration < 0 || c.Duration > FillOrKill {
		return plant.Invalid("submit order", "unknown duration %d", int(c.Duration))
	}
	return nil
}

// NewOrder selects and validates the variant req describes. Bracket ticks
// make a bracket order whose entry is market or limit.
func NewOrder(req OrderRequest) (Order, error) {
	c := Common{
		OrderID:   req.OrderID,
		AccountID: req.AccountID,
		Symbol:    req.Symbol,
		Exchange:  req.Exchange,
		Quantity:  req.Quantity,
		Side:      req.Side,
		Duration:  req.Duration,
	}

	var o Order
	switch {
	case req.StopTicks != 0 || req.TargetTicks != 0:
		b := BracketOrder{Common: c, StopTicks: req.StopTicks, TargetTicks: req.TargetTicks}
		switch req.Type {
		case Market:
		case Limit:
			if !req.Price.Valid {
				return nil, plant.Invalid("submit order", "limit bracket order requires a price")
			}
			b.Price = req.Price
		default:
			return nil, plant.Invalid("submit order", "bracket entry must be MARKET or LIMIT, got %q", req.Type)
		}
		o = b

	case req.Type == Market:
		if req.Price.Valid || req.TriggerPrice.Valid {
			return nil, plant.Invalid("submit order", "market order takes no price")
		}
		o = MarketOrder{Common: c}

	case req.Type == Limit:
		if !req.Price.Valid {
			return nil, plant.Invalid("submit order", "limit order requires a price")
		}
		o = LimitOrder{Common: c, Price: req.Price.Decimal}

	case req.Type == StopMarket:
		if !req.TriggerPrice.Valid {
			return nil, plant.Invalid("submit order", "stop order requires a trigger price")
		}
		o = StopOrder{Common: c, Trigger: req.TriggerPrice.Decimal}

	case req.Type == StopLimit:
		if !req.TriggerPrice.Valid || !req.Price.Valid {
			return nil, plant.Invalid("submit order", "stop limit order requires a trigger price and a price")
		}
		o = StopOrder{Common: c, Trigger: req.TriggerPrice.Decimal, Limit: req.Price}

	case req.Type == "":
		return nil, plant.Invalid("submit order", "order type is required")

	default:
		return nil, plant.Invalid("submit order", "unknown order type %q", req.Type)
	}

	if err := o.Validate(); err != nil {
		return nil, err
	}
	return o, nil
}
