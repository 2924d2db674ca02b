package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// -----------------------------------------------------------------------------
// Enumerations
// -----------------------------------------------------------------------------

// Side is the direction of a trade or order.
type Side int

const (
	SideUnknown Side = 0
	Buy         Side = 1
	Sell        Side = 2
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// BarType is the aggregation unit of a time bar.
type BarType int

const (
	SecondBar BarType = 1
	MinuteBar BarType = 2
	DailyBar  BarType = 3
	WeeklyBar BarType = 4
)

func (b BarType) String() string {
	switch b {
	case SecondBar:
		return "second"
	case MinuteBar:
		return "minute"
	case DailyBar:
		return "daily"
	case WeeklyBar:
		return "weekly"
	default:
		return "unknown"
	}
}

// ParseBarType accepts the names returned by String.
func ParseBarType(s string) (BarType, bool) {
	for _, b := range []BarType{SecondBar, MinuteBar, DailyBar, WeeklyBar} {
		if b.String() == s {
			return b, true
		}
	}
	return 0, false
}

// UpdateBits selects market data streams.
type UpdateBits int

const (
	LastTradeBits UpdateBits = 1
	BBOBits       UpdateBits = 2
)

// PriceType is the venue's order price type.
type PriceType int

const (
	PriceLimit      PriceType = 1
	PriceMarket     PriceType = 2
	PriceStopLimit  PriceType = 3
	PriceStopMarket PriceType = 4
)

func (p PriceType) String() string {
	switch p {
	case PriceLimit:
		return "LIMIT"
	case PriceMarket:
		return "MARKET"
	case PriceStopLimit:
		return "STOP_LIMIT"
	case PriceStopMarket:
		return "STOP_MARKET"
	default:
		return "UNKNOWN"
	}
}

// -----------------------------------------------------------------------------
// Market data
// -----------------------------------------------------------------------------

// Tick is one last-trade update.
type Tick struct {
	Symbol    string
	Exchange  string
	Price     decimal.Decimal
	Size      int64
	Aggressor Side
	Volume    int64 // Cumulative session volume, 0 if not sent
	Time      time.Time
}

// BestBidOffer is a top-of-book update.
type BestBidOffer struct {
	Symbol   string
	Exchange string
	BidPrice decimal.Decimal
	BidSize  int64
	AskPrice decimal.Decimal
	AskSize  int64
	Time     time.Time
}

// Exchange is one venue the user can see.
type Exchange struct {
	Code     string
	Entitled bool
}

// Instrument is a symbol search result.
type Instrument struct {
	Symbol         string
	Exchange       string
	Name           string
	ProductCode    string
	InstrumentType string
	Expiration     string
}

// FrontMonth resolves a product to its current contract.
type FrontMonth struct {
	Symbol          string // Product requested (e.g. "ES")
	Exchange        string
	TradingSymbol   string // Contract (e.g. "ESZ6")
	TradingExchange string
}

// -----------------------------------------------------------------------------
// History
// -----------------------------------------------------------------------------

// Bar is a historical or live time bar.
type Bar struct {
	Symbol    string
	Exchange  string
	Type      BarType
	Period    int
	EndTime   time.Time // bar_end_datetime
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    int64
	BidVolume int64
	AskVolume int64
	NumTrades int64
}

// HistoricalTick is one tick from a tick replay.
type HistoricalTick struct {
	Symbol    string
	Exchange  string
	Time      time.Time
	Price     decimal.Decimal
	Volume    int64
	BidVolume int64
	AskVolume int64
}

// -----------------------------------------------------------------------------
// Orders
// -----------------------------------------------------------------------------

// LoginInfo identifies the user's clearing relationship.
type LoginInfo struct {
	FCMID    string
	IBID     string
	UserType int64
}

// Account is a trading account.
type Account struct {
	ID       string
	Name     string
	FCMID    string
	IBID     string
	Currency string
}

// TradeRoute is an order route available for an exchange.
type TradeRoute struct {
	FCMID    string
	IBID     string
	Exchange string
	Route    string
	Status   string
	Default  bool
}

// OrderNotification is the venue's view of an order (template 351).
type OrderNotification struct {
	BasketID         string
	UserTag          string // Caller-chosen order id
	AccountID        string
	Symbol           string
	Exchange         string
	Side             Side
	PriceType        PriceType
	Quantity         int64
	FilledQuantity   int64
	Price            decimal.Decimal
	TriggerPrice     decimal.Decimal
	AvgFillPrice     decimal.Decimal
	Status           string
	NotifyType       string
	CompletionReason string
	Snapshot         bool
	Time             time.Time
}

// Open reports whether the order can still be modified or canceled.
func (o OrderNotification) Open() bool {
	switch o.Status {
	case "complete", "cancelled", "canceled", "rejected":
		return false
	}
	return o.CompletionReason == ""
}

// ExchangeOrderNotification is an exchange-side event such as a fill (352).
type ExchangeOrderNotification struct {
	BasketID   string
	UserTag    string
	AccountID  string
	Symbol     string
	Exchange   string
	Side       Side
	NotifyType string
	Status     string
	Text       string
	FillPrice  decimal.Decimal
	FillSize   int64
	Snapshot   bool
	Time       time.Time
}

// BracketUpdate reports changed stop/target legs (353).
type BracketUpdate struct {
	BasketID       string
	StopTicks      int64
	StopQuantity   int64
	TargetTicks    int64
	TargetQuantity int64
}

// BracketLevel is one leg of an open bracket as shown by the venue.
type BracketLevel struct {
	BasketID string
	Ticks    int64
	Quantity int64
}

// -----------------------------------------------------------------------------
// PnL
// -----------------------------------------------------------------------------

// InstrumentPnL is a per-symbol position and PnL update (450).
type InstrumentPnL struct {
	AccountID        string
	Symbol           string
	Exchange         string
	NetQuantity      int64
	BuyQuantity      int64
	SellQuantity     int64
	AvgOpenFillPrice decimal.Decimal
	OpenPnL          decimal.Decimal
	ClosedPnL        decimal.Decimal
	DayPnL           decimal.Decimal
	Snapshot         bool
	Time             time.Time
}

// AccountPnL is an account balance and PnL update (451).
type AccountPnL struct {
	AccountID         string
	Balance           decimal.Decimal
	CashOnHand        decimal.Decimal
	MarginBalance     decimal.Decimal
	MinAccountBalance decimal.Decimal
	OpenPnL           decimal.Decimal
	ClosedPnL         decimal.Decimal
	DayPnL            decimal.Decimal
	Snapshot          bool
	Time              time.Time
}
