package model

import (
	"time"

	"github.com/rickgao/plantclient/internal/codec"
)

// Timestamp builds a UTC time from a seconds field and an optional
// microseconds field. It returns the zero time when the seconds field is
// missing.
func Timestamp(f codec.Frame, secondsKey, usecsKey string) time.Time {
	secs, ok := f.Int(secondsKey)
	if !ok {
		return time.Time{}
	}
	var usecs int64
	if usecsKey != "" {
		usecs, _ = f.Int(usecsKey)
	}
	return time.Unix(secs, usecs*int64(time.Microsecond)).UTC()
}

// BarEndTime converts a bar's integer marker to its end time.
func BarEndTime(marker int64) time.Time {
	return time.Unix(marker, 0).UTC()
}

func integer(f codec.Frame, key string) int64 {
	n, _ := f.Int(key)
	return n
}

func side(f codec.Frame, key string) Side {
	switch f.String(key) {
	case "1", "BUY", "B":
		return Buy
	case "2", "SELL", "S":
		return Sell
	}
	return SideUnknown
}

// TickFromFrame converts a last trade (150).
func TickFromFrame(f codec.Frame) Tick {
	return Tick{
		Symbol:    f.String("symbol"),
		Exchange:  f.String("exchange"),
		Price:     f.Decimal("trade_price"),
		Size:      integer(f, "trade_size"),
		Aggressor: side(f, "aggressor"),
		Volume:    integer(f, "volume"),
		Time:      Timestamp(f, "ssboe", "usecs"),
	}
}

// BestBidOfferFromFrame converts a top-of-book update (151).
func BestBidOfferFromFrame(f codec.Frame) BestBidOffer {
	return BestBidOffer{
		Symbol:   f.String("symbol"),
		Exchange: f.String("exchange"),
		BidPrice: f.Decimal("bid_price"),
		BidSize:  integer(f, "bid_size"),
		AskPrice: f.Decimal("ask_price"),
		AskSize:  integer(f, "ask_size"),
		Time:     Timestamp(f, "ssboe", "usecs"),
	}
}

// ExchangeFromFrame converts a list-exchanges response (343).
func ExchangeFromFrame(f codec.Frame) Exchange {
	return Exchange{
		Code:     f.String("exchange"),
		Entitled: f.String("entitlement_flag") == "1" || f.Bool("entitlement_flag"),
	}
}

// InstrumentFromFrame converts a symbol search result (110).
func InstrumentFromFrame(f codec.Frame) Instrument {
	return Instrument{
		Symbol:         f.String("symbol"),
		Exchange:       f.String("exchange"),
		Name:           f.String("symbol_name"),
		ProductCode:    f.String("product_code"),
		InstrumentType: f.String("instrument_type"),
		Expiration:     f.String("expiration_date"),
	}
}

// FrontMonthFromFrame converts a front month response (114).
func FrontMonthFromFrame(f codec.Frame) FrontMonth {
	return FrontMonth{
		Symbol:          f.String("symbol"),
		Exchange:        f.String("exchange"),
		TradingSymbol:   f.String("trading_symbol"),
		TradingExchange: f.String("trading_exchange"),
	}
}

// BarFromFrame converts a replayed (203) or live (250) time bar.
func BarFromFrame(f codec.Frame) Bar {
	return Bar{
		Symbol:    f.String("symbol"),
		Exchange:  f.String("exchange"),
		Type:      BarType(integer(f, "type")),
		Period:    int(integer(f, "period")),
		EndTime:   BarEndTime(integer(f, "marker")),
		Open:      f.Decimal("open_price"),
		High:      f.Decimal("high_price"),
		Low:       f.Decimal("low_price"),
		Close:     f.Decimal("close_price"),
		Volume:    integer(f, "volume"),
		BidVolume: integer(f, "bid_volume"),
		AskVolume: integer(f, "ask_volume"),
		NumTrades: integer(f, "num_trades"),
	}
}

// HistoricalTickFromFrame converts a tick replay frame (207).
func HistoricalTickFromFrame(f codec.Frame) HistoricalTick {
	return HistoricalTick{
		Symbol:    f.String("symbol"),
		Exchange:  f.String("exchange"),
		Time:      Timestamp(f, "data_bar_ssboe", "data_bar_usecs"),
		Price:     f.Decimal("close_price"),
		Volume:    integer(f, "volume"),
		BidVolume: integer(f, "bid_volume"),
		AskVolume: integer(f, "ask_volume"),
	}
}

// LoginInfoFromFrame converts a login info response (301).
func LoginInfoFromFrame(f codec.Frame) LoginInfo {
	return LoginInfo{
		FCMID:    f.String("fcm_id"),
		IBID:     f.String("ib_id"),
		UserType: integer(f, "user_type"),
	}
}

// AccountFromFrame converts an account list entry (303).
func AccountFromFrame(f codec.Frame) Account {
	return Account{
		ID:       f.String("account_id"),
		Name:     f.String("account_name"),
		FCMID:    f.String("fcm_id"),
		IBID:     f.String("ib_id"),
		Currency: f.String("account_currency"),
	}
}

// TradeRouteFromFrame converts a trade route entry (311).
func TradeRouteFromFrame(f codec.Frame) TradeRoute {
	return TradeRoute{
		FCMID:    f.String("fcm_id"),
		IBID:     f.String("ib_id"),
		Exchange: f.String("exchange"),
		Route:    f.String("trade_route"),
		Status:   f.String("status"),
		Default:  f.Bool("is_default"),
	}
}

// OrderNotificationFromFrame converts an order notification (351).
func OrderNotificationFromFrame(f codec.Frame) OrderNotification {
	return OrderNotification{
		BasketID:         f.String("basket_id"),
		UserTag:          f.String("user_tag"),
		AccountID:        f.String("account_id"),
		Symbol:           f.String("symbol"),
		Exchange:         f.String("exchange"),
		Side:             side(f, "transaction_type"),
		PriceType:        PriceType(integer(f, "price_type")),
		Quantity:         integer(f, "quantity"),
		FilledQuantity:   integer(f, "total_fill_size"),
		Price:            f.Decimal("price"),
		TriggerPrice:     f.Decimal("trigger_price"),
		AvgFillPrice:     f.Decimal("avg_fill_price"),
		Status:           f.String("status"),
		NotifyType:       f.String("notify_type"),
		CompletionReason: f.String("completion_reason"),
		Snapshot:         f.Bool("is_snapshot"),
		Time:             Timestamp(f, "ssboe", "usecs"),
	}
}

// ExchangeOrderNotificationFromFrame converts an exchange notification (352).
func ExchangeOrderNotificationFromFrame(f codec.Frame) ExchangeOrderNotification {
	return ExchangeOrderNotification{
		BasketID:   f.String("basket_id"),
		UserTag:    f.String("user_tag"),
		AccountID:  f.String("account_id"),
		Symbol:     f.String("symbol"),
		Exchange:   f.String("exchange"),
		Side:       side(f, "transaction_type"),
		NotifyType: f.String("notify_type"),
		Status:     f.String("status"),
		Text:       f.String("text"),
		FillPrice:  f.Decimal("fill_price"),
		FillSize:   integer(f, "fill_size"),
		Snapshot:   f.Bool("is_snapshot"),
		Time:       Timestamp(f, "ssboe", "usecs"),
	}
}

// BracketUpdateFromFrame converts a bracket update (353).
func BracketUpdateFromFrame(f codec.Frame) BracketUpdate {
	return BracketUpdate{
		BasketID:       f.String("basket_id"),
		StopTicks:      integer(f, "stop_ticks"),
		StopQuantity:   integer(f, "stop_quantity"),
		TargetTicks:    integer(f, "target_ticks"),
		TargetQuantity: integer(f, "target_quantity"),
	}
}

// TargetLevelFromFrame converts a show-brackets entry (339).
func TargetLevelFromFrame(f codec.Frame) BracketLevel {
	return BracketLevel{
		BasketID: f.String("basket_id"),
		Ticks:    integer(f, "target_ticks"),
		Quantity: integer(f, "target_quantity"),
	}
}

// StopLevelFromFrame converts a show-bracket-stops entry (341).
func StopLevelFromFrame(f codec.Frame) BracketLevel {
	return BracketLevel{
		BasketID: f.String("basket_id"),
		Ticks:    integer(f, "stop_ticks"),
		Quantity: integer(f, "stop_quantity"),
	}
}

// InstrumentPnLFromFrame converts an instrument PnL update (450).
func InstrumentPnLFromFrame(f codec.Frame) InstrumentPnL {
	return InstrumentPnL{
		AccountID:        f.String("account_id"),
		Symbol:           f.String("symbol"),
		Exchange:         f.String("exchange"),
		NetQuantity:      integer(f, "net_quantity"),
		BuyQuantity:      integer(f, "fill_buy_qty"),
		SellQuantity:     integer(f, "fill_sell_qty"),
		AvgOpenFillPrice: f.Decimal("avg_open_fill_price"),
		OpenPnL:          f.Decimal("open_position_pnl"),
		ClosedPnL:        f.Decimal("closed_position_pnl"),
		DayPnL:           f.Decimal("day_pnl"),
		Snapshot:         f.Bool("is_snapshot"),
		Time:             Timestamp(f, "ssboe", "usecs"),
	}
}

// AccountPnLFromFrame converts an account PnL update (451).
func AccountPnLFromFrame(f codec.Frame) AccountPnL {
	return AccountPnL{
		AccountID:         f.String("account_id"),
		Balance:           f.Decimal("account_balance"),
		CashOnHand:        f.Decimal("cash_on_hand"),
		MarginBalance:     f.Decimal("margin_balance"),
		MinAccountBalance: f.Decimal("min_account_balance"),
		OpenPnL:           f.Decimal("open_position_pnl"),
		ClosedPnL:         f.Decimal("closed_position_pnl"),
		DayPnL:            f.Decimal("day_pnl"),
		Snapshot:          f.Bool("is_snapshot"),
		Time:              Timestamp(f, "ssboe", "usecs"),
	}
}
