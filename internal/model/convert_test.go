package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rickgao/plantclient/internal/codec"
)

// roundTrip passes f through the wire codec so conversions see decoded types.
func roundTrip(t *testing.T, f codec.Frame) codec.Frame {
	t.Helper()
	c := codec.NewProtoCodec()
	data, err := c.Encode(f)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	out, err := c.Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	return out
}

func TestTimestamp(t *testing.T) {
	tests := []struct {
		name string
		f    codec.Frame
		want time.Time
	}{
		{"missing", codec.NewFrame(150), time.Time{}},
		{"seconds", codec.NewFrame(150).With("ssboe", 1700000000), time.Unix(1700000000, 0).UTC()},
		{"micros", codec.NewFrame(150).With("ssboe", 1700000000).With("usecs", 250000), time.Unix(1700000000, 250000000).UTC()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Timestamp(roundTrip(t, tt.f), "ssboe", "usecs")
			if !got.Equal(tt.want) {
				t.Errorf("Timestamp = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBarFromFrame(t *testing.T) {
	f := roundTrip(t, codec.NewFrame(codec.ResponseTimeBarReplay).
		With("symbol", "ESZ6").
		With("exchange", "CME").
		With("type", int(MinuteBar)).
		With("period", 5).
		With("marker", 1760000000).
		With("open_price", 6000.25).
		With("high_price", 6010.5).
		With("low_price", 5995).
		With("close_price", 6005.75).
		With("volume", 1234).
		With("num_trades", 321))

	bar := BarFromFrame(f)

	if bar.Symbol != "ESZ6" || bar.Exchange != "CME" {
		t.Errorf("symbol/exchange = %s/%s", bar.Symbol, bar.Exchange)
	}
	if bar.Type != MinuteBar || bar.Period != 5 {
		t.Errorf("type/period = %v/%d, want minute/5", bar.Type, bar.Period)
	}
	if want := time.Date(2025, 10, 9, 8, 53, 20, 0, time.UTC); !bar.EndTime.Equal(want) {
		t.Errorf("EndTime = %v, want %v", bar.EndTime, want)
	}
	if !bar.High.Equal(decimal.RequireFromString("6010.5")) {
		t.Errorf("High = %s, want 6010.5", bar.High)
	}
	if bar.Volume != 1234 || bar.NumTrades != 321 {
		t.Errorf("volume/trades = %d/%d", bar.Volume, bar.NumTrades)
	}
}

func TestTickFromFrame(t *testing.T) {
	f := roundTrip(t, codec.NewFrame(codec.LastTrade).
		With("symbol", "NQZ6").
		With("exchange", "CME").
		With("trade_price", "21000.25").
		With("trade_size", 3).
		With("aggressor", 2).
		With("ssboe", 1700000000))

	tick := TickFromFrame(f)
	if !tick.Price.Equal(decimal.RequireFromString("21000.25")) {
		t.Errorf("Price = %s", tick.Price)
	}
	if tick.Size != 3 {
		t.Errorf("Size = %d, want 3", tick.Size)
	}
	if tick.Aggressor != Sell {
		t.Errorf("Aggressor = %v, want SELL", tick.Aggressor)
	}
}

func TestOrderNotification_Open(t *testing.T) {
	tests := []struct {
		status, reason string
		want           bool
	}{
		{"open", "", true},
		{"partially filled", "", true},
		{"complete", "", false},
		{"cancelled", "", false},
		{"open", "Fill", false},
	}

	for _, tt := range tests {
		o := OrderNotification{Status: tt.status, CompletionReason: tt.reason}
		if got := o.Open(); got != tt.want {
			t.Errorf("Open(%q, %q) = %v, want %v", tt.status, tt.reason, got, tt.want)
		}
	}
}

func TestParseBarType(t *testing.T) {
	for _, b := range []BarType{SecondBar, MinuteBar, DailyBar, WeeklyBar} {
		got, ok := ParseBarType(b.String())
		if !ok || got != b {
			t.Errorf("ParseBarType(%q) = %v, %v", b.String(), got, ok)
		}
	}
	if _, ok := ParseBarType("hourly"); ok {
		t.Error("ParseBarType accepted hourly")
	}
}
