package order

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/rickgao/plantclient/internal/model"
	"github.com/rickgao/plantclient/internal/plant"
)

func price(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func TestNewOrder(t *testing.T) {
	base := OrderRequest{Symbol: "ESZ6", Exchange: "CME", Quantity: 1, Side: model.Buy}
	with := func(f func(*OrderRequest)) OrderRequest {
		r := base
		f(&r)
		return r
	}

	tests := []struct {
		name    string
		req     OrderRequest
		want    model.PriceType
		wantErr bool
	}{
		{"market", with(func(r *OrderRequest) { r.Type = Market }), model.PriceMarket, false},
		{"limit", with(func(r *OrderRequest) { r.Type = Limit; r.Price = price("6000.25") }), model.PriceLimit, false},
		{"limit without price", with(func(r *OrderRequest) { r.Type = Limit }), 0, true},
		{"limit with zero price", with(func(r *OrderRequest) { r.Type = Limit; r.Price = price("0") }), 0, true},
		{"market with price", with(func(r *OrderRequest) { r.Type = Market; r.Price = price("1") }), 0, true},
		{"stop market", with(func(r *OrderRequest) { r.Type = StopMarket; r.TriggerPrice = price("5990") }), model.PriceStopMarket, false},
		{"stop without trigger", with(func(r *OrderRequest) { r.Type = StopMarket }), 0, true},
		{"stop limit", with(func(r *OrderRequest) { r.Type = StopLimit; r.TriggerPrice = price("5990"); r.Price = price("5989") }), model.PriceStopLimit, false},
		{"stop limit without price", with(func(r *OrderRequest) { r.Type = StopLimit; r.TriggerPrice = price("5990") }), 0, true},
		{"bracket market", with(func(r *OrderRequest) { r.Type = Market; r.StopTicks = 8; r.TargetTicks = 16 }), model.PriceMarket, false},
		{"bracket limit", with(func(r *OrderRequest) { r.Type = Limit; r.Price = price("6000"); r.TargetTicks = 16 }), model.PriceLimit, false},
		{"bracket limit without price", with(func(r *OrderRequest) { r.Type = Limit; r.StopTicks = 8 }), 0, true},
		{"bracket stop entry", with(func(r *OrderRequest) { r.Type = StopMarket; r.StopTicks = 8 }), 0, true},
		{"bracket negative ticks", with(func(r *OrderRequest) { r.Type = Market; r.StopTicks = -1 }), 0, true},
		{"no type", base, 0, true},
		{"unknown type", with(func(r *OrderRequest) { r.Type = "ICEBERG" }), 0, true},
		{"no quantity", with(func(r *OrderRequest) { r.Type = Market; r.Quantity = 0 }), 0, true},
		{"no side", with(func(r *OrderRequest) { r.Type = Market; r.Side = model.SideUnknown }), 0, true},
		{"no symbol", with(func(r *OrderRequest) { r.Type = Market; r.Symbol = "" }), 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, err := NewOrder(tt.req)
			if tt.wantErr {
				if !errors.Is(err, plant.ErrInvalidRequest) {
					t.Fatalf("err = %v, want ErrInvalidRequest", err)
				}
				var invalid *plant.InvalidRequestError
				if !errors.As(err, &invalid) || invalid.Op != "submit order" {
					t.Errorf("err = %#v, want InvalidRequestError for submit order", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewOrder failed: %v", err)
			}
			if got := o.priceType(); got != tt.want {
				t.Errorf("price type = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewOrder_Variants(t *testing.T) {
	o, err := NewOrder(OrderRequest{Symbol: "ESZ6", Exchange: "CME", Quantity: 2, Side: model.Sell, Type: Market, StopTicks: 8})
	if err != nil {
		t.Fatal(err)
	}
	b, ok := o.(BracketOrder)
	if !ok {
		t.Fatalf("got %T, want BracketOrder", o)
	}
	if b.bracketType() != bracketStopOnly {
		t.Errorf("bracketType = %d, want stop only", b.bracketType())
	}

	o, err = NewOrder(OrderRequest{Symbol: "ESZ6", Exchange: "CME", Quantity: 2, Side: model.Sell, Type: StopLimit, TriggerPrice: price("5990"), Price: price("5989.75")})
	if err != nil {
		t.Fatal(err)
	}
	s, ok := o.(StopOrder)
	if !ok {
		t.Fatalf("got %T, want StopOrder", o)
	}
	if !s.Limit.Valid || s.Limit.Decimal.String() != "5989.75" {
		t.Errorf("Limit = %v", s.Limit)
	}
}
