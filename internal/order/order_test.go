package order

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rickgao/plantclient/internal/codec"
	"github.com/rickgao/plantclient/internal/model"
	"github.com/rickgao/plantclient/internal/plant"
	"github.com/rickgao/plantclient/internal/transport/transporttest"
)

// scriptMetadata makes the venue answer the login-time metadata requests.
func scriptMetadata(v *transporttest.Venue, accounts ...string) {
	v.Respond(codec.RequestLoginInfo, func(req codec.Frame) []codec.Frame {
		return []codec.Frame{transporttest.Done(req, codec.ResponseLoginInfo).
			With("fcm_id", "FCM").
			With("ib_id", "IB").
			With("user_type", 3)}
	})
	v.Respond(codec.RequestAccountList, func(req codec.Frame) []codec.Frame {
		var out []codec.Frame
		for _, a := range accounts {
			out = append(out, transporttest.Data(req, codec.ResponseAccountList).
				With("account_id", a).
				With("fcm_id", "FCM").
				With("ib_id", "IB"))
		}
		return append(out, transporttest.Done(req, codec.ResponseAccountList))
	})
	v.Respond(codec.RequestTradeRoutes, func(req codec.Frame) []codec.Frame {
		return []codec.Frame{
			transporttest.Data(req, codec.ResponseTradeRoutes).With("exchange", "CME").With("trade_route", "backup"),
			transporttest.Data(req, codec.ResponseTradeRoutes).With("exchange", "CME").With("trade_route", "primary").With("is_default", true),
			transporttest.Done(req, codec.ResponseTradeRoutes),
		}
	})
}

func newTestPlant(t *testing.T, v *transporttest.Venue) *Plant {
	t.Helper()
	cfg := plant.DefaultConfig(plant.OrderPlant)
	cfg.ListenInterval = 20 * time.Millisecond
	cfg.ResponseTimeout = time.Second

	p := New(plant.New(cfg, plant.Credentials{User: "u"}, v.Codec(), v, nil), Events{})
	ctx := context.Background()
	if err := p.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if err := p.Login(ctx); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	t.Cleanup(func() { p.Disconnect(context.Background()) })
	return p
}

// pushOrder streams an open order notification and waits until it is tracked.
func pushOrder(t *testing.T, v *transporttest.Venue, p *Plant, tag, basket string, pt model.PriceType) {
	t.Helper()
	seen := make(chan struct{})
	var once sync.Once
	unsub := p.Events().OrderNotification.Subscribe(func(_ context.Context, n model.OrderNotification) error {
		if n.BasketID == basket {
			once.Do(func() { close(seen) })
		}
		return nil
	})
	defer unsub()

	v.Push(codec.NewFrame(codec.RithmicOrderNotification).
		With("user_tag", tag).
		With("basket_id", basket).
		With("account_id", "A1").
		With("symbol", "ESZ6").
		With("exchange", "CME").
		With("quantity", 1).
		With("price_type", int(pt)).
		With("price", "6000").
		With("status", "open"))

	select {
	case <-seen:
	case <-time.After(2 * time.Second):
		t.Fatal("order notification not processed")
	}
}

func TestLogin_LoadsMetadata(t *testing.T) {
	v := transporttest.NewVenue()
	scriptMetadata(v, "A1", "A2")
	p := newTestPlant(t, v)

	if info := p.LoginInfo(); info.FCMID != "FCM" || info.IBID != "IB" || info.UserType != 3 {
		t.Errorf("LoginInfo = %+v", info)
	}
	if got := len(p.Accounts()); got != 2 {
		t.Errorf("accounts = %d, want 2", got)
	}
	if got := len(p.TradeRoutes()); got != 2 {
		t.Errorf("trade routes = %d, want 2", got)
	}
	if got := len(v.Sent(codec.RequestOrderUpdates)); got != 2 {
		t.Errorf("order update subscriptions = %d, want 2", got)
	}
	if got := len(v.Sent(codec.RequestBracketUpdates)); got != 2 {
		t.Errorf("bracket update subscriptions = %d, want 2", got)
	}
	if got := p.Subscriptions().Len(); got != 4 {
		t.Errorf("subscriptions = %d, want 4", got)
	}
}

func TestSubmitOrder(t *testing.T) {
	v := transporttest.NewVenue()
	scriptMetadata(v, "A1")
	v.Respond(codec.RequestNewOrder, func(req codec.Frame) []codec.Frame {
		return []codec.Frame{
			transporttest.Data(req, codec.ResponseNewOrder).With("basket_id", "B1"),
			transporttest.Done(req, codec.ResponseNewOrder),
		}
	})
	p := newTestPlant(t, v)

	ack, err := p.SubmitOrder(context.Background(), OrderRequest{
		OrderID:  "my-order",
		Symbol:   "ESZ6",
		Exchange: "CME",
		Quantity: 2,
		Side:     model.Buy,
		Type:     Limit,
		Price:    price("6000.25"),
	})
	if err != nil {
		t.Fatalf("SubmitOrder failed: %v", err)
	}
	if ack.OrderID != "my-order" || ack.BasketID != "B1" {
		t.Errorf("ack = %+v", ack)
	}

	req := v.Sent(codec.RequestNewOrder)[0]
	checks := map[string]string{
		"account_id":  "A1",
		"fcm_id":      "FCM",
		"trade_route": "primary",
		"user_tag":    "my-order",
		"price":       "6000.25",
	}
	for k, want := range checks {
		if got := req.String(k); got != want {
			t.Errorf("%s = %q, want %q", k, got, want)
		}
	}
	if got, _ := req.Int("price_type"); got != int64(model.PriceLimit) {
		t.Errorf("price_type = %d, want %d", got, model.PriceLimit)
	}
	if got, _ := req.Int("transaction_type"); got != int64(model.Buy) {
		t.Errorf("transaction_type = %d, want %d", got, model.Buy)
	}
}

func TestSubmitOrder_LimitWithoutPrice(t *testing.T) {
	v := transporttest.NewVenue()
	scriptMetadata(v, "A1")
	p := newTestPlant(t, v)
	before := len(v.Sent())

	_, err := p.SubmitOrder(context.Background(), OrderRequest{
		Symbol:   "ESZ6",
		Exchange: "CME",
		Quantity: 1,
		Side:     model.Buy,
		Type:     Limit,
	})
	var invalid *plant.InvalidRequestError
	if !errors.As(err, &invalid) {
		t.Fatalf("err = %v, want InvalidRequestError", err)
	}
	if got := len(v.Sent()); got != before {
		t.Errorf("sent %d frames after rejecting the order", got-before)
	}
}

func TestSubmitOrder_AccountSelection(t *testing.T) {
	v := transporttest.NewVenue()
	scriptMetadata(v, "A1", "A2")
	p := newTestPlant(t, v)

	req := OrderRequest{Symbol: "ESZ6", Exchange: "CME", Quantity: 1, Side: model.Sell, Type: Market}
	if _, err := p.SubmitOrder(context.Background(), req); !errors.Is(err, plant.ErrInvalidRequest) {
		t.Errorf("ambiguous account err = %v, want ErrInvalidRequest", err)
	}

	req.AccountID = "A9"
	if _, err := p.SubmitOrder(context.Background(), req); !errors.Is(err, plant.ErrInvalidRequest) {
		t.Errorf("unknown account err = %v, want ErrInvalidRequest", err)
	}

	req.AccountID = "A2"
	req.Exchange = "NYMEX"
	if _, err := p.SubmitOrder(context.Background(), req); !errors.Is(err, plant.ErrInvalidRequest) {
		t.Errorf("missing route err = %v, want ErrInvalidRequest", err)
	}

	if got := len(v.Sent(codec.RequestNewOrder)); got != 0 {
		t.Errorf("sent %d orders, want 0", got)
	}
}

func TestSubmitBracketOrder(t *testing.T) {
	v := transporttest.NewVenue()
	scriptMetadata(v, "A1")
	v.Respond(codec.RequestBracketOrder, func(req codec.Frame) []codec.Frame {
		return []codec.Frame{
			transporttest.Data(req, codec.ResponseBracketOrder).With("basket_id", "B7"),
			transporttest.Done(req, codec.ResponseBracketOrder),
		}
	})
	p := newTestPlant(t, v)

	ack, err := p.SubmitOrder(context.Background(), OrderRequest{
		Symbol: "ESZ6", Exchange: "CME", Quantity: 3, Side: model.Buy, Type: Market,
		StopTicks: 8, TargetTicks: 16,
	})
	if err != nil {
		t.Fatalf("SubmitOrder failed: %v", err)
	}
	if ack.BasketID != "B7" {
		t.Errorf("BasketID = %q, want B7", ack.BasketID)
	}

	req := v.Sent(codec.RequestBracketOrder)[0]
	for k, want := range map[string]int64{
		"bracket_type":    bracketTargetAndStop,
		"stop_ticks":      8,
		"target_ticks":    16,
		"stop_quantity":   3,
		"target_quantity": 3,
	} {
		if got, _ := req.Int(k); got != want {
			t.Errorf("%s = %d, want %d", k, got, want)
		}
	}
}

func TestCancelOrder(t *testing.T) {
	v := transporttest.NewVenue()
	scriptMetadata(v, "A1")
	v.Respond(codec.RequestCancelOrder, func(req codec.Frame) []codec.Frame {
		return []codec.Frame{transporttest.Done(req, codec.ResponseCancelOrder)}
	})
	v.Respond(codec.RequestShowOrders, func(req codec.Frame) []codec.Frame {
		return []codec.Frame{transporttest.Done(req, codec.ResponseShowOrders)}
	})
	p := newTestPlant(t, v)
	ctx := context.Background()

	// Unknown orders are looked up, then rejected without a cancel.
	if err := p.CancelOrder(ctx, "nope", ""); !errors.Is(err, plant.ErrInvalidRequest) {
		t.Errorf("unknown order err = %v, want ErrInvalidRequest", err)
	}
	if got := len(v.Sent(codec.RequestCancelOrder)); got != 0 {
		t.Fatalf("sent %d cancels for an unknown order", got)
	}

	pushOrder(t, v, p, "T1", "B1", model.PriceLimit)
	lookups := len(v.Sent(codec.RequestShowOrders))

	if err := p.CancelOrder(ctx, "T1", ""); err != nil {
		t.Fatalf("CancelOrder failed: %v", err)
	}
	cancels := v.Sent(codec.RequestCancelOrder)
	if len(cancels) != 1 || cancels[0].String("basket_id") != "B1" {
		t.Errorf("cancels = %#v", cancels)
	}
	if got := len(v.Sent(codec.RequestShowOrders)); got != lookups {
		t.Errorf("cached order was looked up again")
	}
}

func TestLockBasket_ReleasesEntries(t *testing.T) {
	p := New(plant.New(plant.DefaultConfig(plant.OrderPlant), plant.Credentials{}, nil, nil, nil), Events{})

	unlockA := p.lockBasket("B1")
	acquired := make(chan func())
	go func() { acquired <- p.lockBasket("B1") }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		p.editMu.Lock()
		refs := p.edits["B1"].refs
		p.editMu.Unlock()
		if refs == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("refs = %d, want 2", refs)
		}
		time.Sleep(5 * time.Millisecond)
	}

	unlockA()
	unlockB := <-acquired
	p.editMu.Lock()
	if n := len(p.edits); n != 1 {
		t.Errorf("locks while held = %d, want 1", n)
	}
	p.editMu.Unlock()

	unlockB()
	for _, id := range []string{"B2", "B3", "B4"} {
		p.lockBasket(id)()
	}
	p.editMu.Lock()
	defer p.editMu.Unlock()
	if n := len(p.edits); n != 0 {
		t.Errorf("locks after release = %d, want 0", n)
	}
}

func TestCancelOrder_LooksUpAfterReconnect(t *testing.T) {
	v := transporttest.NewVenue()
	scriptMetadata(v, "A1")
	v.Respond(codec.RequestCancelOrder, func(req codec.Frame) []codec.Frame {
		return []codec.Frame{transporttest.Done(req, codec.ResponseCancelOrder)}
	})
	v.Respond(codec.RequestShowOrders, func(req codec.Frame) []codec.Frame {
		return []codec.Frame{
			transporttest.Data(req, codec.RithmicOrderNotification).
				With("is_snapshot", true).
				With("basket_id", "B1").
				With("user_tag", "T1").
				With("account_id", "A1").
				With("status", "open"),
			transporttest.Done(req, codec.ResponseShowOrders),
		}
	})
	p := newTestPlant(t, v)
	ctx := context.Background()

	pushOrder(t, v, p, "T1", "B1", model.PriceLimit)

	v.Drop()
	deadline := time.Now().Add(5 * time.Second)
	for p.Reconnects() != 1 || p.State() != plant.StateLoggedIn {
		if time.Now().After(deadline) {
			t.Fatal("plant did not reconnect")
		}
		time.Sleep(5 * time.Millisecond)
	}

	lookups := len(v.Sent(codec.RequestShowOrders))
	if err := p.CancelOrder(ctx, "T1", ""); err != nil {
		t.Fatalf("CancelOrder failed: %v", err)
	}
	if got := len(v.Sent(codec.RequestShowOrders)); got != lookups+1 {
		t.Errorf("show orders sent %d times after reconnect, want 1", got-lookups)
	}
	cancels := v.Sent(codec.RequestCancelOrder)
	if len(cancels) != 1 || cancels[0].String("basket_id") != "B1" {
		t.Errorf("cancels = %#v", cancels)
	}
}

func TestListAndGetOrder(t *testing.T) {
	v := transporttest.NewVenue()
	scriptMetadata(v, "A1")
	v.Respond(codec.RequestShowOrders, func(req codec.Frame) []codec.Frame {
		return []codec.Frame{
			transporttest.Data(req, codec.RithmicOrderNotification).
				With("is_snapshot", true).With("basket_id", "B1").With("user_tag", "T1").With("status", "open"),
			transporttest.Data(req, codec.RithmicOrderNotification).
				With("is_snapshot", true).With("basket_id", "B2").With("status", "complete"),
			transporttest.Done(req, codec.ResponseShowOrders),
		}
	})
	p := newTestPlant(t, v)
	ctx := context.Background()

	orders, err := p.ListOrders(ctx, "")
	if err != nil {
		t.Fatalf("ListOrders failed: %v", err)
	}
	if len(orders) != 2 {
		t.Fatalf("got %d orders, want 2", len(orders))
	}

	o, err := p.GetOrder(ctx, "B2", "A1")
	if err != nil || o.BasketID != "B2" {
		t.Errorf("GetOrder(B2) = %+v, %v", o, err)
	}
	o, err = p.GetOrder(ctx, "T1", "")
	if err != nil || o.BasketID != "B1" {
		t.Errorf("GetOrder(T1) = %+v, %v", o, err)
	}
	if _, err := p.GetOrder(ctx, "T9", ""); !errors.Is(err, plant.ErrInvalidRequest) {
		t.Errorf("GetOrder(T9) err = %v, want ErrInvalidRequest", err)
	}
}

func scriptBrackets(v *transporttest.Venue, target, stop int64) {
	v.Respond(codec.RequestShowBrackets, func(req codec.Frame) []codec.Frame {
		var out []codec.Frame
		if target > 0 {
			out = append(out, transporttest.Data(req, codec.ResponseShowBrackets).
				With("basket_id", "B1").With("target_ticks", target).With("target_quantity", 1))
		}
		return append(out, transporttest.Done(req, codec.ResponseShowBrackets))
	})
	v.Respond(codec.RequestShowBracketStops, func(req codec.Frame) []codec.Frame {
		var out []codec.Frame
		if stop > 0 {
			out = append(out, transporttest.Data(req, codec.ResponseShowBracketStops).
				With("basket_id", "B1").With("stop_ticks", stop).With("stop_quantity", 1))
		}
		return append(out, transporttest.Done(req, codec.ResponseShowBracketStops))
	})
	v.Respond(codec.RequestUpdateTargetLevel, func(req codec.Frame) []codec.Frame {
		return []codec.Frame{transporttest.Done(req, codec.ResponseUpdateTargetLevel)}
	})
	v.Respond(codec.RequestUpdateStopLevel, func(req codec.Frame) []codec.Frame {
		return []codec.Frame{transporttest.Done(req, codec.ResponseUpdateStopLevel)}
	})
	v.Respond(codec.RequestModifyOrder, func(req codec.Frame) []codec.Frame {
		return []codec.Frame{transporttest.Done(req, codec.ResponseModifyOrder)}
	})
}

func TestModifyOrder_BracketReadsCurrentLevel(t *testing.T) {
	v := transporttest.NewVenue()
	scriptMetadata(v, "A1")
	scriptBrackets(v, 8, 4)
	p := newTestPlant(t, v)
	pushOrder(t, v, p, "T1", "B1", model.PriceLimit)

	err := p.ModifyOrder(context.Background(), Modification{OrderID: "T1", TargetTicks: 12, StopTicks: 6, Price: price("6001")})
	if err != nil {
		t.Fatalf("ModifyOrder failed: %v", err)
	}

	sent := v.Sent(codec.RequestShowBrackets, codec.RequestShowBracketStops, codec.RequestUpdateTargetLevel, codec.RequestUpdateStopLevel, codec.RequestModifyOrder)
	want := []int32{codec.RequestShowBrackets, codec.RequestShowBracketStops, codec.RequestUpdateTargetLevel, codec.RequestUpdateStopLevel, codec.RequestModifyOrder}
	if len(sent) != len(want) {
		t.Fatalf("sent %d frames, want %d", len(sent), len(want))
	}
	for i, f := range sent {
		if f.TemplateID != want[i] {
			t.Errorf("frame %d template = %d, want %d", i, f.TemplateID, want[i])
		}
	}

	target := sent[2]
	if lvl, _ := target.Int("level"); lvl != 8 {
		t.Errorf("target level = %d, want 8", lvl)
	}
	if ticks, _ := target.Int("target_ticks"); ticks != 12 {
		t.Errorf("target_ticks = %d, want 12", ticks)
	}
	stop := sent[3]
	if lvl, _ := stop.Int("level"); lvl != 4 {
		t.Errorf("stop level = %d, want 4", lvl)
	}
	if got := sent[4].String("price"); got != "6001" {
		t.Errorf("modify price = %q, want 6001", got)
	}
}

func TestModifyOrder_Invalid(t *testing.T) {
	v := transporttest.NewVenue()
	scriptMetadata(v, "A1")
	scriptBrackets(v, 0, 0)
	p := newTestPlant(t, v)
	pushOrder(t, v, p, "T1", "B1", model.PriceMarket)
	ctx := context.Background()

	tests := []struct {
		name string
		m    Modification
	}{
		{"nothing", Modification{OrderID: "T1"}},
		{"negative", Modification{OrderID: "T1", Quantity: -1}},
		{"price on market order", Modification{OrderID: "T1", Price: price("6000")}},
		{"trigger on market order", Modification{OrderID: "T1", TriggerPrice: price("6000")}},
		{"no target leg", Modification{OrderID: "T1", TargetTicks: 10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := p.ModifyOrder(ctx, tt.m); !errors.Is(err, plant.ErrInvalidRequest) {
				t.Errorf("err = %v, want ErrInvalidRequest", err)
			}
		})
	}
	if got := len(v.Sent(codec.RequestUpdateTargetLevel, codec.RequestModifyOrder)); got != 0 {
		t.Errorf("sent %d modifications, want 0", got)
	}
}

func TestModifyOrder_SerializedPerBasket(t *testing.T) {
	v := transporttest.NewVenue()
	scriptMetadata(v, "A1")
	scriptBrackets(v, 8, 4)
	p := newTestPlant(t, v)
	pushOrder(t, v, p, "T1", "B1", model.PriceLimit)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, m := range []Modification{
		{OrderID: "T1", TargetTicks: 12},
		{OrderID: "T1", StopTicks: 6},
	} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- p.ModifyOrder(ctx, m)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("ModifyOrder failed: %v", err)
		}
	}

	p.editMu.Lock()
	locks := len(p.edits)
	p.editMu.Unlock()
	if locks != 0 {
		t.Errorf("%d basket locks left after edits finished, want 0", locks)
	}

	sent := v.Sent(codec.RequestShowBrackets, codec.RequestShowBracketStops, codec.RequestUpdateTargetLevel, codec.RequestUpdateStopLevel)
	if len(sent) != 4 {
		t.Fatalf("sent %d frames, want 4", len(sent))
	}
	pair := map[int32]int32{
		codec.RequestShowBrackets:     codec.RequestUpdateTargetLevel,
		codec.RequestShowBracketStops: codec.RequestUpdateStopLevel,
	}
	for i := 0; i < 4; i += 2 {
		if pair[sent[i].TemplateID] != sent[i+1].TemplateID {
			t.Errorf("edits interleaved: %d then %d", sent[i].TemplateID, sent[i+1].TemplateID)
		}
	}
}

func TestCancelAllAndExit(t *testing.T) {
	v := transporttest.NewVenue()
	scriptMetadata(v, "A1")
	v.Respond(codec.RequestCancelAllOrders, func(req codec.Frame) []codec.Frame {
		return []codec.Frame{transporttest.Done(req, codec.ResponseCancelAllOrders)}
	})
	v.Respond(codec.RequestExitPosition, func(req codec.Frame) []codec.Frame {
		return []codec.Frame{transporttest.Done(req, codec.ResponseExitPosition)}
	})
	p := newTestPlant(t, v)
	ctx := context.Background()

	if err := p.CancelAllOrders(ctx, ""); err != nil {
		t.Errorf("CancelAllOrders failed: %v", err)
	}
	if err := p.ExitPosition(ctx, "ESZ6", "CME", "A1"); err != nil {
		t.Errorf("ExitPosition failed: %v", err)
	}
	exit := v.Sent(codec.RequestExitPosition)
	if len(exit) != 1 || exit[0].String("trade_route") != "primary" {
		t.Errorf("exit requests = %#v", exit)
	}
}
