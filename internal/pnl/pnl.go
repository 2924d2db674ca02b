// Package pnl implements the PnL plant: per-account position and balance
// streams and on-demand snapshots.
package pnl

import (
	"context"

	"github.com/rickgao/plantclient/internal/codec"
	"github.com/rickgao/plantclient/internal/events"
	"github.com/rickgao/plantclient/internal/model"
	"github.com/rickgao/plantclient/internal/order"
	"github.com/rickgao/plantclient/internal/plant"
)

// Channel names PnL subscriptions in the plant's set. Params holds the
// account id.
const Channel = "pnl"

const (
	requestSubscribe   = 1
	requestUnsubscribe = 2
)

// AccountSource lists the accounts the user may trade. The order plant
// is one.
type AccountSource interface {
	Accounts() []model.Account
}

// Events are the hooks the PnL plant publishes to.
type Events struct {
	InstrumentPnL *events.Event[model.InstrumentPnL]
	AccountPnL    *events.Event[model.AccountPnL]
}

// Plant is the PnL plant.
type Plant struct {
	*plant.Plant
	accounts AccountSource
	ev       Events
}

// New wraps base. Nil events are created.
func New(base *plant.Plant, accounts AccountSource, ev Events) *Plant {
	if ev.InstrumentPnL == nil {
		ev.InstrumentPnL = events.New[model.InstrumentPnL]("instrument_pnl", base.Logger())
	}
	if ev.AccountPnL == nil {
		ev.AccountPnL = events.New[model.AccountPnL]("account_pnl", base.Logger())
	}

	p := &Plant{Plant: base, accounts: accounts, ev: ev}
	base.Handle(codec.InstrumentPnLUpdate, p.handleInstrumentPnL)
	base.Handle(codec.AccountPnLUpdate, p.handleAccountPnL)
	base.Handle(codec.ResponsePnLUpdates, base.AckHandler("pnl updates"))
	base.OnReplay(Channel, func(sub plant.Subscription) (codec.Frame, error) {
		return p.request(codec.RequestPnLUpdates, p.lookup(sub.Params)).With("request", requestSubscribe), nil
	})
	return p
}

// Events returns the plant's hooks.
func (p *Plant) Events() Events {
	return p.ev
}

// SubscribePnL starts position and balance updates for the given
// accounts, or for every account when none are named.
func (p *Plant) SubscribePnL(ctx context.Context, accountIDs ...string) error {
	accounts, err := p.selectAll(accountIDs, "subscribe pnl")
	if err != nil {
		return err
	}

	for _, a := range accounts {
		sub := plant.Subscription{Channel: Channel, Params: a.ID}
		added, err := p.Subscribe(ctx, sub, p.request(codec.RequestPnLUpdates, a).With("request", requestSubscribe))
		if err != nil {
			return err
		}
		if !added {
			continue
		}
		p.Logger().Info("subscribed to pnl updates", "account_id", a.ID)
	}
	return nil
}

// UnsubscribePnL stops updates for the given accounts, or for every
// subscribed account when none are named.
func (p *Plant) UnsubscribePnL(ctx context.Context, accountIDs ...string) error {
	if len(accountIDs) == 0 {
		for _, sub := range p.Subscriptions().List() {
			if sub.Channel == Channel {
				accountIDs = append(accountIDs, sub.Params)
			}
		}
	}

	for _, id := range accountIDs {
		if !p.Subscriptions().Remove(plant.Subscription{Channel: Channel, Params: id}) {
			continue
		}
		if err := p.Send(ctx, p.request(codec.RequestPnLUpdates, p.lookup(id)).With("request", requestUnsubscribe)); err != nil {
			return err
		}
		p.Logger().Info("unsubscribed from pnl updates", "account_id", id)
	}
	return nil
}

// ListPositions returns the account's per-instrument positions.
func (p *Plant) ListPositions(ctx context.Context, accountID string) ([]model.InstrumentPnL, error) {
	positions, _, err := p.snapshot(ctx, accountID, "list positions")
	return positions, err
}

// ListAccountSummary returns the account's balance and PnL. The second
// result is false when the venue sent no account record.
func (p *Plant) ListAccountSummary(ctx context.Context, accountID string) (model.AccountPnL, bool, error) {
	_, summaries, err := p.snapshot(ctx, accountID, "list account summary")
	if err != nil || len(summaries) == 0 {
		return model.AccountPnL{}, false, err
	}
	return summaries[len(summaries)-1], true, nil
}

// snapshot asks for a PnL snapshot. Snapshot records arrive as regular
// 450/451 updates flagged is_snapshot, ended by the 403 response.
func (p *Plant) snapshot(ctx context.Context, accountID, op string) ([]model.InstrumentPnL, []model.AccountPnL, error) {
	acct, err := order.SelectAccount(p.available(), accountID, op)
	if err != nil {
		return nil, nil, err
	}

	frames, err := p.Collect(ctx, p.request(codec.RequestPnLSnapshot, acct), plant.Expect{
		Templates:     []int32{codec.InstrumentPnLUpdate, codec.AccountPnLUpdate},
		Match:         func(f codec.Frame) bool { return f.Bool("is_snapshot") && f.String("account_id") == acct.ID },
		DoneTemplates: []int32{codec.ResponsePnLSnapshot},
	})
	if err != nil {
		return nil, nil, err
	}

	var (
		positions []model.InstrumentPnL
		summaries []model.AccountPnL
	)
	for _, f := range frames {
		switch f.TemplateID {
		case codec.InstrumentPnLUpdate:
			positions = append(positions, model.InstrumentPnLFromFrame(f))
		case codec.AccountPnLUpdate:
			summaries = append(summaries, model.AccountPnLFromFrame(f))
		}
	}
	return positions, summaries, nil
}

func (p *Plant) available() []model.Account {
	if p.accounts == nil {
		return nil
	}
	return p.accounts.Accounts()
}

func (p *Plant) selectAll(ids []string, op string) ([]model.Account, error) {
	all := p.available()
	if len(ids) == 0 {
		if len(all) == 0 {
			return nil, plant.Invalid(op, "no accounts available")
		}
		return all, nil
	}
	out := make([]model.Account, 0, len(ids))
	for _, id := range ids {
		a, err := order.SelectAccount(all, id, op)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// lookup returns the known account for id, or a bare one.
func (p *Plant) lookup(id string) model.Account {
	for _, a := range p.available() {
		if a.ID == id {
			return a
		}
	}
	return model.Account{ID: id}
}

// request builds a frame carrying the account's clearing ids, falling
// back to the ids from this plant's login response.
func (p *Plant) request(templateID int32, a model.Account) codec.Frame {
	fcm, ib := a.FCMID, a.IBID
	if fcm == "" || ib == "" {
		if login, ok := p.LoginResponse(); ok {
			fcm, ib = login.String("fcm_id"), login.String("ib_id")
		}
	}
	return codec.NewFrame(templateID).
		With("fcm_id", fcm).
		With("ib_id", ib).
		With("account_id", a.ID)
}

func (p *Plant) handleInstrumentPnL(ctx context.Context, f codec.Frame) error {
	p.ev.InstrumentPnL.Publish(ctx, model.InstrumentPnLFromFrame(f))
	return nil
}

func (p *Plant) handleAccountPnL(ctx context.Context, f codec.Frame) error {
	p.ev.AccountPnL.Publish(ctx, model.AccountPnLFromFrame(f))
	return nil
}
