package client

import (
	"context"
	"time"

	"github.com/rickgao/plantclient/internal/model"
	"github.com/rickgao/plantclient/internal/order"
	"github.com/rickgao/plantclient/internal/ticker"
)

// ListExchanges returns the exchanges visible to the user.
func (c *Client) ListExchanges(ctx context.Context) ([]model.Exchange, error) {
	return c.ticker.ListExchanges(ctx)
}

// SearchSymbols looks up instruments matching text.
func (c *Client) SearchSymbols(ctx context.Context, text string, opts ticker.SearchOptions) ([]model.Instrument, error) {
	return c.ticker.SearchSymbols(ctx, text, opts)
}

// GetFrontMonthContract resolves a product to its current contract.
func (c *Client) GetFrontMonthContract(ctx context.Context, symbol, exchange string) (string, error) {
	return c.ticker.FrontMonthContract(ctx, symbol, exchange)
}

func (c *Client) SubscribeToMarketData(ctx context.Context, symbol, exchange string, bits model.UpdateBits) error {
	return c.ticker.SubscribeMarketData(ctx, symbol, exchange, bits)
}

func (c *Client) UnsubscribeFromMarketData(ctx context.Context, symbol, exchange string, bits model.UpdateBits) error {
	return c.ticker.UnsubscribeMarketData(ctx, symbol, exchange, bits)
}

// GetHistoricalTickData replays trades in [start, end]. It returns no
// ticks when the venue sends nothing within the fetch timeout.
func (c *Client) GetHistoricalTickData(ctx context.Context, symbol, exchange string, start, end time.Time) ([]model.HistoricalTick, error) {
	return c.history.GetHistoricalTickData(ctx, symbol, exchange, start, end)
}

// GetHistoricalTimeBars replays bars in [start, end]. It returns no bars
// when the venue sends nothing within the fetch timeout.
func (c *Client) GetHistoricalTimeBars(ctx context.Context, symbol, exchange string, start, end time.Time, barType model.BarType, period int) ([]model.Bar, error) {
	return c.history.GetHistoricalTimeBars(ctx, symbol, exchange, start, end, barType, period)
}

func (c *Client) SubscribeToTimeBarData(ctx context.Context, symbol, exchange string, barType model.BarType, period int) error {
	return c.history.SubscribeTimeBars(ctx, symbol, exchange, barType, period)
}

func (c *Client) UnsubscribeFromTimeBarData(ctx context.Context, symbol, exchange string, barType model.BarType, period int) error {
	return c.history.UnsubscribeTimeBars(ctx, symbol, exchange, barType, period)
}

// Accounts returns the accounts loaded at order plant login.
func (c *Client) Accounts() []model.Account {
	return c.order.Accounts()
}

// SubmitOrder validates and submits req.
func (c *Client) SubmitOrder(ctx context.Context, req order.OrderRequest) (order.Ack, error) {
	return c.order.SubmitOrder(ctx, req)
}

// CancelOrder cancels by caller order id or basket id.
func (c *Client) CancelOrder(ctx context.Context, orderID, accountID string) error {
	return c.order.CancelOrder(ctx, orderID, accountID)
}

func (c *Client) CancelAllOrders(ctx context.Context, accountID string) error {
	return c.order.CancelAllOrders(ctx, accountID)
}

func (c *Client) ModifyOrder(ctx context.Context, m order.Modification) error {
	return c.order.ModifyOrder(ctx, m)
}

func (c *Client) ListOrders(ctx context.Context, accountID string) ([]model.OrderNotification, error) {
	return c.order.ListOrders(ctx, accountID)
}

// GetOrder finds an order by caller order id or basket id.
func (c *Client) GetOrder(ctx context.Context, id, accountID string) (model.OrderNotification, error) {
	return c.order.GetOrder(ctx, id, accountID)
}

func (c *Client) ExitPosition(ctx context.Context, symbol, exchange, accountID string) error {
	return c.order.ExitPosition(ctx, symbol, exchange, accountID)
}

// SubscribeToPnLUpdates subscribes the named accounts, or all of them.
func (c *Client) SubscribeToPnLUpdates(ctx context.Context, accountIDs ...string) error {
	return c.pnl.SubscribePnL(ctx, accountIDs...)
}

func (c *Client) UnsubscribeFromPnLUpdates(ctx context.Context, accountIDs ...string) error {
	return c.pnl.UnsubscribePnL(ctx, accountIDs...)
}

func (c *Client) ListPositions(ctx context.Context, accountID string) ([]model.InstrumentPnL, error) {
	return c.pnl.ListPositions(ctx, accountID)
}

func (c *Client) ListAccountSummary(ctx context.Context, accountID string) (model.AccountPnL, bool, error) {
	return c.pnl.ListAccountSummary(ctx, accountID)
}
