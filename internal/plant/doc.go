// Package plant implements the session layer shared by every venue channel.
//
// A Plant owns one transport connection and runs three goroutines while
// logged in:
//   - recv: reads frames and pushes them onto the inbound queue, recovering
//     dropped connections through the reconnect Supervisor
//   - process: decodes queued frames in receipt order and dispatches them to
//     pending correlated requests or per-template handlers
//   - heartbeat: sends a heartbeat one second ahead of the negotiated interval
//
// Business plants (ticker, history, order, pnl) embed a *Plant and register
// handlers, subscription replay builders and login hooks.
package plant
