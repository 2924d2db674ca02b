// Package poller implements the account summary poller.
//
// The poller:
//   - Requests a PnL snapshot for every account on a fixed interval
//   - Backs up the live PnL stream, which only sends changes
//   - Bounds concurrent requests per cycle
package poller
