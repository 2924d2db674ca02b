// Package metrics collects point-in-time counters from the running
// components and serves them as JSON.
//
// Collected:
//   - Plant state, reconnects, replayable subscriptions and inbound queue depth
//   - Bar writer inserts, duplicates and failed batches
//   - NATS bridge publishes and errors
package metrics
