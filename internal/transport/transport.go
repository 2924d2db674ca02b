// Package transport provides the duplex, message-framed connection a plant
// talks over.
package transport

import (
	"context"
	"errors"
	"time"
)

// Errors
var (
	// ErrConnectionClosed means the connection is gone; callers recover by
	// reconnecting.
	ErrConnectionClosed = errors.New("transport: connection closed")

	// ErrTimeout means no message arrived within the receive window. It is
	// an expected outcome, not a failure.
	ErrTimeout = errors.New("transport: receive timeout")
)

// Transport is a reconnectable message connection. Connect may be called
// again after Close or after the connection dropped.
type Transport interface {
	// Connect opens a fresh connection, replacing any previous one.
	Connect(ctx context.Context) error

	// Close closes the current connection. Safe to call when not connected.
	Close() error

	// Send writes one message.
	Send(ctx context.Context, data []byte) error

	// Receive waits up to timeout for the next message.
	Receive(ctx context.Context, timeout time.Duration) ([]byte, error)

	// IsConnected returns current connection state.
	IsConnected() bool
}
