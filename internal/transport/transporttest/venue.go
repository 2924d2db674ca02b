// Package transporttest provides an in-memory venue implementing
// transport.Transport for plant tests.
package transporttest

import (
	"context"
	"sync"
	"time"

	"github.com/rickgao/plantclient/internal/codec"
	"github.com/rickgao/plantclient/internal/transport"
)

// Responder produces the venue's replies to one request. It runs on the
// sender's goroutine.
type Responder func(req codec.Frame) []codec.Frame

// Venue is a scripted fake gateway. By default it answers login and
// heartbeat requests; everything else goes through Respond.
type Venue struct {
	codec codec.Codec

	mu        sync.Mutex
	inbox     chan []byte
	done      chan struct{}
	connected bool
	sent      []codec.Frame
	connects  int
	responder map[int32]Responder

	// OnConnect runs before every Connect; a non-nil error fails it.
	OnConnect func(ctx context.Context, attempt int) error

	// HeartbeatInterval is reported in login responses (seconds).
	HeartbeatInterval float64
}

// NewVenue creates a venue using the protobuf codec.
func NewVenue() *Venue {
	return &Venue{
		codec:             codec.NewProtoCodec(),
		responder:         make(map[int32]Responder),
		HeartbeatInterval: 60,
	}
}

// Codec returns the codec the venue speaks.
func (v *Venue) Codec() codec.Codec {
	return v.codec
}

// Respond registers the reply script for a request template.
func (v *Venue) Respond(templateID int32, r Responder) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.responder[templateID] = r
}

// Connect implements transport.Transport.
func (v *Venue) Connect(ctx context.Context) error {
	v.mu.Lock()
	v.connects++
	attempt := v.connects
	hook := v.OnConnect
	v.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, attempt); err != nil {
			return err
		}
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.closeLocked()
	v.inbox = make(chan []byte, 1024)
	v.done = make(chan struct{})
	v.connected = true
	return nil
}

// Close implements transport.Transport.
func (v *Venue) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closeLocked()
	return nil
}

// Drop simulates an abnormal close by the gateway.
func (v *Venue) Drop() {
	v.Close()
}

func (v *Venue) closeLocked() {
	if v.connected {
		close(v.done)
		v.connected = false
	}
}

// Send implements transport.Transport. The frame is recorded and scripted
// replies are queued for Receive.
func (v *Venue) Send(ctx context.Context, data []byte) error {
	f, err := v.codec.Decode(data)
	if err != nil {
		return err
	}

	v.mu.Lock()
	if !v.connected {
		v.mu.Unlock()
		return transport.ErrConnectionClosed
	}
	v.sent = append(v.sent, f)
	r := v.responder[f.TemplateID]
	hb := v.HeartbeatInterval
	v.mu.Unlock()

	var replies []codec.Frame
	switch {
	case r != nil:
		replies = r(f)
	case f.TemplateID == codec.RequestLogin:
		replies = []codec.Frame{LoginOK(f, hb)}
	case f.TemplateID == codec.RequestHeartbeat:
		replies = []codec.Frame{Echo(f, codec.ResponseHeartbeat).With(codec.FieldResponseCode, []any{"0"})}
	}
	return v.Push(replies...)
}

// Receive implements transport.Transport.
func (v *Venue) Receive(ctx context.Context, timeout time.Duration) ([]byte, error) {
	v.mu.Lock()
	inbox, done, connected := v.inbox, v.done, v.connected
	v.mu.Unlock()

	if !connected {
		return nil, transport.ErrConnectionClosed
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case data := <-inbox:
		return data, nil
	case <-done:
		return nil, transport.ErrConnectionClosed
	case <-timer.C:
		return nil, transport.ErrTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// IsConnected implements transport.Transport.
func (v *Venue) IsConnected() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.connected
}

// Push queues server-initiated frames for the current connection.
func (v *Venue) Push(frames ...codec.Frame) error {
	for _, f := range frames {
		data, err := v.codec.Encode(f)
		if err != nil {
			return err
		}
		if err := v.PushRaw(data); err != nil {
			return err
		}
	}
	return nil
}

// PushRaw queues raw bytes, which need not decode.
func (v *Venue) PushRaw(data []byte) error {
	v.mu.Lock()
	inbox, connected := v.inbox, v.connected
	v.mu.Unlock()

	if !connected {
		return transport.ErrConnectionClosed
	}
	inbox <- data
	return nil
}

// Sent returns every frame the client sent, optionally filtered by template.
func (v *Venue) Sent(templateIDs ...int32) []codec.Frame {
	v.mu.Lock()
	defer v.mu.Unlock()

	if len(templateIDs) == 0 {
		return append([]codec.Frame(nil), v.sent...)
	}
	var out []codec.Frame
	for _, f := range v.sent {
		for _, id := range templateIDs {
			if f.TemplateID == id {
				out = append(out, f)
				break
			}
		}
	}
	return out
}

// Connects returns how many times Connect was called.
func (v *Venue) Connects() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.connects
}

// Echo builds a response to req that carries its user_msg back.
func Echo(req codec.Frame, templateID int32) codec.Frame {
	f := codec.NewFrame(templateID)
	if req.Has(codec.FieldUserMsg) {
		f.Fields[codec.FieldUserMsg] = req.Fields[codec.FieldUserMsg]
	}
	return f
}

// LoginOK builds a successful login response.
func LoginOK(req codec.Frame, heartbeat float64) codec.Frame {
	return Echo(req, codec.ResponseLogin).
		With(codec.FieldResponseCode, []any{"0"}).
		With("heartbeat_interval", heartbeat).
		With("fcm_id", "FCM").
		With("ib_id", "IB")
}

// Done builds a terminator with a success response code.
func Done(req codec.Frame, templateID int32) codec.Frame {
	return Echo(req, templateID).With(codec.FieldResponseCode, []any{"0"})
}

// Data builds a data frame of a multi-frame response.
func Data(req codec.Frame, templateID int32) codec.Frame {
	return Echo(req, templateID).With(codec.FieldHandlerRespCode, []any{"0"})
}
