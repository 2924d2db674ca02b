package plant

import (
	"context"
	"time"

	"github.com/rickgao/plantclient/internal/codec"
	"github.com/rickgao/plantclient/internal/reconnect"
)

// State is the connection state of a plant.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateLoggedIn
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateLoggedIn:
		return "logged_in"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// InfraType identifies the plant kind at login.
type InfraType int

const (
	TickerPlant  InfraType = 1
	OrderPlant   InfraType = 2
	HistoryPlant InfraType = 3
	PnLPlant     InfraType = 4
)

func (t InfraType) String() string {
	switch t {
	case TickerPlant:
		return "ticker"
	case OrderPlant:
		return "order"
	case HistoryPlant:
		return "history"
	case PnLPlant:
		return "pnl"
	default:
		return "unknown"
	}
}

// Credentials authenticate a login.
type Credentials struct {
	User       string
	Password   string
	SystemName string
	AppName    string
	AppVersion string
}

// Config configures a plant.
type Config struct {
	InfraType         InfraType
	ListenInterval    time.Duration // Bound on one transport read
	ConnectTimeout    time.Duration
	LoginTimeout      time.Duration
	ResponseTimeout   time.Duration // Default bound on correlated requests
	HeartbeatInterval time.Duration // Used until login negotiates one
	QueueCapacity     int           // Initial inbound queue capacity
	TemplateVersion   string
	Reconnect         reconnect.Config
}

// DefaultConfig returns sensible defaults for a plant of the given kind.
func DefaultConfig(infra InfraType) Config {
	return Config{
		InfraType:         infra,
		ListenInterval:    10 * time.Second,
		ConnectTimeout:    10 * time.Second,
		LoginTimeout:      10 * time.Second,
		ResponseTimeout:   30 * time.Second,
		HeartbeatInterval: 60 * time.Second,
		QueueCapacity:     256,
		TemplateVersion:   "3.9",
		Reconnect:         reconnect.DefaultConfig(),
	}
}

// Handler processes one pushed frame. Errors are logged, never fatal.
type Handler func(ctx context.Context, f codec.Frame) error

// Sender sends a frame without recovery. Login hooks receive one because
// they run while a reconnection is still in progress.
type Sender interface {
	Send(ctx context.Context, f codec.Frame) error
}

// LoginHook runs after every successful login, initial or reconnect. It may
// send but must not wait for responses: the receive loop is not running
// while a reconnect login executes.
type LoginHook func(ctx context.Context, s Sender) error

// ReplayBuilder turns a recorded subscription back into its request frame.
// An error skips the subscription's replay.
type ReplayBuilder func(sub Subscription) (codec.Frame, error)

// Expect describes the response(s) a correlated request waits for.
type Expect struct {
	// Templates are the response templates carrying data (or, for a single
	// response, the answer itself).
	Templates []int32

	// Match optionally filters data frames further.
	Match func(codec.Frame) bool

	// DoneTemplates may end a collected response; defaults to Templates.
	DoneTemplates []int32

	// Done recognizes the terminator; defaults to codec.IsTerminator.
	Done func(codec.Frame) bool

	// Timeout overrides Config.ResponseTimeout.
	Timeout time.Duration
}

// Reply is a shorthand for a single-template expectation.
func Reply(templateID int32) Expect {
	return Expect{Templates: []int32{templateID}}
}
