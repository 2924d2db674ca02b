package plant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/plantclient/internal/codec"
	"github.com/rickgao/plantclient/internal/queue"
	"github.com/rickgao/plantclient/internal/reconnect"
	"github.com/rickgao/plantclient/internal/transport"
)

// session holds what lives between Connect and Disconnect.
type session struct {
	ctx     context.Context
	cancel  context.CancelFunc
	inbound *queue.Queue[[]byte]
}

// Plant is one logged-in channel to the venue.
type Plant struct {
	cfg    Config
	creds  Credentials
	codec  codec.Codec
	conn   transport.Transport
	logger *slog.Logger

	state     atomic.Int32
	heartbeat atomic.Int64 // time.Duration
	login     atomic.Pointer[codec.Frame]
	sess      atomic.Pointer[session]

	lifeMu sync.Mutex   // Serializes Connect, Login and Disconnect
	recvMu sync.Mutex   // One reader of the transport at a time
	sendMu sync.RWMutex // Held exclusively while a reconnect reopens and replays

	handlersMu sync.RWMutex
	handlers   map[int32]Handler

	hooksMu sync.Mutex
	hooks   []LoginHook
	replay  map[string]ReplayBuilder

	pending    pendingTable
	subs       *Subscriptions
	tasks      *taskSet
	supervisor *reconnect.Supervisor

	errMu sync.Mutex
	err   error
}

// New creates a plant speaking c over conn. Zero Config fields take the
// defaults for cfg.InfraType.
func New(cfg Config, creds Credentials, c codec.Codec, conn transport.Transport, logger *slog.Logger) *Plant {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = withDefaults(cfg)
	logger = logger.With("plant", cfg.InfraType.String())

	p := &Plant{
		cfg:      cfg,
		creds:    creds,
		codec:    c,
		conn:     conn,
		logger:   logger,
		handlers: make(map[int32]Handler),
		replay:   make(map[string]ReplayBuilder),
		subs:     NewSubscriptions(),
		tasks:    &taskSet{logger: logger},
	}
	p.heartbeat.Store(int64(cfg.HeartbeatInterval))
	p.supervisor = reconnect.NewSupervisor(cfg.Reconnect, reconnect.ReconnectorFunc(p.reconnect), logger)
	return p
}

func withDefaults(cfg Config) Config {
	def := DefaultConfig(cfg.InfraType)
	if cfg.ListenInterval <= 0 {
		cfg.ListenInterval = def.ListenInterval
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	if cfg.LoginTimeout <= 0 {
		cfg.LoginTimeout = def.LoginTimeout
	}
	if cfg.ResponseTimeout <= 0 {
		cfg.ResponseTimeout = def.ResponseTimeout
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = def.HeartbeatInterval
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = def.QueueCapacity
	}
	if cfg.TemplateVersion == "" {
		cfg.TemplateVersion = def.TemplateVersion
	}
	return cfg
}

// Logger returns the plant's logger.
func (p *Plant) Logger() *slog.Logger {
	return p.logger
}

// Config returns the effective configuration.
func (p *Plant) Config() Config {
	return p.cfg
}

// Subscriptions returns the set replayed after every reconnect.
func (p *Plant) Subscriptions() *Subscriptions {
	return p.subs
}

// State returns the current connection state. A logged-in plant reports
// StateConnecting while it recovers a dropped connection.
func (p *Plant) State() State {
	s := State(p.state.Load())
	if s == StateLoggedIn && p.supervisor.Reconnecting() {
		return StateConnecting
	}
	return s
}

func (p *Plant) setState(s State) {
	old := State(p.state.Swap(int32(s)))
	if old != s {
		p.logger.Debug("state changed", "from", old, "to", s)
	}
}

// HeartbeatInterval returns the interval negotiated at the last login.
func (p *Plant) HeartbeatInterval() time.Duration {
	return time.Duration(p.heartbeat.Load())
}

// LoginResponse returns the last login response, if any.
func (p *Plant) LoginResponse() (codec.Frame, bool) {
	f := p.login.Load()
	if f == nil {
		return codec.Frame{}, false
	}
	return *f, true
}

// Reconnects returns how many times the session has been recovered.
func (p *Plant) Reconnects() uint64 {
	return p.supervisor.Epoch()
}

// Stats is a point-in-time view of a plant.
type Stats struct {
	State             State
	Reconnects        uint64
	Reconnecting      bool
	Subscriptions     int
	HeartbeatInterval time.Duration
	Inbound           queue.Stats // Zero when disconnected
}

// Stats returns current counters.
func (p *Plant) Stats() Stats {
	st := Stats{
		State:             p.State(),
		Reconnects:        p.supervisor.Epoch(),
		Reconnecting:      p.supervisor.Reconnecting(),
		Subscriptions:     p.subs.Len(),
		HeartbeatInterval: p.HeartbeatInterval(),
	}
	if s := p.sess.Load(); s != nil {
		st.Inbound = s.inbound.Stats()
	}
	return st
}

// Err returns the fatal error that moved the plant to StateFailed.
func (p *Plant) Err() error {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	return p.err
}

// Handle routes pushed frames of templateID to h. Handlers run on the
// process loop in receipt order and must not wait on correlated requests.
func (p *Plant) Handle(templateID int32, h Handler) {
	p.handlersMu.Lock()
	defer p.handlersMu.Unlock()
	p.handlers[templateID] = h
}

// OnLogin registers a hook run after every successful login.
func (p *Plant) OnLogin(h LoginHook) {
	p.hooksMu.Lock()
	defer p.hooksMu.Unlock()
	p.hooks = append(p.hooks, h)
}

// OnReplay registers how subscriptions of channel are re-requested after a
// reconnect.
func (p *Plant) OnReplay(channel string, build ReplayBuilder) {
	p.hooksMu.Lock()
	defer p.hooksMu.Unlock()
	p.replay[channel] = build
}

// Connect opens the transport. It is a no-op when already connected.
func (p *Plant) Connect(ctx context.Context) error {
	p.lifeMu.Lock()
	defer p.lifeMu.Unlock()

	switch State(p.state.Load()) {
	case StateConnected, StateLoggedIn:
		return nil
	case StateFailed:
		p.teardown(ctx)
	}

	p.setState(StateConnecting)
	p.logger.Info("connecting")

	cctx, cancel := context.WithTimeout(ctx, p.cfg.ConnectTimeout)
	defer cancel()
	if err := p.conn.Connect(cctx); err != nil {
		p.setState(StateDisconnected)
		return fmt.Errorf("connect %s plant: %w", p.cfg.InfraType, err)
	}

	life, lifeCancel := context.WithCancel(context.WithoutCancel(ctx))
	p.sess.Store(&session{
		ctx:     life,
		cancel:  lifeCancel,
		inbound: queue.New[[]byte](p.cfg.QueueCapacity),
	})

	p.errMu.Lock()
	p.err = nil
	p.errMu.Unlock()

	p.setState(StateConnected)
	p.logger.Info("connected")
	return nil
}

// Login authenticates, starts the background loops and runs login hooks.
// It is a no-op when already logged in.
func (p *Plant) Login(ctx context.Context) error {
	p.lifeMu.Lock()
	defer p.lifeMu.Unlock()

	switch State(p.state.Load()) {
	case StateLoggedIn:
		return nil
	case StateConnected:
	default:
		return fmt.Errorf("login %s plant: %w", p.cfg.InfraType, transport.ErrConnectionClosed)
	}
	s := p.sess.Load()

	lctx, cancel := context.WithTimeout(ctx, p.cfg.LoginTimeout)
	defer cancel()

	p.recvMu.Lock()
	err := p.handshake(lctx, s)
	p.recvMu.Unlock()
	if err != nil {
		return fmt.Errorf("login %s plant: %w", p.cfg.InfraType, err)
	}

	p.setState(StateLoggedIn)
	p.tasks.start(s.ctx,
		task{name: "recv", run: func(ctx context.Context) error { return p.recvLoop(ctx, s) }},
		task{name: "process", run: func(ctx context.Context) error { return p.processLoop(ctx, s) }},
		task{name: "heartbeat", run: p.heartbeatLoop},
	)

	if err := p.afterLogin(lctx); err != nil {
		return fmt.Errorf("login %s plant: %w", p.cfg.InfraType, err)
	}
	p.logger.Info("logged in", "heartbeat_interval", p.HeartbeatInterval())
	return nil
}

// Disconnect logs out, stops the loops and closes the transport. Pending
// requests fail with transport.ErrConnectionClosed and subscriptions are
// forgotten.
func (p *Plant) Disconnect(ctx context.Context) error {
	p.lifeMu.Lock()
	defer p.lifeMu.Unlock()
	p.teardown(ctx)
	return nil
}

func (p *Plant) teardown(ctx context.Context) {
	s := p.sess.Swap(nil)
	if s == nil && State(p.state.Load()) == StateDisconnected {
		return
	}

	if State(p.state.Load()) == StateLoggedIn {
		if err := (sender{p}).Send(ctx, codec.NewFrame(codec.RequestLogout)); err != nil {
			p.logger.Debug("logout not sent", "error", err)
		}
	}

	if s != nil {
		s.cancel()
	}
	if err := p.conn.Close(); err != nil {
		p.logger.Debug("close failed", "error", err)
	}
	p.tasks.stop()
	if s != nil {
		s.inbound.Close()
	}
	p.pending.failAll(transport.ErrConnectionClosed)
	p.subs.Clear()

	p.setState(StateDisconnected)
	p.logger.Info("disconnected")
}

// handshake sends the login request and reads until its response. Other
// frames received meanwhile are queued for the process loop. The caller
// holds recvMu.
func (p *Plant) handshake(ctx context.Context, s *session) error {
	req := codec.NewFrame(codec.RequestLogin).
		With("template_version", p.cfg.TemplateVersion).
		With("user", p.creds.User).
		With("password", p.creds.Password).
		With("app_name", p.creds.AppName).
		With("app_version", p.creds.AppVersion).
		With("system_name", p.creds.SystemName).
		With("infra_type", int(p.cfg.InfraType)).
		With(codec.FieldUserMsg, []string{uuid.NewString()})

	if err := (sender{p}).Send(ctx, req); err != nil {
		return err
	}

	for {
		data, err := p.conn.Receive(ctx, p.cfg.ListenInterval)
		if errors.Is(err, transport.ErrTimeout) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("%w: login", ErrResponseTimeout)
			}
			return err
		}

		f, err := p.codec.Decode(data)
		if err != nil {
			p.logger.Warn("dropping undecodable frame during login", "error", err)
			continue
		}
		if f.TemplateID != codec.ResponseLogin {
			s.inbound.Push(data)
			continue
		}
		if err := ResponseError(f); err != nil {
			return err
		}

		if secs, ok := f.Float("heartbeat_interval"); ok && secs > 0 {
			p.heartbeat.Store(int64(time.Duration(secs * float64(time.Second))))
		}
		p.login.Store(&f)
		return nil
	}
}

// reconnect is the supervisor's target: reopen, log in, replay.
func (p *Plant) reconnect(ctx context.Context) error {
	s := p.sess.Load()
	if s == nil {
		return transport.ErrConnectionClosed
	}

	p.sendMu.Lock()
	defer p.sendMu.Unlock()

	p.conn.Close()

	p.recvMu.Lock()
	defer p.recvMu.Unlock()

	if err := p.conn.Connect(ctx); err != nil {
		return err
	}
	if err := p.handshake(ctx, s); err != nil {
		p.conn.Close()
		return err
	}
	if err := p.afterLogin(ctx); err != nil {
		p.conn.Close()
		return err
	}
	return nil
}

// afterLogin replays recorded subscriptions and runs login hooks.
func (p *Plant) afterLogin(ctx context.Context) error {
	p.hooksMu.Lock()
	builders := maps.Clone(p.replay)
	hooks := slices.Clone(p.hooks)
	p.hooksMu.Unlock()

	s := sender{p}
	for _, sub := range p.subs.List() {
		build, ok := builders[sub.Channel]
		if !ok {
			p.logger.Warn("no replay for subscription", "channel", sub.Channel, "symbol", sub.Symbol)
			continue
		}
		f, err := build(sub)
		if err != nil {
			p.logger.Warn("skipping replay", "channel", sub.Channel, "symbol", sub.Symbol, "error", err)
			continue
		}
		if err := s.Send(ctx, f); err != nil {
			return fmt.Errorf("replay %s %s: %w", sub.Channel, sub.Symbol, err)
		}
		p.subs.markReplayed(sub)
		p.logger.Debug("replayed subscription", "channel", sub.Channel, "symbol", sub.Symbol, "exchange", sub.Exchange)
	}

	for _, h := range hooks {
		if err := h(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

// Send sends f without waiting for a response. A send that finds the
// connection closed recovers it and retries once.
func (p *Plant) Send(ctx context.Context, f codec.Frame) error {
	return p.send(ctx, f, nil)
}

// Subscribe records sub and sends f, the request that opens it, and
// reports whether sub was new. If a reconnect replays sub before f goes
// out, f is not sent again. A failed send forgets sub.
func (p *Plant) Subscribe(ctx context.Context, sub Subscription, f codec.Frame) (bool, error) {
	if !p.subs.Add(sub) {
		return false, nil
	}
	replayed := func() bool { return p.subs.replays(sub) > 0 }
	if err := p.send(ctx, f, replayed); err != nil {
		p.subs.Remove(sub)
		return true, err
	}
	return true, nil
}

func (p *Plant) send(ctx context.Context, f codec.Frame, skip func() bool) error {
	if err := p.ready(); err != nil {
		return err
	}
	data, err := p.codec.Encode(f)
	if err != nil {
		return err
	}

	observed := p.supervisor.Epoch()
	if p.supervisor.Reconnecting() {
		if err := p.recover(ctx, observed); err != nil {
			return err
		}
		observed = p.supervisor.Epoch()
	}

	err = p.write(ctx, data, skip)
	if !errors.Is(err, transport.ErrConnectionClosed) {
		return err
	}

	p.logger.Warn("send on closed connection, recovering", "template", f.TemplateID)
	if err := p.recover(ctx, observed); err != nil {
		return err
	}
	return p.write(ctx, data, skip)
}

// write sends data unless skip reports it is no longer needed. It waits
// out a reconnect that is reopening the connection.
func (p *Plant) write(ctx context.Context, data []byte, skip func() bool) error {
	p.sendMu.RLock()
	defer p.sendMu.RUnlock()
	if skip != nil && skip() {
		return nil
	}
	return p.conn.Send(ctx, data)
}

// Request sends f and waits for the single response expect describes. A
// non-zero response code is returned as a *VenueError along with the frame.
func (p *Plant) Request(ctx context.Context, f codec.Frame, expect Expect) (codec.Frame, error) {
	frames, err := p.await(ctx, f, expect, false)
	if len(frames) == 0 {
		return codec.Frame{}, err
	}
	return frames[0], err
}

// Collect sends f and gathers data frames until the terminator. An empty
// result is valid.
func (p *Plant) Collect(ctx context.Context, f codec.Frame, expect Expect) ([]codec.Frame, error) {
	return p.await(ctx, f, expect, true)
}

func (p *Plant) await(ctx context.Context, f codec.Frame, expect Expect, collect bool) ([]codec.Frame, error) {
	if err := p.ready(); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	r := newPendingRequest(id, expect, collect)
	p.pending.add(r)
	defer p.pending.remove(r)

	if err := p.Send(ctx, stamp(f, id)); err != nil {
		return nil, err
	}

	timeout := expect.Timeout
	if timeout <= 0 {
		timeout = p.cfg.ResponseTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-r.result:
		return res.frames, res.err
	case <-timer.C:
		return nil, fmt.Errorf("%w: template %d after %s", ErrResponseTimeout, f.TemplateID, timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// stamp returns a copy of f carrying the correlation id.
func stamp(f codec.Frame, id string) codec.Frame {
	out := codec.Frame{TemplateID: f.TemplateID, Fields: maps.Clone(f.Fields)}
	if out.Fields == nil {
		out.Fields = make(map[string]any)
	}
	out.Fields[codec.FieldUserMsg] = []string{id}
	return out
}

func (p *Plant) ready() error {
	if err := p.Err(); err != nil {
		return err
	}
	if State(p.state.Load()) != StateLoggedIn {
		return ErrNotLoggedIn
	}
	return nil
}

// recover waits for the supervisor to restore the session. The flight runs
// on the session context so one caller giving up does not abort it for the
// others.
func (p *Plant) recover(ctx context.Context, observed uint64) error {
	if err := p.Err(); err != nil {
		return err
	}
	s := p.sess.Load()
	if s == nil {
		return transport.ErrConnectionClosed
	}

	done := make(chan error, 1)
	go func() {
		done <- p.supervisor.Recover(s.ctx, observed)
	}()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if errors.Is(err, reconnect.ErrExhausted) {
		return p.fail(fmt.Errorf("%w: %w", ErrReconnectionExhausted, err))
	}
	return err
}

// fail moves the plant to StateFailed and fails every pending request.
func (p *Plant) fail(err error) error {
	p.errMu.Lock()
	if p.err == nil {
		p.err = err
		p.logger.Error("plant failed", "error", err)
	}
	err = p.err
	p.errMu.Unlock()

	p.setState(StateFailed)
	p.pending.failAll(err)
	return err
}

func (p *Plant) recvLoop(ctx context.Context, s *session) error {
	for ctx.Err() == nil {
		observed := p.supervisor.Epoch()

		p.recvMu.Lock()
		data, err := p.conn.Receive(ctx, p.cfg.ListenInterval)
		p.recvMu.Unlock()

		switch {
		case err == nil:
			s.inbound.Push(data)
		case errors.Is(err, transport.ErrTimeout):
		case ctx.Err() != nil:
			return nil
		default:
			p.logger.Warn("receive failed, recovering", "error", err)
			if err := p.recover(ctx, observed); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		}
	}
	return nil
}

func (p *Plant) processLoop(ctx context.Context, s *session) error {
	for {
		data, err := s.inbound.Pop(ctx)
		if err != nil {
			return nil
		}
		p.process(ctx, data)
	}
}

func (p *Plant) process(ctx context.Context, data []byte) {
	f, err := p.codec.Decode(data)
	if err != nil {
		p.logger.Warn("dropping undecodable frame", "error", err, "size", len(data))
		return
	}

	switch f.TemplateID {
	case codec.ResponseHeartbeat:
		if err := ResponseError(f); err != nil {
			p.logger.Warn("heartbeat rejected", "error", err)
		}
		return
	case codec.ResponseLogin:
		p.logger.Debug("ignoring late login response")
		return
	case codec.ResponseLogout:
		p.logger.Info("logged out")
		return
	case codec.Reject:
		code, text := codec.ResponseCode(f)
		p.logger.Warn("request rejected", "code", code, "text", text)
		p.pending.reject(f)
		p.invoke(ctx, f, false)
		return
	case codec.ForcedLogout:
		p.logger.Warn("forced logout", "reason", f.String("text"))
		p.invoke(ctx, f, false)
		return
	}

	if p.pending.dispatch(f) {
		return
	}
	p.invoke(ctx, f, true)
}

func (p *Plant) invoke(ctx context.Context, f codec.Frame, warnUnhandled bool) {
	p.handlersMu.RLock()
	h := p.handlers[f.TemplateID]
	p.handlersMu.RUnlock()

	if h == nil {
		if warnUnhandled {
			p.logger.Warn("unhandled frame", "template", f.TemplateID)
		}
		return
	}

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("handler panicked", "template", f.TemplateID, "panic", r)
		}
	}()
	if err := h(ctx, f); err != nil {
		p.logger.Warn("handler failed", "template", f.TemplateID, "error", err)
	}
}

func (p *Plant) heartbeatLoop(ctx context.Context) error {
	for {
		wait := p.HeartbeatInterval() - time.Second
		if wait < time.Second {
			wait = time.Second
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		if p.State() != StateLoggedIn {
			continue
		}
		if err := (sender{p}).Send(ctx, codec.NewFrame(codec.RequestHeartbeat)); err != nil {
			p.logger.Warn("heartbeat failed", "error", err)
		}
	}
}

// AckHandler logs the responses to fire-and-forget requests such as
// replayed subscriptions.
func (p *Plant) AckHandler(what string) Handler {
	return func(_ context.Context, f codec.Frame) error {
		if err := ResponseError(f); err != nil {
			return fmt.Errorf("%s: %w", what, err)
		}
		p.logger.Debug("acknowledged", "request", what)
		return nil
	}
}

// sender writes straight to the transport with no recovery.
type sender struct {
	p *Plant
}

func (s sender) Send(ctx context.Context, f codec.Frame) error {
	data, err := s.p.codec.Encode(f)
	if err != nil {
		return err
	}
	return s.p.conn.Send(ctx, data)
}
