package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Config configures a WebSocket transport.
type Config struct {
	URL              string        // Gateway URL (wss://...)
	HandshakeTimeout time.Duration // Dial handshake timeout
	PingInterval     time.Duration // Interval between control pings (0 disables)
	PingTimeout      time.Duration // Max time without ping/pong before the connection is stale
	WriteTimeout     time.Duration // Write deadline for sends
	BufferSize       int           // Per-connection receive channel size
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout: 10 * time.Second,
		PingInterval:     30 * time.Second,
		PingTimeout:      90 * time.Second,
		WriteTimeout:     5 * time.Second,
		BufferSize:       1024,
	}
}

// WebSocket implements Transport over gorilla/websocket. Each Connect starts
// a new session with its own read and keepalive goroutines.
type WebSocket struct {
	cfg    Config
	logger *slog.Logger

	mu   sync.RWMutex
	sess *session

	// Write serialization
	writeMu sync.Mutex
}

// session is one physical connection.
type session struct {
	conn     *websocket.Conn
	messages chan []byte
	errors   chan error
	done     chan struct{}

	closeOnce sync.Once

	mu         sync.Mutex
	lastPingAt time.Time
}

// NewWebSocket creates a WebSocket transport.
func NewWebSocket(cfg Config, logger *slog.Logger) *WebSocket {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BufferSize < 1 {
		cfg.BufferSize = 1
	}
	return &WebSocket{
		cfg:    cfg,
		logger: logger,
	}
}

// Connect dials the gateway and starts the session goroutines.
func (w *WebSocket) Connect(ctx context.Context) error {
	w.Close()

	dialer := websocket.Dialer{
		HandshakeTimeout: w.cfg.HandshakeTimeout,
		Proxy:            http.ProxyFromEnvironment,
	}

	conn, _, err := dialer.DialContext(ctx, w.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", w.cfg.URL, err)
	}

	s := &session{
		conn:       conn,
		messages:   make(chan []byte, w.cfg.BufferSize),
		errors:     make(chan error, 1),
		done:       make(chan struct{}),
		lastPingAt: time.Now(),
	}

	// Server sends ping, we respond with pong
	conn.SetPingHandler(func(data string) error {
		s.touch()
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})
	conn.SetPongHandler(func(string) error {
		s.touch()
		return nil
	})

	w.mu.Lock()
	w.sess = s
	w.mu.Unlock()

	go w.readLoop(s)
	if w.cfg.PingInterval > 0 {
		go w.keepaliveLoop(s)
	}

	w.logger.Debug("websocket connected", "url", w.cfg.URL)
	return nil
}

// Close closes the current session.
func (w *WebSocket) Close() error {
	w.mu.Lock()
	s := w.sess
	w.sess = nil
	w.mu.Unlock()

	if s == nil {
		return nil
	}
	return s.close()
}

// Send writes one binary message.
func (w *WebSocket) Send(ctx context.Context, data []byte) error {
	s := w.current()
	if s == nil || s.isDone() {
		return ErrConnectionClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	deadline := time.Now().Add(w.cfg.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	s.conn.SetWriteDeadline(deadline)
	if err := s.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		s.fail(err)
		return fmt.Errorf("%w: %v", ErrConnectionClosed, err)
	}
	return nil
}

// Receive waits for the next message on the current session.
func (w *WebSocket) Receive(ctx context.Context, timeout time.Duration) ([]byte, error) {
	s := w.current()
	if s == nil {
		return nil, ErrConnectionClosed
	}

	// Drain buffered messages before reporting a failure.
	select {
	case data := <-s.messages:
		return data, nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case data := <-s.messages:
		return data, nil
	case err := <-s.errors:
		return nil, fmt.Errorf("%w: %v", ErrConnectionClosed, err)
	case <-s.done:
		return nil, ErrConnectionClosed
	case <-timer.C:
		return nil, ErrTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// IsConnected returns the current connection state.
func (w *WebSocket) IsConnected() bool {
	s := w.current()
	return s != nil && !s.isDone()
}

func (w *WebSocket) current() *session {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.sess
}

// readLoop reads messages until the session ends. It blocks rather than
// drops when the consumer is slow.
func (w *WebSocket) readLoop(s *session) {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			// Ignore errors after close
			if !s.isDone() {
				w.logger.Debug("websocket read failed", "error", err)
				s.fail(err)
			}
			return
		}
		s.touch()

		select {
		case s.messages <- data:
		case <-s.done:
			return
		}
	}
}

// keepaliveLoop pings the server and detects stale connections.
func (w *WebSocket) keepaliveLoop(s *session) {
	ticker := time.NewTicker(w.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(w.cfg.WriteTimeout)
			if err := s.conn.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline); err != nil {
				w.logger.Debug("failed to send ping", "error", err)
			}

			if w.cfg.PingTimeout > 0 && s.sinceLastPing() > w.cfg.PingTimeout {
				w.logger.Warn("no ping received, connection stale",
					"timeout", w.cfg.PingTimeout,
				)
				s.fail(fmt.Errorf("connection stale (no ping for %s)", w.cfg.PingTimeout))
				return
			}
		}
	}
}

func (s *session) touch() {
	s.mu.Lock()
	s.lastPingAt = time.Now()
	s.mu.Unlock()
}

func (s *session) sinceLastPing() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastPingAt)
}

func (s *session) isDone() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// fail reports err once and tears the session down.
func (s *session) fail(err error) {
	select {
	case s.errors <- err:
	default:
	}
	s.close()
}

func (s *session) close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		err = s.conn.Close()
	})
	return err
}
