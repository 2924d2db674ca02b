package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// mockWSServer creates a test WebSocket server.
func mockWSServer(t *testing.T, handler func(*websocket.Conn)) *httptest.Server {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()
		handler(conn)
	}))
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func testConfig(url string) Config {
	cfg := DefaultConfig()
	cfg.URL = url
	cfg.BufferSize = 100
	return cfg
}

func TestWebSocket_ConnectClose(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	ws := NewWebSocket(testConfig(wsURL(server)), nil)
	if err := ws.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if !ws.IsConnected() {
		t.Error("expected IsConnected to return true")
	}

	if err := ws.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if ws.IsConnected() {
		t.Error("expected IsConnected to return false after Close")
	}

	// Double close is safe
	if err := ws.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

func TestWebSocket_SendBinary(t *testing.T) {
	var (
		mu       sync.Mutex
		received []byte
		msgType  int
	)

	server := mockWSServer(t, func(conn *websocket.Conn) {
		for {
			mt, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			mu.Lock()
			received, msgType = msg, mt
			mu.Unlock()
		}
	})
	defer server.Close()

	ws := NewWebSocket(testConfig(wsURL(server)), nil)
	if err := ws.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer ws.Close()

	payload := []byte{0x0a, 0x01, 0x02}
	if err := ws.Send(context.Background(), payload); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if string(received) != string(payload) {
		t.Errorf("received %v, want %v", received, payload)
	}
	if msgType != websocket.BinaryMessage {
		t.Errorf("message type = %d, want binary", msgType)
	}
}

func TestWebSocket_ReceiveInOrder(t *testing.T) {
	messages := []string{"one", "two", "three"}

	server := mockWSServer(t, func(conn *websocket.Conn) {
		for _, m := range messages {
			if err := conn.WriteMessage(websocket.BinaryMessage, []byte(m)); err != nil {
				return
			}
		}
		time.Sleep(time.Second)
	})
	defer server.Close()

	ws := NewWebSocket(testConfig(wsURL(server)), nil)
	if err := ws.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer ws.Close()

	for i, want := range messages {
		data, err := ws.Receive(context.Background(), 500*time.Millisecond)
		if err != nil {
			t.Fatalf("message %d: Receive failed: %v", i, err)
		}
		if string(data) != want {
			t.Errorf("message %d: got %q, want %q", i, data, want)
		}
	}
}

func TestWebSocket_ReceiveTimeout(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		time.Sleep(time.Second)
	})
	defer server.Close()

	ws := NewWebSocket(testConfig(wsURL(server)), nil)
	if err := ws.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer ws.Close()

	_, err := ws.Receive(context.Background(), 20*time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("expected ErrTimeout, got %v", err)
	}

	// A timeout leaves the connection usable
	if !ws.IsConnected() {
		t.Error("expected connection to survive a receive timeout")
	}
}

func TestWebSocket_ServerCloseReportsClosed(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.BinaryMessage, []byte("last"))
		// handler returns, server closes the connection
	})
	defer server.Close()

	ws := NewWebSocket(testConfig(wsURL(server)), nil)
	if err := ws.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer ws.Close()

	data, err := ws.Receive(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if string(data) != "last" {
		t.Errorf("got %q, want %q", data, "last")
	}

	_, err = ws.Receive(context.Background(), time.Second)
	if !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("expected ErrConnectionClosed, got %v", err)
	}
}

func TestWebSocket_SendNotConnected(t *testing.T) {
	ws := NewWebSocket(testConfig("ws://localhost:12345"), nil)

	err := ws.Send(context.Background(), []byte("test"))
	if !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("expected ErrConnectionClosed, got %v", err)
	}

	_, err = ws.Receive(context.Background(), 10*time.Millisecond)
	if !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("expected ErrConnectionClosed, got %v", err)
	}
}

func TestWebSocket_Reconnect(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.BinaryMessage, []byte("hello"))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	ws := NewWebSocket(testConfig(wsURL(server)), nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := ws.Connect(ctx); err != nil {
			t.Fatalf("connect %d failed: %v", i, err)
		}
		data, err := ws.Receive(ctx, time.Second)
		if err != nil {
			t.Fatalf("connect %d: Receive failed: %v", i, err)
		}
		if string(data) != "hello" {
			t.Errorf("connect %d: got %q, want hello", i, data)
		}
	}
	ws.Close()
}
