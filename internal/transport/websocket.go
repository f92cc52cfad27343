package transport

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"
)

// WebSocket is a bidirectional transport backed by a gorilla/websocket
// connection, offered as a network-facing alternative to Framed.
type WebSocket struct {
	url    string
	dialer *websocket.Dialer

	mu   sync.Mutex
	conn *websocket.Conn

	closeOnce sync.Once
	closed    chan struct{}
}

// NewWebSocket creates a transport that dials wsURL on Connect.
func NewWebSocket(wsURL string) *WebSocket {
	return &WebSocket{
		url:    wsURL,
		dialer: websocket.DefaultDialer,
		closed: make(chan struct{}),
	}
}

func (w *WebSocket) Variant() Variant { return VariantBidirectional }

func (w *WebSocket) Connect(ctx context.Context) error {
	if _, err := url.Parse(w.url); err != nil {
		return fmt.Errorf("websocket transport: invalid url: %w", err)
	}

	conn, _, err := w.dialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return fmt.Errorf("websocket transport: dial: %w", err)
	}

	w.mu.Lock()
	w.conn = conn
	w.mu.Unlock()
	return nil
}

func (w *WebSocket) Send(ctx context.Context, frame Frame) (Frame, error) {
	select {
	case <-w.closed:
		return nil, ErrClosed
	default:
	}

	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()
	if conn == nil {
		return nil, fmt.Errorf("websocket transport: not connected")
	}

	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return nil, fmt.Errorf("websocket transport write: %w", err)
	}
	return nil, nil
}

func (w *WebSocket) Receive(ctx context.Context) (Frame, error) {
	select {
	case <-w.closed:
		return nil, ErrClosed
	default:
	}

	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()
	if conn == nil {
		return nil, fmt.Errorf("websocket transport: not connected")
	}

	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("websocket transport read: %w", err)
	}
	return data, nil
}

func (w *WebSocket) Close() error {
	w.closeOnce.Do(func() { close(w.closed) })

	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}
